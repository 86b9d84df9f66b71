package service

import (
	"context"
	"errors"
	"testing"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
)

func newTestNotificationService(t *testing.T, notifications *memoryNotificationRepo, attempts *fakeAttemptRepo) *NotificationService {
	t.Helper()

	svc, err := NewNotificationService(notifications, attempts, nil)
	if err != nil {
		t.Fatalf("NewNotificationService() error = %v", err)
	}
	return svc
}

func TestNotificationServiceGetByIDIncludesAttempts(t *testing.T) {
	t.Parallel()

	notifications := newMemoryNotificationRepo(
		domain.Notification{ID: "n-1", CampaignID: "c-1", Channel: domain.ChannelSMS, Status: domain.StatusFailed, AttemptCount: 2},
	)
	attempts := &fakeAttemptRepo{}
	_ = attempts.Record(context.Background(), &domain.NotificationAttempt{NotificationID: "n-1", AttemptNumber: 1, Provider: "SMS"})
	_ = attempts.Record(context.Background(), &domain.NotificationAttempt{NotificationID: "n-1", AttemptNumber: 2, Provider: "SMS"})
	_ = attempts.Record(context.Background(), &domain.NotificationAttempt{NotificationID: "n-2", AttemptNumber: 1, Provider: "SMS"})

	svc := newTestNotificationService(t, notifications, attempts)

	detail, err := svc.GetByID(context.Background(), " n-1 ")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if detail.Notification.ID != "n-1" || detail.Notification.Status != domain.StatusFailed {
		t.Fatalf("notification = %+v", detail.Notification)
	}
	if len(detail.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(detail.Attempts))
	}
}

func TestNotificationServiceGetByIDErrors(t *testing.T) {
	t.Parallel()

	svc := newTestNotificationService(t, newMemoryNotificationRepo(), &fakeAttemptRepo{})

	if _, err := svc.GetByID(context.Background(), "  "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("GetByID(blank) error = %v, want ErrValidation", err)
	}
	if _, err := svc.GetByID(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByID(missing) error = %v, want ErrNotFound", err)
	}
}

func TestNotificationServiceCancel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		id         string
		wantErr    error
		wantStatus domain.Status
	}{
		{name: "pending is cancelled", id: "n-pending", wantStatus: domain.StatusCancelled},
		{name: "sent is a conflict", id: "n-sent", wantErr: domain.ErrConflict, wantStatus: domain.StatusSent},
		{name: "failed is a conflict", id: "n-failed", wantErr: domain.ErrConflict, wantStatus: domain.StatusFailed},
		{name: "missing is not found", id: "n-missing", wantErr: domain.ErrNotFound},
		{name: "blank id is invalid", id: "", wantErr: domain.ErrValidation},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			notifications := newMemoryNotificationRepo(
				domain.Notification{ID: "n-pending", Status: domain.StatusPending},
				domain.Notification{ID: "n-sent", Status: domain.StatusSent},
				domain.Notification{ID: "n-failed", Status: domain.StatusFailed},
			)
			svc := newTestNotificationService(t, notifications, &fakeAttemptRepo{})

			err := svc.Cancel(context.Background(), tt.id)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Cancel() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Cancel() error = %v", err)
			}

			if tt.wantStatus != "" {
				if got := notifications.get(tt.id).Status; got != tt.wantStatus {
					t.Fatalf("status = %s, want %s", got, tt.wantStatus)
				}
			}
		})
	}
}

func TestNewNotificationServiceRequiresRepositories(t *testing.T) {
	t.Parallel()

	if _, err := NewNotificationService(nil, &fakeAttemptRepo{}, nil); err == nil {
		t.Fatal("NewNotificationService(nil notifications) error = nil, want error")
	}
	if _, err := NewNotificationService(newMemoryNotificationRepo(), nil, nil); err == nil {
		t.Fatal("NewNotificationService(nil attempts) error = nil, want error")
	}
}
