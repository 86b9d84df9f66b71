package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
)

type fakeTemplateRepo struct {
	calls int
	tmpl  *domain.MessageTemplate
	err   error
}

func (f *fakeTemplateRepo) GetActive(_ context.Context, _ domain.NotificationType, _ domain.Channel) (*domain.MessageTemplate, error) {
	f.calls++
	return f.tmpl, f.err
}

func TestCachedTemplateRepo_CachesHits(t *testing.T) {
	t.Parallel()

	next := &fakeTemplateRepo{tmpl: &domain.MessageTemplate{ID: "t-1", MessageBody: "Hola {partner_name}"}}
	repo := NewCachedTemplateRepo(next, time.Minute)

	for range 3 {
		tmpl, err := repo.GetActive(context.Background(), domain.NotificationTypeScheduled, domain.ChannelWhatsApp)
		if err != nil {
			t.Fatalf("GetActive() error = %v", err)
		}
		if tmpl == nil || tmpl.ID != "t-1" {
			t.Fatalf("GetActive() = %+v, want t-1", tmpl)
		}
	}

	if next.calls != 1 {
		t.Fatalf("next.calls = %d, want 1", next.calls)
	}
}

func TestCachedTemplateRepo_CachesMisses(t *testing.T) {
	t.Parallel()

	next := &fakeTemplateRepo{}
	repo := NewCachedTemplateRepo(next, time.Minute)

	for range 2 {
		tmpl, err := repo.GetActive(context.Background(), domain.NotificationTypeScheduled, domain.ChannelEmail)
		if err != nil {
			t.Fatalf("GetActive() error = %v", err)
		}
		if tmpl != nil {
			t.Fatalf("GetActive() = %+v, want nil", tmpl)
		}
	}

	if next.calls != 1 {
		t.Fatalf("next.calls = %d, want 1", next.calls)
	}
}

func TestCachedTemplateRepo_ErrorsAreNotCached(t *testing.T) {
	t.Parallel()

	next := &fakeTemplateRepo{err: errors.New("db down")}
	repo := NewCachedTemplateRepo(next, time.Minute)

	for range 2 {
		if _, err := repo.GetActive(context.Background(), domain.NotificationTypeScheduled, domain.ChannelSMS); err == nil {
			t.Fatal("GetActive() error = nil, want error")
		}
	}

	if next.calls != 2 {
		t.Fatalf("next.calls = %d, want 2", next.calls)
	}
}

func TestCachedTemplateRepo_Invalidate(t *testing.T) {
	t.Parallel()

	next := &fakeTemplateRepo{tmpl: &domain.MessageTemplate{ID: "t-1"}}
	repo := NewCachedTemplateRepo(next, time.Minute)

	_, _ = repo.GetActive(context.Background(), domain.NotificationTypeScheduled, domain.ChannelTelegram)
	repo.Invalidate()
	_, _ = repo.GetActive(context.Background(), domain.NotificationTypeScheduled, domain.ChannelTelegram)

	if next.calls != 2 {
		t.Fatalf("next.calls = %d, want 2", next.calls)
	}
}

func TestSummaryFromCounts(t *testing.T) {
	t.Parallel()

	got := summaryFromCounts([]statusCount{
		{Status: domain.StatusSent, Count: 7},
		{Status: domain.StatusCancelled, Count: 3},
		{Status: domain.StatusFailed, Count: 2},
		{Status: domain.StatusPending, Count: 1},
	})

	want := domain.NotificationSummary{Total: 13, Pending: 1, Sent: 7, Failed: 2, Cancelled: 3}
	if got != want {
		t.Fatalf("summaryFromCounts() = %+v, want %+v", got, want)
	}
}
