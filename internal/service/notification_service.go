package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"go.uber.org/zap"
)

// NotificationDetail is a notification together with its provider call log.
type NotificationDetail struct {
	Notification *domain.Notification
	Attempts     []domain.NotificationAttempt
}

// NotificationService is the operator read and cancel surface of notifications.
type NotificationService struct {
	notifications repository.NotificationRepository
	attempts      repository.AttemptRepository
	logger        *zap.Logger
}

func NewNotificationService(
	notifications repository.NotificationRepository,
	attempts repository.AttemptRepository,
	logger *zap.Logger,
) (*NotificationService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		notifications: notifications,
		attempts:      attempts,
		logger:        logger,
	}, nil
}

func (s *NotificationService) GetByID(ctx context.Context, id string) (*NotificationDetail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}

	n, err := s.notifications.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	attempts, err := s.attempts.ListForNotification(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempts: %w", err)
	}

	return &NotificationDetail{Notification: n, Attempts: attempts}, nil
}

// Cancel cancels a notification that has not been delivered yet.
func (s *NotificationService) Cancel(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}

	if _, err := s.notifications.GetByID(ctx, id); err != nil {
		return err
	}

	cancelled, err := s.notifications.CancelPending(ctx, id)
	if err != nil {
		return err
	}
	if !cancelled {
		return fmt.Errorf("%w: only pending notifications can be cancelled", domain.ErrConflict)
	}

	s.logger.Info("notification cancelled", zap.String("notificationId", id))
	return nil
}

func (s *NotificationService) List(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error) {
	return s.notifications.List(ctx, params)
}
