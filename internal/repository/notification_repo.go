package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ListParams struct {
	CampaignID *string
	Status     *domain.Status
	Channel    *domain.Channel
	Page       int
	PageSize   int
}

type statusCount struct {
	Status domain.Status `gorm:"column:status"`
	Count  int           `gorm:"column:count"`
}

type NotificationRepository interface {
	Upsert(ctx context.Context, n *domain.Notification) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	List(ctx context.Context, params ListParams) ([]domain.Notification, int64, error)
	GetDuePending(ctx context.Context, now time.Time, requeueBefore time.Time, limit int) ([]domain.Notification, error)
	CancelPending(ctx context.Context, id string) (bool, error)
	MarkQueued(ctx context.Context, id string, at time.Time) error
	ClaimAttempt(ctx context.Context, id string, retries int, now time.Time) (*domain.Notification, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	SetMessageContent(ctx context.Context, id string, content string) error
	CampaignSummary(ctx context.Context, ref domain.CampaignRef) (domain.NotificationSummary, error)
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

// upsertNotificationSQL keys on the natural identity of a notification. Rows already
// SENT keep their delivery state; every other row is reset for a fresh delivery.
const upsertNotificationSQL = `
INSERT INTO notifications (
	id, campaign_kind, campaign_id, recipient_kind, recipient_id, notification_type, channel,
	status, recipient_name, recipient_email, recipient_phone, recipient_telegram_id,
	scheduled_at, total_debt_amount, included_payment_link, payment_link_url,
	attempt_count, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
ON CONFLICT (campaign_kind, campaign_id, recipient_kind, recipient_id, notification_type, channel)
DO UPDATE SET
	recipient_name = EXCLUDED.recipient_name,
	recipient_email = EXCLUDED.recipient_email,
	recipient_phone = EXCLUDED.recipient_phone,
	recipient_telegram_id = EXCLUDED.recipient_telegram_id,
	scheduled_at = EXCLUDED.scheduled_at,
	total_debt_amount = EXCLUDED.total_debt_amount,
	included_payment_link = EXCLUDED.included_payment_link,
	payment_link_url = EXCLUDED.payment_link_url,
	status = CASE WHEN notifications.status = 'SENT' THEN notifications.status ELSE EXCLUDED.status END,
	attempt_count = CASE WHEN notifications.status = 'SENT' THEN notifications.attempt_count ELSE 0 END,
	error_message = CASE WHEN notifications.status = 'SENT' THEN notifications.error_message ELSE NULL END,
	message_content = CASE WHEN notifications.status = 'SENT' THEN notifications.message_content ELSE NULL END,
	queued_at = CASE WHEN notifications.status = 'SENT' THEN notifications.queued_at ELSE NULL END,
	updated_at = EXCLUDED.updated_at
RETURNING id, (xmax = 0) AS inserted`

// Upsert creates the notification or refreshes the existing row with the same identity.
// It reports whether a new row was inserted and sets n.ID to the stored id.
func (r *GormNotificationRepo) Upsert(ctx context.Context, n *domain.Notification) (bool, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = domain.StatusPending
	}
	now := time.Now().UTC()

	var row struct {
		ID       string
		Inserted bool
	}
	err := r.db.WithContext(ctx).Raw(upsertNotificationSQL,
		n.ID, n.CampaignKind, n.CampaignID, n.RecipientKind, n.RecipientID, n.NotificationType, n.Channel,
		n.Status, n.RecipientName, n.RecipientEmail, n.RecipientPhone, n.RecipientTelegramID,
		n.ScheduledAt, n.TotalDebtAmount, n.IncludedPaymentLink, n.PaymentLinkURL,
		now, now,
	).Scan(&row).Error
	if err != nil {
		return false, err
	}

	n.ID = row.ID
	return row.Inserted, nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) List(ctx context.Context, params ListParams) ([]domain.Notification, int64, error) {
	query := r.db.WithContext(ctx).Model(&NotificationModel{})

	if params.CampaignID != nil {
		query = query.Where("campaign_id = ?", *params.CampaignID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Channel != nil {
		query = query.Where("channel = ?", *params.Channel)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []NotificationModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	return notificationModelsToDomain(models), total, nil
}

// GetDuePending returns pending notifications whose schedule passed and that were not
// enqueued after requeueBefore.
func (r *GormNotificationRepo) GetDuePending(ctx context.Context, now time.Time, requeueBefore time.Time, limit int) ([]domain.Notification, error) {
	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", domain.StatusPending, now).
		Where("queued_at IS NULL OR queued_at < ?", requeueBefore).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return notificationModelsToDomain(models), nil
}

func (r *GormNotificationRepo) CancelPending(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Update("status", domain.StatusCancelled)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormNotificationRepo) MarkQueued(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Update("queued_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ClaimAttempt counts a delivery attempt for the task that has already retried
// `retries` times. It returns nil without error when another task owns the notification.
func (r *GormNotificationRepo) ClaimAttempt(ctx context.Context, id string, retries int, now time.Time) (*domain.Notification, error) {
	var claimed *domain.Notification
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model NotificationModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		n := notificationModelToDomain(&model)
		if !n.Claimable(retries) {
			return nil
		}

		if err := tx.Model(&NotificationModel{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"attempt_count":   gorm.Expr("attempt_count + 1"),
				"last_attempt_at": now,
			}).Error; err != nil {
			return err
		}

		n.AttemptCount++
		n.LastAttemptAt = &now
		claimed = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *GormNotificationRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.StatusSent,
			"sent_at":       sentAt,
			"error_message": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	res := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.StatusFailed,
			"error_message": errMsg,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepo) SetMessageContent(ctx context.Context, id string, content string) error {
	return r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Update("message_content", content).Error
}

func (r *GormNotificationRepo) CampaignSummary(ctx context.Context, ref domain.CampaignRef) (domain.NotificationSummary, error) {
	var counts []statusCount
	err := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Select("status, COUNT(*) as count").
		Where("campaign_kind = ? AND campaign_id = ?", ref.Kind, ref.ID).
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return domain.NotificationSummary{}, err
	}
	return summaryFromCounts(counts), nil
}

func summaryFromCounts(counts []statusCount) domain.NotificationSummary {
	var s domain.NotificationSummary
	for _, c := range counts {
		s.Total += c.Count
		switch c.Status {
		case domain.StatusPending:
			s.Pending += c.Count
		case domain.StatusSent:
			s.Sent += c.Count
		case domain.StatusFailed:
			s.Failed += c.Count
		case domain.StatusCancelled:
			s.Cancelled += c.Count
		}
	}
	return s
}

func notificationModelsToDomain(models []NotificationModel) []domain.Notification {
	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}
	return notifications
}
