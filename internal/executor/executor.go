package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/backoffice"
	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	paymentLinkTTL             = 24 * time.Hour
	paymentLinkIncludeUpcoming = true
)

// Executor turns a campaign into per-recipient notifications.
type Executor interface {
	// Validate returns a domain.ValidationError describing why the campaign cannot run.
	Validate(ctx context.Context, c *domain.Campaign) error
	CanExecute(c *domain.Campaign) bool
	CreateNotifications(ctx context.Context, c *domain.Campaign) (*domain.CreationSummary, error)
}

// Factory selects the executor of a campaign kind.
type Factory struct {
	executors map[domain.CampaignKind]Executor
}

func NewFactory(group, file Executor) *Factory {
	return &Factory{
		executors: map[domain.CampaignKind]Executor{
			domain.CampaignKindGroup: group,
			domain.CampaignKindFile:  file,
		},
	}
}

func (f *Factory) For(kind domain.CampaignKind) (Executor, error) {
	e, ok := f.executors[kind]
	if !ok || e == nil {
		return nil, fmt.Errorf("%w: no executor found for campaign kind %q", domain.ErrValidation, kind)
	}
	return e, nil
}

// validateSchedule holds the checks shared by both campaign kinds.
func validateSchedule(c *domain.Campaign) error {
	if c.ExecutionDate == nil {
		return domain.NewValidationError("Campaign has no execution date")
	}
	if !c.Status.IsExecutable() {
		return domain.NewValidationError("Campaign status is %s, must be ACTIVE or SCHEDULED", c.Status)
	}
	if c.IsProcessing {
		return domain.NewValidationError("Campaign is already being processed")
	}
	return nil
}

func canSchedule(c *domain.Campaign) bool {
	return c.Status.IsExecutable() && !c.IsProcessing && c.ExecutionDate != nil
}

// notificationWriter upserts notifications and tallies the creation summary.
type notificationWriter struct {
	notifications repository.NotificationRepository
	links         backoffice.PaymentLinks
	logger        *zap.Logger
}

func (w *notificationWriter) upsert(ctx context.Context, summary *domain.CreationSummary, n *domain.Notification) error {
	inserted, err := w.notifications.Upsert(ctx, n)
	if err != nil {
		return fmt.Errorf("failed to upsert notification for %s %s: %w", n.RecipientKind, n.RecipientID, err)
	}
	if inserted {
		summary.Created++
		summary.NotificationIDs = append(summary.NotificationIDs, n.ID)
		return nil
	}
	summary.Updated++
	return nil
}

// paymentLink issues a link for a partner. Failures are logged and yield no link.
func (w *notificationWriter) paymentLink(ctx context.Context, c *domain.Campaign, partnerID string) *string {
	url, err := w.links.CreateMagicLink(ctx, partnerID, paymentLinkTTL, paymentLinkIncludeUpcoming)
	if err != nil {
		w.logger.Error("failed to generate payment link",
			zap.String("campaignId", c.ID),
			zap.String("partnerId", partnerID),
			zap.Error(err),
		)
		return nil
	}
	return &url
}

func newNotification(c *domain.Campaign, kind domain.RecipientKind, recipientID, name string, contact domain.RecipientContact) *domain.Notification {
	notificationType := c.NotificationType
	if notificationType == "" {
		notificationType = domain.NotificationTypeScheduled
	}
	return &domain.Notification{
		CampaignKind:        c.Kind,
		CampaignID:          c.ID,
		RecipientKind:       kind,
		RecipientID:         recipientID,
		NotificationType:    notificationType,
		Channel:             c.Channel,
		Status:              domain.StatusPending,
		RecipientName:       name,
		RecipientEmail:      domain.StringPtr(contact.Email),
		RecipientPhone:      domain.StringPtr(contact.Phone),
		RecipientTelegramID: domain.StringPtr(contact.TelegramID),
		ScheduledAt:         c.ExecutionDate,
		IncludedPaymentLink: c.UsePaymentLink,
	}
}

func resultMessage(s *domain.CreationSummary, noun string) string {
	return fmt.Sprintf("Created %d notifications, updated %d, skipped %d %s", s.Created, s.Updated, s.Skipped, noun)
}
