package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/campaign-engine/internal/backoffice"
	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"go.uber.org/zap"
)

// GroupExecutor notifies every indebted partner of the campaign's group.
type GroupExecutor struct {
	notificationWriter
	partners backoffice.PartnerDirectory
	debts    backoffice.DebtAggregator
}

func NewGroupExecutor(
	partners backoffice.PartnerDirectory,
	debts backoffice.DebtAggregator,
	links backoffice.PaymentLinks,
	notifications repository.NotificationRepository,
	logger *zap.Logger,
) *GroupExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupExecutor{
		notificationWriter: notificationWriter{notifications: notifications, links: links, logger: logger},
		partners:           partners,
		debts:              debts,
	}
}

func (e *GroupExecutor) CanExecute(c *domain.Campaign) bool {
	return canSchedule(c) && hasGroup(c)
}

func (e *GroupExecutor) Validate(ctx context.Context, c *domain.Campaign) error {
	if !hasGroup(c) {
		return domain.NewValidationError("Campaign has no group assigned")
	}
	if err := validateSchedule(c); err != nil {
		return err
	}

	partners, err := e.partners.GroupPartners(ctx, *c.GroupID)
	if err != nil {
		return fmt.Errorf("failed to list group partners: %w", err)
	}
	if len(partners) == 0 {
		return domain.NewValidationError("Group has no partners")
	}
	return nil
}

func (e *GroupExecutor) CreateNotifications(ctx context.Context, c *domain.Campaign) (*domain.CreationSummary, error) {
	if !hasGroup(c) {
		return nil, domain.NewValidationError("Campaign has no group assigned")
	}
	partners, err := e.partners.GroupPartners(ctx, *c.GroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group partners: %w", err)
	}

	logger := e.logger.With(zap.String("campaignId", c.ID))
	logger.Info("processing group partners", zap.Int("partners", len(partners)))

	summary := &domain.CreationSummary{TotalRecipients: len(partners)}
	for i := range partners {
		partner := &partners[i]

		debt, err := e.debts.PartnerDebt(ctx, partner.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get debt of partner %s: %w", partner.ID, err)
		}
		if !debt.HasDebt() {
			summary.Skipped++
			continue
		}

		contact := partner.RecipientContact()
		if contact.IdentifierFor(c.Channel) == "" {
			logger.Warn("skipping partner without channel identifier",
				zap.String("partnerId", partner.ID),
				zap.String("channel", c.Channel.String()),
			)
			summary.Skipped++
			continue
		}

		n := newNotification(c, domain.RecipientKindPartner, partner.ID, partner.FullName, contact)
		n.TotalDebtAmount = debt.Total
		if c.UsePaymentLink {
			n.PaymentLinkURL = e.paymentLink(ctx, c, partner.ID)
		}

		if err := e.upsert(ctx, summary, n); err != nil {
			return nil, err
		}
	}

	summary.Message = resultMessage(summary, "partners")
	logger.Info("group campaign processed", zap.String("result", summary.Message))
	return summary, nil
}

func hasGroup(c *domain.Campaign) bool {
	return c.GroupID != nil && strings.TrimSpace(*c.GroupID) != ""
}
