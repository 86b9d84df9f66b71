package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/campaign-engine/internal/backoffice"
	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"go.uber.org/zap"
)

// FileExecutor notifies the valid contacts of an uploaded contact file.
type FileExecutor struct {
	notificationWriter
	contacts repository.ContactRepository
	partners backoffice.PartnerDirectory
}

func NewFileExecutor(
	contacts repository.ContactRepository,
	partners backoffice.PartnerDirectory,
	links backoffice.PaymentLinks,
	notifications repository.NotificationRepository,
	logger *zap.Logger,
) *FileExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileExecutor{
		notificationWriter: notificationWriter{notifications: notifications, links: links, logger: logger},
		contacts:           contacts,
		partners:           partners,
	}
}

func (e *FileExecutor) CanExecute(c *domain.Campaign) bool {
	return c.ValidationStatus == domain.ValidationStatusValidated && c.ValidContacts > 0 && canSchedule(c)
}

func (e *FileExecutor) Validate(_ context.Context, c *domain.Campaign) error {
	if c.ValidationStatus != domain.ValidationStatusValidated {
		return domain.NewValidationError("CSV file must be validated first (current status: %s)", c.ValidationStatus)
	}
	if c.ValidContacts == 0 {
		return domain.NewValidationError("No valid contacts found in CSV file")
	}
	return validateSchedule(c)
}

func (e *FileExecutor) CreateNotifications(ctx context.Context, c *domain.Campaign) (*domain.CreationSummary, error) {
	contacts, err := e.contacts.ListValid(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list valid contacts: %w", err)
	}

	logger := e.logger.With(zap.String("campaignId", c.ID))
	logger.Info("processing file contacts", zap.Int("contacts", len(contacts)))

	summary := &domain.CreationSummary{TotalRecipients: len(contacts)}
	for i := range contacts {
		contact := &contacts[i]

		recipient := contact.RecipientContact()
		if recipient.IdentifierFor(c.Channel) == "" {
			logger.Warn("skipping contact without channel identifier",
				zap.Int("row", contact.RowNumber),
				zap.String("channel", c.Channel.String()),
			)
			summary.Skipped++
			continue
		}

		n := newNotification(c, domain.RecipientKindContact, contact.ID, contact.FullName, recipient)
		n.TotalDebtAmount = contact.Amount
		if c.UsePaymentLink {
			n.PaymentLinkURL = e.contactPaymentLink(ctx, c, contact)
		}

		if err := e.upsert(ctx, summary, n); err != nil {
			return nil, err
		}
	}

	summary.Message = resultMessage(summary, "contacts")
	logger.Info("file campaign processed", zap.String("result", summary.Message))
	return summary, nil
}

// contactPaymentLink issues a link only when the contact's document number matches
// exactly one partner.
func (e *FileExecutor) contactPaymentLink(ctx context.Context, c *domain.Campaign, contact *domain.Contact) *string {
	if contact.DocumentNumber == "" {
		return nil
	}

	partner, err := e.partners.FindByDocument(ctx, contact.DocumentNumber)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		e.logger.Debug("no partner for contact document", zap.String("documentNumber", contact.DocumentNumber))
		return nil
	case err != nil:
		e.logger.Warn("partner lookup for payment link failed",
			zap.String("documentNumber", contact.DocumentNumber),
			zap.Error(err),
		)
		return nil
	}
	return e.paymentLink(ctx, c, partner.ID)
}
