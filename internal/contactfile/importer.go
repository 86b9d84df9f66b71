package contactfile

import (
	"context"
	"fmt"
	"io"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"go.uber.org/zap"
)

// Importer validates an uploaded contact file and stores its contacts on a file campaign.
type Importer struct {
	campaigns repository.CampaignRepository
	contacts  repository.ContactRepository
	logger    *zap.Logger
}

func NewImporter(campaigns repository.CampaignRepository, contacts repository.ContactRepository, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{campaigns: campaigns, contacts: contacts, logger: logger}
}

// Import replaces the campaign's contacts with the rows of the file. Parse failures mark
// the campaign's validation FAILED and are returned as ErrValidation.
func (i *Importer) Import(ctx context.Context, campaignID, fileName string, r io.Reader) (*Result, error) {
	campaign, err := i.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign %s: %w", campaignID, err)
	}
	if campaign.Kind != domain.CampaignKindFile {
		return nil, fmt.Errorf("%w: contacts can only be uploaded to %s campaigns", domain.ErrValidation, domain.CampaignKindFile)
	}
	if campaign.IsProcessing {
		return nil, fmt.Errorf("%w: Campaign is already being processed", domain.ErrAlreadyProcessing)
	}

	if err := i.campaigns.UpdateValidation(ctx, campaignID, repository.ValidationUpdate{
		FileName: fileName,
		Status:   domain.ValidationStatusProcessing,
	}); err != nil {
		return nil, fmt.Errorf("failed to mark validation in progress: %w", err)
	}

	rows, err := Parse(fileName, r)
	if err != nil {
		i.fail(ctx, campaignID, fileName, err)
		return nil, err
	}

	res := Validate(rows)
	if err := i.contacts.ReplaceForCampaign(ctx, campaignID, res.Contacts); err != nil {
		i.fail(ctx, campaignID, fileName, err)
		return nil, fmt.Errorf("failed to store contacts: %w", err)
	}

	report := res.Report
	if err := i.campaigns.UpdateValidation(ctx, campaignID, repository.ValidationUpdate{
		FileName:        fileName,
		Status:          res.Status,
		TotalContacts:   report.TotalRows,
		ValidContacts:   report.ValidRows,
		InvalidContacts: report.InvalidRows,
		Report:          &report,
	}); err != nil {
		return nil, fmt.Errorf("failed to store validation result: %w", err)
	}

	i.logger.Info("contact file validated",
		zap.String("campaignId", campaignID),
		zap.String("fileName", fileName),
		zap.String("validationStatus", res.Status.String()),
		zap.Int("valid", report.ValidRows),
		zap.Int("invalid", report.InvalidRows),
	)
	return &res, nil
}

func (i *Importer) fail(ctx context.Context, campaignID, fileName string, cause error) {
	if err := i.campaigns.UpdateValidation(ctx, campaignID, repository.ValidationUpdate{
		FileName: fileName,
		Status:   domain.ValidationStatusFailed,
		Report:   &domain.ValidationReport{Error: cause.Error()},
	}); err != nil {
		i.logger.Error("failed to record validation failure",
			zap.String("campaignId", campaignID),
			zap.Error(err),
		)
	}
	i.logger.Warn("contact file rejected",
		zap.String("campaignId", campaignID),
		zap.String("fileName", fileName),
		zap.Error(cause),
	)
}
