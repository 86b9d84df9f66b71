package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ContactRepository interface {
	ReplaceForCampaign(ctx context.Context, campaignID string, contacts []domain.Contact) error
	ListValid(ctx context.Context, campaignID string) ([]domain.Contact, error)
}

type GormContactRepo struct {
	db *gorm.DB
}

func NewGormContactRepo(db *gorm.DB) *GormContactRepo {
	return &GormContactRepo{db: db}
}

// ReplaceForCampaign swaps the stored contacts of a campaign for a freshly validated file.
// It holds the campaign row lock taken by StartExecution, so a running execution never
// sees a partial contact set.
func (r *GormContactRepo) ReplaceForCampaign(ctx context.Context, campaignID string, contacts []domain.Contact) error {
	now := time.Now().UTC()
	models := make([]ContactModel, 0, len(contacts))
	for i := range contacts {
		c := contacts[i]
		c.CampaignID = campaignID
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		models = append(models, *contactModelFromDomain(&c))
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var campaign CampaignModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "is_processing").
			First(&campaign, "id = ?", campaignID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		if campaign.IsProcessing {
			return fmt.Errorf("%w: Campaign is already being processed", domain.ErrAlreadyProcessing)
		}

		if err := tx.Where("campaign_id = ?", campaignID).Delete(&ContactModel{}).Error; err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}
		return tx.CreateInBatches(&models, 200).Error
	})
}

func (r *GormContactRepo) ListValid(ctx context.Context, campaignID string) ([]domain.Contact, error) {
	var models []ContactModel
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND is_valid = ?", campaignID, true).
		Order("row_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	contacts := make([]domain.Contact, 0, len(models))
	for i := range models {
		contacts = append(contacts, *contactModelToDomain(&models[i]))
	}
	return contacts, nil
}
