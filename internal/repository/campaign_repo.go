package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ExecutionLock is the outcome of trying to acquire a campaign's execution lock.
type ExecutionLock struct {
	Acquired       bool
	PreviousStatus domain.CampaignStatus
}

// ValidationUpdate carries the counters written after a contact file is validated.
type ValidationUpdate struct {
	FileName        string
	Status          domain.ValidationStatus
	TotalContacts   int
	ValidContacts   int
	InvalidContacts int
	Report          *domain.ValidationReport
}

type CampaignRepository interface {
	Create(ctx context.Context, c *domain.Campaign) error
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	StartExecution(ctx context.Context, id string, now time.Time) (*ExecutionLock, error)
	FinishExecution(ctx context.Context, id string, status domain.CampaignStatus, result string) error
	TransitionStatus(ctx context.Context, id string, from domain.CampaignStatus, to domain.CampaignStatus) error
	CompleteIfIdle(ctx context.Context, id string) (bool, error)
	PromoteActiveToSending(ctx context.Context, ids []string) (int64, error)
	GetStatuses(ctx context.Context, ids []string) (map[string]domain.CampaignStatus, error)
	ListSweepCandidates(ctx context.Context, afterID string, limit int) ([]domain.Campaign, error)
	GetDueForExecution(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error)
	RecordRejection(ctx context.Context, id string, at time.Time, result string) error
	UpdateValidation(ctx context.Context, id string, update ValidationUpdate) error
}

type GormCampaignRepo struct {
	db *gorm.DB
}

func NewGormCampaignRepo(db *gorm.DB) *GormCampaignRepo {
	return &GormCampaignRepo{db: db}
}

func (r *GormCampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	model := campaignModelFromDomain(c)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if c != nil {
		*c = *campaignModelToDomain(model)
	}
	return nil
}

func (r *GormCampaignRepo) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	var model CampaignModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return campaignModelToDomain(&model), nil
}

// StartExecution acquires the execution lock under a row lock. A held lock is reported
// through ExecutionLock.Acquired, not as an error.
func (r *GormCampaignRepo) StartExecution(ctx context.Context, id string, now time.Time) (*ExecutionLock, error) {
	lock := &ExecutionLock{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model CampaignModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		lock.PreviousStatus = model.Status
		if model.IsProcessing {
			return nil
		}
		if !model.Status.IsExecutable() {
			return domain.NewValidationError("Campaign status is %s, must be ACTIVE or SCHEDULED", model.Status)
		}

		if err := tx.Model(&CampaignModel{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"is_processing":     true,
				"last_execution_at": now,
				"execution_count":   gorm.Expr("execution_count + 1"),
				"status":            domain.CampaignStatusProcessing,
				"updated_at":        now,
			}).Error; err != nil {
			return err
		}

		lock.Acquired = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lock, nil
}

func (r *GormCampaignRepo) FinishExecution(ctx context.Context, id string, status domain.CampaignStatus, result string) error {
	res := r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_processing":         false,
			"status":                status,
			"last_execution_result": result,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// TransitionStatus moves an idle campaign from one status to another. A concurrent change
// or a running execution makes it return ErrConflict.
func (r *GormCampaignRepo) TransitionStatus(ctx context.Context, id string, from domain.CampaignStatus, to domain.CampaignStatus) error {
	res := r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ? AND status = ? AND is_processing = ?", id, from, false).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormCampaignRepo) CompleteIfIdle(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ? AND status IN ? AND is_processing = ?", id, sendableStatuses(), false).
		Update("status", domain.CampaignStatusCompleted)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormCampaignRepo) PromoteActiveToSending(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res := r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id IN ? AND status = ?", ids, domain.CampaignStatusActive).
		Update("status", domain.CampaignStatusSending)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *GormCampaignRepo) GetStatuses(ctx context.Context, ids []string) (map[string]domain.CampaignStatus, error) {
	statuses := make(map[string]domain.CampaignStatus, len(ids))
	if len(ids) == 0 {
		return statuses, nil
	}

	var rows []struct {
		ID     string
		Status domain.CampaignStatus
	}
	err := r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Select("id, status").
		Where("id IN ?", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		statuses[row.ID] = row.Status
	}
	return statuses, nil
}

// ListSweepCandidates pages through idle ACTIVE and SENDING campaigns in id order,
// starting after afterID.
func (r *GormCampaignRepo) ListSweepCandidates(ctx context.Context, afterID string, limit int) ([]domain.Campaign, error) {
	var models []CampaignModel
	query := r.db.WithContext(ctx).
		Where("status IN ? AND is_processing = ?", sendableStatuses(), false)
	if afterID != "" {
		query = query.Where("id > ?", afterID)
	}
	err := query.
		Order("id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return campaignModelsToDomain(models), nil
}

// RecordRejection stamps a scheduled campaign that failed validation so the trigger does
// not pick it up again until its execution date changes.
func (r *GormCampaignRepo) RecordRejection(ctx context.Context, id string, at time.Time, result string) error {
	return r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ? AND status = ? AND is_processing = ?", id, domain.CampaignStatusScheduled, false).
		Updates(map[string]any{
			"last_execution_at":     at,
			"last_execution_result": result,
		}).Error
}

// GetDueForExecution returns scheduled campaigns whose execution date passed and that
// have not been executed since.
func (r *GormCampaignRepo) GetDueForExecution(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error) {
	var models []CampaignModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND is_processing = ? AND execution_date <= ?", domain.CampaignStatusScheduled, false, now).
		Where("last_execution_at IS NULL OR last_execution_at < execution_date").
		Order("execution_date ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return campaignModelsToDomain(models), nil
}

func (r *GormCampaignRepo) UpdateValidation(ctx context.Context, id string, update ValidationUpdate) error {
	res := r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ? AND kind = ?", id, domain.CampaignKindFile).
		Select("file_name", "validation_status", "total_contacts", "valid_contacts", "invalid_contacts", "validation_result").
		Updates(&CampaignModel{
			FileName:         update.FileName,
			ValidationStatus: update.Status,
			TotalContacts:    update.TotalContacts,
			ValidContacts:    update.ValidContacts,
			InvalidContacts:  update.InvalidContacts,
			ValidationResult: update.Report,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func sendableStatuses() []domain.CampaignStatus {
	return []domain.CampaignStatus{domain.CampaignStatusActive, domain.CampaignStatusSending}
}

func campaignModelsToDomain(models []CampaignModel) []domain.Campaign {
	campaigns := make([]domain.Campaign, 0, len(models))
	for i := range models {
		campaigns = append(campaigns, *campaignModelToDomain(&models[i]))
	}
	return campaigns
}
