package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/observability"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultTriggerInterval = time.Minute
	defaultTriggerLimit    = 50
)

// CampaignExecutor runs a campaign execution.
type CampaignExecutor interface {
	Execute(ctx context.Context, ref domain.CampaignRef) (*domain.ExecutionResult, error)
}

// Trigger executes scheduled campaigns whose execution date has passed.
type Trigger struct {
	campaigns repository.CampaignRepository
	executor  CampaignExecutor
	logger    *zap.Logger
	interval  time.Duration
	limit     int
	now       func() time.Time
}

func NewTrigger(
	campaigns repository.CampaignRepository,
	executor CampaignExecutor,
	interval time.Duration,
	logger *zap.Logger,
) (*Trigger, error) {
	if campaigns == nil {
		return nil, fmt.Errorf("campaign repository is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("campaign executor is required")
	}
	if interval <= 0 {
		interval = defaultTriggerInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Trigger{
		campaigns: campaigns,
		executor:  executor,
		logger:    logger,
		interval:  interval,
		limit:     defaultTriggerLimit,
		now:       time.Now,
	}, nil
}

func (t *Trigger) Start(ctx context.Context) error {
	return runEvery(ctx, t.interval, "trigger", t.logger, func(ctx context.Context) error {
		_, err := t.RunDue(ctx)
		return err
	})
}

// RunDue executes every due scheduled campaign and returns how many succeeded.
func (t *Trigger) RunDue(ctx context.Context) (int, error) {
	due, err := t.campaigns.GetDueForExecution(ctx, t.now().UTC(), t.limit)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch due campaigns: %w", err)
	}

	executed := 0
	for i := range due {
		c := &due[i]
		execCtx := observability.WithCorrelationID(ctx, observability.NewCorrelationID())
		logger := observability.WithContextLogger(t.logger, execCtx).With(zap.String("campaignId", c.ID))

		result, err := t.executor.Execute(execCtx, c.Ref())
		switch {
		case errors.Is(err, domain.ErrAlreadyProcessing):
			logger.Info("scheduled campaign already running")
		case errors.Is(err, domain.ErrValidation):
			logger.Warn("scheduled campaign rejected", zap.Error(err))
			if recErr := t.campaigns.RecordRejection(ctx, c.ID, t.now().UTC(), err.Error()); recErr != nil {
				logger.Error("failed to record campaign rejection", zap.Error(recErr))
			}
		case err != nil:
			logger.Warn("scheduled campaign not executed", zap.Error(err))
		case result != nil && !result.Success:
			logger.Warn("scheduled campaign execution failed", zap.String("result", result.Message))
		default:
			executed++
		}
	}
	return executed, nil
}
