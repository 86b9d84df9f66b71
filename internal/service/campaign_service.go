package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/executor"
	"github.com/kursadbilgin/campaign-engine/internal/observability"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"go.uber.org/zap"
)

// ExecutorResolver returns the executor of a campaign kind.
type ExecutorResolver interface {
	For(kind domain.CampaignKind) (executor.Executor, error)
}

// CampaignSummary is the delivery progress of a campaign.
type CampaignSummary struct {
	CampaignID         string
	Kind               domain.CampaignKind
	Status             domain.CampaignStatus
	IsProcessing       bool
	Notifications      domain.NotificationSummary
	ProgressPercentage float64
}

type CampaignService struct {
	campaigns     repository.CampaignRepository
	notifications repository.NotificationRepository
	executors     ExecutorResolver
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

func NewCampaignService(
	campaigns repository.CampaignRepository,
	notifications repository.NotificationRepository,
	executors ExecutorResolver,
	logger *zap.Logger,
) (*CampaignService, error) {
	if campaigns == nil {
		return nil, fmt.Errorf("campaign repository is required")
	}
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if executors == nil {
		return nil, fmt.Errorf("executor resolver is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CampaignService{
		campaigns:     campaigns,
		notifications: notifications,
		executors:     executors,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (s *CampaignService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Execute validates the campaign, takes its execution lock and creates its notifications.
// Errors raised before the lock is taken are returned. Once the lock is held the outcome,
// including a panic, is recorded on the campaign and reported through the result.
func (s *CampaignService) Execute(ctx context.Context, ref domain.CampaignRef) (result *domain.ExecutionResult, err error) {
	c, exec, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}

	if err := exec.Validate(ctx, c); err != nil {
		return failedResult(err), err
	}

	lock, err := s.campaigns.StartExecution(ctx, c.ID, s.now().UTC())
	if err != nil {
		return failedResult(err), err
	}
	if !lock.Acquired {
		return failedResult(domain.ErrAlreadyProcessing), domain.ErrAlreadyProcessing
	}

	logger := observability.WithContextLogger(s.logger, ctx).With(
		zap.String("campaignId", c.ID),
		zap.String("campaignKind", c.Kind.String()),
	)
	logger.Info("campaign execution started", zap.String("previousStatus", lock.PreviousStatus.String()))

	var summary *domain.CreationSummary
	defer func() {
		execErr := err
		if r := recover(); r != nil {
			execErr = fmt.Errorf("panic: %v", r)
		}
		result, err = s.finish(context.WithoutCancel(ctx), c, lock.PreviousStatus, summary, execErr, logger)
	}()

	summary, err = exec.CreateNotifications(ctx, c)
	return nil, err
}

// finish releases the execution lock and stores the resulting campaign status.
func (s *CampaignService) finish(
	ctx context.Context,
	c *domain.Campaign,
	previous domain.CampaignStatus,
	summary *domain.CreationSummary,
	execErr error,
	logger *zap.Logger,
) (*domain.ExecutionResult, error) {
	if execErr != nil {
		message := "Error during execution: " + execErr.Error()
		logger.Error("campaign execution failed", zap.Error(execErr))
		s.metrics.IncCampaignExecution(c.Kind.String(), false)

		if err := s.campaigns.FinishExecution(ctx, c.ID, domain.CampaignStatusFailed, message); err != nil {
			return nil, fmt.Errorf("failed to finish campaign execution: %w", err)
		}
		return &domain.ExecutionResult{Success: false, Message: message, Error: execErr.Error(), Summary: summary}, nil
	}

	counts, err := s.notifications.CampaignSummary(ctx, c.Ref())
	if err != nil {
		logger.Warn("failed to count campaign notifications", zap.Error(err))
		touched := 0
		if summary != nil {
			touched = summary.Created + summary.Updated
		}
		counts = domain.NotificationSummary{Total: touched, Pending: touched}
	}

	status := domain.StatusAfterExecution(counts, previous)
	message := "Success"
	if summary != nil && summary.Message != "" {
		message = summary.Message
	}

	if err := s.campaigns.FinishExecution(ctx, c.ID, status, message); err != nil {
		return nil, fmt.Errorf("failed to finish campaign execution: %w", err)
	}
	s.metrics.IncCampaignExecution(c.Kind.String(), true)

	logger.Info("campaign execution finished",
		zap.String("status", status.String()),
		zap.String("result", message),
	)
	return &domain.ExecutionResult{Success: true, Message: message, Summary: summary}, nil
}

func (s *CampaignService) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.campaigns.GetByID(ctx, id)
}

// CanExecute reports whether the campaign may be executed now.
func (s *CampaignService) CanExecute(ctx context.Context, ref domain.CampaignRef) (bool, error) {
	c, exec, err := s.load(ctx, ref)
	if err != nil {
		return false, err
	}
	return exec.CanExecute(c), nil
}

// TransitionStatus applies an operator status change.
func (s *CampaignService) TransitionStatus(ctx context.Context, id string, to domain.CampaignStatus) (*domain.Campaign, error) {
	if !to.IsValid() {
		return nil, fmt.Errorf("%w: invalid campaign status %q", domain.ErrValidation, to)
	}

	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsProcessing {
		return nil, fmt.Errorf("%w: campaign is being processed", domain.ErrConflict)
	}
	if !c.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: cannot move campaign from %s to %s", domain.ErrConflict, c.Status, to)
	}

	if err := s.campaigns.TransitionStatus(ctx, id, c.Status, to); err != nil {
		return nil, err
	}

	s.logger.Info("campaign status changed",
		zap.String("campaignId", id),
		zap.String("from", c.Status.String()),
		zap.String("to", to.String()),
	)
	c.Status = to
	return c, nil
}

func (s *CampaignService) Summary(ctx context.Context, id string) (*CampaignSummary, error) {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	counts, err := s.notifications.CampaignSummary(ctx, c.Ref())
	if err != nil {
		return nil, fmt.Errorf("failed to count campaign notifications: %w", err)
	}

	return &CampaignSummary{
		CampaignID:         c.ID,
		Kind:               c.Kind,
		Status:             c.Status,
		IsProcessing:       c.IsProcessing,
		Notifications:      counts,
		ProgressPercentage: counts.ProgressPercentage(),
	}, nil
}

func (s *CampaignService) load(ctx context.Context, ref domain.CampaignRef) (*domain.Campaign, executor.Executor, error) {
	c, err := s.campaigns.GetByID(ctx, ref.ID)
	if err != nil {
		return nil, nil, err
	}
	if ref.Kind != "" && c.Kind != ref.Kind {
		return nil, nil, fmt.Errorf("%w: campaign %s", domain.ErrNotFound, ref)
	}

	exec, err := s.executors.For(c.Kind)
	if err != nil {
		return nil, nil, err
	}
	return c, exec, nil
}

func failedResult(err error) *domain.ExecutionResult {
	message := err.Error()
	if errors.Is(err, domain.ErrAlreadyProcessing) {
		message = "Campaign is already being processed"
	}
	return &domain.ExecutionResult{Success: false, Message: message, Error: message}
}
