package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/observability"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultSweepInterval = 5 * time.Minute
	defaultSweepLimit    = 200
)

// Sweeper periodically completes sending campaigns that have nothing left to deliver.
type Sweeper struct {
	campaigns     repository.CampaignRepository
	notifications repository.NotificationRepository
	logger        *zap.Logger
	metrics       *observability.Metrics
	interval      time.Duration
	limit         int
}

func NewSweeper(
	campaigns repository.CampaignRepository,
	notifications repository.NotificationRepository,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*Sweeper, error) {
	if campaigns == nil {
		return nil, fmt.Errorf("campaign repository is required")
	}
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sweeper{
		campaigns:     campaigns,
		notifications: notifications,
		logger:        logger,
		interval:      interval,
		limit:         limit,
	}, nil
}

func (s *Sweeper) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *Sweeper) Start(ctx context.Context) error {
	return runEvery(ctx, s.interval, "sweeper", s.logger, func(ctx context.Context) error {
		_, err := s.Sweep(ctx)
		return err
	})
}

// Sweep marks idle ACTIVE or SENDING campaigns COMPLETED once no notification is pending
// and at least one was sent. Every candidate is visited, one page at a time. It returns
// the number of completed campaigns.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	completed := 0
	afterID := ""
	for {
		candidates, err := s.campaigns.ListSweepCandidates(ctx, afterID, s.limit)
		if err != nil {
			return completed, fmt.Errorf("failed to list sweep candidates: %w", err)
		}

		for i := range candidates {
			if s.sweepCampaign(ctx, &candidates[i]) {
				completed++
			}
		}

		if len(candidates) < s.limit {
			return completed, nil
		}
		if err := ctx.Err(); err != nil {
			return completed, err
		}
		afterID = candidates[len(candidates)-1].ID
	}
}

func (s *Sweeper) sweepCampaign(ctx context.Context, c *domain.Campaign) bool {
	summary, err := s.notifications.CampaignSummary(ctx, c.Ref())
	if err != nil {
		s.logger.Error("failed to summarize campaign",
			zap.String("campaignId", c.ID),
			zap.Error(err),
		)
		return false
	}
	if !summary.ShouldBeCompleted() {
		return false
	}

	ok, err := s.campaigns.CompleteIfIdle(ctx, c.ID)
	if err != nil {
		s.logger.Error("failed to complete campaign",
			zap.String("campaignId", c.ID),
			zap.Error(err),
		)
		return false
	}
	if !ok {
		return false
	}

	s.metrics.IncCampaignCompleted()
	s.logger.Info("campaign completed",
		zap.String("campaignId", c.ID),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
		zap.Int("cancelled", summary.Cancelled),
	)
	return true
}
