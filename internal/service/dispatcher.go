package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/observability"
	"github.com/kursadbilgin/campaign-engine/internal/queue"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultDispatchInterval     = 10 * time.Minute
	defaultDispatchBatchSize    = 500
	defaultDispatchRequeueAfter = 2 * time.Hour
)

type DispatcherOptions struct {
	Interval     time.Duration
	BatchSize    int
	RequeueAfter time.Duration
}

// DispatchResult counts what one dispatch cycle did with the due notifications.
type DispatchResult struct {
	Queued    int
	Failed    int
	Cancelled int
	Promoted  int
}

// Dispatcher periodically enqueues pending notifications whose schedule has passed.
type Dispatcher struct {
	notifications repository.NotificationRepository
	campaigns     repository.CampaignRepository
	publisher     queue.Publisher
	logger        *zap.Logger
	metrics       *observability.Metrics
	interval      time.Duration
	batchSize     int
	requeueAfter  time.Duration
	now           func() time.Time
}

func NewDispatcher(
	notifications repository.NotificationRepository,
	campaigns repository.CampaignRepository,
	publisher queue.Publisher,
	opts DispatcherOptions,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if campaigns == nil {
		return nil, fmt.Errorf("campaign repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultDispatchInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultDispatchBatchSize
	}
	if opts.RequeueAfter <= 0 {
		opts.RequeueAfter = defaultDispatchRequeueAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		notifications: notifications,
		campaigns:     campaigns,
		publisher:     publisher,
		logger:        logger,
		interval:      opts.Interval,
		batchSize:     opts.BatchSize,
		requeueAfter:  opts.RequeueAfter,
		now:           time.Now,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

func (d *Dispatcher) Start(ctx context.Context) error {
	return runEvery(ctx, d.interval, "dispatcher", d.logger, func(ctx context.Context) error {
		_, err := d.DispatchDue(ctx)
		return err
	})
}

// DispatchDue enqueues due notifications of sendable campaigns, cancels those of campaigns
// that can no longer send, and promotes ACTIVE campaigns with queued work to SENDING.
func (d *Dispatcher) DispatchDue(ctx context.Context) (DispatchResult, error) {
	var result DispatchResult
	ctx, correlationID := observability.EnsureCorrelationID(ctx)
	logger := observability.WithContextLogger(d.logger, ctx)

	now := d.now().UTC()
	due, err := d.notifications.GetDuePending(ctx, now, now.Add(-d.requeueAfter), d.batchSize)
	if err != nil {
		return result, fmt.Errorf("failed to fetch due notifications: %w", err)
	}
	if len(due) == 0 {
		return result, nil
	}

	statuses, err := d.campaigns.GetStatuses(ctx, campaignIDs(due))
	if err != nil {
		return result, fmt.Errorf("failed to load campaign statuses: %w", err)
	}

	promote := make([]string, 0)
	seen := make(map[string]bool)
	for i := range due {
		n := &due[i]
		status := statuses[n.CampaignID]

		if !status.CanSend() {
			cancelled, err := d.notifications.CancelPending(ctx, n.ID)
			if err != nil {
				logger.Error("failed to cancel notification",
					zap.String("notificationId", n.ID),
					zap.String("campaignStatus", status.String()),
					zap.Error(err),
				)
				continue
			}
			if cancelled {
				result.Cancelled++
			}
			continue
		}

		task := queue.NewSendTask(n, correlationID)
		if err := d.publisher.Publish(ctx, task.Queue(), task); err != nil {
			result.Failed++
			logger.Error("failed to enqueue notification",
				zap.String("notificationId", n.ID),
				zap.String("queue", task.Queue()),
				zap.Error(err),
			)
			continue
		}
		result.Queued++

		if err := d.notifications.MarkQueued(ctx, n.ID, now); err != nil {
			logger.Error("failed to mark notification as queued",
				zap.String("notificationId", n.ID),
				zap.Error(err),
			)
		}

		if status == domain.CampaignStatusActive && !seen[n.CampaignID] {
			seen[n.CampaignID] = true
			promote = append(promote, n.CampaignID)
		}
	}

	promoted, err := d.campaigns.PromoteActiveToSending(ctx, promote)
	if err != nil {
		logger.Error("failed to promote campaigns to sending", zap.Error(err))
	}
	result.Promoted = int(promoted)

	d.metrics.AddDispatchOutcome("queued", result.Queued)
	d.metrics.AddDispatchOutcome("failed", result.Failed)
	d.metrics.AddDispatchOutcome("cancelled", result.Cancelled)

	logger.Info("dispatch cycle finished",
		zap.Int("due", len(due)),
		zap.Int("queued", result.Queued),
		zap.Int("failed", result.Failed),
		zap.Int("cancelled", result.Cancelled),
		zap.Int("promoted", result.Promoted),
	)
	return result, nil
}

func campaignIDs(notifications []domain.Notification) []string {
	seen := make(map[string]bool, len(notifications))
	ids := make([]string, 0, len(notifications))
	for i := range notifications {
		id := notifications[i].CampaignID
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}
