package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/composer"
	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/observability"
	"github.com/kursadbilgin/campaign-engine/internal/provider"
	"github.com/kursadbilgin/campaign-engine/internal/queue"
	"github.com/kursadbilgin/campaign-engine/internal/ratelimit"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// ProviderResolver returns the provider delivering a channel.
type ProviderResolver interface {
	For(channel domain.Channel) (provider.Provider, error)
}

// MessageComposer renders the message of a notification.
type MessageComposer interface {
	Compose(ctx context.Context, n *domain.Notification, campaignName string) (*composer.Message, error)
}

// WorkerDependencies are the collaborators of the queue worker.
type WorkerDependencies struct {
	Notifications repository.NotificationRepository
	Attempts      repository.AttemptRepository
	Campaigns     repository.CampaignRepository
	Consumer      queue.Consumer
	Publisher     queue.Publisher
	Providers     ProviderResolver
	Composer      MessageComposer
	SendBudget    ratelimit.SendBudget
	Throughput    ratelimit.RateLimiter
	Executions    CampaignExecutor
	Reporter      observability.Reporter
}

// WorkerService consumes the channel and campaign queues: it delivers notifications and
// runs queued campaign executions.
type WorkerService struct {
	notifications repository.NotificationRepository
	attempts      repository.AttemptRepository
	campaigns     repository.CampaignRepository
	consumer      queue.Consumer
	publisher     queue.Publisher
	providers     ProviderResolver
	composer      MessageComposer
	budget        ratelimit.SendBudget
	throughput    ratelimit.RateLimiter
	executions    CampaignExecutor
	reporter      observability.Reporter
	retry         queue.RetryPolicy
	logger        *zap.Logger
	metrics       *observability.Metrics
	concurrency   int
	now           func() time.Time
	jitter        func() time.Duration
}

func NewWorkerService(deps WorkerDependencies, retry queue.RetryPolicy, concurrency int, logger *zap.Logger) (*WorkerService, error) {
	switch {
	case deps.Notifications == nil:
		return nil, fmt.Errorf("notification repository is required")
	case deps.Attempts == nil:
		return nil, fmt.Errorf("attempt repository is required")
	case deps.Campaigns == nil:
		return nil, fmt.Errorf("campaign repository is required")
	case deps.Consumer == nil:
		return nil, fmt.Errorf("consumer is required")
	case deps.Publisher == nil:
		return nil, fmt.Errorf("publisher is required")
	case deps.Providers == nil:
		return nil, fmt.Errorf("provider resolver is required")
	case deps.Composer == nil:
		return nil, fmt.Errorf("message composer is required")
	case deps.SendBudget == nil:
		return nil, fmt.Errorf("whatsapp send budget is required")
	case deps.Throughput == nil:
		return nil, fmt.Errorf("rate limiter is required")
	case deps.Executions == nil:
		return nil, fmt.Errorf("campaign executor is required")
	}
	if retry.MaxAttempts < 1 {
		retry = queue.DefaultRetryPolicy()
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if deps.Reporter == nil {
		deps.Reporter = observability.NopReporter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		notifications: deps.Notifications,
		attempts:      deps.Attempts,
		campaigns:     deps.Campaigns,
		consumer:      deps.Consumer,
		publisher:     deps.Publisher,
		providers:     deps.Providers,
		composer:      deps.Composer,
		budget:        deps.SendBudget,
		throughput:    deps.Throughput,
		executions:    deps.Executions,
		reporter:      deps.Reporter,
		retry:         retry,
		logger:        logger,
		concurrency:   concurrency,
		now:           time.Now,
		jitter:        ratelimit.RandomDelay,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start consumes the work queues until context cancellation. Workers are spread
// round-robin over the channel queues and the campaign queue.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	workers := max(s.concurrency, len(queueNames))

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := s.consumer.Consume(groupCtx, queueName, s.handleTask)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

func (s *WorkerService) handleTask(ctx context.Context, task queue.Task) error {
	if task.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, task.CorrelationID)
	}

	switch task.Kind {
	case queue.TaskExecuteCampaign:
		return s.executeCampaign(ctx, task)
	case queue.TaskSendNotification:
		return s.sendNotification(ctx, task)
	default:
		s.logger.Warn("dropping task of unknown kind", zap.String("kind", string(task.Kind)))
		return nil
	}
}

func (s *WorkerService) executeCampaign(ctx context.Context, task queue.Task) error {
	logger := observability.WithContextLogger(s.logger, ctx).With(zap.String("campaignId", task.CampaignID))

	result, err := s.executions.Execute(ctx, task.CampaignRef())
	if err != nil {
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrAlreadyProcessing) {
			logger.Warn("campaign execution rejected", zap.Error(err))
			return nil
		}
		return fmt.Errorf("failed to execute campaign: %w", err)
	}

	logger.Info("queued campaign execution finished",
		zap.Bool("success", result.Success),
		zap.String("result", result.Message),
	)
	return nil
}

// sendNotification runs one delivery attempt of a notification. Stale and duplicate
// tasks are acknowledged without side effects.
func (s *WorkerService) sendNotification(ctx context.Context, task queue.Task) error {
	logger := observability.WithContextLogger(s.logger, ctx).With(
		zap.String("notificationId", task.NotificationID),
		zap.Int("retries", task.Retries),
	)

	if wait := task.RemainingDelay(s.now()); wait > 0 {
		if err := s.publisher.PublishDelayed(ctx, task.Queue(), task, wait); err != nil {
			return fmt.Errorf("failed to re-delay task: %w", err)
		}
		return nil
	}

	n, err := s.notifications.GetByID(ctx, task.NotificationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("notification not found, dropping task")
			return nil
		}
		return fmt.Errorf("failed to load notification: %w", err)
	}
	if !n.Claimable(task.Retries) {
		logger.Debug("notification not claimable, dropping duplicate task",
			zap.String("status", n.Status.String()),
			zap.Int("attemptCount", n.AttemptCount),
		)
		return nil
	}
	if n.AttemptCount >= s.retry.MaxAttempts {
		return s.exhaust(ctx, n, logger)
	}

	channelName := strings.ToLower(n.Channel.String())
	if n.Channel == domain.ChannelWhatsApp {
		decision, err := s.budget.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("whatsapp send budget unavailable: %w", err)
		}
		if !decision.Allowed {
			return s.deferSend(ctx, task, n, decision, logger)
		}
	} else if err := s.throughput.Wait(ctx, channelName); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	claimed, err := s.notifications.ClaimAttempt(ctx, n.ID, task.Retries, s.now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to claim notification: %w", err)
	}
	if claimed == nil {
		logger.Debug("notification claimed by another task")
		return nil
	}

	s.metrics.IncWorkerInFlight(channelName)
	defer s.metrics.DecWorkerInFlight(channelName)

	return s.deliver(ctx, task, claimed, logger)
}

// exhaust fails a notification whose interrupted attempts already used up the retry
// budget, without calling the provider again.
func (s *WorkerService) exhaust(ctx context.Context, n *domain.Notification, logger *zap.Logger) error {
	errMsg := "delivery attempts exhausted"
	if n.ErrorMessage != nil && *n.ErrorMessage != "" {
		errMsg = *n.ErrorMessage
	}
	if err := s.notifications.MarkFailed(ctx, n.ID, errMsg); err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}

	s.metrics.IncNotificationFailed(strings.ToLower(n.Channel.String()), "retry_exhausted")
	logger.Error("notification failed", zap.Int("attempt", n.AttemptCount), zap.String("reason", "retry_exhausted"))
	s.report(ctx, n, fmt.Errorf("notification %s: %s", n.ID, errMsg))
	return nil
}

// deferSend parks a WhatsApp task until the send budget has room again. The attempt
// count is untouched.
func (s *WorkerService) deferSend(ctx context.Context, task queue.Task, n *domain.Notification, decision ratelimit.Decision, logger *zap.Logger) error {
	wait := decision.Wait + s.jitter()
	if err := s.publisher.PublishDelayed(ctx, task.Queue(), task, wait); err != nil {
		return fmt.Errorf("failed to defer rate limited task: %w", err)
	}
	if err := s.notifications.MarkQueued(ctx, n.ID, s.now().UTC()); err != nil {
		logger.Warn("failed to stamp deferred notification", zap.Error(err))
	}

	s.metrics.IncRateLimited(n.Channel.String(), string(decision.Reason))
	logger.Info("whatsapp send deferred",
		zap.String("reason", decision.Message),
		zap.Duration("wait", wait),
	)
	return nil
}

func (s *WorkerService) deliver(ctx context.Context, task queue.Task, n *domain.Notification, logger *zap.Logger) error {
	channelName := strings.ToLower(n.Channel.String())

	providerName, resp, sendErr := s.send(ctx, n)
	if err := s.recordAttempt(ctx, n, providerName, resp, sendErr); err != nil {
		logger.Warn("failed to record attempt", zap.Error(err))
	}

	if sendErr == nil {
		if err := s.notifications.MarkSent(ctx, n.ID, s.now().UTC()); err != nil {
			return fmt.Errorf("failed to mark notification sent: %w", err)
		}
		s.metrics.IncNotificationSent(channelName)
		logger.Info("notification sent", zap.String("provider", providerName), zap.Int("attempt", n.AttemptCount))
		return nil
	}

	if err := s.notifications.MarkFailed(ctx, n.ID, sendErr.Error()); err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}

	transient := provider.IsTransient(sendErr)
	if transient && s.retry.ShouldRetry(n.AttemptCount) {
		next := task
		next.Retries = n.AttemptCount
		next.NotBefore = nil
		if err := s.publisher.PublishDelayed(ctx, next.Queue(), next, s.retry.Delay); err != nil {
			logger.Error("failed to schedule retry", zap.Error(err))
			s.report(ctx, n, fmt.Errorf("failed to schedule retry: %w", err))
			return nil
		}
		s.metrics.IncRetryScheduled(channelName)
		logger.Warn("notification send failed, retry scheduled",
			zap.Int("attempt", n.AttemptCount),
			zap.Duration("delay", s.retry.Delay),
			zap.Error(sendErr),
		)
		return nil
	}

	reason := "permanent_error"
	if transient {
		reason = "retry_exhausted"
	}
	s.metrics.IncNotificationFailed(channelName, reason)
	logger.Error("notification failed",
		zap.Int("attempt", n.AttemptCount),
		zap.String("reason", reason),
		zap.Error(sendErr),
	)
	s.report(ctx, n, sendErr)
	return nil
}

// send resolves the provider and recipient, composes the message and calls the provider.
func (s *WorkerService) send(ctx context.Context, n *domain.Notification) (string, *provider.ProviderResponse, error) {
	p, err := s.providers.For(n.Channel)
	if err != nil {
		return "", nil, err
	}
	if !p.IsConfigured() {
		return p.Name(), nil, provider.NotConfiguredError(p.Name())
	}

	recipient := n.Contact().IdentifierFor(n.Channel)
	if recipient == "" {
		return p.Name(), nil, fmt.Errorf("No %s found: %w", domain.IdentifierName(n.Channel), provider.ErrInvalidRecipient) //nolint:staticcheck // operator-facing text
	}

	msg, err := s.composer.Compose(ctx, n, s.campaignName(ctx, n))
	if err != nil {
		return p.Name(), nil, &provider.ProviderError{Message: "failed to compose message", Transient: true, Cause: err}
	}
	if n.MessageContent == nil {
		if err := s.notifications.SetMessageContent(ctx, n.ID, msg.Text); err != nil {
			s.logger.Warn("failed to cache message content", zap.String("notificationId", n.ID), zap.Error(err))
		}
	}

	start := s.now()
	var resp *provider.ProviderResponse
	if msg.ButtonURL != "" {
		resp, err = p.SendWithButton(ctx, recipient, msg.Text, msg.ButtonText, msg.ButtonURL)
	} else {
		resp, err = p.SendText(ctx, recipient, msg.Text)
	}
	s.metrics.ObserveNotificationSendDuration(strings.ToLower(n.Channel.String()), s.now().Sub(start))

	return p.Name(), resp, err
}

func (s *WorkerService) campaignName(ctx context.Context, n *domain.Notification) string {
	c, err := s.campaigns.GetByID(ctx, n.CampaignID)
	if err != nil {
		s.logger.Debug("campaign name unavailable", zap.String("campaignId", n.CampaignID), zap.Error(err))
		return ""
	}
	return c.Name
}

func (s *WorkerService) report(ctx context.Context, n *domain.Notification, err error) {
	s.reporter.CaptureError(ctx, err, map[string]string{
		"notificationId": n.ID,
		"campaignId":     n.CampaignID,
		"channel":        strings.ToLower(n.Channel.String()),
	})
}

func (s *WorkerService) recordAttempt(
	ctx context.Context,
	n *domain.Notification,
	providerName string,
	providerResp *provider.ProviderResponse,
	sendErr error,
) error {
	attempt := &domain.NotificationAttempt{
		NotificationID: n.ID,
		AttemptNumber:  n.AttemptCount,
		Provider:       providerName,
		CreatedAt:      s.now().UTC(),
	}

	if providerResp != nil {
		if providerResp.StatusCode > 0 {
			value := providerResp.StatusCode
			attempt.StatusCode = &value
		}
		if body := strings.TrimSpace(providerResp.Body); body != "" {
			value := providerResp.Body
			attempt.ResponseBody = &value
		}
	}

	if sendErr != nil {
		value := sendErr.Error()
		attempt.Error = &value

		var providerErr *provider.ProviderError
		if errors.As(sendErr, &providerErr) && providerErr.StatusCode > 0 && attempt.StatusCode == nil {
			value := providerErr.StatusCode
			attempt.StatusCode = &value
		}
	}

	return s.attempts.Record(ctx, attempt)
}
