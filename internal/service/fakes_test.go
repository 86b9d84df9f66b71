package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/composer"
	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/executor"
	"github.com/kursadbilgin/campaign-engine/internal/provider"
	"github.com/kursadbilgin/campaign-engine/internal/queue"
	"github.com/kursadbilgin/campaign-engine/internal/ratelimit"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
)

// memoryCampaignRepo keeps campaigns in memory with the same lock semantics as the
// database implementation.
type memoryCampaignRepo struct {
	repository.CampaignRepository

	mu         sync.Mutex
	campaigns  map[string]*domain.Campaign
	starts     int
	promoted   [][]string
	completed  []string
	due        []domain.Campaign
	dueErr     error
	sweepPages int
	rejected   map[string]string
}

func newMemoryCampaignRepo(campaigns ...domain.Campaign) *memoryCampaignRepo {
	r := &memoryCampaignRepo{campaigns: make(map[string]*domain.Campaign)}
	for i := range campaigns {
		c := campaigns[i]
		r.campaigns[c.ID] = &c
	}
	return r
}

func (r *memoryCampaignRepo) get(id string) domain.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.campaigns[id]
}

func (r *memoryCampaignRepo) GetByID(_ context.Context, id string) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (r *memoryCampaignRepo) StartExecution(_ context.Context, id string, now time.Time) (*repository.ExecutionLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++

	c, ok := r.campaigns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	lock := &repository.ExecutionLock{PreviousStatus: c.Status}
	if c.IsProcessing {
		return lock, nil
	}
	if !c.Status.IsExecutable() {
		return nil, domain.NewValidationError("Campaign status is %s, must be ACTIVE or SCHEDULED", c.Status)
	}

	c.IsProcessing = true
	c.Status = domain.CampaignStatusProcessing
	c.ExecutionCount++
	c.LastExecutionAt = &now
	lock.Acquired = true
	return lock, nil
}

func (r *memoryCampaignRepo) FinishExecution(_ context.Context, id string, status domain.CampaignStatus, result string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.IsProcessing = false
	c.Status = status
	c.LastExecutionResult = result
	return nil
}

func (r *memoryCampaignRepo) TransitionStatus(_ context.Context, id string, from, to domain.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.Status != from || c.IsProcessing {
		return domain.ErrConflict
	}
	c.Status = to
	return nil
}

func (r *memoryCampaignRepo) GetStatuses(_ context.Context, ids []string) (map[string]domain.CampaignStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]domain.CampaignStatus, len(ids))
	for _, id := range ids {
		if c, ok := r.campaigns[id]; ok {
			out[id] = c.Status
		}
	}
	return out, nil
}

func (r *memoryCampaignRepo) PromoteActiveToSending(_ context.Context, ids []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.promoted = append(r.promoted, ids)
	var n int64
	for _, id := range ids {
		if c, ok := r.campaigns[id]; ok && c.Status == domain.CampaignStatusActive {
			c.Status = domain.CampaignStatusSending
			n++
		}
	}
	return n, nil
}

func (r *memoryCampaignRepo) ListSweepCandidates(_ context.Context, afterID string, limit int) ([]domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepPages++
	out := make([]domain.Campaign, 0)
	for _, c := range r.campaigns {
		if c.Status.CanSend() && !c.IsProcessing && c.ID > afterID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryCampaignRepo) CompleteIfIdle(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || !c.Status.CanSend() || c.IsProcessing {
		return false, nil
	}
	c.Status = domain.CampaignStatusCompleted
	r.completed = append(r.completed, id)
	return true, nil
}

func (r *memoryCampaignRepo) RecordRejection(_ context.Context, id string, at time.Time, result string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rejected == nil {
		r.rejected = make(map[string]string)
	}
	r.rejected[id] = result
	if c, ok := r.campaigns[id]; ok {
		c.LastExecutionAt = &at
		c.LastExecutionResult = result
	}
	return nil
}

func (r *memoryCampaignRepo) GetDueForExecution(context.Context, time.Time, int) ([]domain.Campaign, error) {
	return r.due, r.dueErr
}

// memoryNotificationRepo keeps notifications in memory and applies the claim rules of
// the database implementation.
type memoryNotificationRepo struct {
	repository.NotificationRepository

	mu       sync.Mutex
	items    map[string]*domain.Notification
	contents map[string]string
	dueErr   error

	// markSentFailures makes the next MarkSent calls fail.
	markSentFailures int
}

func newMemoryNotificationRepo(notifications ...domain.Notification) *memoryNotificationRepo {
	r := &memoryNotificationRepo{
		items:    make(map[string]*domain.Notification),
		contents: make(map[string]string),
	}
	for i := range notifications {
		r.add(notifications[i])
	}
	return r
}

func (r *memoryNotificationRepo) add(n domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[n.ID] = &n
}

func (r *memoryNotificationRepo) get(id string) domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.items[id]
}

func (r *memoryNotificationRepo) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *n
	return &out, nil
}

func (r *memoryNotificationRepo) GetDuePending(_ context.Context, now time.Time, requeueBefore time.Time, limit int) ([]domain.Notification, error) {
	if r.dueErr != nil {
		return nil, r.dueErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Notification, 0)
	for _, n := range r.items {
		if n.Status != domain.StatusPending || n.ScheduledAt == nil || n.ScheduledAt.After(now) {
			continue
		}
		if n.QueuedAt != nil && !n.QueuedAt.Before(requeueBefore) {
			continue
		}
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryNotificationRepo) CancelPending(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok || n.Status != domain.StatusPending {
		return false, nil
	}
	n.Status = domain.StatusCancelled
	return true, nil
}

func (r *memoryNotificationRepo) MarkQueued(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	n.QueuedAt = &at
	return nil
}

func (r *memoryNotificationRepo) ClaimAttempt(_ context.Context, id string, retries int, now time.Time) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !n.Claimable(retries) {
		return nil, nil
	}
	n.AttemptCount++
	n.LastAttemptAt = &now
	out := *n
	return &out, nil
}

func (r *memoryNotificationRepo) MarkSent(_ context.Context, id string, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markSentFailures > 0 {
		r.markSentFailures--
		return errors.New("connection reset by peer")
	}
	n := r.items[id]
	n.Status = domain.StatusSent
	n.SentAt = &sentAt
	n.ErrorMessage = nil
	return nil
}

func (r *memoryNotificationRepo) MarkFailed(_ context.Context, id string, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.items[id]
	n.Status = domain.StatusFailed
	n.ErrorMessage = &errMsg
	return nil
}

func (r *memoryNotificationRepo) SetMessageContent(_ context.Context, id string, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contents[id] = content
	r.items[id].MessageContent = &content
	return nil
}

func (r *memoryNotificationRepo) CampaignSummary(_ context.Context, ref domain.CampaignRef) (domain.NotificationSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s domain.NotificationSummary
	for _, n := range r.items {
		if n.CampaignID != ref.ID {
			continue
		}
		s.Total++
		switch n.Status {
		case domain.StatusPending:
			s.Pending++
		case domain.StatusSent:
			s.Sent++
		case domain.StatusFailed:
			s.Failed++
		case domain.StatusCancelled:
			s.Cancelled++
		}
	}
	return s, nil
}

type fakeAttemptRepo struct {
	repository.AttemptRepository

	mu       sync.Mutex
	recorded []domain.NotificationAttempt
}

func (f *fakeAttemptRepo) Record(_ context.Context, a *domain.NotificationAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, *a)
	return nil
}

func (f *fakeAttemptRepo) ListForNotification(_ context.Context, id string) ([]domain.NotificationAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.NotificationAttempt, 0)
	for _, a := range f.recorded {
		if a.NotificationID == id {
			out = append(out, a)
		}
	}
	return out, nil
}

type publishedTask struct {
	Queue string
	Task  queue.Task
	Delay time.Duration
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedTask
	publishFn func(ctx context.Context, queueName string, task queue.Task) error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, task queue.Task) error {
	if f.publishFn != nil {
		if err := f.publishFn(ctx, queueName, task); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedTask{Queue: queueName, Task: task})
	return nil
}

func (f *fakePublisher) PublishDelayed(ctx context.Context, queueName string, task queue.Task, delay time.Duration) error {
	if f.publishFn != nil {
		if err := f.publishFn(ctx, queueName, task); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedTask{Queue: queueName, Task: task, Delay: delay})
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) all() []publishedTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedTask(nil), f.published...)
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.TaskHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.TaskHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

type stubProvider struct {
	name         string
	configured   bool
	sendTextFn   func(ctx context.Context, recipient, message string) (*provider.ProviderResponse, error)
	sendButtonFn func(ctx context.Context, recipient, message, buttonText, buttonURL string) (*provider.ProviderResponse, error)
}

func (p *stubProvider) Name() string       { return p.name }
func (p *stubProvider) IsConfigured() bool { return p.configured }

func (p *stubProvider) SendText(ctx context.Context, recipient, message string) (*provider.ProviderResponse, error) {
	if p.sendTextFn == nil {
		return &provider.ProviderResponse{StatusCode: 200}, nil
	}
	return p.sendTextFn(ctx, recipient, message)
}

func (p *stubProvider) SendWithButton(ctx context.Context, recipient, message, buttonText, buttonURL string) (*provider.ProviderResponse, error) {
	if p.sendButtonFn == nil {
		return &provider.ProviderResponse{StatusCode: 200}, nil
	}
	return p.sendButtonFn(ctx, recipient, message, buttonText, buttonURL)
}

type fakeProviders struct {
	forFn func(channel domain.Channel) (provider.Provider, error)
}

func (f *fakeProviders) For(channel domain.Channel) (provider.Provider, error) {
	return f.forFn(channel)
}

func singleProvider(p provider.Provider) *fakeProviders {
	return &fakeProviders{forFn: func(domain.Channel) (provider.Provider, error) { return p, nil }}
}

type fakeComposer struct {
	composeFn func(ctx context.Context, n *domain.Notification, campaignName string) (*composer.Message, error)
}

func (f *fakeComposer) Compose(ctx context.Context, n *domain.Notification, campaignName string) (*composer.Message, error) {
	if f.composeFn == nil {
		return &composer.Message{Text: "Hola " + n.RecipientName}, nil
	}
	return f.composeFn(ctx, n, campaignName)
}

type fakeBudget struct {
	acquireFn func(ctx context.Context) (ratelimit.Decision, error)
}

func (f *fakeBudget) Acquire(ctx context.Context) (ratelimit.Decision, error) {
	if f.acquireFn == nil {
		return ratelimit.Decision{Allowed: true}, nil
	}
	return f.acquireFn(ctx)
}

type fakeRateLimiter struct {
	waitFn func(ctx context.Context, channel string) error
}

func (f *fakeRateLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

func (f *fakeRateLimiter) Wait(ctx context.Context, channel string) error {
	if f.waitFn == nil {
		return nil
	}
	return f.waitFn(ctx, channel)
}

type fakeCampaignExecutor struct {
	executeFn func(ctx context.Context, ref domain.CampaignRef) (*domain.ExecutionResult, error)
}

func (f *fakeCampaignExecutor) Execute(ctx context.Context, ref domain.CampaignRef) (*domain.ExecutionResult, error) {
	return f.executeFn(ctx, ref)
}

type recordingReporter struct {
	mu     sync.Mutex
	errors []error
	tags   []map[string]string
}

func (r *recordingReporter) CaptureError(_ context.Context, err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
	r.tags = append(r.tags, tags)
}

func (r *recordingReporter) Flush(time.Duration) {}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

type fakeExecutor struct {
	validateFn   func(ctx context.Context, c *domain.Campaign) error
	createFn     func(ctx context.Context, c *domain.Campaign) (*domain.CreationSummary, error)
	canExecuteFn func(c *domain.Campaign) bool
}

func (f *fakeExecutor) Validate(ctx context.Context, c *domain.Campaign) error {
	if f.validateFn == nil {
		return nil
	}
	return f.validateFn(ctx, c)
}

func (f *fakeExecutor) CanExecute(c *domain.Campaign) bool {
	if f.canExecuteFn == nil {
		return true
	}
	return f.canExecuteFn(c)
}

func (f *fakeExecutor) CreateNotifications(ctx context.Context, c *domain.Campaign) (*domain.CreationSummary, error) {
	if f.createFn == nil {
		return &domain.CreationSummary{}, nil
	}
	return f.createFn(ctx, c)
}

type fakeResolver struct {
	exec executor.Executor
}

func (f *fakeResolver) For(kind domain.CampaignKind) (executor.Executor, error) {
	if !kind.IsValid() {
		return nil, domain.ErrValidation
	}
	return f.exec, nil
}
