package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/composer"
	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/provider"
	"github.com/kursadbilgin/campaign-engine/internal/queue"
	"github.com/kursadbilgin/campaign-engine/internal/ratelimit"
	"go.uber.org/zap"
)

var workerNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

type workerHarness struct {
	notifications *memoryNotificationRepo
	attempts      *fakeAttemptRepo
	campaigns     *memoryCampaignRepo
	publisher     *fakePublisher
	reporter      *recordingReporter
	svc           *WorkerService
}

func newWorkerHarness(t *testing.T, p provider.Provider, notifications ...domain.Notification) *workerHarness {
	t.Helper()

	h := &workerHarness{
		notifications: newMemoryNotificationRepo(notifications...),
		attempts:      &fakeAttemptRepo{},
		campaigns:     newMemoryCampaignRepo(groupCampaign("c-1", domain.CampaignStatusSending)),
		publisher:     &fakePublisher{},
		reporter:      &recordingReporter{},
	}

	svc, err := NewWorkerService(WorkerDependencies{
		Notifications: h.notifications,
		Attempts:      h.attempts,
		Campaigns:     h.campaigns,
		Consumer:      &fakeConsumer{},
		Publisher:     h.publisher,
		Providers:     singleProvider(p),
		Composer:      &fakeComposer{},
		SendBudget:    &fakeBudget{},
		Throughput:    &fakeRateLimiter{},
		Executions: &fakeCampaignExecutor{executeFn: func(context.Context, domain.CampaignRef) (*domain.ExecutionResult, error) {
			return &domain.ExecutionResult{Success: true}, nil
		}},
		Reporter: h.reporter,
	}, queue.RetryPolicy{MaxAttempts: 3, Delay: time.Minute}, 2, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWorkerService() error = %v", err)
	}
	svc.now = func() time.Time { return workerNow }
	svc.jitter = func() time.Duration { return 5 * time.Second }
	h.svc = svc
	return h
}

func whatsappNotification(id string) domain.Notification {
	phone := "+5491155550000"
	n := pendingNotification(id, "c-1")
	n.RecipientName = "Ana"
	n.RecipientPhone = &phone
	return n
}

func sendTaskFor(n domain.Notification) queue.Task {
	return queue.NewSendTask(&n, "corr-1")
}

func TestWorkerSendNotification_Success(t *testing.T) {
	t.Parallel()

	var gotRecipient, gotMessage string
	p := &stubProvider{
		name:       "WHAPI",
		configured: true,
		sendTextFn: func(_ context.Context, recipient, message string) (*provider.ProviderResponse, error) {
			gotRecipient, gotMessage = recipient, message
			return &provider.ProviderResponse{StatusCode: 200, Body: `{"sent":true}`}, nil
		},
	}
	n := whatsappNotification("n-1")
	h := newWorkerHarness(t, p, n)

	if err := h.svc.handleTask(context.Background(), sendTaskFor(n)); err != nil {
		t.Fatalf("handleTask() error = %v", err)
	}

	if gotRecipient != "+5491155550000" || gotMessage != "Hola Ana" {
		t.Fatalf("SendText(%q, %q), want phone and composed text", gotRecipient, gotMessage)
	}
	stored := h.notifications.get("n-1")
	if stored.Status != domain.StatusSent || stored.AttemptCount != 1 {
		t.Fatalf("stored = status %s attempts %d, want SENT and 1", stored.Status, stored.AttemptCount)
	}
	if stored.SentAt == nil || !stored.SentAt.Equal(workerNow) {
		t.Fatalf("sent_at = %v, want %v", stored.SentAt, workerNow)
	}
	if h.notifications.contents["n-1"] != "Hola Ana" {
		t.Fatalf("message content = %q, want cached text", h.notifications.contents["n-1"])
	}
	if len(h.attempts.recorded) != 1 {
		t.Fatalf("attempts = %d, want 1", len(h.attempts.recorded))
	}
	attempt := h.attempts.recorded[0]
	if attempt.AttemptNumber != 1 || attempt.Provider != "WHAPI" || attempt.StatusCode == nil || *attempt.StatusCode != 200 {
		t.Fatalf("attempt = %+v, want attempt 1 via WHAPI with status 200", attempt)
	}
	if attempt.Error != nil {
		t.Fatalf("attempt error = %q, want nil", *attempt.Error)
	}

	// A redelivered copy of the same task is a duplicate.
	if err := h.svc.handleTask(context.Background(), sendTaskFor(n)); err != nil {
		t.Fatalf("handleTask() duplicate error = %v", err)
	}
	if len(h.attempts.recorded) != 1 {
		t.Fatalf("attempts after duplicate = %d, want 1", len(h.attempts.recorded))
	}
}

func TestWorkerSendNotification_WithButton(t *testing.T) {
	t.Parallel()

	var gotButton, gotURL string
	p := &stubProvider{
		name:       "WHAPI",
		configured: true,
		sendTextFn: func(context.Context, string, string) (*provider.ProviderResponse, error) {
			t.Fatal("SendText() must not be called for button messages")
			return nil, nil
		},
		sendButtonFn: func(_ context.Context, _, _, buttonText, buttonURL string) (*provider.ProviderResponse, error) {
			gotButton, gotURL = buttonText, buttonURL
			return &provider.ProviderResponse{StatusCode: 200}, nil
		},
	}
	n := whatsappNotification("n-1")
	h := newWorkerHarness(t, p, n)
	h.svc.composer = &fakeComposer{composeFn: func(context.Context, *domain.Notification, string) (*composer.Message, error) {
		return &composer.Message{Text: "Pague aqui", ButtonText: "Pagar", ButtonURL: "https://pay.example.com/abc"}, nil
	}}

	if err := h.svc.handleTask(context.Background(), sendTaskFor(n)); err != nil {
		t.Fatalf("handleTask() error = %v", err)
	}
	if gotButton != "Pagar" || gotURL != "https://pay.example.com/abc" {
		t.Fatalf("SendWithButton(%q, %q), want button from composed message", gotButton, gotURL)
	}
	if got := h.notifications.get("n-1").Status; got != domain.StatusSent {
		t.Fatalf("status = %s, want SENT", got)
	}
}

func TestWorkerSendNotification_RetriesUntilExhausted(t *testing.T) {
	t.Parallel()

	calls := 0
	p := &stubProvider{
		name:       "WHAPI",
		configured: true,
		sendTextFn: func(context.Context, string, string) (*provider.ProviderResponse, error) {
			calls++
			return nil, &provider.ProviderError{StatusCode: 503, Message: "unavailable", Transient: true}
		},
	}
	n := whatsappNotification("n-1")
	h := newWorkerHarness(t, p, n)

	task := sendTaskFor(n)
	for i := 0; i < 5; i++ {
		if err := h.svc.handleTask(context.Background(), task); err != nil {
			t.Fatalf("handleTask() error = %v", err)
		}
		published := h.publisher.all()
		if len(published) <= i {
			break
		}
		task = published[i].Task
	}

	if calls != 3 {
		t.Fatalf("provider calls = %d, want 3", calls)
	}
	stored := h.notifications.get("n-1")
	if stored.Status != domain.StatusFailed || stored.AttemptCount != 3 {
		t.Fatalf("stored = status %s attempts %d, want FAILED and 3", stored.Status, stored.AttemptCount)
	}
	if stored.ErrorMessage == nil || !strings.Contains(*stored.ErrorMessage, "status=503") {
		t.Fatalf("error message = %v, want provider error", stored.ErrorMessage)
	}

	published := h.publisher.all()
	if len(published) != 2 {
		t.Fatalf("retries published = %d, want 2", len(published))
	}
	for i, p := range published {
		if p.Delay != time.Minute || p.Task.Retries != i+1 || p.Queue != "whatsapp" {
			t.Fatalf("retry %d = %+v, want retries %d after 1m on whatsapp", i, p, i+1)
		}
	}
	if len(h.attempts.recorded) != 3 {
		t.Fatalf("attempts = %d, want 3", len(h.attempts.recorded))
	}
	if got := *h.attempts.recorded[2].StatusCode; got != 503 {
		t.Fatalf("attempt status = %d, want 503", got)
	}
	if h.reporter.count() != 1 {
		t.Fatalf("reported errors = %d, want 1", h.reporter.count())
	}
	if h.reporter.tags[0]["notificationId"] != "n-1" || h.reporter.tags[0]["channel"] != "whatsapp" {
		t.Fatalf("reporter tags = %v", h.reporter.tags[0])
	}
}

func TestWorkerSendNotification_PermanentFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		provider    *stubProvider
		notify      func(n *domain.Notification)
		wantMessage string
	}{
		{
			name: "client error",
			provider: &stubProvider{
				name:       "WHAPI",
				configured: true,
				sendTextFn: func(context.Context, string, string) (*provider.ProviderResponse, error) {
					return nil, &provider.ProviderError{StatusCode: 400, Message: "bad request"}
				},
			},
			wantMessage: "status=400",
		},
		{
			name:        "provider not configured",
			provider:    &stubProvider{name: "WHAPI"},
			wantMessage: "WHAPI provider is not configured",
		},
		{
			name:        "missing recipient",
			provider:    &stubProvider{name: "WHAPI", configured: true},
			notify:      func(n *domain.Notification) { n.RecipientPhone = nil },
			wantMessage: "No phone number found",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			n := whatsappNotification("n-1")
			if tt.notify != nil {
				tt.notify(&n)
			}
			h := newWorkerHarness(t, tt.provider, n)

			if err := h.svc.handleTask(context.Background(), sendTaskFor(n)); err != nil {
				t.Fatalf("handleTask() error = %v", err)
			}

			stored := h.notifications.get("n-1")
			if stored.Status != domain.StatusFailed {
				t.Fatalf("status = %s, want FAILED", stored.Status)
			}
			if stored.ErrorMessage == nil || !strings.Contains(*stored.ErrorMessage, tt.wantMessage) {
				t.Fatalf("error message = %v, want it to contain %q", stored.ErrorMessage, tt.wantMessage)
			}
			if got := len(h.publisher.all()); got != 0 {
				t.Fatalf("retries published = %d, want 0", got)
			}
			if h.reporter.count() != 1 {
				t.Fatalf("reported errors = %d, want 1", h.reporter.count())
			}
		})
	}
}

func TestWorkerSendNotification_DefersWhenWhatsAppBudgetExhausted(t *testing.T) {
	t.Parallel()

	p := &stubProvider{
		name:       "WHAPI",
		configured: true,
		sendTextFn: func(context.Context, string, string) (*provider.ProviderResponse, error) {
			t.Fatal("provider must not be called while rate limited")
			return nil, nil
		},
	}
	n := whatsappNotification("n-1")
	h := newWorkerHarness(t, p, n)
	h.svc.budget = &fakeBudget{acquireFn: func(context.Context) (ratelimit.Decision, error) {
		return ratelimit.Decision{
			Reason:  ratelimit.ReasonMinuteLimit,
			Message: "Minute limit reached (8/8)",
			Wait:    45 * time.Second,
		}, nil
	}}

	if err := h.svc.handleTask(context.Background(), sendTaskFor(n)); err != nil {
		t.Fatalf("handleTask() error = %v", err)
	}

	published := h.publisher.all()
	if len(published) != 1 || published[0].Delay != 50*time.Second || published[0].Task.Retries != 0 {
		t.Fatalf("published = %+v, want one deferral of 50s", published)
	}
	stored := h.notifications.get("n-1")
	if stored.Status != domain.StatusPending || stored.AttemptCount != 0 {
		t.Fatalf("stored = status %s attempts %d, want PENDING and 0", stored.Status, stored.AttemptCount)
	}
	if stored.QueuedAt == nil || !stored.QueuedAt.Equal(workerNow) {
		t.Fatalf("queued_at = %v, want %v", stored.QueuedAt, workerNow)
	}
	if len(h.attempts.recorded) != 0 {
		t.Fatalf("attempts = %d, want 0", len(h.attempts.recorded))
	}
}

func TestWorkerSendNotification_ThrottlesOtherChannels(t *testing.T) {
	t.Parallel()

	email := "ana@example.com"
	n := pendingNotification("n-1", "c-1")
	n.Channel = domain.ChannelEmail
	n.RecipientEmail = &email

	var gotRecipient string
	p := &stubProvider{
		name:       "SMTP",
		configured: true,
		sendTextFn: func(_ context.Context, recipient, _ string) (*provider.ProviderResponse, error) {
			gotRecipient = recipient
			return &provider.ProviderResponse{StatusCode: 250}, nil
		},
	}
	h := newWorkerHarness(t, p, n)
	h.svc.budget = &fakeBudget{acquireFn: func(context.Context) (ratelimit.Decision, error) {
		t.Fatal("whatsapp budget must not be consulted for email")
		return ratelimit.Decision{}, nil
	}}

	var waited []string
	h.svc.throughput = &fakeRateLimiter{waitFn: func(_ context.Context, channel string) error {
		waited = append(waited, channel)
		return nil
	}}

	if err := h.svc.handleTask(context.Background(), sendTaskFor(n)); err != nil {
		t.Fatalf("handleTask() error = %v", err)
	}
	if len(waited) != 1 || waited[0] != "email" {
		t.Fatalf("waited = %v, want [email]", waited)
	}
	if gotRecipient != email {
		t.Fatalf("recipient = %q, want %q", gotRecipient, email)
	}
}

func TestWorkerSendNotification_RedelaysEarlyTask(t *testing.T) {
	t.Parallel()

	p := &stubProvider{
		name:       "WHAPI",
		configured: true,
		sendTextFn: func(context.Context, string, string) (*provider.ProviderResponse, error) {
			t.Fatal("provider must not be called before not_before")
			return nil, nil
		},
	}
	n := whatsappNotification("n-1")
	h := newWorkerHarness(t, p, n)

	task := sendTaskFor(n)
	notBefore := workerNow.Add(30 * time.Second)
	task.NotBefore = &notBefore

	if err := h.svc.handleTask(context.Background(), task); err != nil {
		t.Fatalf("handleTask() error = %v", err)
	}
	published := h.publisher.all()
	if len(published) != 1 || published[0].Delay != 30*time.Second {
		t.Fatalf("published = %+v, want one re-delay of 30s", published)
	}
}

func TestWorkerSendNotification_DropsStaleTasks(t *testing.T) {
	t.Parallel()

	sent := whatsappNotification("n-sent")
	sent.Status = domain.StatusSent
	sent.AttemptCount = 1

	p := &stubProvider{
		name:       "WHAPI",
		configured: true,
		sendTextFn: func(context.Context, string, string) (*provider.ProviderResponse, error) {
			t.Fatal("provider must not be called for stale tasks")
			return nil, nil
		},
	}
	h := newWorkerHarness(t, p, sent)

	stale := sendTaskFor(sent)
	stale.Retries = 0
	if err := h.svc.handleTask(context.Background(), stale); err != nil {
		t.Fatalf("handleTask() stale error = %v", err)
	}

	missing := sendTaskFor(whatsappNotification("n-missing"))
	if err := h.svc.handleTask(context.Background(), missing); err != nil {
		t.Fatalf("handleTask() missing error = %v", err)
	}
	if len(h.attempts.recorded) != 0 {
		t.Fatalf("attempts = %d, want 0", len(h.attempts.recorded))
	}
}

func TestWorkerExecuteCampaign(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "success"},
		{name: "validation error is acknowledged", err: domain.NewValidationError("Group ID is required")},
		{name: "already processing is acknowledged", err: domain.ErrAlreadyProcessing},
		{name: "not found is acknowledged", err: domain.ErrNotFound},
		{name: "infrastructure error is retried", err: errors.New("db unavailable"), wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newWorkerHarness(t, &stubProvider{name: "WHAPI", configured: true})
			var gotRef domain.CampaignRef
			h.svc.executions = &fakeCampaignExecutor{executeFn: func(_ context.Context, ref domain.CampaignRef) (*domain.ExecutionResult, error) {
				gotRef = ref
				if tt.err != nil {
					return nil, tt.err
				}
				return &domain.ExecutionResult{Success: true, Message: "Success"}, nil
			}}

			ref := domain.CampaignRef{Kind: domain.CampaignKindGroup, ID: "c-1"}
			err := h.svc.handleTask(context.Background(), queue.NewExecuteTask(ref, "corr-1"))
			if (err != nil) != tt.wantErr {
				t.Fatalf("handleTask() error = %v, wantErr %v", err, tt.wantErr)
			}
			if gotRef != ref {
				t.Fatalf("Execute() ref = %+v, want %+v", gotRef, ref)
			}
		})
	}
}

func TestWorkerStartConsumesEveryQueue(t *testing.T) {
	t.Parallel()

	h := newWorkerHarness(t, &stubProvider{name: "WHAPI", configured: true})

	var (
		mu     sync.Mutex
		queues = make(map[string]int)
	)
	consumerErr := errors.New("channel closed")
	h.svc.consumer = &fakeConsumer{consumeFn: func(ctx context.Context, queueName string, _ queue.TaskHandler) error {
		mu.Lock()
		queues[queueName]++
		mu.Unlock()

		if queueName == queue.CampaignQueue {
			return consumerErr
		}
		<-ctx.Done()
		return nil
	}}

	done := make(chan error, 1)
	go func() { done <- h.svc.Start(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, consumerErr) {
			t.Fatalf("Start() error = %v, want %v", err, consumerErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after a consumer failed")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, name := range queue.WorkQueueNames() {
		if queues[name] != 1 {
			t.Fatalf("consumers of %s = %d, want 1", name, queues[name])
		}
	}
}

func TestNewWorkerServiceRequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := NewWorkerService(WorkerDependencies{}, queue.RetryPolicy{}, 1, nil); err == nil {
		t.Fatal("NewWorkerService() error = nil, want error")
	}
}

func TestWorkerSendNotification_RecoversInterruptedAttempt(t *testing.T) {
	t.Parallel()

	var calls int
	p := &stubProvider{
		name:       "WHAPI",
		configured: true,
		sendTextFn: func(context.Context, string, string) (*provider.ProviderResponse, error) {
			calls++
			return &provider.ProviderResponse{StatusCode: 200}, nil
		},
	}
	n := whatsappNotification("n-1")
	scheduled := workerNow.Add(-time.Hour)
	n.ScheduledAt = &scheduled
	h := newWorkerHarness(t, p, n)
	h.notifications.markSentFailures = 1

	if err := h.svc.handleTask(context.Background(), sendTaskFor(n)); err == nil {
		t.Fatal("handleTask() error = nil, want mark failure")
	}
	stored := h.notifications.get("n-1")
	if stored.Status != domain.StatusPending || stored.AttemptCount != 1 {
		t.Fatalf("after interrupted attempt = status %s attempts %d, want PENDING and 1", stored.Status, stored.AttemptCount)
	}

	// The broker redelivers the original task, which no longer matches the attempt count.
	if err := h.svc.handleTask(context.Background(), sendTaskFor(n)); err != nil {
		t.Fatalf("handleTask() redelivery error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("provider calls after redelivery = %d, want 1", calls)
	}

	d, err := NewDispatcher(h.notifications, h.campaigns, h.publisher, DispatcherOptions{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	d.now = func() time.Time { return workerNow.Add(3 * time.Hour) }
	result, err := d.DispatchDue(context.Background())
	if err != nil {
		t.Fatalf("DispatchDue() error = %v", err)
	}
	if result.Queued != 1 {
		t.Fatalf("DispatchDue() queued = %d, want 1", result.Queued)
	}

	published := h.publisher.all()
	requeued := published[len(published)-1].Task
	if requeued.Retries != 1 {
		t.Fatalf("requeued retries = %d, want 1", requeued.Retries)
	}
	if err := h.svc.handleTask(context.Background(), requeued); err != nil {
		t.Fatalf("handleTask() requeued error = %v", err)
	}

	stored = h.notifications.get("n-1")
	if stored.Status != domain.StatusSent || stored.AttemptCount != 2 {
		t.Fatalf("final = status %s attempts %d, want SENT and 2", stored.Status, stored.AttemptCount)
	}
	if calls != 2 {
		t.Fatalf("provider calls = %d, want 2", calls)
	}
}

func TestWorkerSendNotification_FailsInterruptedAttemptPastBudget(t *testing.T) {
	t.Parallel()

	p := &stubProvider{
		name:       "WHAPI",
		configured: true,
		sendTextFn: func(context.Context, string, string) (*provider.ProviderResponse, error) {
			t.Fatal("SendText() must not be called once attempts are exhausted")
			return nil, nil
		},
	}
	n := whatsappNotification("n-1")
	n.AttemptCount = 3
	h := newWorkerHarness(t, p, n)

	if err := h.svc.handleTask(context.Background(), sendTaskFor(n)); err != nil {
		t.Fatalf("handleTask() error = %v", err)
	}

	stored := h.notifications.get("n-1")
	if stored.Status != domain.StatusFailed || stored.AttemptCount != 3 {
		t.Fatalf("stored = status %s attempts %d, want FAILED and 3", stored.Status, stored.AttemptCount)
	}
	if stored.ErrorMessage == nil || *stored.ErrorMessage != "delivery attempts exhausted" {
		t.Fatalf("error message = %v, want delivery attempts exhausted", stored.ErrorMessage)
	}
	if got := len(h.publisher.all()); got != 0 {
		t.Fatalf("published = %d, want 0", got)
	}
	if got := h.reporter.count(); got != 1 {
		t.Fatalf("reported = %d, want 1", got)
	}
}
