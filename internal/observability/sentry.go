package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

// Reporter forwards terminal failures to the error tracker.
type Reporter interface {
	CaptureError(ctx context.Context, err error, tags map[string]string)
	Flush(timeout time.Duration)
}

// NewReporter returns a Sentry reporter, or a no-op reporter when dsn is empty.
func NewReporter(dsn string, environment string) (Reporter, error) {
	if strings.TrimSpace(dsn) == "" {
		return NopReporter{}, nil
	}

	return newSentryReporter(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
	})
}

type SentryReporter struct {
	hub *sentry.Hub
}

func newSentryReporter(opts sentry.ClientOptions) (*SentryReporter, error) {
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to init sentry: %w", err)
	}
	return &SentryReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (r *SentryReporter) CaptureError(ctx context.Context, err error, tags map[string]string) {
	if r == nil || err == nil {
		return
	}

	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		if correlationID, ok := CorrelationIDFromContext(ctx); ok {
			scope.SetTag("correlationId", correlationID)
		}
		r.hub.CaptureException(err)
	})
}

func (r *SentryReporter) Flush(timeout time.Duration) {
	if r == nil {
		return
	}
	r.hub.Flush(timeout)
}

type NopReporter struct{}

func (NopReporter) CaptureError(context.Context, error, map[string]string) {}

func (NopReporter) Flush(time.Duration) {}
