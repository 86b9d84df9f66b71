package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultThroughputPerSec int64 = 20
	backoffStep                   = 10 * time.Millisecond
	backoffMax                    = 50 * time.Millisecond
	windowSeconds                 = 1
)

var throughputScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*ThroughputLimiter)(nil)

// ThroughputLimiter caps provider calls per second for each channel across every worker.
type ThroughputLimiter struct {
	client    *goredis.Client
	defaultPS int64
	perSec    map[string]int64
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewThroughputLimiter builds a limiter with a shared default and optional per-channel
// overrides keyed by channel name.
func NewThroughputLimiter(client *goredis.Client, defaultPerSec int, overrides map[string]int) (*ThroughputLimiter, error) {
	return newThroughputLimiter(client, int64(defaultPerSec), overrides, time.Now, sleepWithContext)
}

func newThroughputLimiter(
	client *goredis.Client,
	defaultPerSec int64,
	overrides map[string]int,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*ThroughputLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if defaultPerSec <= 0 {
		defaultPerSec = defaultThroughputPerSec
	}

	perSec := make(map[string]int64, len(overrides))
	for channel, limit := range overrides {
		if limit > 0 {
			perSec[normalizeChannel(channel)] = int64(limit)
		}
	}

	return &ThroughputLimiter{
		client:    client,
		defaultPS: defaultPerSec,
		perSec:    perSec,
		now:       nowFn,
		sleep:     sleepFn,
	}, nil
}

func (l *ThroughputLimiter) limitFor(channel string) int64 {
	if limit, ok := l.perSec[channel]; ok {
		return limit
	}
	return l.defaultPS
}

func (l *ThroughputLimiter) Allow(ctx context.Context, channel string) (bool, error) {
	ch := normalizeChannel(channel)
	if ch == "" {
		return false, fmt.Errorf("channel is required")
	}

	key := fmt.Sprintf("throughput:%s:%d", ch, l.now().UTC().Unix())
	result, err := throughputScript.Run(ctx, l.client, []string{key}, l.limitFor(ch), windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate throughput limit: %w", err)
	}

	return result == 1, nil
}

// Wait blocks until the channel has capacity in the current second window.
func (l *ThroughputLimiter) Wait(ctx context.Context, channel string) error {
	backoff := backoffStep
	for {
		allowed, err := l.Allow(ctx, channel)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := l.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff = min(backoff+backoffStep, backoffMax)
	}
}

func normalizeChannel(channel string) string {
	return strings.ToLower(strings.TrimSpace(channel))
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
