package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	waMinuteKeyPrefix   = "whatsapp:rate:minute:"
	waDailyKeyPrefix    = "whatsapp:rate:daily:"
	waConsecutiveKey    = "whatsapp:rate:consecutive_days"
	waConsecutiveDayKey = "whatsapp:rate:consecutive_days:last_day"
	waLastMessageKey    = "whatsapp:rate:last_message"

	waMinuteTTL = 60
	waDailyTTL  = 86400
	waStreakTTL = 7 * waDailyTTL

	minuteLayout = "200601021504"
	dayLayout    = "20060102"
)

// acquireScript checks the minute, daily and consecutive-day limits and records the
// send in one step. Returns {allowed, reason, minute count, active minutes, streak}.
var acquireScript = goredis.NewScript(`
local minute_count = tonumber(redis.call("GET", KEYS[1]) or "0")
if minute_count >= tonumber(ARGV[1]) then
  return {0, "minute_limit", minute_count, 0, 0}
end

local active_minutes = redis.call("SCARD", KEYS[2])
if active_minutes >= tonumber(ARGV[2]) then
  return {0, "daily_limit", minute_count, active_minutes, 0}
end

local today = tonumber(ARGV[4])
local streak = tonumber(redis.call("GET", KEYS[3]) or "0")
local last_day = redis.call("GET", KEYS[4])
if streak >= tonumber(ARGV[3]) and last_day and tonumber(last_day) == today then
  return {0, "consecutive_days_limit", minute_count, active_minutes, streak}
end

minute_count = redis.call("INCR", KEYS[1])
if minute_count == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[7])
end

redis.call("SADD", KEYS[2], ARGV[5])
redis.call("EXPIRE", KEYS[2], ARGV[8])
active_minutes = redis.call("SCARD", KEYS[2])

local diff = -1
if last_day then
  diff = today - tonumber(last_day)
end
if not last_day or diff > 1 then
  streak = 1
elseif diff == 1 then
  streak = streak + 1
end
if not last_day or diff >= 1 then
  redis.call("SET", KEYS[3], streak, "EX", ARGV[9])
  redis.call("SET", KEYS[4], today, "EX", ARGV[9])
end

redis.call("SET", KEYS[5], ARGV[6], "EX", ARGV[8])
return {1, "", minute_count, active_minutes, streak}
`)

var (
	_ ratelimit.SendBudget  = (*WhatsAppLimiter)(nil)
	_ ratelimit.BudgetAdmin = (*WhatsAppLimiter)(nil)
)

// WhatsAppLimiter keeps the WhatsApp account within per-minute, daily-activity and
// consecutive-day limits shared by every worker process.
type WhatsAppLimiter struct {
	client *goredis.Client
	limits ratelimit.Limits
	now    func() time.Time
}

func NewWhatsAppLimiter(client *goredis.Client, limits ratelimit.Limits) (*WhatsAppLimiter, error) {
	return newWhatsAppLimiter(client, limits, time.Now)
}

func newWhatsAppLimiter(client *goredis.Client, limits ratelimit.Limits, nowFn func() time.Time) (*WhatsAppLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	defaults := ratelimit.DefaultLimits()
	if limits.MaxPerMinute <= 0 {
		limits.MaxPerMinute = defaults.MaxPerMinute
	}
	if limits.MaxDailyHours <= 0 {
		limits.MaxDailyHours = defaults.MaxDailyHours
	}
	if limits.MaxConsecutiveDays <= 0 {
		limits.MaxConsecutiveDays = defaults.MaxConsecutiveDays
	}

	return &WhatsAppLimiter{client: client, limits: limits, now: nowFn}, nil
}

// Acquire reserves a send slot. A denied decision carries the time to wait before retrying.
func (l *WhatsAppLimiter) Acquire(ctx context.Context) (ratelimit.Decision, error) {
	now := l.now().UTC()
	minute := now.Format(minuteLayout)

	keys := []string{
		waMinuteKeyPrefix + minute,
		waDailyKeyPrefix + now.Format(dayLayout),
		waConsecutiveKey,
		waConsecutiveDayKey,
		waLastMessageKey,
	}
	args := []any{
		l.limits.MaxPerMinute,
		l.limits.MaxDailyMinutes(),
		l.limits.MaxConsecutiveDays,
		epochDay(now),
		minute,
		now.Format(time.RFC3339),
		waMinuteTTL,
		waDailyTTL,
		waStreakTTL,
	}

	res, err := acquireScript.Run(ctx, l.client, keys, args...).Slice()
	if err != nil {
		return ratelimit.Decision{}, fmt.Errorf("failed to evaluate whatsapp limits: %w", err)
	}
	if len(res) < 2 {
		return ratelimit.Decision{}, fmt.Errorf("unexpected whatsapp limiter reply: %v", res)
	}

	if allowed, _ := res[0].(int64); allowed == 1 {
		return ratelimit.Decision{Allowed: true}, nil
	}

	reason, _ := res[1].(string)
	return l.denial(ratelimit.Reason(reason), now), nil
}

func (l *WhatsAppLimiter) denial(reason ratelimit.Reason, now time.Time) ratelimit.Decision {
	d := ratelimit.Decision{Reason: reason}
	switch reason {
	case ratelimit.ReasonMinuteLimit:
		d.Message = fmt.Sprintf("Per-minute limit reached (%d messages/minute)", l.limits.MaxPerMinute)
		d.Wait = time.Duration(60-now.Second()) * time.Second
	case ratelimit.ReasonDailyLimit:
		d.Message = fmt.Sprintf("Daily activity limit reached (%d hours)", l.limits.MaxDailyHours)
		d.Wait = untilNextDay(now)
	default:
		d.Message = fmt.Sprintf("Maximum consecutive days reached (%d days)", l.limits.MaxConsecutiveDays)
		d.Wait = untilNextDay(now)
	}
	return d
}

func (l *WhatsAppLimiter) Status(ctx context.Context) (ratelimit.Status, error) {
	now := l.now().UTC()

	pipe := l.client.Pipeline()
	minuteCmd := pipe.Get(ctx, waMinuteKeyPrefix+now.Format(minuteLayout))
	dailyCmd := pipe.SCard(ctx, waDailyKeyPrefix+now.Format(dayLayout))
	streakCmd := pipe.Get(ctx, waConsecutiveKey)
	lastCmd := pipe.Get(ctx, waLastMessageKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return ratelimit.Status{}, fmt.Errorf("failed to read whatsapp counters: %w", err)
	}

	status := ratelimit.Status{
		MaxPerMinute:       l.limits.MaxPerMinute,
		MaxDailyMinutes:    l.limits.MaxDailyMinutes(),
		MaxConsecutiveDays: l.limits.MaxConsecutiveDays,
		DailyActiveMinutes: int(dailyCmd.Val()),
	}
	if n, err := minuteCmd.Int(); err == nil {
		status.CurrentMinuteCount = n
	}
	if n, err := streakCmd.Int(); err == nil {
		status.ConsecutiveDays = n
	}
	if raw, err := lastCmd.Result(); err == nil {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			status.LastMessageAt = &ts
		}
	}
	return status, nil
}

// ResetDaily clears today's active-minute set.
func (l *WhatsAppLimiter) ResetDaily(ctx context.Context) error {
	key := waDailyKeyPrefix + l.now().UTC().Format(dayLayout)
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to reset daily whatsapp counters: %w", err)
	}
	return nil
}

// ResetAll clears the streak, the last message marker and today's activity.
func (l *WhatsAppLimiter) ResetAll(ctx context.Context) error {
	if err := l.client.Del(ctx, waConsecutiveKey, waConsecutiveDayKey, waLastMessageKey).Err(); err != nil {
		return fmt.Errorf("failed to reset whatsapp counters: %w", err)
	}
	return l.ResetDaily(ctx)
}

func epochDay(t time.Time) int64 {
	return t.Unix() / waDailyTTL
}

func untilNextDay(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	return next.Sub(now).Truncate(time.Second)
}
