package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"
)

// RateLimiter controls per-second message throughput per channel.
type RateLimiter interface {
	Allow(ctx context.Context, channel string) (bool, error)
	Wait(ctx context.Context, channel string) error
}

// Reason names the WhatsApp limit that denied a send.
type Reason string

const (
	ReasonMinuteLimit     Reason = "minute_limit"
	ReasonDailyLimit      Reason = "daily_limit"
	ReasonConsecutiveDays Reason = "consecutive_days_limit"
)

// Decision is the outcome of asking the WhatsApp send budget for a slot.
type Decision struct {
	Allowed bool
	Reason  Reason
	Message string
	Wait    time.Duration
}

// Limits are the WhatsApp account-safety thresholds.
type Limits struct {
	MaxPerMinute       int
	MaxDailyHours      int
	MaxConsecutiveDays int
}

func DefaultLimits() Limits {
	return Limits{MaxPerMinute: 12, MaxDailyHours: 6, MaxConsecutiveDays: 3}
}

// MaxDailyMinutes is the number of distinct active minutes allowed per day.
func (l Limits) MaxDailyMinutes() int {
	return l.MaxDailyHours * 60
}

// Status is a snapshot of the WhatsApp counters.
type Status struct {
	CurrentMinuteCount int        `json:"current_minute_count"`
	MaxPerMinute       int        `json:"max_per_minute"`
	DailyActiveMinutes int        `json:"daily_active_minutes"`
	MaxDailyMinutes    int        `json:"max_daily_minutes"`
	ConsecutiveDays    int        `json:"consecutive_days"`
	MaxConsecutiveDays int        `json:"max_consecutive_days"`
	LastMessageAt      *time.Time `json:"last_message_time"`
}

// SendBudget hands out WhatsApp send slots. A granted slot is already recorded.
type SendBudget interface {
	Acquire(ctx context.Context) (Decision, error)
}

// BudgetAdmin exposes the operator view of the WhatsApp counters.
type BudgetAdmin interface {
	Status(ctx context.Context) (Status, error)
	ResetDaily(ctx context.Context) error
	ResetAll(ctx context.Context) error
}

// RandomDelay returns a 5 to 10 second pause used to avoid regular send patterns.
func RandomDelay() time.Duration {
	return time.Duration(5+rand.IntN(6)) * time.Second
}
