package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
)

// Publisher publishes tasks to a work queue, immediately or after a delay.
type Publisher interface {
	Publish(ctx context.Context, queue string, task Task) error
	PublishDelayed(ctx context.Context, queue string, task Task, delay time.Duration) error
	Close() error
}

// TaskHandler handles a consumed task. A returned error requeues the delivery.
type TaskHandler func(ctx context.Context, task Task) error

// Consumer consumes tasks from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler TaskHandler) error
	Close() error
}

// CampaignQueue receives campaign execution tasks.
const CampaignQueue = "campaigns"

// delayBuckets are the fixed TTLs of the delay queues, in ascending order.
var delayBuckets = []time.Duration{
	time.Second,
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
	time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	time.Hour,
}

// QueueName returns the channel work queue name, e.g. whatsapp.
func QueueName(channel domain.Channel) string {
	return strings.ToLower(channel.String())
}

// DLQName returns the dead-letter queue of a work queue, e.g. dlq.whatsapp.
func DLQName(queue string) string {
	return "dlq." + queue
}

// DelayQueueName returns the delay queue of a work queue for a bucket, e.g. delay.sms.60s.
func DelayQueueName(queue string, bucket time.Duration) string {
	return fmt.Sprintf("delay.%s.%ds", queue, int64(bucket/time.Second))
}

// WorkQueueNames returns the channel work queues followed by the campaign queue.
func WorkQueueNames() []string {
	queues := make([]string, 0, len(domain.Channels)+1)
	for _, channel := range domain.Channels {
		queues = append(queues, QueueName(channel))
	}
	return append(queues, CampaignQueue)
}

// DLQNames returns the dead-letter queue of every work queue.
func DLQNames() []string {
	work := WorkQueueNames()
	queues := make([]string, 0, len(work))
	for _, q := range work {
		queues = append(queues, DLQName(q))
	}
	return queues
}

// DelayBucket picks the largest bucket not longer than delay, or the smallest bucket
// for shorter delays. Tasks delivered early carry NotBefore and are re-delayed.
func DelayBucket(delay time.Duration) time.Duration {
	bucket := delayBuckets[0]
	for _, b := range delayBuckets {
		if b > delay {
			break
		}
		bucket = b
	}
	return bucket
}

// RetryPolicy bounds provider retries of a notification.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 60 * time.Second}
}

// ShouldRetry reports whether a notification with attemptCount attempts may be tried again.
func (p RetryPolicy) ShouldRetry(attemptCount int) bool {
	return attemptCount < p.MaxAttempts
}
