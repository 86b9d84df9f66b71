package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQPublisher struct {
	client *RabbitMQ
	now    func() time.Time
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client, now: time.Now}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, queue string, task Task) error {
	return p.publish(ctx, queue, task)
}

// PublishDelayed parks the task in the delay queue whose TTL best fits delay. The delay
// queue dead-letters back into the work queue.
func (p *RabbitMQPublisher) PublishDelayed(ctx context.Context, queue string, task Task, delay time.Duration) error {
	if delay <= 0 {
		task.NotBefore = nil
		return p.publish(ctx, queue, task)
	}

	notBefore := p.now().UTC().Add(delay)
	task.NotBefore = &notBefore
	return p.publish(ctx, DelayQueueName(queue, DelayBucket(delay)), task)
}

func (p *RabbitMQPublisher) publish(ctx context.Context, routingKey string, task Task) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if routingKey == "" {
		return fmt.Errorf("queue name is required")
	}
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	publishing := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     p.now().UTC(),
		MessageId:     task.MessageID(),
		CorrelationId: task.CorrelationID,
		Type:          string(task.Kind),
		Body:          payload,
	}

	if err := ch.PublishWithContext(ctx, "", routingKey, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish task to queue %q: %w", routingKey, err)
	}

	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
