package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
)

// TaskKind discriminates the payloads carried on the work queues.
type TaskKind string

const (
	TaskSendNotification TaskKind = "send_notification"
	TaskExecuteCampaign  TaskKind = "execute_campaign"
)

// Task is the broker payload for notification delivery and campaign execution.
type Task struct {
	Kind           TaskKind            `json:"kind"`
	NotificationID string              `json:"notificationId,omitempty"`
	Channel        domain.Channel      `json:"channel,omitempty"`
	CampaignKind   domain.CampaignKind `json:"campaignKind,omitempty"`
	CampaignID     string              `json:"campaignId,omitempty"`
	Retries        int                 `json:"retries"`
	NotBefore      *time.Time          `json:"notBefore,omitempty"`
	CorrelationID  string              `json:"correlationId,omitempty"`
}

func NewSendTask(n *domain.Notification, correlationID string) Task {
	return Task{
		Kind:           TaskSendNotification,
		NotificationID: n.ID,
		Channel:        n.Channel,
		CampaignKind:   n.CampaignKind,
		CampaignID:     n.CampaignID,
		Retries:        n.AttemptCount,
		CorrelationID:  correlationID,
	}
}

func NewExecuteTask(ref domain.CampaignRef, correlationID string) Task {
	return Task{
		Kind:          TaskExecuteCampaign,
		CampaignKind:  ref.Kind,
		CampaignID:    ref.ID,
		CorrelationID: correlationID,
	}
}

func (t Task) CampaignRef() domain.CampaignRef {
	return domain.CampaignRef{Kind: t.CampaignKind, ID: t.CampaignID}
}

// Queue returns the work queue the task belongs to.
func (t Task) Queue() string {
	if t.Kind == TaskExecuteCampaign {
		return CampaignQueue
	}
	return QueueName(t.Channel)
}

// MessageID identifies a publish of this task for broker-side tracing.
func (t Task) MessageID() string {
	if t.Kind == TaskExecuteCampaign {
		return fmt.Sprintf("%s:%s", t.Kind, t.CampaignRef())
	}
	return fmt.Sprintf("%s:%d", t.NotificationID, t.Retries)
}

// RemainingDelay is how long the task must still wait before it may run.
func (t Task) RemainingDelay(now time.Time) time.Duration {
	if t.NotBefore == nil {
		return 0
	}
	return max(t.NotBefore.Sub(now), 0)
}

func (t Task) Validate() error {
	switch t.Kind {
	case TaskSendNotification:
		if strings.TrimSpace(t.NotificationID) == "" {
			return fmt.Errorf("notificationId is required")
		}
		if !t.Channel.IsValid() {
			return fmt.Errorf("invalid channel %q", t.Channel)
		}
	case TaskExecuteCampaign:
		if !t.CampaignKind.IsValid() {
			return fmt.Errorf("invalid campaign kind %q", t.CampaignKind)
		}
		if strings.TrimSpace(t.CampaignID) == "" {
			return fmt.Errorf("campaignId is required")
		}
	default:
		return fmt.Errorf("unknown task kind %q", t.Kind)
	}
	if t.Retries < 0 {
		return fmt.Errorf("retries must not be negative")
	}
	return nil
}
