package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the lifecycle state of a notification.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSent      Status = "SENT"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Channel represents the delivery channel.
type Channel string

const (
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelTelegram Channel = "TELEGRAM"
	ChannelSMS      Channel = "SMS"
	ChannelEmail    Channel = "EMAIL"
)

// Channels lists every supported delivery channel.
var Channels = []Channel{ChannelWhatsApp, ChannelTelegram, ChannelSMS, ChannelEmail}

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelWhatsApp, ChannelTelegram, ChannelSMS, ChannelEmail:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// NotificationType classifies why a notification is sent.
type NotificationType string

const (
	NotificationTypeScheduled NotificationType = "SCHEDULED"
)

func (t NotificationType) String() string { return string(t) }

// RecipientKind discriminates partner and uploaded-contact recipients.
type RecipientKind string

const (
	RecipientKindPartner RecipientKind = "PARTNER"
	RecipientKindContact RecipientKind = "CONTACT"
)

func (k RecipientKind) String() string { return string(k) }

// RecipientContact is the set of channel identifiers known for a recipient.
type RecipientContact struct {
	Email      string
	Phone      string
	TelegramID string
}

// IdentifierFor returns the channel identifier, falling back to phone for Telegram.
func (r RecipientContact) IdentifierFor(channel Channel) string {
	switch channel {
	case ChannelWhatsApp, ChannelSMS:
		return strings.TrimSpace(r.Phone)
	case ChannelTelegram:
		if id := strings.TrimSpace(r.TelegramID); id != "" {
			return id
		}
		return strings.TrimSpace(r.Phone)
	case ChannelEmail:
		return strings.TrimSpace(r.Email)
	}
	return ""
}

// IdentifierName is the human name of the identifier a channel delivers to.
func IdentifierName(channel Channel) string {
	switch channel {
	case ChannelWhatsApp, ChannelSMS:
		return "phone number"
	case ChannelTelegram:
		return "Telegram ID"
	case ChannelEmail:
		return "email"
	}
	return "recipient"
}

// Notification is one per-recipient delivery record of a campaign.
type Notification struct {
	ID                  string
	CampaignKind        CampaignKind
	CampaignID          string
	RecipientKind       RecipientKind
	RecipientID         string
	NotificationType    NotificationType
	Channel             Channel
	Status              Status
	RecipientName       string
	RecipientEmail      *string
	RecipientPhone      *string
	RecipientTelegramID *string
	MessageContent      *string
	ScheduledAt         *time.Time
	SentAt              *time.Time
	QueuedAt            *time.Time
	ErrorMessage        *string
	TotalDebtAmount     decimal.Decimal
	IncludedPaymentLink bool
	PaymentLinkURL      *string
	AttemptCount        int
	LastAttemptAt       *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (n *Notification) CampaignRef() CampaignRef {
	return CampaignRef{Kind: n.CampaignKind, ID: n.CampaignID}
}

func (n *Notification) Contact() RecipientContact {
	return RecipientContact{
		Email:      deref(n.RecipientEmail),
		Phone:      deref(n.RecipientPhone),
		TelegramID: deref(n.RecipientTelegramID),
	}
}

// Claimable reports whether a send task that has already retried `retries` times may
// attempt delivery. Duplicate or stale tasks fail this check.
//
// A PENDING row with attempts recorded had an attempt interrupted before its outcome
// was stored; the dispatcher re-enqueues it with retries equal to that count.
func (n *Notification) Claimable(retries int) bool {
	if n.AttemptCount != retries {
		return false
	}
	if retries == 0 {
		return n.Status == StatusPending
	}
	return n.Status == StatusFailed || n.Status == StatusPending
}

func (n *Notification) Validate() error {
	if !n.CampaignKind.IsValid() || strings.TrimSpace(n.CampaignID) == "" {
		return fmt.Errorf("%w: campaign reference is required", ErrValidation)
	}
	if strings.TrimSpace(n.RecipientID) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if !n.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, n.Channel)
	}
	if n.Contact().IdentifierFor(n.Channel) == "" {
		return fmt.Errorf("%w: no %s found", ErrValidation, IdentifierName(n.Channel))
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr returns nil for blank strings.
func StringPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
