package domain

import "time"

const DefaultPaymentButtonText = "Pagar ahora"

// MessageTemplate is operator-managed message text for a (type, channel) pair.
type MessageTemplate struct {
	ID                   string
	Name                 string
	TemplateType         NotificationType
	Channel              Channel
	IsActive             bool
	Subject              string
	MessageBody          string
	IncludePaymentButton bool
	PaymentButtonText    string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ButtonText returns the configured payment button label or the default one.
func (t *MessageTemplate) ButtonText() string {
	if t == nil || t.PaymentButtonText == "" {
		return DefaultPaymentButtonText
	}
	return t.PaymentButtonText
}
