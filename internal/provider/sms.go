package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
)

type smsWebhookRequest struct {
	To      string `json:"to"`
	Channel string `json:"channel"`
	Content string `json:"content"`
}

// SMSWebhookProvider hands SMS messages to an HTTP gateway webhook.
type SMSWebhookProvider struct {
	client   *resty.Client
	endpoint string
}

func NewSMSWebhookProvider(endpoint string) *SMSWebhookProvider {
	return NewSMSWebhookProviderWithClient(endpoint, newRestyClient("", defaultHTTPTimeout))
}

func NewSMSWebhookProviderWithClient(endpoint string, client *resty.Client) *SMSWebhookProvider {
	endpoint = strings.TrimSpace(endpoint)
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		endpoint = ""
	}
	return &SMSWebhookProvider{client: client, endpoint: endpoint}
}

func (p *SMSWebhookProvider) Name() string { return "SMS" }

func (p *SMSWebhookProvider) IsConfigured() bool {
	return p != nil && p.client != nil && p.endpoint != ""
}

func (p *SMSWebhookProvider) SendText(ctx context.Context, recipient, message string) (*ProviderResponse, error) {
	if !p.IsConfigured() {
		return nil, NotConfiguredError(p.Name())
	}
	to, err := normalizePhone(recipient)
	if err != nil {
		return nil, err
	}

	return postJSON(ctx, p.client.R(), p.endpoint, smsWebhookRequest{
		To:      "+" + to,
		Channel: "sms",
		Content: message,
	})
}

// SendWithButton appends the link to the text since SMS has no buttons.
func (p *SMSWebhookProvider) SendWithButton(ctx context.Context, recipient, message, buttonText, buttonURL string) (*ProviderResponse, error) {
	return p.SendText(ctx, recipient, fmt.Sprintf("%s\n\n%s: %s", message, buttonText, buttonURL))
}
