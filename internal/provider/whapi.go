package provider

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const presenceTimeout = 10 * time.Second

type whapiTextRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type whapiButton struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

type whapiInteractiveRequest struct {
	To      string        `json:"to"`
	Body    string        `json:"body"`
	Footer  string        `json:"footer"`
	Buttons []whapiButton `json:"buttons"`
}

type whapiPresenceRequest struct {
	To    string `json:"to"`
	State string `json:"state"`
}

// WHAPIProvider sends WhatsApp messages through the WHAPI.cloud gateway.
type WHAPIProvider struct {
	client *resty.Client
	token  string
	logger *zap.Logger
}

func NewWHAPIProvider(baseURL, token string, logger *zap.Logger) *WHAPIProvider {
	return NewWHAPIProviderWithClient(newRestyClient(baseURL, defaultHTTPTimeout), token, logger)
}

func NewWHAPIProviderWithClient(client *resty.Client, token string, logger *zap.Logger) *WHAPIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WHAPIProvider{
		client: client,
		token:  strings.TrimSpace(token),
		logger: logger,
	}
}

func (p *WHAPIProvider) Name() string { return "WHAPI" }

func (p *WHAPIProvider) IsConfigured() bool {
	return p != nil && p.client != nil && p.token != ""
}

func (p *WHAPIProvider) SendText(ctx context.Context, recipient, message string) (*ProviderResponse, error) {
	to, err := p.prepare(ctx, recipient)
	if err != nil {
		return nil, err
	}

	resp, err := postJSON(ctx, p.request(), "/messages/text", whapiTextRequest{To: to, Body: message})
	if err != nil {
		return nil, err
	}
	return withWHAPIMessageID(resp), nil
}

// SendWithButton sends an interactive message with a URL button. Plain http links are
// upgraded to https.
func (p *WHAPIProvider) SendWithButton(ctx context.Context, recipient, message, buttonText, buttonURL string) (*ProviderResponse, error) {
	to, err := p.prepare(ctx, recipient)
	if err != nil {
		return nil, err
	}

	if rest, ok := strings.CutPrefix(buttonURL, "http://"); ok {
		buttonURL = "https://" + rest
	}

	body := whapiInteractiveRequest{
		To:   to,
		Body: message,
		Buttons: []whapiButton{
			{Type: "url", Title: buttonText, URL: buttonURL},
		},
	}
	resp, err := postJSON(ctx, p.request(), "/messages/interactive", body)
	if err != nil {
		return nil, err
	}
	return withWHAPIMessageID(resp), nil
}

func (p *WHAPIProvider) prepare(ctx context.Context, recipient string) (string, error) {
	if !p.IsConfigured() {
		return "", NotConfiguredError(p.Name())
	}
	phone, err := normalizePhone(recipient)
	if err != nil {
		return "", err
	}
	to := phone + "@s.whatsapp.net"
	p.sendTyping(ctx, to)
	return to, nil
}

// sendTyping shows a typing indicator before the message. Failures are only logged.
func (p *WHAPIProvider) sendTyping(ctx context.Context, to string) {
	ctx, cancel := context.WithTimeout(ctx, presenceTimeout)
	defer cancel()

	if _, err := postJSON(ctx, p.request(), "/messages/presence", whapiPresenceRequest{To: to, State: "typing"}); err != nil {
		p.logger.Debug("whapi typing indicator failed", zap.Error(err))
	}
}

func (p *WHAPIProvider) request() *resty.Request {
	return p.client.R().SetAuthToken(p.token)
}

func withWHAPIMessageID(resp *ProviderResponse) *ProviderResponse {
	var payload struct {
		ID      string `json:"id"`
		Message struct {
			ID string `json:"id"`
		} `json:"message"`
	}
	if err := json.Unmarshal([]byte(resp.Body), &payload); err == nil {
		switch {
		case payload.ID != "":
			resp.MessageID = payload.ID
		case payload.Message.ID != "":
			resp.MessageID = payload.Message.ID
		}
	}
	return resp
}
