package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

const defaultGraphAPIURL = "https://graph.facebook.com"

type metaTextBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type metaMessageRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             metaTextBody `json:"text"`
}

// MetaWhatsAppProvider sends WhatsApp messages through the Meta Cloud API. URL buttons
// need approved templates there, so button messages carry the link in the text.
type MetaWhatsAppProvider struct {
	client        *resty.Client
	token         string
	phoneNumberID string
	apiVersion    string
}

func NewMetaWhatsAppProvider(token, phoneNumberID, apiVersion string) *MetaWhatsAppProvider {
	return NewMetaWhatsAppProviderWithClient(newRestyClient(defaultGraphAPIURL, defaultHTTPTimeout), token, phoneNumberID, apiVersion)
}

func NewMetaWhatsAppProviderWithClient(client *resty.Client, token, phoneNumberID, apiVersion string) *MetaWhatsAppProvider {
	if apiVersion == "" {
		apiVersion = "v21.0"
	}
	return &MetaWhatsAppProvider{
		client:        client,
		token:         strings.TrimSpace(token),
		phoneNumberID: strings.TrimSpace(phoneNumberID),
		apiVersion:    apiVersion,
	}
}

func (p *MetaWhatsAppProvider) Name() string { return "Meta WhatsApp" }

func (p *MetaWhatsAppProvider) IsConfigured() bool {
	return p != nil && p.client != nil && p.token != "" && p.phoneNumberID != ""
}

func (p *MetaWhatsAppProvider) SendText(ctx context.Context, recipient, message string) (*ProviderResponse, error) {
	if !p.IsConfigured() {
		return nil, NotConfiguredError(p.Name())
	}
	to, err := normalizePhone(recipient)
	if err != nil {
		return nil, err
	}

	body := metaMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             metaTextBody{PreviewURL: true, Body: message},
	}
	path := fmt.Sprintf("/%s/%s/messages", p.apiVersion, p.phoneNumberID)
	resp, err := postJSON(ctx, p.client.R().SetAuthToken(p.token), path, body)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal([]byte(resp.Body), &payload); err == nil && len(payload.Messages) > 0 {
		resp.MessageID = payload.Messages[0].ID
	}
	return resp, nil
}

func (p *MetaWhatsAppProvider) SendWithButton(ctx context.Context, recipient, message, buttonText, buttonURL string) (*ProviderResponse, error) {
	return p.SendText(ctx, recipient, fmt.Sprintf("%s\n\n%s: %s", message, buttonText, buttonURL))
}
