package provider

import (
	"context"
)

// Provider is the outbound delivery port of one messaging service.
type Provider interface {
	Name() string
	IsConfigured() bool
	SendText(ctx context.Context, recipient, message string) (*ProviderResponse, error)
	SendWithButton(ctx context.Context, recipient, message, buttonText, buttonURL string) (*ProviderResponse, error)
}

// ProviderResponse stores provider call metadata for audit and persistence.
type ProviderResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}
