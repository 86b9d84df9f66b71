package backoffice

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/campaign-engine/internal/domain"
)

const defaultTimeout = 10 * time.Second

// PartnerDirectory looks up partners owned by the back-office system.
type PartnerDirectory interface {
	GroupPartners(ctx context.Context, groupID string) ([]domain.Partner, error)
	// FindByDocument returns ErrNotFound when no partner matches and ErrConflict when
	// several do.
	FindByDocument(ctx context.Context, documentNumber string) (*domain.Partner, error)
}

// DebtAggregator returns the overdue debt breakdown of a partner.
type DebtAggregator interface {
	PartnerDebt(ctx context.Context, partnerID string) (domain.DebtDetail, error)
}

// PaymentLinks issues magic payment links.
type PaymentLinks interface {
	CreateMagicLink(ctx context.Context, partnerID string, ttl time.Duration, includeUpcoming bool) (string, error)
}

var (
	_ PartnerDirectory = (*Client)(nil)
	_ DebtAggregator   = (*Client)(nil)
	_ PaymentLinks     = (*Client)(nil)
)

// Client talks to the back-office REST API.
type Client struct {
	http          *resty.Client
	companyDomain string
}

func NewClient(baseURL, token, companyDomain string) *Client {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(defaultTimeout)
	client.SetHeader("Accept", "application/json")
	if token = strings.TrimSpace(token); token != "" {
		client.SetAuthToken(token)
	}
	return NewClientWithResty(client, companyDomain)
}

func NewClientWithResty(client *resty.Client, companyDomain string) *Client {
	return &Client{http: client, companyDomain: strings.TrimSpace(companyDomain)}
}

func (c *Client) GroupPartners(ctx context.Context, groupID string) ([]domain.Partner, error) {
	var page partnerPage
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", groupID).
		SetResult(&page).
		Get("/api/v1/partners/groups/{id}/partners/")
	if err := checkResponse("group partners", resp, err); err != nil {
		return nil, err
	}
	return page.partners(), nil
}

func (c *Client) FindByDocument(ctx context.Context, documentNumber string) (*domain.Partner, error) {
	var page partnerPage
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("document_number", documentNumber).
		SetResult(&page).
		Get("/api/v1/partners/partners/")
	if err := checkResponse("partner lookup", resp, err); err != nil {
		return nil, err
	}

	partners := page.partners()
	switch len(partners) {
	case 0:
		return nil, fmt.Errorf("%w: no partner with document %s", domain.ErrNotFound, documentNumber)
	case 1:
		return &partners[0], nil
	default:
		return nil, fmt.Errorf("%w: %d partners with document %s", domain.ErrConflict, len(partners), documentNumber)
	}
}

func (c *Client) PartnerDebt(ctx context.Context, partnerID string) (domain.DebtDetail, error) {
	var payload debtPayload
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", partnerID).
		SetResult(&payload).
		Get("/api/v1/partners/partners/{id}/debt-detail/")
	if err := checkResponse("partner debt", resp, err); err != nil {
		return domain.DebtDetail{}, err
	}
	return payload.toDomain(), nil
}

// CreateMagicLink issues a payment link and returns its public URL on the company domain.
func (c *Client) CreateMagicLink(ctx context.Context, partnerID string, ttl time.Duration, includeUpcoming bool) (string, error) {
	var payload magicLinkResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(magicLinkRequest{
			PartnerID:       partnerID,
			HoursToExpire:   int(ttl.Hours()),
			IncludeUpcoming: includeUpcoming,
			Source:          "AUTOMATED",
		}).
		SetResult(&payload).
		Post("/api/v1/payments/magic-links/")
	if err := checkResponse("magic link", resp, err); err != nil {
		return "", err
	}
	if payload.PublicPath == "" {
		return "", fmt.Errorf("magic link response has no public path")
	}
	return fmt.Sprintf("http://%s%s", c.companyDomain, payload.PublicPath), nil
}

func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("backoffice %s request failed: %w", op, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return fmt.Errorf("%w: backoffice %s", domain.ErrNotFound, op)
	case resp.IsError():
		return fmt.Errorf("backoffice %s returned status %d: %s", op, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}
