package handler

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/campaign-engine/internal/contactfile"
	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/observability"
	"github.com/kursadbilgin/campaign-engine/internal/queue"
	"github.com/kursadbilgin/campaign-engine/internal/service"
)

const maxContactFileSize = 10 << 20

type CampaignService interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	Execute(ctx context.Context, ref domain.CampaignRef) (*domain.ExecutionResult, error)
	CanExecute(ctx context.Context, ref domain.CampaignRef) (bool, error)
	TransitionStatus(ctx context.Context, id string, to domain.CampaignStatus) (*domain.Campaign, error)
	Summary(ctx context.Context, id string) (*service.CampaignSummary, error)
}

type ContactImporter interface {
	Import(ctx context.Context, campaignID, fileName string, r io.Reader) (*contactfile.Result, error)
}

type TaskPublisher interface {
	Publish(ctx context.Context, queue string, task queue.Task) error
}

type CampaignHandler struct {
	campaigns CampaignService
	importer  ContactImporter
	publisher TaskPublisher
}

func NewCampaignHandler(campaigns CampaignService, importer ContactImporter, publisher TaskPublisher) (*CampaignHandler, error) {
	if campaigns == nil {
		return nil, fmt.Errorf("campaign service is required")
	}
	if importer == nil {
		return nil, fmt.Errorf("contact importer is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("task publisher is required")
	}
	return &CampaignHandler{campaigns: campaigns, importer: importer, publisher: publisher}, nil
}

func RegisterCampaignRoutes(router fiber.Router, campaigns CampaignService, importer ContactImporter, publisher TaskPublisher) error {
	h, err := NewCampaignHandler(campaigns, importer, publisher)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/campaigns/:id/execute", h.Execute)
	v1.Get("/campaigns/:id/can-execute", h.CanExecute)
	v1.Get("/campaigns/:id/summary", h.Summary)
	v1.Post("/campaigns/:id/status", h.TransitionStatus)
	v1.Post("/campaigns/:id/contacts", h.UploadContacts)

	return nil
}

type transitionStatusRequest struct {
	Status string `json:"status" validate:"required,max=32"`
}

type executionResponse struct {
	CampaignID      string   `json:"campaignId"`
	Success         bool     `json:"success"`
	Message         string   `json:"message"`
	Created         int      `json:"created,omitempty"`
	Updated         int      `json:"updated,omitempty"`
	Skipped         int      `json:"skipped,omitempty"`
	TotalRecipients int      `json:"totalRecipients,omitempty"`
	NotificationIDs []string `json:"notificationIds,omitempty"`
}

type campaignResponse struct {
	ID                  string `json:"id"`
	Kind                string `json:"kind"`
	Name                string `json:"name"`
	Status              string `json:"status"`
	IsProcessing        bool   `json:"isProcessing"`
	ExecutionCount      int    `json:"executionCount"`
	LastExecutionResult string `json:"lastExecutionResult,omitempty"`
}

type summaryResponse struct {
	CampaignID         string  `json:"campaignId"`
	Kind               string  `json:"kind"`
	Status             string  `json:"status"`
	IsProcessing       bool    `json:"isProcessing"`
	Total              int     `json:"total"`
	Pending            int     `json:"pending"`
	Sent               int     `json:"sent"`
	Failed             int     `json:"failed"`
	Cancelled          int     `json:"cancelled"`
	ProgressPercentage float64 `json:"progressPercentage"`
}

type uploadResponse struct {
	CampaignID       string                  `json:"campaignId"`
	ValidationStatus string                  `json:"validationStatus"`
	Report           domain.ValidationReport `json:"report"`
}

// Execute queues a campaign execution, or runs it inline with ?sync=true.
func (h *CampaignHandler) Execute(c *fiber.Ctx) error {
	ref, err := h.resolveRef(c)
	if err != nil {
		return toHTTPError(err)
	}

	ctx := observability.WithCorrelationID(c.UserContext(), correlationIDOrNew(c))
	correlationID, _ := observability.CorrelationIDFromContext(ctx)

	if c.QueryBool("sync", false) {
		result, err := h.campaigns.Execute(ctx, ref)
		if err != nil {
			return toHTTPError(err)
		}
		return c.Status(fiber.StatusOK).JSON(toExecutionResponse(ref.ID, result))
	}

	task := queue.NewExecuteTask(ref, correlationID)
	if err := h.publisher.Publish(ctx, task.Queue(), task); err != nil {
		return fmt.Errorf("failed to queue campaign execution: %w", err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"campaignId":    ref.ID,
		"status":        "queued",
		"correlationId": correlationID,
	})
}

func (h *CampaignHandler) CanExecute(c *fiber.Ctx) error {
	ref, err := h.resolveRef(c)
	if err != nil {
		return toHTTPError(err)
	}

	ok, err := h.campaigns.CanExecute(c.UserContext(), ref)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"campaignId": ref.ID,
		"canExecute": ok,
	})
}

func (h *CampaignHandler) Summary(c *fiber.Ctx) error {
	summary, err := h.campaigns.Summary(c.UserContext(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(summaryResponse{
		CampaignID:         summary.CampaignID,
		Kind:               summary.Kind.String(),
		Status:             summary.Status.String(),
		IsProcessing:       summary.IsProcessing,
		Total:              summary.Notifications.Total,
		Pending:            summary.Notifications.Pending,
		Sent:               summary.Notifications.Sent,
		Failed:             summary.Notifications.Failed,
		Cancelled:          summary.Notifications.Cancelled,
		ProgressPercentage: summary.ProgressPercentage,
	})
}

func (h *CampaignHandler) TransitionStatus(c *fiber.Ctx) error {
	var req transitionStatusRequest
	if err := parseBody(c, &req); err != nil {
		return toHTTPError(err)
	}

	to, err := domain.ParseCampaignStatusFromString(req.Status)
	if err != nil {
		return toHTTPError(err)
	}

	campaign, err := h.campaigns.TransitionStatus(c.UserContext(), strings.TrimSpace(c.Params("id")), to)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(campaignResponse{
		ID:                  campaign.ID,
		Kind:                campaign.Kind.String(),
		Name:                campaign.Name,
		Status:              campaign.Status.String(),
		IsProcessing:        campaign.IsProcessing,
		ExecutionCount:      campaign.ExecutionCount,
		LastExecutionResult: campaign.LastExecutionResult,
	})
}

// UploadContacts replaces a file campaign's contacts with an uploaded .csv or .xlsx file.
func (h *CampaignHandler) UploadContacts(c *fiber.Ctx) error {
	header, err := c.FormFile("file")
	if err != nil {
		return toHTTPError(domain.NewValidationError("file is required"))
	}
	if header.Size > maxContactFileSize {
		return toHTTPError(domain.NewValidationError("file exceeds %d bytes", maxContactFileSize))
	}
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".csv", ".xlsx":
	default:
		return toHTTPError(domain.NewValidationError("unsupported file type %q, expected .csv or .xlsx", filepath.Ext(header.Filename)))
	}

	file, err := header.Open()
	if err != nil {
		return fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer file.Close()

	campaignID := strings.TrimSpace(c.Params("id"))
	result, err := h.importer.Import(c.UserContext(), campaignID, header.Filename, file)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(uploadResponse{
		CampaignID:       campaignID,
		ValidationStatus: string(result.Status),
		Report:           result.Report,
	})
}

// resolveRef looks the campaign up so the execution task carries its kind. An optional
// ?kind= must match.
func (h *CampaignHandler) resolveRef(c *fiber.Ctx) (domain.CampaignRef, error) {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return domain.CampaignRef{}, domain.NewValidationError("campaign id is required")
	}

	campaign, err := h.campaigns.Get(c.UserContext(), id)
	if err != nil {
		return domain.CampaignRef{}, err
	}

	if raw := strings.TrimSpace(c.Query("kind")); raw != "" {
		kind, err := domain.ParseCampaignKindFromString(raw)
		if err != nil {
			return domain.CampaignRef{}, err
		}
		if kind != campaign.Kind {
			return domain.CampaignRef{}, fmt.Errorf("%w: campaign %s:%s", domain.ErrNotFound, kind, id)
		}
	}
	return campaign.Ref(), nil
}

func correlationIDOrNew(c *fiber.Ctx) string {
	if id := requestCorrelationID(c); id != "" {
		return id
	}
	return observability.NewCorrelationID()
}

func toExecutionResponse(campaignID string, result *domain.ExecutionResult) executionResponse {
	resp := executionResponse{
		CampaignID: campaignID,
		Success:    result.Success,
		Message:    result.Message,
	}
	if s := result.Summary; s != nil {
		resp.Created = s.Created
		resp.Updated = s.Updated
		resp.Skipped = s.Skipped
		resp.TotalRecipients = s.TotalRecipients
		resp.NotificationIDs = s.NotificationIDs
	}
	return resp
}
