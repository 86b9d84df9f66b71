package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"github.com/kursadbilgin/campaign-engine/internal/service"
	"github.com/shopspring/decimal"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type NotificationService interface {
	GetByID(ctx context.Context, id string) (*service.NotificationDetail, error)
	Cancel(ctx context.Context, id string) error
	List(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error)
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/notifications/:id", h.GetNotification)
	v1.Post("/notifications/:id/cancel", h.CancelNotification)
	v1.Get("/notifications", h.ListNotifications)

	return nil
}

type notificationResponse struct {
	ID                  string          `json:"id"`
	CampaignKind        string          `json:"campaignKind"`
	CampaignID          string          `json:"campaignId"`
	RecipientKind       string          `json:"recipientKind"`
	RecipientID         string          `json:"recipientId"`
	RecipientName       string          `json:"recipientName"`
	Channel             string          `json:"channel"`
	Status              string          `json:"status"`
	MessageContent      *string         `json:"messageContent,omitempty"`
	TotalDebtAmount     decimal.Decimal `json:"totalDebtAmount"`
	IncludedPaymentLink bool            `json:"includedPaymentLink"`
	PaymentLinkURL      *string         `json:"paymentLinkUrl,omitempty"`
	ErrorMessage        *string         `json:"errorMessage,omitempty"`
	AttemptCount        int             `json:"attemptCount"`
	ScheduledAt         *time.Time      `json:"scheduledAt,omitempty"`
	QueuedAt            *time.Time      `json:"queuedAt,omitempty"`
	SentAt              *time.Time      `json:"sentAt,omitempty"`
	LastAttemptAt       *time.Time      `json:"lastAttemptAt,omitempty"`
	CreatedAt           time.Time       `json:"createdAt,omitempty"`
	UpdatedAt           time.Time       `json:"updatedAt,omitempty"`
}

type attemptResponse struct {
	AttemptNumber int       `json:"attemptNumber"`
	Provider      string    `json:"provider"`
	StatusCode    *int      `json:"statusCode,omitempty"`
	ResponseBody  *string   `json:"responseBody,omitempty"`
	Error         *string   `json:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type notificationDetailResponse struct {
	notificationResponse
	Attempts []attemptResponse `json:"attempts"`
}

type listNotificationsResponse struct {
	Data []notificationResponse `json:"data"`
	Meta listMeta               `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	detail, err := h.service.GetByID(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}

	attempts := make([]attemptResponse, 0, len(detail.Attempts))
	for _, a := range detail.Attempts {
		attempts = append(attempts, attemptResponse{
			AttemptNumber: a.AttemptNumber,
			Provider:      a.Provider,
			StatusCode:    a.StatusCode,
			ResponseBody:  a.ResponseBody,
			Error:         a.Error,
			CreatedAt:     a.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(notificationDetailResponse{
		notificationResponse: toNotificationResponse(detail.Notification),
		Attempts:             attempts,
	})
}

func (h *NotificationHandler) CancelNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Cancel(c.UserContext(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"notificationId": id,
		"status":         domain.StatusCancelled.String(),
	})
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	notifications, total, err := h.service.List(c.UserContext(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listNotificationsResponse{
		Data: toNotificationResponses(notifications),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if campaignID := strings.TrimSpace(c.Query("campaignId")); campaignID != "" {
		params.CampaignID = &campaignID
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	if rawChannel := strings.TrimSpace(c.Query("channel")); rawChannel != "" {
		channel, err := domain.ParseChannelFromString(rawChannel)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Channel = &channel
	}

	return params, nil
}

func toNotificationResponses(notifications []domain.Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(notifications))
	for i := range notifications {
		responses = append(responses, toNotificationResponse(&notifications[i]))
	}
	return responses
}

func toNotificationResponse(n *domain.Notification) notificationResponse {
	if n == nil {
		return notificationResponse{}
	}

	return notificationResponse{
		ID:                  n.ID,
		CampaignKind:        n.CampaignKind.String(),
		CampaignID:          n.CampaignID,
		RecipientKind:       n.RecipientKind.String(),
		RecipientID:         n.RecipientID,
		RecipientName:       n.RecipientName,
		Channel:             n.Channel.String(),
		Status:              n.Status.String(),
		MessageContent:      n.MessageContent,
		TotalDebtAmount:     n.TotalDebtAmount,
		IncludedPaymentLink: n.IncludedPaymentLink,
		PaymentLinkURL:      n.PaymentLinkURL,
		ErrorMessage:        n.ErrorMessage,
		AttemptCount:        n.AttemptCount,
		ScheduledAt:         n.ScheduledAt,
		QueuedAt:            n.QueuedAt,
		SentAt:              n.SentAt,
		LastAttemptAt:       n.LastAttemptAt,
		CreatedAt:           n.CreatedAt,
		UpdatedAt:           n.UpdatedAt,
	}
}
