package repository

import (
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// CampaignModel is the persistence model for the campaigns table.
type CampaignModel struct {
	ID                  string                    `gorm:"type:uuid;primaryKey"`
	Kind                domain.CampaignKind       `gorm:"type:varchar(10);not null"`
	Name                string                    `gorm:"type:varchar(255);not null"`
	Status              domain.CampaignStatus     `gorm:"type:varchar(20);not null"`
	IsProcessing        bool                      `gorm:"not null;default:false"`
	ExecutionDate       *time.Time                `gorm:"type:timestamptz"`
	LastExecutionAt     *time.Time                `gorm:"type:timestamptz"`
	ExecutionCount      int                       `gorm:"not null;default:0"`
	LastExecutionResult string                    `gorm:"type:text;not null;default:''"`
	Channel             domain.Channel            `gorm:"type:varchar(20);not null"`
	NotificationType    domain.NotificationType   `gorm:"type:varchar(20);not null"`
	UsePaymentLink      bool                      `gorm:"not null;default:false"`
	GroupID             *string                   `gorm:"type:varchar(64)"`
	FileName            string                    `gorm:"type:varchar(255);not null;default:''"`
	ValidationStatus    domain.ValidationStatus   `gorm:"type:varchar(20);not null;default:'PENDING'"`
	TotalContacts       int                       `gorm:"not null;default:0"`
	ValidContacts       int                       `gorm:"not null;default:0"`
	InvalidContacts     int                       `gorm:"not null;default:0"`
	ValidationResult    *domain.ValidationReport  `gorm:"type:jsonb;serializer:json"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (CampaignModel) TableName() string {
	return "campaigns"
}

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID                  string                  `gorm:"type:uuid;primaryKey"`
	CampaignKind        domain.CampaignKind     `gorm:"type:varchar(10);not null"`
	CampaignID          string                  `gorm:"type:uuid;not null"`
	RecipientKind       domain.RecipientKind    `gorm:"type:varchar(10);not null"`
	RecipientID         string                  `gorm:"type:varchar(64);not null"`
	NotificationType    domain.NotificationType `gorm:"type:varchar(20);not null"`
	Channel             domain.Channel          `gorm:"type:varchar(20);not null"`
	Status              domain.Status           `gorm:"type:varchar(20);not null"`
	RecipientName       string                  `gorm:"type:varchar(255);not null;default:''"`
	RecipientEmail      *string                 `gorm:"type:varchar(255)"`
	RecipientPhone      *string                 `gorm:"type:varchar(32)"`
	RecipientTelegramID *string                 `gorm:"type:varchar(64)"`
	MessageContent      *string                 `gorm:"type:text"`
	ScheduledAt         *time.Time              `gorm:"type:timestamptz"`
	SentAt              *time.Time              `gorm:"type:timestamptz"`
	QueuedAt            *time.Time              `gorm:"type:timestamptz"`
	ErrorMessage        *string                 `gorm:"type:text"`
	TotalDebtAmount     decimal.Decimal         `gorm:"type:numeric(12,2);not null;default:0"`
	IncludedPaymentLink bool                    `gorm:"not null;default:false"`
	PaymentLinkURL      *string                 `gorm:"type:text"`
	AttemptCount        int                     `gorm:"not null;default:0"`
	LastAttemptAt       *time.Time              `gorm:"type:timestamptz"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// NotificationAttemptModel is the persistence model for notification_attempts.
type NotificationAttemptModel struct {
	ID             string  `gorm:"type:uuid;primaryKey"`
	NotificationID string  `gorm:"type:uuid;not null"`
	AttemptNumber  int     `gorm:"not null"`
	Provider       string  `gorm:"type:varchar(32);not null;default:''"`
	StatusCode     *int    `gorm:"type:int"`
	ResponseBody   *string `gorm:"type:text"`
	Error          *string `gorm:"type:text"`
	CreatedAt      time.Time
}

func (NotificationAttemptModel) TableName() string {
	return "notification_attempts"
}

// ContactModel is the persistence model for campaign_contacts.
type ContactModel struct {
	ID             string          `gorm:"type:uuid;primaryKey"`
	CampaignID     string          `gorm:"type:uuid;not null"`
	RowNumber      int             `gorm:"not null"`
	FullName       string          `gorm:"type:varchar(255);not null;default:''"`
	Email          string          `gorm:"type:varchar(255);not null;default:''"`
	Phone          string          `gorm:"type:varchar(32);not null;default:''"`
	TelegramID     string          `gorm:"type:varchar(64);not null;default:''"`
	DocumentNumber string          `gorm:"type:varchar(32);not null;default:''"`
	Amount         decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	IsValid        bool            `gorm:"not null;default:false"`
	Errors         []string        `gorm:"type:jsonb;serializer:json"`
	CreatedAt      time.Time
}

func (ContactModel) TableName() string {
	return "campaign_contacts"
}

// MessageTemplateModel is the persistence model for message_templates.
type MessageTemplateModel struct {
	ID                   string                  `gorm:"type:uuid;primaryKey"`
	Name                 string                  `gorm:"type:varchar(255);not null"`
	TemplateType         domain.NotificationType `gorm:"type:varchar(20);not null"`
	Channel              domain.Channel          `gorm:"type:varchar(20);not null"`
	IsActive             bool                    `gorm:"not null;default:true"`
	Subject              string                  `gorm:"type:varchar(255);not null;default:''"`
	MessageBody          string                  `gorm:"type:text;not null"`
	IncludePaymentButton bool                    `gorm:"not null;default:true"`
	PaymentButtonText    string                  `gorm:"type:varchar(50);not null;default:'Pagar ahora'"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (MessageTemplateModel) TableName() string {
	return "message_templates"
}

func campaignModelFromDomain(c *domain.Campaign) *CampaignModel {
	if c == nil {
		return nil
	}

	return &CampaignModel{
		ID:                  c.ID,
		Kind:                c.Kind,
		Name:                c.Name,
		Status:              c.Status,
		IsProcessing:        c.IsProcessing,
		ExecutionDate:       c.ExecutionDate,
		LastExecutionAt:     c.LastExecutionAt,
		ExecutionCount:      c.ExecutionCount,
		LastExecutionResult: c.LastExecutionResult,
		Channel:             c.Channel,
		NotificationType:    c.NotificationType,
		UsePaymentLink:      c.UsePaymentLink,
		GroupID:             c.GroupID,
		FileName:            c.FileName,
		ValidationStatus:    c.ValidationStatus,
		TotalContacts:       c.TotalContacts,
		ValidContacts:       c.ValidContacts,
		InvalidContacts:     c.InvalidContacts,
		ValidationResult:    c.ValidationResult,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

func campaignModelToDomain(m *CampaignModel) *domain.Campaign {
	if m == nil {
		return nil
	}

	return &domain.Campaign{
		ID:                  m.ID,
		Kind:                m.Kind,
		Name:                m.Name,
		Status:              m.Status,
		IsProcessing:        m.IsProcessing,
		ExecutionDate:       m.ExecutionDate,
		LastExecutionAt:     m.LastExecutionAt,
		ExecutionCount:      m.ExecutionCount,
		LastExecutionResult: m.LastExecutionResult,
		Channel:             m.Channel,
		NotificationType:    m.NotificationType,
		UsePaymentLink:      m.UsePaymentLink,
		GroupID:             m.GroupID,
		FileName:            m.FileName,
		ValidationStatus:    m.ValidationStatus,
		TotalContacts:       m.TotalContacts,
		ValidContacts:       m.ValidContacts,
		InvalidContacts:     m.InvalidContacts,
		ValidationResult:    m.ValidationResult,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:                  m.ID,
		CampaignKind:        m.CampaignKind,
		CampaignID:          m.CampaignID,
		RecipientKind:       m.RecipientKind,
		RecipientID:         m.RecipientID,
		NotificationType:    m.NotificationType,
		Channel:             m.Channel,
		Status:              m.Status,
		RecipientName:       m.RecipientName,
		RecipientEmail:      m.RecipientEmail,
		RecipientPhone:      m.RecipientPhone,
		RecipientTelegramID: m.RecipientTelegramID,
		MessageContent:      m.MessageContent,
		ScheduledAt:         m.ScheduledAt,
		SentAt:              m.SentAt,
		QueuedAt:            m.QueuedAt,
		ErrorMessage:        m.ErrorMessage,
		TotalDebtAmount:     m.TotalDebtAmount,
		IncludedPaymentLink: m.IncludedPaymentLink,
		PaymentLinkURL:      m.PaymentLinkURL,
		AttemptCount:        m.AttemptCount,
		LastAttemptAt:       m.LastAttemptAt,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.NotificationAttempt) *NotificationAttemptModel {
	if a == nil {
		return nil
	}

	return &NotificationAttemptModel{
		ID:             a.ID,
		NotificationID: a.NotificationID,
		AttemptNumber:  a.AttemptNumber,
		Provider:       a.Provider,
		StatusCode:     a.StatusCode,
		ResponseBody:   a.ResponseBody,
		Error:          a.Error,
		CreatedAt:      a.CreatedAt,
	}
}

func attemptModelToDomain(m *NotificationAttemptModel) *domain.NotificationAttempt {
	if m == nil {
		return nil
	}

	return &domain.NotificationAttempt{
		ID:             m.ID,
		NotificationID: m.NotificationID,
		AttemptNumber:  m.AttemptNumber,
		Provider:       m.Provider,
		StatusCode:     m.StatusCode,
		ResponseBody:   m.ResponseBody,
		Error:          m.Error,
		CreatedAt:      m.CreatedAt,
	}
}

func contactModelFromDomain(c *domain.Contact) *ContactModel {
	if c == nil {
		return nil
	}

	return &ContactModel{
		ID:             c.ID,
		CampaignID:     c.CampaignID,
		RowNumber:      c.RowNumber,
		FullName:       c.FullName,
		Email:          c.Email,
		Phone:          c.Phone,
		TelegramID:     c.TelegramID,
		DocumentNumber: c.DocumentNumber,
		Amount:         c.Amount,
		IsValid:        c.IsValid,
		Errors:         c.Errors,
		CreatedAt:      c.CreatedAt,
	}
}

func contactModelToDomain(m *ContactModel) *domain.Contact {
	if m == nil {
		return nil
	}

	return &domain.Contact{
		ID:             m.ID,
		CampaignID:     m.CampaignID,
		RowNumber:      m.RowNumber,
		FullName:       m.FullName,
		Email:          m.Email,
		Phone:          m.Phone,
		TelegramID:     m.TelegramID,
		DocumentNumber: m.DocumentNumber,
		Amount:         m.Amount,
		IsValid:        m.IsValid,
		Errors:         m.Errors,
		CreatedAt:      m.CreatedAt,
	}
}

func templateModelToDomain(m *MessageTemplateModel) *domain.MessageTemplate {
	if m == nil {
		return nil
	}

	return &domain.MessageTemplate{
		ID:                   m.ID,
		Name:                 m.Name,
		TemplateType:         m.TemplateType,
		Channel:              m.Channel,
		IsActive:             m.IsActive,
		Subject:              m.Subject,
		MessageBody:          m.MessageBody,
		IncludePaymentButton: m.IncludePaymentButton,
		PaymentButtonText:    m.PaymentButtonText,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}
