package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contact is one row of a contact file uploaded for a file campaign.
type Contact struct {
	ID             string
	CampaignID     string
	RowNumber      int
	FullName       string
	Email          string
	Phone          string
	TelegramID     string
	DocumentNumber string
	Amount         decimal.Decimal
	IsValid        bool
	Errors         []string
	CreatedAt      time.Time
}

func (c *Contact) RecipientContact() RecipientContact {
	return RecipientContact{
		Email:      c.Email,
		Phone:      c.Phone,
		TelegramID: c.TelegramID,
	}
}
