package domain

import "github.com/shopspring/decimal"

// Partner is a member of the organization as exposed by the back-office system.
type Partner struct {
	ID             string
	FullName       string
	DocumentNumber string
	Email          string
	Phone          string
	TelegramID     string
}

func (p *Partner) RecipientContact() RecipientContact {
	return RecipientContact{
		Email:      p.Email,
		Phone:      p.Phone,
		TelegramID: p.TelegramID,
	}
}

// DebtCategory is one kind of outstanding obligation.
type DebtCategory string

const (
	DebtCategoryCredit         DebtCategory = "credit"
	DebtCategoryContribution   DebtCategory = "contribution"
	DebtCategorySocialSecurity DebtCategory = "social_security"
	DebtCategoryPenalty        DebtCategory = "penalty"
)

// DebtCategories lists categories in display order.
var DebtCategories = []DebtCategory{
	DebtCategoryCredit,
	DebtCategoryContribution,
	DebtCategorySocialSecurity,
	DebtCategoryPenalty,
}

// DebtItem is the overdue amount and item count of one category.
type DebtItem struct {
	Amount decimal.Decimal
	Count  int
}

// DebtDetail is the overdue debt breakdown of a recipient.
type DebtDetail struct {
	Total      decimal.Decimal
	Categories map[DebtCategory]DebtItem
}

func (d DebtDetail) HasDebt() bool {
	return d.Total.IsPositive()
}

func (d DebtDetail) Item(category DebtCategory) DebtItem {
	if d.Categories == nil {
		return DebtItem{}
	}
	return d.Categories[category]
}
