package backoffice

import (
	"bytes"
	"strings"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// flexID accepts both numeric and string identifiers.
type flexID string

func (id *flexID) UnmarshalJSON(data []byte) error {
	*id = flexID(strings.Trim(string(bytes.TrimSpace(data)), `"`))
	return nil
}

type partnerPayload struct {
	ID             flexID `json:"id"`
	FullName       string `json:"full_name"`
	DocumentNumber string `json:"document_number"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	TelegramID     string `json:"telegram_id"`
}

type partnerPage struct {
	Results []partnerPayload `json:"results"`
}

func (p partnerPage) partners() []domain.Partner {
	out := make([]domain.Partner, 0, len(p.Results))
	for _, r := range p.Results {
		out = append(out, domain.Partner{
			ID:             string(r.ID),
			FullName:       r.FullName,
			DocumentNumber: r.DocumentNumber,
			Email:          r.Email,
			Phone:          r.Phone,
			TelegramID:     r.TelegramID,
		})
	}
	return out
}

type debtPayload struct {
	TotalDebt               decimal.Decimal `json:"total_debt"`
	CreditDebt              decimal.Decimal `json:"credit_debt"`
	CreditDebtCount         int             `json:"credit_debt_count"`
	ContributionDebt        decimal.Decimal `json:"contribution_debt"`
	ContributionDebtCount   int             `json:"contribution_debt_count"`
	SocialSecurityDebt      decimal.Decimal `json:"social_security_debt"`
	SocialSecurityDebtCount int             `json:"social_security_debt_count"`
	PenaltyDebt             decimal.Decimal `json:"penalty_debt"`
	PenaltyDebtCount        int             `json:"penalty_debt_count"`
}

func (p debtPayload) toDomain() domain.DebtDetail {
	return domain.DebtDetail{
		Total: p.TotalDebt,
		Categories: map[domain.DebtCategory]domain.DebtItem{
			domain.DebtCategoryCredit:         {Amount: p.CreditDebt, Count: p.CreditDebtCount},
			domain.DebtCategoryContribution:   {Amount: p.ContributionDebt, Count: p.ContributionDebtCount},
			domain.DebtCategorySocialSecurity: {Amount: p.SocialSecurityDebt, Count: p.SocialSecurityDebtCount},
			domain.DebtCategoryPenalty:        {Amount: p.PenaltyDebt, Count: p.PenaltyDebtCount},
		},
	}
}

type magicLinkRequest struct {
	PartnerID       string `json:"partner_id"`
	HoursToExpire   int    `json:"hours_to_expire"`
	IncludeUpcoming bool   `json:"include_upcoming"`
	Source          string `json:"source"`
}

type magicLinkResponse struct {
	PublicPath string `json:"public_path"`
}
