package composer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DebtSource returns the live debt breakdown of a partner.
type DebtSource interface {
	PartnerDebt(ctx context.Context, partnerID string) (domain.DebtDetail, error)
}

// Settings carries the organization details rendered into messages.
type Settings struct {
	CompanyName  string
	CompanyPhone string
}

// Message is a rendered notification ready for a provider.
type Message struct {
	Text       string
	ButtonText string
	// ButtonURL is empty when the message carries no payment button.
	ButtonURL string
}

type Composer struct {
	templates repository.TemplateRepository
	debts     DebtSource
	settings  Settings
	logger    *zap.Logger
}

func New(templates repository.TemplateRepository, debts DebtSource, settings Settings, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{
		templates: templates,
		debts:     debts,
		settings:  settings,
		logger:    logger,
	}
}

// Compose renders the message of a notification. A cached message_content is reused
// as the text; the button is resolved from the active template either way.
func (c *Composer) Compose(ctx context.Context, n *domain.Notification, campaignName string) (*Message, error) {
	tmpl, err := c.templates.GetActive(ctx, n.NotificationType, n.Channel)
	if err != nil {
		return nil, fmt.Errorf("failed to load message template: %w", err)
	}

	msg := &Message{ButtonText: tmpl.ButtonText()}
	if n.IncludedPaymentLink && n.PaymentLinkURL != nil && *n.PaymentLinkURL != "" {
		if tmpl == nil || tmpl.IncludePaymentButton {
			msg.ButtonURL = *n.PaymentLinkURL
		}
	}

	if n.MessageContent != nil && strings.TrimSpace(*n.MessageContent) != "" {
		msg.Text = *n.MessageContent
		return msg, nil
	}

	debt := c.debtDetail(ctx, n)
	vars := c.Context(n, campaignName, debt)
	if tmpl != nil {
		msg.Text = Render(tmpl.MessageBody, vars)
	} else {
		msg.Text = c.defaultMessage(n, vars, debt)
	}
	return msg, nil
}

func (c *Composer) debtDetail(ctx context.Context, n *domain.Notification) domain.DebtDetail {
	snapshot := domain.DebtDetail{Total: n.TotalDebtAmount}
	if n.RecipientKind != domain.RecipientKindPartner || c.debts == nil {
		return snapshot
	}

	detail, err := c.debts.PartnerDebt(ctx, n.RecipientID)
	if err != nil {
		c.logger.Warn("partner debt lookup failed, using snapshot",
			zap.String("notificationId", n.ID),
			zap.String("partnerId", n.RecipientID),
			zap.Error(err),
		)
		return snapshot
	}
	return detail
}

// Context builds the placeholder values available to templates.
func (c *Composer) Context(n *domain.Notification, campaignName string, debt domain.DebtDetail) map[string]string {
	vars := map[string]string{
		"partner_name":      n.RecipientName,
		"debt_amount":       FormatAmount(n.TotalDebtAmount),
		"payment_link":      "",
		"campaign_name":     campaignName,
		"company_name":      c.settings.CompanyName,
		"contact_phone":     "+51 " + c.settings.CompanyPhone,
		"notification_type": typeLabel(n.NotificationType),
	}
	if n.PaymentLinkURL != nil {
		vars["payment_link"] = *n.PaymentLinkURL
	}

	for _, category := range domain.DebtCategories {
		item := debt.Item(category)
		key := string(category) + "_debt"
		if item.Amount.IsPositive() {
			vars[key] = FormatAmount(item.Amount)
			vars[key+"_count"] = strconv.Itoa(item.Count)
		} else {
			vars[key] = ""
			vars[key+"_count"] = "0"
		}
	}
	return vars
}

var categoryLines = map[domain.DebtCategory]string{
	domain.DebtCategoryCredit:         "💳 Cuotas de crédito: %s (%s cuota(s))",
	domain.DebtCategoryContribution:   "📊 Aportaciones: %s (%s aportación(es))",
	domain.DebtCategorySocialSecurity: "🏥 Seguridad Social: %s (%s obligación(es))",
	domain.DebtCategoryPenalty:        "⚠️ Penalidades: %s (%s penalidad(es))",
}

func (c *Composer) defaultMessage(n *domain.Notification, vars map[string]string, debt domain.DebtDetail) string {
	lines := []string{
		fmt.Sprintf("Hola %s,", vars["partner_name"]),
		"",
		fmt.Sprintf("Le recordamos que tiene obligaciones pendientes por un total de %s.", vars["debt_amount"]),
		"",
		"📋 *Detalle de sus obligaciones:*",
	}

	for _, category := range domain.DebtCategories {
		if !debt.Item(category).Amount.IsPositive() {
			continue
		}
		key := string(category) + "_debt"
		lines = append(lines, fmt.Sprintf(categoryLines[category], vars[key], vars[key+"_count"]))
	}
	lines = append(lines, "")

	if n.IncludedPaymentLink && vars["payment_link"] != "" {
		lines = append(lines,
			"💰 Puede realizar su pago de forma rápida y segura:",
			"👉 "+vars["payment_link"],
			"",
		)
	}

	lines = append(lines,
		"Para más información, contáctenos:",
		"📞 "+vars["contact_phone"],
		"",
		"Gracias por su atención.",
		fmt.Sprintf("Atentamente, *%s*", vars["company_name"]),
	)
	return strings.Join(lines, "\n")
}

// Render replaces every literal {key} token present in vars. Unknown tokens are left as is.
func Render(body string, vars map[string]string) string {
	if len(vars) == 0 {
		return body
	}
	pairs := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		pairs = append(pairs, "{"+key+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(body)
}

// FormatAmount renders soles with thousands separators, e.g. "S/ 1,234.56".
func FormatAmount(amount decimal.Decimal) string {
	fixed := amount.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	return fmt.Sprintf("S/ %s%s.%s", sign, b.String(), frac)
}

func typeLabel(t domain.NotificationType) string {
	switch t {
	case domain.NotificationTypeScheduled:
		return "Scheduled"
	}
	return string(t)
}
