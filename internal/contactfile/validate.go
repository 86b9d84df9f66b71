package contactfile

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// FirstDataRow is the file row number of the first contact; the header is row 1.
const FirstDataRow = 2

// Result is the outcome of validating parsed rows.
type Result struct {
	Contacts []domain.Contact
	Report   domain.ValidationReport
	Status   domain.ValidationStatus
}

// Validate checks every row and returns the contacts, valid or not. Missing names and
// missing or non-positive amounts invalidate a row; email, phone and Telegram problems
// are recorded as warnings only.
func Validate(rows []Row) Result {
	res := Result{Contacts: make([]domain.Contact, 0, len(rows))}
	res.Report.TotalRows = len(rows)

	for i, row := range rows {
		rowNumber := i + FirstDataRow
		contact := validateRow(row, rowNumber)
		res.Contacts = append(res.Contacts, contact)

		if contact.IsValid {
			res.Report.ValidRows++
			continue
		}
		res.Report.InvalidRows++
		res.Report.Issues = append(res.Report.Issues, domain.RowIssue{Row: rowNumber, Messages: contact.Errors})
	}

	switch {
	case res.Report.ValidRows == 0:
		res.Status = domain.ValidationStatusFailed
	case res.Report.InvalidRows > 0:
		res.Status = domain.ValidationStatusPartial
	default:
		res.Status = domain.ValidationStatusValidated
	}
	return res
}

func validateRow(row Row, rowNumber int) domain.Contact {
	c := domain.Contact{
		RowNumber:      rowNumber,
		FullName:       row["full_name"],
		Email:          row["email"],
		Phone:          row["phone"],
		TelegramID:     row["telegram_id"],
		DocumentNumber: row["document_number"],
		Amount:         decimal.Zero,
		IsValid:        true,
	}
	fail := func(msg string) {
		c.Errors = append(c.Errors, msg)
		c.IsValid = false
	}
	warn := func(msg string) {
		c.Errors = append(c.Errors, msg)
	}

	if c.FullName == "" {
		fail("Missing required field: full_name")
	}

	if raw, ok := row["amount"]; !ok {
		fail("Missing required field: amount")
	} else if amount, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "")); err != nil {
		fail(fmt.Sprintf("Invalid amount format: %s", raw))
	} else if !amount.IsPositive() {
		fail(fmt.Sprintf("Invalid amount: %s (must be greater than 0)", raw))
	} else {
		c.Amount = amount
	}

	if c.Email != "" && !strings.Contains(c.Email, "@") {
		warn(fmt.Sprintf("Invalid email format: %s", c.Email))
	}
	if c.Phone != "" && countDigits(c.Phone) < 9 {
		warn(fmt.Sprintf("Invalid phone format: %s (too short)", c.Phone))
	}
	if c.TelegramID != "" && !strings.HasPrefix(c.TelegramID, "@") && countDigits(c.TelegramID) != len(c.TelegramID) {
		warn(fmt.Sprintf("Invalid telegram_id format: %s (must start with @ for username or be numeric for ID)", c.TelegramID))
	}
	return c
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
