package domain

import (
	"fmt"
	"strings"
	"time"
)

// CampaignKind discriminates the two campaign shapes.
type CampaignKind string

const (
	CampaignKindGroup CampaignKind = "GROUP"
	CampaignKindFile  CampaignKind = "FILE"
)

func (k CampaignKind) String() string { return string(k) }

func (k CampaignKind) IsValid() bool {
	switch k {
	case CampaignKindGroup, CampaignKindFile:
		return true
	}
	return false
}

func ParseCampaignKindFromString(s string) (CampaignKind, error) {
	k := CampaignKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: invalid campaign kind %q", ErrValidation, s)
	}
	return k, nil
}

// CampaignStatus represents the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignStatusDraft      CampaignStatus = "DRAFT"
	CampaignStatusScheduled  CampaignStatus = "SCHEDULED"
	CampaignStatusProcessing CampaignStatus = "PROCESSING"
	CampaignStatusSending    CampaignStatus = "SENDING"
	CampaignStatusActive     CampaignStatus = "ACTIVE"
	CampaignStatusPaused     CampaignStatus = "PAUSED"
	CampaignStatusCompleted  CampaignStatus = "COMPLETED"
	CampaignStatusFailed     CampaignStatus = "FAILED"
	CampaignStatusCancelled  CampaignStatus = "CANCELLED"
)

func (s CampaignStatus) String() string { return string(s) }

func (s CampaignStatus) IsValid() bool {
	_, ok := campaignTransitions[s]
	return ok
}

func ParseCampaignStatusFromString(s string) (CampaignStatus, error) {
	st := CampaignStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid campaign status %q", ErrValidation, s)
	}
	return st, nil
}

// campaignTransitions lists the statuses an operator may move a campaign to.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusDraft:      {CampaignStatusScheduled, CampaignStatusActive, CampaignStatusCancelled},
	CampaignStatusScheduled:  {CampaignStatusProcessing, CampaignStatusCancelled},
	CampaignStatusProcessing: {CampaignStatusSending, CampaignStatusActive, CampaignStatusFailed},
	CampaignStatusSending:    {CampaignStatusCompleted, CampaignStatusFailed, CampaignStatusPaused},
	CampaignStatusActive:     {CampaignStatusSending, CampaignStatusCompleted, CampaignStatusPaused, CampaignStatusCancelled},
	CampaignStatusPaused:     {CampaignStatusActive, CampaignStatusCancelled},
	CampaignStatusCompleted:  {},
	CampaignStatusFailed:     {CampaignStatusDraft, CampaignStatusScheduled},
	CampaignStatusCancelled:  {},
}

// NextStatuses returns the statuses reachable from s.
func (s CampaignStatus) NextStatuses() []CampaignStatus {
	next := campaignTransitions[s]
	out := make([]CampaignStatus, len(next))
	copy(out, next)
	return out
}

func (s CampaignStatus) CanTransitionTo(to CampaignStatus) bool {
	for _, candidate := range campaignTransitions[s] {
		if candidate == to {
			return true
		}
	}
	return false
}

func (s CampaignStatus) IsTerminal() bool {
	return len(campaignTransitions[s]) == 0 && s.IsValid()
}

// IsExecutable reports whether a campaign in this status may start an execution.
func (s CampaignStatus) IsExecutable() bool {
	return s == CampaignStatusActive || s == CampaignStatusScheduled
}

// CanSend reports whether pending notifications of a campaign in this status may be delivered.
func (s CampaignStatus) CanSend() bool {
	return s == CampaignStatusActive || s == CampaignStatusSending
}

// ValidationStatus tracks the validation state of an uploaded contact file.
type ValidationStatus string

const (
	ValidationStatusPending    ValidationStatus = "PENDING"
	ValidationStatusProcessing ValidationStatus = "PROCESSING"
	ValidationStatusValidated  ValidationStatus = "VALIDATED"
	ValidationStatusPartial    ValidationStatus = "PARTIAL"
	ValidationStatusFailed     ValidationStatus = "FAILED"
)

func (s ValidationStatus) String() string { return string(s) }

// RowIssue lists the problems found on one row of a contact file.
type RowIssue struct {
	Row      int      `json:"row"`
	Messages []string `json:"messages"`
}

// ValidationReport is the outcome of validating an uploaded contact file.
type ValidationReport struct {
	TotalRows   int        `json:"total_rows"`
	ValidRows   int        `json:"valid_rows"`
	InvalidRows int        `json:"invalid_rows"`
	Issues      []RowIssue `json:"issues,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// CampaignRef identifies a campaign of either kind.
type CampaignRef struct {
	Kind CampaignKind
	ID   string
}

func (r CampaignRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// Campaign is an outreach unit targeting a partner group or an uploaded contact file.
type Campaign struct {
	ID                  string
	Kind                CampaignKind
	Name                string
	Status              CampaignStatus
	IsProcessing        bool
	ExecutionDate       *time.Time
	LastExecutionAt     *time.Time
	ExecutionCount      int
	LastExecutionResult string
	Channel             Channel
	NotificationType    NotificationType
	UsePaymentLink      bool

	// Group campaigns.
	GroupID *string

	// File campaigns.
	FileName         string
	ValidationStatus ValidationStatus
	TotalContacts    int
	ValidContacts    int
	InvalidContacts  int
	ValidationResult *ValidationReport

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *Campaign) Ref() CampaignRef {
	return CampaignRef{Kind: c.Kind, ID: c.ID}
}

func (c *Campaign) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !c.Kind.IsValid() {
		return fmt.Errorf("%w: invalid campaign kind %q", ErrValidation, c.Kind)
	}
	if !c.Status.IsValid() {
		return fmt.Errorf("%w: invalid campaign status %q", ErrValidation, c.Status)
	}
	if !c.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, c.Channel)
	}
	if c.Kind == CampaignKindGroup && (c.GroupID == nil || strings.TrimSpace(*c.GroupID) == "") {
		return fmt.Errorf("%w: group campaigns require a group", ErrValidation)
	}
	return nil
}

// NotificationSummary aggregates notification counts of a campaign.
type NotificationSummary struct {
	Total     int
	Pending   int
	Sent      int
	Failed    int
	Cancelled int
}

// ShouldBeCompleted reports whether nothing is pending and at least one notification was sent.
func (s NotificationSummary) ShouldBeCompleted() bool {
	return s.Total > 0 && s.Pending == 0 && s.Sent > 0
}

// ProgressPercentage returns the share of processed notifications, 100 for empty campaigns.
func (s NotificationSummary) ProgressPercentage() float64 {
	if s.Total == 0 {
		return 100
	}
	processed := s.Sent + s.Failed + s.Cancelled
	return float64(processed) / float64(s.Total) * 100
}

// StatusAfterExecution derives the campaign status once a successful execution finishes.
func StatusAfterExecution(summary NotificationSummary, previous CampaignStatus) CampaignStatus {
	if summary.Total == 0 {
		if previous == CampaignStatusScheduled {
			return CampaignStatusScheduled
		}
		return CampaignStatusActive
	}
	if summary.ShouldBeCompleted() {
		return CampaignStatusCompleted
	}
	return CampaignStatusSending
}

// CreationSummary is the outcome of a notification creation pass.
type CreationSummary struct {
	Created         int
	Updated         int
	Skipped         int
	TotalRecipients int
	NotificationIDs []string
	Message         string
}

// ExecutionResult is returned to callers of a campaign execution.
type ExecutionResult struct {
	Success bool
	Message string
	Error   string
	Summary *CreationSummary
}
