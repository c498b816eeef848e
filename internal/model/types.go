package model

import "time"

// Account cross-references one person's identities across systems.
// InternalUserID is immutable and unique; every other field may be nil until
// populated later.
type Account struct {
	InternalUserID  string     `json:"internalUserId"`
	FirstName       *string    `json:"firstName,omitempty"`
	LastName        *string    `json:"lastName,omitempty"`
	PrimaryEmail    *string    `json:"primaryEmail,omitempty"`
	SecondaryEmail  *string    `json:"secondaryEmail,omitempty"`
	CommunityHandle *string    `json:"communityHandle,omitempty"`
	TrackerAccount  *string    `json:"trackerAccount,omitempty"`
	ManualVerified  string     `json:"manualVerified"`
	Notes           *string    `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
}

// ManualVerified values.
const (
	VerifiedYes = "yes"
	VerifiedNo  = "no"
)

// AccountUpdate carries a partial field set for Update; nil fields are left
// untouched.
type AccountUpdate struct {
	FirstName       *string
	LastName        *string
	PrimaryEmail    *string
	SecondaryEmail  *string
	CommunityHandle *string
	TrackerAccount  *string
	ManualVerified  *string
	Notes           *string
}

// Empty reports whether the update would change nothing.
func (u AccountUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.PrimaryEmail == nil &&
		u.SecondaryEmail == nil && u.CommunityHandle == nil && u.TrackerAccount == nil &&
		u.ManualVerified == nil && u.Notes == nil
}

// AccountField names an identifier-bearing column usable for lookups.
type AccountField string

const (
	FieldInternalUserID  AccountField = "internal_user_id"
	FieldPrimaryEmail    AccountField = "primary_email"
	FieldSecondaryEmail  AccountField = "secondary_email"
	FieldCommunityHandle AccountField = "community_handle"
	FieldTrackerAccount  AccountField = "tracker_account"
)

// TranslateOrder is the fixed probe order used by Translate: the first column
// whose value equals the identifier wins.
var TranslateOrder = []AccountField{
	FieldInternalUserID,
	FieldPrimaryEmail,
	FieldSecondaryEmail,
	FieldCommunityHandle,
	FieldTrackerAccount,
}

// ActionStatus values for the action log.
const (
	ActionSuccess = "success"
	ActionFailed  = "failed"
	ActionSkipped = "skipped"
	ActionDryRun  = "dry_run"
)

// ActionLogEntry is one append-only audit row. Entries are never updated,
// only inserted or purged in bulk by age.
type ActionLogEntry struct {
	ID         int64     `json:"id"`
	ActionType string    `json:"actionType"`
	TargetType string    `json:"targetType"`
	TargetID   string    `json:"targetId"`
	OldValue   *string   `json:"oldValue,omitempty"`
	NewValue   *string   `json:"newValue,omitempty"`
	Status     string    `json:"status"`
	Details    *string   `json:"details,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Confidence ranks an inferred identity value. Used only to arbitrate merges.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	default:
		return "low"
	}
}

// AccountDraft is an unsaved account proposal produced by the populator.
// Confidence applies to the draft overall; TrackerConfidence tracks the
// tracker account separately because merges upgrade that field on strictly
// higher confidence.
type AccountDraft struct {
	InternalUserID    string
	FirstName         *string
	LastName          *string
	PrimaryEmail      *string
	SecondaryEmail    *string
	CommunityHandle   *string
	TrackerAccount    *string
	Confidence        Confidence
	TrackerConfidence Confidence
}

// Account converts the draft into a persistable account.
func (d *AccountDraft) Account() *Account {
	return &Account{
		InternalUserID:  d.InternalUserID,
		FirstName:       d.FirstName,
		LastName:        d.LastName,
		PrimaryEmail:    d.PrimaryEmail,
		SecondaryEmail:  d.SecondaryEmail,
		CommunityHandle: d.CommunityHandle,
		TrackerAccount:  d.TrackerAccount,
		ManualVerified:  VerifiedNo,
	}
}

// IncidentRecord is one deduplicated row of correlated ticket data from the
// incident query. ExternalTickets holds unique ids; duplicates are absorbed at
// parse time. Records are transient and never persisted.
type IncidentRecord struct {
	IncidentNumber    string   `json:"incidentNumber"`
	InternalUserID    string   `json:"internalUserId"`
	WhoAddedReference string   `json:"whoAddedReference,omitempty"`
	ExternalTickets   []string `json:"externalTickets"`
	IncidentType      string   `json:"incidentType,omitempty"`
}

// ValidationStatus tags the aggregate outcome for one incident record.
type ValidationStatus string

const (
	StatusMatched            ValidationStatus = "matched"
	StatusMismatched         ValidationStatus = "mismatched"
	StatusUnknownUser        ValidationStatus = "unknown_user"
	StatusSkippedInvalidUser ValidationStatus = "skipped_invalid_user"
)

// AssigneeCheck compares one external ticket's live assignee against the
// expected one. Actual is nil when the tracker does not know the ticket.
type AssigneeCheck struct {
	TicketID string  `json:"ticketId"`
	Actual   *string `json:"actual,omitempty"`
	Expected string  `json:"expected,omitempty"`
	Matches  bool    `json:"matches"`
	Err      string  `json:"error,omitempty"`
}

// ValidationResult aggregates the checks for one incident record.
type ValidationResult struct {
	IncidentNumber   string           `json:"incidentNumber"`
	InternalUserID   string           `json:"internalUserId"`
	ExpectedAssignee string           `json:"expectedAssignee,omitempty"`
	Status           ValidationStatus `json:"status"`
	Checks           []AssigneeCheck  `json:"checks,omitempty"`
	Err              string           `json:"error,omitempty"`
}
