// Package validate joins incident records against the identity store and the
// external tracker to detect assignment mismatches.
package validate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/atuld8/opskit/internal/model"
	"github.com/atuld8/opskit/internal/populate"
)

// Accounts is the slice of the identity store the validator needs.
type Accounts interface {
	Translate(ctx context.Context, identifier string, target model.AccountField) (string, error)
	Create(ctx context.Context, a *model.Account) (*model.Account, error)
}

// AssigneeSource batch-fetches live assignees from the external tracker.
type AssigneeSource interface {
	GetAssignees(ctx context.Context, ticketIDs []string) map[string]*string
}

// placeholderIDs are internal user ids that mark "nobody"; records carrying
// one are skipped without touching the store or the tracker.
var placeholderIDs = map[string]bool{"": true, "-": true, "N/A": true}

// Validator orchestrates the end-to-end assignee consistency check.
type Validator struct {
	accounts  Accounts
	assignees AssigneeSource
	populator *populate.Populator
	policy    populate.Policy
	log       zerolog.Logger
}

// New builds a Validator. The populator may be nil when policy is skip or fail.
func New(accounts Accounts, assignees AssigneeSource, populator *populate.Populator, policy populate.Policy, log zerolog.Logger) *Validator {
	return &Validator{
		accounts:  accounts,
		assignees: assignees,
		populator: populator,
		policy:    policy,
		log:       log,
	}
}

// Validate checks every record and returns results in input order. Per-record
// failures degrade to warnings and an unknown/error status; only the fail
// populate policy aborts the run.
func (v *Validator) Validate(ctx context.Context, records []model.IncidentRecord) ([]model.ValidationResult, error) {
	// One batch fetch for the union of external tickets across all records.
	ticketSet := make(map[string]bool)
	var tickets []string
	for _, rec := range records {
		if placeholderIDs[rec.InternalUserID] {
			continue
		}
		for _, id := range rec.ExternalTickets {
			if !ticketSet[id] {
				ticketSet[id] = true
				tickets = append(tickets, id)
			}
		}
	}
	actuals := v.assignees.GetAssignees(ctx, tickets)

	// First resolution attempt per user id is authoritative for the run.
	resolved := make(map[string]string)

	results := make([]model.ValidationResult, 0, len(records))
	for _, rec := range records {
		res := model.ValidationResult{
			IncidentNumber: rec.IncidentNumber,
			InternalUserID: rec.InternalUserID,
		}

		if placeholderIDs[rec.InternalUserID] {
			res.Status = model.StatusSkippedInvalidUser
			results = append(results, res)
			continue
		}

		expected, err := v.resolveExpected(ctx, rec.InternalUserID, resolved)
		if err != nil {
			return results, err
		}
		res.ExpectedAssignee = expected

		allMatch := true
		for _, ticketID := range rec.ExternalTickets {
			check := model.AssigneeCheck{
				TicketID: ticketID,
				Actual:   actuals[ticketID],
				Expected: expected,
			}
			check.Matches = expected != "" && check.Actual != nil && *check.Actual != "" &&
				strings.EqualFold(*check.Actual, expected)
			if !check.Matches {
				allMatch = false
			}
			res.Checks = append(res.Checks, check)
		}

		switch {
		case expected == "":
			res.Status = model.StatusUnknownUser
		case allMatch:
			res.Status = model.StatusMatched
		default:
			res.Status = model.StatusMismatched
		}
		results = append(results, res)
	}
	return results, nil
}

// resolveExpected translates the internal user id to a tracker account,
// invoking the populate policy on a miss. The outcome, success or failure, is
// cached so one run never repeats a populate attempt for the same id.
func (v *Validator) resolveExpected(ctx context.Context, internalUserID string, cache map[string]string) (string, error) {
	if expected, ok := cache[internalUserID]; ok {
		return expected, nil
	}

	expected, err := v.accounts.Translate(ctx, internalUserID, model.FieldTrackerAccount)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		v.log.Warn().Err(err).Str("user", internalUserID).Msg("identity lookup failed")
		cache[internalUserID] = ""
		return "", nil
	}
	if expected != "" {
		cache[internalUserID] = expected
		return expected, nil
	}

	expected, err = v.populateUnknown(ctx, internalUserID)
	if err != nil {
		return "", err
	}
	cache[internalUserID] = expected
	return expected, nil
}

func (v *Validator) populateUnknown(ctx context.Context, internalUserID string) (string, error) {
	switch v.policy {
	case populate.PolicyFail:
		return "", fmt.Errorf("%w: unknown user %s and populate policy is fail", model.ErrValidation, internalUserID)

	case populate.PolicySkip:
		v.log.Warn().Str("user", internalUserID).Msg("unknown user, populate policy is skip")
		return "", nil

	case populate.PolicyAuto:
		// Minimal record with only the id; enriched manually later.
		if _, err := v.accounts.Create(ctx, &model.Account{InternalUserID: internalUserID}); err != nil && !errors.Is(err, model.ErrDuplicate) {
			v.log.Warn().Err(err).Str("user", internalUserID).Msg("auto-populate add failed")
		}
		return "", nil

	case populate.PolicyInteractive:
		if v.populator == nil {
			return "", fmt.Errorf("%w: interactive populate requires a populator", model.ErrValidation)
		}
		draft, err := v.populator.InteractivePopulate(internalUserID, v.populator.InferFromID(internalUserID))
		if err != nil {
			v.log.Warn().Err(err).Str("user", internalUserID).Msg("interactive populate failed")
			return "", nil
		}
		if _, err := v.accounts.Create(ctx, draft.Account()); err != nil && !errors.Is(err, model.ErrDuplicate) {
			v.log.Warn().Err(err).Str("user", internalUserID).Msg("populate add failed")
		}
		if draft.TrackerAccount != nil {
			return *draft.TrackerAccount, nil
		}
		return "", nil
	}
	return "", nil
}
