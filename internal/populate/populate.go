// Package populate infers missing account fields from an internal user id or
// from an authoritative tracker lookup, tagging every draft with a confidence
// level so merges can prefer better data.
package populate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/atuld8/opskit/internal/config"
	"github.com/atuld8/opskit/internal/model"
	"github.com/atuld8/opskit/internal/tracker"
)

// Policy decides what the validator does with an unknown internal user id.
type Policy string

const (
	// PolicyAuto silently adds a minimal record for later manual enrichment.
	PolicyAuto Policy = "auto"
	// PolicyInteractive prompts the operator for each field.
	PolicyInteractive Policy = "interactive"
	// PolicySkip logs a warning and adds nothing.
	PolicySkip Policy = "skip"
	// PolicyFail aborts the calling operation.
	PolicyFail Policy = "fail"
)

// ParsePolicy validates a policy string from flags or config.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyAuto, PolicyInteractive, PolicySkip, PolicyFail:
		return Policy(s), nil
	}
	return "", fmt.Errorf("%w: unknown populate policy %q", model.ErrValidation, s)
}

// UserSource is the tracker lookup the populator depends on.
type UserSource interface {
	GetUser(ctx context.Context, username string) (*tracker.User, error)
}

// Populator derives account drafts. Prompting goes through the injected
// reader/writer so tests can script the terminal.
type Populator struct {
	users           UserSource
	primaryDomain   string
	secondaryDomain string
	in              io.Reader
	out             io.Writer
	log             zerolog.Logger
}

// New builds a Populator over cfg's domain settings.
func New(cfg *config.Config, users UserSource, in io.Reader, out io.Writer, log zerolog.Logger) *Populator {
	return &Populator{
		users:           users,
		primaryDomain:   cfg.PrimaryEmailDomain,
		secondaryDomain: cfg.SecondaryEmailDomain,
		in:              in,
		out:             out,
		log:             log,
	}
}

// InferFromID derives plausible identifiers from the internal user id alone
// by the underscore-to-dot convention. The tracker account is deliberately
// left unset: there is no reliable transformation for it.
func (p *Populator) InferFromID(internalUserID string) *model.AccountDraft {
	handle := strings.ReplaceAll(internalUserID, "_", ".")
	primary := handle + "@" + p.primaryDomain
	secondary := handle + "@" + p.secondaryDomain
	return &model.AccountDraft{
		InternalUserID:  internalUserID,
		PrimaryEmail:    &primary,
		SecondaryEmail:  &secondary,
		CommunityHandle: &handle,
		Confidence:      model.ConfidenceLow,
	}
}

// FetchFromTracker builds a draft from the authoritative tracker user record.
// The tracker account itself is high confidence; everything else derived from
// the record stays at the draft's overall medium confidence.
func (p *Populator) FetchFromTracker(ctx context.Context, trackerUsername string) (*model.AccountDraft, error) {
	u, err := p.users.GetUser(ctx, trackerUsername)
	if err != nil {
		return nil, err
	}
	d := &model.AccountDraft{
		TrackerAccount:    &u.Name,
		Confidence:        model.ConfidenceMedium,
		TrackerConfidence: model.ConfidenceHigh,
	}
	if u.Email != "" {
		email := u.Email
		d.PrimaryEmail = &email
	}
	if first, last, ok := splitDisplayName(u.DisplayName); ok {
		d.FirstName = &first
		d.LastName = &last
	}
	return d, nil
}

// Merge combines drafts: the first non-nil value wins for every field except
// the tracker account, which is overwritten whenever a later draft carries
// strictly higher confidence for it. The merged overall confidence is the
// highest seen among contributing drafts.
func (p *Populator) Merge(drafts ...*model.AccountDraft) *model.AccountDraft {
	out := &model.AccountDraft{}
	keep := func(dst **string, src *string) {
		if *dst == nil && src != nil {
			*dst = src
		}
	}
	for _, d := range drafts {
		if d == nil {
			continue
		}
		if out.InternalUserID == "" {
			out.InternalUserID = d.InternalUserID
		}
		keep(&out.FirstName, d.FirstName)
		keep(&out.LastName, d.LastName)
		keep(&out.PrimaryEmail, d.PrimaryEmail)
		keep(&out.SecondaryEmail, d.SecondaryEmail)
		keep(&out.CommunityHandle, d.CommunityHandle)
		if d.TrackerAccount != nil && (out.TrackerAccount == nil || d.TrackerConfidence > out.TrackerConfidence) {
			out.TrackerAccount = d.TrackerAccount
			out.TrackerConfidence = d.TrackerConfidence
		}
		if d.Confidence > out.Confidence {
			out.Confidence = d.Confidence
		}
	}
	return out
}

// FromAccount turns a stored account into a draft so it can participate in a
// merge. Stored values outrank inference; a manually verified record also
// outranks a fresh tracker lookup.
func FromAccount(a *model.Account) *model.AccountDraft {
	conf := model.ConfidenceMedium
	if a.ManualVerified == model.VerifiedYes {
		conf = model.ConfidenceHigh
	}
	d := &model.AccountDraft{
		InternalUserID:  a.InternalUserID,
		FirstName:       a.FirstName,
		LastName:        a.LastName,
		PrimaryEmail:    a.PrimaryEmail,
		SecondaryEmail:  a.SecondaryEmail,
		CommunityHandle: a.CommunityHandle,
		Confidence:      conf,
	}
	if a.TrackerAccount != nil {
		d.TrackerAccount = a.TrackerAccount
		d.TrackerConfidence = conf
	}
	return d
}

// Enrich builds the best-known draft for an existing account: stored values
// first, then an authoritative tracker lookup, then id-based inference.
// trackerUsername overrides the stored tracker account for the lookup; a
// failed lookup degrades to a warning and the remaining sources.
func (p *Populator) Enrich(ctx context.Context, a *model.Account, trackerUsername string) *model.AccountDraft {
	current := FromAccount(a)

	if trackerUsername == "" && a.TrackerAccount != nil {
		trackerUsername = *a.TrackerAccount
	}
	var fromTracker *model.AccountDraft
	if trackerUsername != "" && p.users != nil {
		d, err := p.FetchFromTracker(ctx, trackerUsername)
		if err != nil {
			p.log.Warn().Err(err).Str("user", trackerUsername).Msg("tracker lookup failed, enriching without it")
		} else {
			fromTracker = d
		}
	}
	return p.Merge(current, fromTracker, p.InferFromID(a.InternalUserID))
}

// UpdateFrom returns the partial update that brings existing in line with the
// draft. Unchanged fields stay nil so the store touches nothing else.
func UpdateFrom(existing *model.Account, d *model.AccountDraft) model.AccountUpdate {
	var upd model.AccountUpdate
	diff := func(dst **string, cur, next *string) {
		if next != nil && (cur == nil || *cur != *next) {
			*dst = next
		}
	}
	diff(&upd.FirstName, existing.FirstName, d.FirstName)
	diff(&upd.LastName, existing.LastName, d.LastName)
	diff(&upd.PrimaryEmail, existing.PrimaryEmail, d.PrimaryEmail)
	diff(&upd.SecondaryEmail, existing.SecondaryEmail, d.SecondaryEmail)
	diff(&upd.CommunityHandle, existing.CommunityHandle, d.CommunityHandle)
	diff(&upd.TrackerAccount, existing.TrackerAccount, d.TrackerAccount)
	return upd
}

// InteractivePopulate prompts the operator to confirm or override each field
// of the draft. Operator confirmation is authoritative, so the result is high
// confidence even when nothing changed.
func (p *Populator) InteractivePopulate(internalUserID string, draft *model.AccountDraft) (*model.AccountDraft, error) {
	if draft == nil {
		draft = &model.AccountDraft{InternalUserID: internalUserID}
	}
	out := *draft
	out.InternalUserID = internalUserID

	r := bufio.NewReader(p.in)
	fmt.Fprintf(p.out, "Populating account %s (empty input keeps the shown value)\n", internalUserID)

	fields := []struct {
		label string
		dst   **string
	}{
		{"first name", &out.FirstName},
		{"last name", &out.LastName},
		{"primary email", &out.PrimaryEmail},
		{"secondary email", &out.SecondaryEmail},
		{"community handle", &out.CommunityHandle},
		{"tracker account", &out.TrackerAccount},
	}
	for _, f := range fields {
		current := ""
		if *f.dst != nil {
			current = **f.dst
		}
		fmt.Fprintf(p.out, "%s [%s]: ", f.label, current)
		line, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read field %s: %w", f.label, err)
		}
		line = strings.TrimSpace(line)
		if line != "" {
			v := line
			*f.dst = &v
		}
		if err == io.EOF {
			break
		}
	}

	out.Confidence = model.ConfidenceHigh
	out.TrackerConfidence = model.ConfidenceHigh
	return &out, nil
}

func splitDisplayName(name string) (first, last string, ok bool) {
	parts := strings.Fields(name)
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], strings.Join(parts[1:], " "), true
}
