// Package csvio imports and exports the account table as CSV.
package csvio

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/atuld8/opskit/internal/model"
	"github.com/atuld8/opskit/internal/store"
)

// ConflictMode decides what happens when an imported row's internal user id
// already exists.
type ConflictMode string

const (
	ConflictSkip   ConflictMode = "skip"
	ConflictUpdate ConflictMode = "update"
	ConflictFail   ConflictMode = "fail"
)

// Options controls an import run.
type Options struct {
	ConflictMode ConflictMode
	// AllowEmptyOverwrite writes empty cells over existing values instead of
	// leaving them untouched.
	AllowEmptyOverwrite bool
}

// Stats summarizes an import run.
type Stats struct {
	Added   int
	Updated int
	Skipped int
	Failed  int
}

var exportHeader = []string{
	"internal_user_id", "first_name", "last_name", "primary_email", "secondary_email",
	"community_handle", "tracker_account", "manual_verified", "notes",
}

// ExportAccounts writes all accounts with a fixed header row.
func ExportAccounts(w io.Writer, accounts []*model.Account) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, a := range accounts {
		row := []string{
			a.InternalUserID,
			deref(a.FirstName), deref(a.LastName),
			deref(a.PrimaryEmail), deref(a.SecondaryEmail),
			deref(a.CommunityHandle), deref(a.TrackerAccount),
			a.ManualVerified, deref(a.Notes),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ImportAccounts reads CSV rows into the store. The header must contain an
// internal_user_id column; unknown columns are ignored. Partial rows update
// only non-empty fields unless AllowEmptyOverwrite is set.
func ImportAccounts(ctx context.Context, accounts store.Accounts, r io.Reader, opts Options, log zerolog.Logger) (Stats, error) {
	var stats Stats

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return stats, fmt.Errorf("read CSV header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	idCol, ok := cols["internal_user_id"]
	if !ok {
		return stats, fmt.Errorf("%w: CSV is missing the internal_user_id column", model.ErrValidation)
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read CSV row: %w", err)
		}
		if idCol >= len(row) || strings.TrimSpace(row[idCol]) == "" {
			stats.Failed++
			log.Warn().Msg("import row without internal_user_id")
			continue
		}
		id := strings.TrimSpace(row[idCol])

		cell := func(name string) (string, bool) {
			i, ok := cols[name]
			if !ok || i >= len(row) {
				return "", false
			}
			return strings.TrimSpace(row[i]), true
		}

		_, err = accounts.GetBy(ctx, model.FieldInternalUserID, id)
		exists := err == nil
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			stats.Failed++
			log.Warn().Err(err).Str("user", id).Msg("import lookup failed")
			continue
		}

		if exists {
			switch opts.ConflictMode {
			case ConflictSkip:
				stats.Skipped++
				continue
			case ConflictFail:
				return stats, fmt.Errorf("%w: %s", model.ErrDuplicate, id)
			case ConflictUpdate:
				upd := buildUpdate(cell, opts.AllowEmptyOverwrite)
				found, err := accounts.Update(ctx, id, upd)
				if err != nil {
					stats.Failed++
					log.Warn().Err(err).Str("user", id).Msg("import update failed")
					continue
				}
				if found {
					stats.Updated++
				} else {
					stats.Skipped++
				}
				continue
			default:
				return stats, fmt.Errorf("%w: unknown conflict mode %q", model.ErrValidation, opts.ConflictMode)
			}
		}

		a := &model.Account{InternalUserID: id}
		setField := func(name string, dst **string) {
			if v, ok := cell(name); ok && v != "" {
				*dst = &v
			}
		}
		setField("first_name", &a.FirstName)
		setField("last_name", &a.LastName)
		setField("primary_email", &a.PrimaryEmail)
		setField("secondary_email", &a.SecondaryEmail)
		setField("community_handle", &a.CommunityHandle)
		setField("tracker_account", &a.TrackerAccount)
		if v, ok := cell("manual_verified"); ok && v != "" {
			a.ManualVerified = v
		}
		setField("notes", &a.Notes)

		if _, err := accounts.Create(ctx, a); err != nil {
			stats.Failed++
			log.Warn().Err(err).Str("user", id).Msg("import add failed")
			continue
		}
		stats.Added++
	}
	return stats, nil
}

func buildUpdate(cell func(string) (string, bool), allowEmpty bool) model.AccountUpdate {
	var upd model.AccountUpdate
	set := func(name string, dst **string) {
		v, ok := cell(name)
		if !ok {
			return
		}
		if v == "" && !allowEmpty {
			return
		}
		*dst = &v
	}
	set("first_name", &upd.FirstName)
	set("last_name", &upd.LastName)
	set("primary_email", &upd.PrimaryEmail)
	set("secondary_email", &upd.SecondaryEmail)
	set("community_handle", &upd.CommunityHandle)
	set("tracker_account", &upd.TrackerAccount)
	set("manual_verified", &upd.ManualVerified)
	set("notes", &upd.Notes)
	return upd
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
