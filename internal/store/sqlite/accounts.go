package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atuld8/opskit/internal/model"
	"github.com/atuld8/opskit/internal/store"
)

const accountColumns = `internal_user_id, first_name, last_name, primary_email, secondary_email,
	community_handle, tracker_account, manual_verified, notes, created_at, updated_at`

// lookupColumns whitelists identifier-bearing columns for GetBy and Translate.
// Column names are interpolated into SQL, so only values from this map are used.
var lookupColumns = map[model.AccountField]string{
	model.FieldInternalUserID:  "internal_user_id",
	model.FieldPrimaryEmail:    "primary_email",
	model.FieldSecondaryEmail:  "secondary_email",
	model.FieldCommunityHandle: "community_handle",
	model.FieldTrackerAccount:  "tracker_account",
}

type accountStore struct {
	db      *sql.DB
	actions *actionStore
}

func (s *accountStore) Create(ctx context.Context, a *model.Account) (*model.Account, error) {
	if a.InternalUserID == "" {
		return nil, fmt.Errorf("%w: internal user id required", model.ErrValidation)
	}
	if a.ManualVerified == "" {
		a.ManualVerified = model.VerifiedNo
	}
	a.CreatedAt = time.Now().UTC()

	_, err := store.WithLockRetry(func() (sql.Result, error) {
		return s.db.ExecContext(ctx, `INSERT INTO accounts (`+accountColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			a.InternalUserID, a.FirstName, a.LastName, a.PrimaryEmail, a.SecondaryEmail,
			a.CommunityHandle, a.TrackerAccount, a.ManualVerified, a.Notes, a.CreatedAt, a.UpdatedAt)
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: %s", model.ErrDuplicate, a.InternalUserID)
		}
		return nil, err
	}
	s.actions.record(ctx, "account_add", "account", a.InternalUserID, nil, snapshot(a), model.ActionSuccess, nil)
	return a, nil
}

func (s *accountStore) Update(ctx context.Context, internalUserID string, upd model.AccountUpdate) (bool, error) {
	if upd.Empty() {
		return false, nil
	}
	old, err := s.GetBy(ctx, model.FieldInternalUserID, internalUserID)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	var sets []string
	var args []interface{}
	set := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+" = ?")
			args = append(args, *v)
		}
	}
	set("first_name", upd.FirstName)
	set("last_name", upd.LastName)
	set("primary_email", upd.PrimaryEmail)
	set("secondary_email", upd.SecondaryEmail)
	set("community_handle", upd.CommunityHandle)
	set("tracker_account", upd.TrackerAccount)
	set("manual_verified", upd.ManualVerified)
	set("notes", upd.Notes)
	sets = append(sets, "updated_at = ?")
	args = append(args, now, internalUserID)

	_, err = store.WithLockRetry(func() (sql.Result, error) {
		return s.db.ExecContext(ctx, `UPDATE accounts SET `+strings.Join(sets, ", ")+` WHERE internal_user_id = ?`, args...)
	})
	if err != nil {
		return false, err
	}

	updated := applyUpdate(*old, upd, now)
	s.actions.record(ctx, "account_update", "account", internalUserID, snapshot(old), snapshot(&updated), model.ActionSuccess, nil)
	return true, nil
}

func (s *accountStore) GetBy(ctx context.Context, field model.AccountField, value string) (*model.Account, error) {
	col, ok := lookupColumns[field]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported lookup field %q", model.ErrValidation, field)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+col+` = ?`, value)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return a, err
}

func (s *accountStore) Search(ctx context.Context, f store.SearchFilters) ([]*model.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts`
	var conds []string
	var args []interface{}
	like := func(col, v string) {
		if v != "" {
			conds = append(conds, col+" LIKE '%' || ? || '%'")
			args = append(args, v)
		}
	}
	like("internal_user_id", f.InternalUserID)
	like("first_name", f.FirstName)
	like("last_name", f.LastName)
	like("primary_email", f.PrimaryEmail)
	like("secondary_email", f.SecondaryEmail)
	like("community_handle", f.CommunityHandle)
	like("tracker_account", f.TrackerAccount)
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY internal_user_id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Account
	for rows.Next() {
		a, err := scanAccountRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *accountStore) Translate(ctx context.Context, identifier string, target model.AccountField) (string, error) {
	targetCol, ok := lookupColumns[target]
	if !ok {
		return "", fmt.Errorf("%w: unsupported target field %q", model.ErrValidation, target)
	}
	// Linear probe in fixed priority order; the first matching column wins.
	for _, probe := range model.TranslateOrder {
		var out sql.NullString
		err := s.db.QueryRowContext(ctx,
			`SELECT `+targetCol+` FROM accounts WHERE `+lookupColumns[probe]+` = ? LIMIT 1`,
			identifier).Scan(&out)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return "", err
		}
		return out.String, nil
	}
	return "", model.ErrNotFound
}

func (s *accountStore) Delete(ctx context.Context, internalUserID string) (bool, error) {
	old, err := s.GetBy(ctx, model.FieldInternalUserID, internalUserID)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_, err = store.WithLockRetry(func() (sql.Result, error) {
		return s.db.ExecContext(ctx, `DELETE FROM accounts WHERE internal_user_id = ?`, internalUserID)
	})
	if err != nil {
		return false, err
	}
	s.actions.record(ctx, "account_remove", "account", internalUserID, snapshot(old), nil, model.ActionSuccess, nil)
	return true, nil
}

// applyUpdate returns old with the non-nil fields of upd applied, for the
// action-log new-value snapshot.
func applyUpdate(old model.Account, upd model.AccountUpdate, now time.Time) model.Account {
	if upd.FirstName != nil {
		old.FirstName = upd.FirstName
	}
	if upd.LastName != nil {
		old.LastName = upd.LastName
	}
	if upd.PrimaryEmail != nil {
		old.PrimaryEmail = upd.PrimaryEmail
	}
	if upd.SecondaryEmail != nil {
		old.SecondaryEmail = upd.SecondaryEmail
	}
	if upd.CommunityHandle != nil {
		old.CommunityHandle = upd.CommunityHandle
	}
	if upd.TrackerAccount != nil {
		old.TrackerAccount = upd.TrackerAccount
	}
	if upd.ManualVerified != nil {
		old.ManualVerified = *upd.ManualVerified
	}
	if upd.Notes != nil {
		old.Notes = upd.Notes
	}
	old.UpdatedAt = &now
	return old
}

// snapshot renders an account as a JSON string for the action log.
func snapshot(a *model.Account) *string {
	if a == nil {
		return nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

func scanAccount(row *sql.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(&a.InternalUserID, &a.FirstName, &a.LastName, &a.PrimaryEmail, &a.SecondaryEmail,
		&a.CommunityHandle, &a.TrackerAccount, &a.ManualVerified, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanAccountRow(rows *sql.Rows) (*model.Account, error) {
	var a model.Account
	err := rows.Scan(&a.InternalUserID, &a.FirstName, &a.LastName, &a.PrimaryEmail, &a.SecondaryEmail,
		&a.CommunityHandle, &a.TrackerAccount, &a.ManualVerified, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
