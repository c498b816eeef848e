package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/atuld8/opskit/internal/model"
	"github.com/atuld8/opskit/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:")
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	// a single connection keeps every statement on the same in-memory database
	db.SetMaxOpenConns(1)
	if err := applySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db)
}

func str(s string) *string { return &s }

func TestAccounts_AddGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := &model.Account{
		InternalUserID: "j_doe",
		FirstName:      str("Jane"),
		PrimaryEmail:   str("jane.doe@example.com"),
		TrackerAccount: str("j.doe"),
	}
	if _, err := s.Accounts().Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Accounts().GetBy(ctx, model.FieldInternalUserID, "j_doe")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FirstName == nil || *got.FirstName != "Jane" {
		t.Fatalf("first name did not round-trip: %+v", got)
	}
	if got.PrimaryEmail == nil || *got.PrimaryEmail != "jane.doe@example.com" {
		t.Fatalf("primary email did not round-trip: %+v", got)
	}
	// unsupplied fields stay null
	if got.LastName != nil || got.SecondaryEmail != nil || got.Notes != nil {
		t.Fatalf("expected unset fields to be nil: %+v", got)
	}
	if got.ManualVerified != model.VerifiedNo {
		t.Fatalf("expected manual_verified default no, got %q", got.ManualVerified)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be set")
	}
}

func TestAccounts_DuplicateAdd(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Accounts().Create(ctx, &model.Account{InternalUserID: "j_doe"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := s.Accounts().Create(ctx, &model.Account{InternalUserID: "j_doe"})
	if !errors.Is(err, model.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestAccounts_UpdatePartial(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Accounts().Create(ctx, &model.Account{
		InternalUserID: "j_doe",
		FirstName:      str("Jane"),
		PrimaryEmail:   str("jane.doe@example.com"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	found, err := s.Accounts().Update(ctx, "j_doe", model.AccountUpdate{TrackerAccount: str("j.doe")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !found {
		t.Fatalf("expected update to find the account")
	}

	got, err := s.Accounts().GetBy(ctx, model.FieldInternalUserID, "j_doe")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TrackerAccount == nil || *got.TrackerAccount != "j.doe" {
		t.Fatalf("tracker account not written: %+v", got)
	}
	// untouched fields keep their prior values
	if got.FirstName == nil || *got.FirstName != "Jane" {
		t.Fatalf("first name clobbered: %+v", got)
	}
	if got.PrimaryEmail == nil || *got.PrimaryEmail != "jane.doe@example.com" {
		t.Fatalf("primary email clobbered: %+v", got)
	}
	if got.UpdatedAt == nil {
		t.Fatalf("expected updated_at to be set")
	}
}

func TestAccounts_UpdateNoOp(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// absent id
	found, err := s.Accounts().Update(ctx, "nobody", model.AccountUpdate{FirstName: str("x")})
	if err != nil || found {
		t.Fatalf("expected (false, nil) for absent id, got (%v, %v)", found, err)
	}

	// empty field set
	if _, err := s.Accounts().Create(ctx, &model.Account{InternalUserID: "j_doe"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	found, err = s.Accounts().Update(ctx, "j_doe", model.AccountUpdate{})
	if err != nil || found {
		t.Fatalf("expected (false, nil) for empty update, got (%v, %v)", found, err)
	}
}

func TestAccounts_GetByNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Accounts().GetBy(context.Background(), model.FieldPrimaryEmail, "nobody@example.com")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAccounts_Search(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, a := range []*model.Account{
		{InternalUserID: "b_user", PrimaryEmail: str("b.user@example.com")},
		{InternalUserID: "a_user", PrimaryEmail: str("a.user@example.com")},
		{InternalUserID: "c_other", PrimaryEmail: str("c.other@example.net")},
	} {
		if _, err := s.Accounts().Create(ctx, a); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	// empty filters return everything ordered by internal user id
	all, err := s.Accounts().Search(ctx, store.SearchFilters{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(all) != 3 || all[0].InternalUserID != "a_user" || all[2].InternalUserID != "c_other" {
		t.Fatalf("unexpected full listing: %+v", all)
	}

	// substring filters are conjunctive
	hits, err := s.Accounts().Search(ctx, store.SearchFilters{
		InternalUserID: "user",
		PrimaryEmail:   "example.com",
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %+v", hits)
	}
}

func TestAccounts_TranslateProbeOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Accounts().Create(ctx, &model.Account{
		InternalUserID:  "j_doe",
		PrimaryEmail:    str("jane.doe@example.com"),
		CommunityHandle: str("jane.doe"),
		TrackerAccount:  str("j.doe"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, identifier := range []string{"j_doe", "jane.doe@example.com", "jane.doe", "j.doe"} {
		got, err := s.Accounts().Translate(ctx, identifier, model.FieldTrackerAccount)
		if err != nil {
			t.Fatalf("translate %q: %v", identifier, err)
		}
		if got != "j.doe" {
			t.Fatalf("translate %q = %q, want j.doe", identifier, got)
		}
	}

	if _, err := s.Accounts().Translate(ctx, "stranger", model.FieldTrackerAccount); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown identifier, got %v", err)
	}

	// matched row with null target resolves to empty, not an error
	if _, err := s.Accounts().Create(ctx, &model.Account{InternalUserID: "k_new"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.Accounts().Translate(ctx, "k_new", model.FieldTrackerAccount)
	if err != nil || got != "" {
		t.Fatalf("expected empty resolution for null target, got (%q, %v)", got, err)
	}
}

func TestAccounts_Delete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Accounts().Create(ctx, &model.Account{InternalUserID: "j_doe"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	found, err := s.Accounts().Delete(ctx, "j_doe")
	if err != nil || !found {
		t.Fatalf("delete: (%v, %v)", found, err)
	}
	found, err = s.Accounts().Delete(ctx, "j_doe")
	if err != nil || found {
		t.Fatalf("expected (false, nil) for second delete, got (%v, %v)", found, err)
	}
}

func TestActions_MutationsAreLogged(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Accounts().Create(ctx, &model.Account{InternalUserID: "j_doe"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Accounts().Update(ctx, "j_doe", model.AccountUpdate{TrackerAccount: str("j.doe")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := s.Accounts().Delete(ctx, "j_doe"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	entries, err := s.Actions().List(ctx, store.ListActionsRequest{TargetID: "j_doe"})
	if err != nil {
		t.Fatalf("list actions: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(entries))
	}
	byType := make(map[string]*model.ActionLogEntry)
	for _, e := range entries {
		byType[e.ActionType] = e
	}
	upd := byType["account_update"]
	if upd == nil || upd.OldValue == nil || upd.NewValue == nil {
		t.Fatalf("update entry missing value snapshots: %+v", upd)
	}
	if byType["account_remove"] == nil || byType["account_remove"].NewValue != nil {
		t.Fatalf("remove entry should have no new value: %+v", byType["account_remove"])
	}
}

func TestActions_PurgeBefore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Actions().Append(ctx, &model.ActionLogEntry{
		ActionType: "account_add", TargetType: "account", TargetID: "x", Status: model.ActionSuccess,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	n, err := s.Actions().PurgeBefore(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("expected nothing purged, got (%d, %v)", n, err)
	}
	n, err = s.Actions().PurgeBefore(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("expected one entry purged, got (%d, %v)", n, err)
	}
}

func TestOpen_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "accounts.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
