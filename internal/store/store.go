// Package store defines persistence interfaces for accounts and the action
// log. Implementations live under store/<driver>/ (currently sqlite).
package store

import (
	"context"
	"time"

	"github.com/atuld8/opskit/internal/model"
)

// Store exposes the persistence operations required by the CLI and validator.
type Store interface {
	Accounts() Accounts
	Actions() Actions
	Close() error
}

// Accounts is durable CRUD over the account cross-reference table.
type Accounts interface {
	// Create inserts a new account. Returns model.ErrDuplicate when the
	// internal user id already exists.
	Create(ctx context.Context, a *model.Account) (*model.Account, error)
	// Update applies the non-nil fields of upd. Returns false when the id is
	// absent or the update is empty; it never fails for "not found".
	Update(ctx context.Context, internalUserID string, upd model.AccountUpdate) (bool, error)
	// GetBy looks up an account by exactly one identifier column.
	GetBy(ctx context.Context, field model.AccountField, value string) (*model.Account, error)
	// Search returns accounts whose fields contain all supplied substrings,
	// ordered by internal user id. Empty filters return every account.
	Search(ctx context.Context, f SearchFilters) ([]*model.Account, error)
	// Translate resolves an arbitrary identifier by probing the identifier
	// columns in model.TranslateOrder and returns the target field of the
	// first matching row.
	Translate(ctx context.Context, identifier string, target model.AccountField) (string, error)
	// Delete removes an account. Returns false when the id is absent.
	Delete(ctx context.Context, internalUserID string) (bool, error)
}

// Actions is the append-only audit log.
type Actions interface {
	Append(ctx context.Context, e *model.ActionLogEntry) (*model.ActionLogEntry, error)
	List(ctx context.Context, req ListActionsRequest) ([]*model.ActionLogEntry, error)
	// PurgeBefore deletes entries older than cutoff and reports how many.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SearchFilters are substring filters; empty strings are ignored.
type SearchFilters struct {
	InternalUserID  string
	FirstName       string
	LastName        string
	PrimaryEmail    string
	SecondaryEmail  string
	CommunityHandle string
	TrackerAccount  string
}

// Empty reports whether no filter is set.
func (f SearchFilters) Empty() bool {
	return f == SearchFilters{}
}

// ListActionsRequest filters the action log.
type ListActionsRequest struct {
	ActionType string
	TargetType string
	TargetID   string
	Limit      int
}
