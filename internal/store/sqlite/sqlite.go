// Package sqlite implements store.Store on a local SQLite file using the
// pure-Go modernc driver.
package sqlite

import (
	"database/sql"

	"github.com/atuld8/opskit/internal/store"
)

type sqliteStore struct {
	db       *sql.DB
	accounts *accountStore
	actions  *actionStore
}

// New opens the database at path and returns a ready store.
func New(path string) (store.Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	return NewWithDB(db), nil
}

// NewWithDB wires a store over an existing connection (used by tests).
func NewWithDB(db *sql.DB) store.Store {
	actions := &actionStore{db: db}
	return &sqliteStore{
		db:       db,
		accounts: &accountStore{db: db, actions: actions},
		actions:  actions,
	}
}

func (s *sqliteStore) Accounts() store.Accounts { return s.accounts }
func (s *sqliteStore) Actions() store.Actions   { return s.actions }
func (s *sqliteStore) Close() error             { return s.db.Close() }
