package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/atuld8/opskit/internal/model"
	"github.com/atuld8/opskit/internal/store"
)

type actionStore struct {
	db *sql.DB
}

func (s *actionStore) Append(ctx context.Context, e *model.ActionLogEntry) (*model.ActionLogEntry, error) {
	e.CreatedAt = time.Now().UTC()
	res, err := store.WithLockRetry(func() (sql.Result, error) {
		return s.db.ExecContext(ctx,
			`INSERT INTO action_log (action_type, target_type, target_id, old_value, new_value, status, details, created_at)
			 VALUES (?,?,?,?,?,?,?,?)`,
			e.ActionType, e.TargetType, e.TargetID, e.OldValue, e.NewValue, e.Status, e.Details, e.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	e.ID, _ = res.LastInsertId()
	return e, nil
}

func (s *actionStore) List(ctx context.Context, req store.ListActionsRequest) ([]*model.ActionLogEntry, error) {
	q := `SELECT id, action_type, target_type, target_id, old_value, new_value, status, details, created_at FROM action_log`
	var conds []string
	var args []interface{}
	if req.ActionType != "" {
		conds = append(conds, "action_type = ?")
		args = append(args, req.ActionType)
	}
	if req.TargetType != "" {
		conds = append(conds, "target_type = ?")
		args = append(args, req.TargetType)
	}
	if req.TargetID != "" {
		conds = append(conds, "target_id = ?")
		args = append(args, req.TargetID)
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"
	if req.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, req.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.ActionLogEntry
	for rows.Next() {
		var e model.ActionLogEntry
		if err := rows.Scan(&e.ID, &e.ActionType, &e.TargetType, &e.TargetID,
			&e.OldValue, &e.NewValue, &e.Status, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *actionStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := store.WithLockRetry(func() (sql.Result, error) {
		return s.db.ExecContext(ctx, `DELETE FROM action_log WHERE created_at < ?`, cutoff.UTC())
	})
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// record appends an audit entry for a store mutation. Audit writes are
// best-effort; a failed append never fails the mutation it describes.
func (s *actionStore) record(ctx context.Context, actionType, targetType, targetID string, oldValue, newValue *string, status string, details *string) {
	_, _ = s.Append(ctx, &model.ActionLogEntry{
		ActionType: actionType,
		TargetType: targetType,
		TargetID:   targetID,
		OldValue:   oldValue,
		NewValue:   newValue,
		Status:     status,
		Details:    details,
	})
}
