package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/atuld8/opskit/internal/model"
)

const (
	lockRetryAttempts = 5
	lockRetryStep     = 500 * time.Millisecond
)

// linearBackOff waits step, 2*step, 3*step, ... between attempts.
type linearBackOff struct {
	step time.Duration
	n    int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.n++
	return time.Duration(l.n) * l.step
}

func (l *linearBackOff) Reset() { l.n = 0 }

// IsLocked reports whether err is SQLite contention from a concurrent writer.
func IsLocked(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// WithLockRetry runs op, retrying on transient lock contention with linearly
// increasing backoff. Non-lock errors pass through unchanged; exhausting the
// retries yields model.ErrDatabaseLocked so callers can tell "try again later"
// apart from logic errors.
func WithLockRetry[T any](op func() (T, error)) (T, error) {
	return withLockRetry(op, lockRetryStep, lockRetryAttempts)
}

func withLockRetry[T any](op func() (T, error), step time.Duration, attempts uint64) (T, error) {
	var out T
	run := func() error {
		v, err := op()
		if err != nil {
			if IsLocked(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		out = v
		return nil
	}

	bo := backoff.WithMaxRetries(&linearBackOff{step: step}, attempts-1)
	if err := backoff.Retry(run, bo); err != nil {
		if IsLocked(err) {
			return out, fmt.Errorf("%w after %d attempts: %v", model.ErrDatabaseLocked, attempts, err)
		}
		return out, err
	}
	return out, nil
}
