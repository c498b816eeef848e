package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atuld8/opskit/internal/model"
)

var errLocked = errors.New("database is locked (5) (SQLITE_BUSY)")

func TestWithLockRetry_SucceedsAfterContention(t *testing.T) {
	calls := 0
	v, err := withLockRetry(func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errLocked
		}
		return 42, nil
	}, time.Microsecond, 5)

	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 3, calls)
}

func TestWithLockRetry_ExhaustionYieldsDatabaseLocked(t *testing.T) {
	calls := 0
	_, err := withLockRetry(func() (int, error) {
		calls++
		return 0, errLocked
	}, time.Microsecond, 5)

	require.ErrorIs(t, err, model.ErrDatabaseLocked)
	require.Equal(t, 5, calls)
}

func TestWithLockRetry_NonLockErrorPassesThrough(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := withLockRetry(func() (int, error) {
		calls++
		return 0, boom
	}, time.Microsecond, 5)

	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls, "logic errors must not be retried")
}

func TestLinearBackOff_Increases(t *testing.T) {
	bo := &linearBackOff{step: 500 * time.Millisecond}
	require.Equal(t, 500*time.Millisecond, bo.NextBackOff())
	require.Equal(t, time.Second, bo.NextBackOff())
	require.Equal(t, 1500*time.Millisecond, bo.NextBackOff())
	bo.Reset()
	require.Equal(t, 500*time.Millisecond, bo.NextBackOff())
}
