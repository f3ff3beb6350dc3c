package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLocker_ExcludesSameSource(t *testing.T) {
	locker, err := NewFileLocker(t.TempDir(), 0)
	require.NoError(t, err)

	release, err := locker.Acquire(context.Background(), "bls-pr")
	require.NoError(t, err)

	_, err = locker.Acquire(context.Background(), "bls-pr")
	assert.ErrorIs(t, err, ErrLocked)

	// other sources are independent
	releaseOther, err := locker.Acquire(context.Background(), "bls-cu")
	require.NoError(t, err)
	require.NoError(t, releaseOther())

	require.NoError(t, release())
	require.NoError(t, release())

	release, err = locker.Acquire(context.Background(), "bls-pr")
	require.NoError(t, err)
	require.NoError(t, release())
}

func TestFileLocker_WaitsForRelease(t *testing.T) {
	dir := t.TempDir()
	holder, err := NewFileLocker(dir, 0)
	require.NoError(t, err)
	waiter, err := NewFileLocker(dir, 5*time.Second)
	require.NoError(t, err)

	release, err := holder.Acquire(context.Background(), "src")
	require.NoError(t, err)

	go func() {
		time.Sleep(300 * time.Millisecond)
		release()
	}()

	releaseWaiter, err := waiter.Acquire(context.Background(), "src")
	require.NoError(t, err)
	require.NoError(t, releaseWaiter())
}

func TestFileLocker_WaitTimesOut(t *testing.T) {
	dir := t.TempDir()
	holder, err := NewFileLocker(dir, 0)
	require.NoError(t, err)
	waiter, err := NewFileLocker(dir, 300*time.Millisecond)
	require.NoError(t, err)

	release, err := holder.Acquire(context.Background(), "src")
	require.NoError(t, err)
	defer release()

	_, err = waiter.Acquire(context.Background(), "src")
	assert.ErrorIs(t, err, ErrLocked)
}

func TestMemoryLocker(t *testing.T) {
	locker := NewMemoryLocker()

	release, err := locker.Acquire(context.Background(), "a")
	require.NoError(t, err)

	_, err = locker.Acquire(context.Background(), "a")
	assert.ErrorIs(t, err, ErrLocked)

	_, err = locker.Acquire(context.Background(), "b")
	assert.NoError(t, err)

	require.NoError(t, release())
	_, err = locker.Acquire(context.Background(), "a")
	assert.NoError(t, err)
}
