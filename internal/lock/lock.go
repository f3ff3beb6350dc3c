// Package lock provides per-source mutual exclusion for sync runs.
package lock

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fomcagent/datasync/internal/utils"
	"github.com/gofrs/flock"
)

var ErrLocked = errors.New("lock: source is locked by another run")

const retryDelay = 200 * time.Millisecond

// Locker serializes runs per source id. release must be called exactly once
// and is safe to call from a defer.
type Locker interface {
	Acquire(ctx context.Context, sourceID string) (release func() error, err error)
}

// FileLocker holds an advisory file lock per source under Dir. It excludes
// other processes on the same host as well as other goroutines.
type FileLocker struct {
	Dir  string
	Wait time.Duration
}

func NewFileLocker(dir string, wait time.Duration) (*FileLocker, error) {
	dir, err := utils.ResolvePath(dir)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("lock dir: %w", err)
	}
	return &FileLocker{Dir: dir, Wait: wait}, nil
}

func (l *FileLocker) Acquire(ctx context.Context, sourceID string) (func() error, error) {
	fl := flock.New(filepath.Join(l.Dir, sourceID+".lock"))

	var locked bool
	var err error
	if l.Wait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, l.Wait)
		locked, err = fl.TryLockContext(waitCtx, retryDelay)
		cancel()
		if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}
	} else {
		locked, err = fl.TryLock()
	}

	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", sourceID, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, sourceID)
	}

	var once sync.Once
	return func() error {
		var unlockErr error
		once.Do(func() {
			unlockErr = fl.Unlock()
		})
		return unlockErr
	}, nil
}

// MemoryLocker excludes runs within one process only
type MemoryLocker struct {
	mu     sync.Mutex
	active map[string]bool
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{active: make(map[string]bool)}
}

func (l *MemoryLocker) Acquire(_ context.Context, sourceID string) (func() error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active[sourceID] {
		return nil, fmt.Errorf("%w: %s", ErrLocked, sourceID)
	}
	l.active[sourceID] = true

	var once sync.Once
	return func() error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.active, sourceID)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
