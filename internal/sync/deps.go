package sync

import (
	"context"
	"time"

	"github.com/fomcagent/datasync/internal/blob"
	"github.com/fomcagent/datasync/internal/listing"
	"github.com/fomcagent/datasync/internal/lock"
	"github.com/fomcagent/datasync/internal/state"
)

// Fetcher reads remote sources. *fetch.Client implements it.
type Fetcher interface {
	GetText(ctx context.Context, url string) (string, error)
	GetBytes(ctx context.Context, url string) ([]byte, error)
	GetJSON(ctx context.Context, url string, v any) ([]byte, error)
	PostJSON(ctx context.Context, url string, payload, v any) ([]byte, error)
}

var processLocker = lock.NewMemoryLocker()

// Deps are the collaborators shared by every syncer of a run
type Deps struct {
	Fetcher Fetcher
	Blobs   blob.Store
	Locker  lock.Locker
	Parser  *listing.Parser
	Clock   func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Locker == nil {
		d.Locker = processLocker
	}
	if d.Parser == nil {
		d.Parser = listing.NewParser(time.UTC)
	}
	if d.Clock == nil {
		d.Clock = func() time.Time { return time.Now().UTC() }
	}
	return d
}

func (d Deps) states() *state.Store {
	return state.NewStore(d.Blobs)
}
