package sync

import (
	"log/slog"
	"time"

	"github.com/fomcagent/datasync/internal/state"
)

// ItemFailure is a per-file error that did not abort the run
type ItemFailure struct {
	Item  string `json:"item"`
	Op    string `json:"op"`
	Error string `json:"error"`

	err error
}

// Err returns the underlying error. It is nil for failures decoded from JSON.
func (f ItemFailure) Err() error {
	return f.err
}

func newItemFailure(item, op string, err error) ItemFailure {
	return ItemFailure{Item: item, Op: op, Error: err.Error(), err: err}
}

// DirectorySummary groups the filenames of one directory run by action
type DirectorySummary struct {
	SourceID  string        `json:"source_id"`
	RunID     string        `json:"run_id"`
	Added     []string      `json:"added"`
	Updated   []string      `json:"updated"`
	Unchanged []string      `json:"unchanged"`
	Deleted   []string      `json:"deleted"`
	Failed    []ItemFailure `json:"failed,omitempty"`
	Duration  time.Duration `json:"duration"`
}

func newDirectorySummary(sourceID, runID string) *DirectorySummary {
	return &DirectorySummary{
		SourceID:  sourceID,
		RunID:     runID,
		Added:     []string{},
		Updated:   []string{},
		Unchanged: []string{},
		Deleted:   []string{},
	}
}

func (s *DirectorySummary) record(action state.Action, name string) {
	switch action {
	case state.ActionAdded:
		s.Added = append(s.Added, name)
	case state.ActionUpdated:
		s.Updated = append(s.Updated, name)
	case state.ActionUnchanged:
		s.Unchanged = append(s.Unchanged, name)
	case state.ActionDeleted:
		s.Deleted = append(s.Deleted, name)
	}
}

func (s *DirectorySummary) HasFailures() bool {
	return len(s.Failed) > 0
}

// Writes is the number of content objects written during the run
func (s *DirectorySummary) Writes() int {
	return len(s.Added) + len(s.Updated)
}

func (s *DirectorySummary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("added", len(s.Added)),
		slog.Int("updated", len(s.Updated)),
		slog.Int("unchanged", len(s.Unchanged)),
		slog.Int("deleted", len(s.Deleted)),
		slog.Int("failed", len(s.Failed)),
		slog.Duration("took", s.Duration),
	)
}

// ResourceSummary is the outcome of one single-resource run
type ResourceSummary struct {
	SourceID    string        `json:"source_id"`
	RunID       string        `json:"run_id"`
	Action      state.Action  `json:"action"`
	Fingerprint string        `json:"fingerprint"`
	RecordCount *int          `json:"record_count,omitempty"`
	Duration    time.Duration `json:"duration"`
}

func (s *ResourceSummary) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("action", string(s.Action)),
		slog.String("fingerprint", s.Fingerprint),
	}
	if s.RecordCount != nil {
		attrs = append(attrs, slog.Int("records", *s.RecordCount))
	}
	attrs = append(attrs, slog.Duration("took", s.Duration))
	return slog.GroupValue(attrs...)
}
