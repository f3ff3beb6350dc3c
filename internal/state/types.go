package state

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/fomcagent/datasync/internal/codec"
)

type Action string

const (
	ActionAdded     Action = "added"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
	ActionDeleted   Action = "deleted"
	ActionFailed    Action = "failed"
)

// FileRecord is what a directory source believes exists at the destination
// for one filename. Filename is the key of SourceState.Files and is not
// serialized.
type FileRecord struct {
	Filename       string    `json:"-"`
	SourceModified time.Time `json:"source_modified"`
	SizeBytes      int64     `json:"bytes"`
}

// UnmarshalJSON accepts records written by older jobs: zone-less
// source_modified values are read as UTC and one that does not parse at
// all leaves SourceModified zero instead of failing the snapshot.
func (r *FileRecord) UnmarshalJSON(data []byte) error {
	var doc struct {
		SourceModified *string `json:"source_modified"`
		Bytes          int64   `json:"bytes"`
	}
	if err := codec.Unmarshal(data, &doc); err != nil {
		return err
	}
	r.SizeBytes = doc.Bytes
	r.SourceModified = time.Time{}
	if doc.SourceModified != nil && *doc.SourceModified != "" {
		if t, err := ParseTime(*doc.SourceModified, time.UTC); err == nil {
			r.SourceModified = t
		}
	}
	return nil
}

// SourceState is the persisted snapshot of a directory source. Files holds
// exactly the objects written by the synchronizer as of LastSync.
type SourceState struct {
	SourceID string                `json:"source_id"`
	LastSync time.Time             `json:"last_sync"`
	Files    map[string]FileRecord `json:"files"`
}

func NewSourceState(sourceID string) *SourceState {
	return &SourceState{
		SourceID: sourceID,
		Files:    make(map[string]FileRecord),
	}
}

// Known reports whether filename was recorded by an earlier run
func (s *SourceState) Known(filename string) bool {
	_, ok := s.Files[filename]
	return ok
}

type NumberRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ResourceState is the persisted snapshot of a single JSON resource
type ResourceState struct {
	SourceID    string       `json:"source_id"`
	LastSync    time.Time    `json:"last_sync"`
	ContentHash string       `json:"content_hash"`
	RecordCount int          `json:"record_count"`
	YearRange   YearRange    `json:"year_range,omitempty"`
	ValueRange  *NumberRange `json:"value_range,omitempty"`
	APIURL      string       `json:"api_url"`
}

// ChangeLogEntry is one immutable line of a source's change log
type ChangeLogEntry struct {
	Timestamp      time.Time  `json:"timestamp"`
	RunID          string     `json:"run_id,omitempty"`
	Action         Action     `json:"action"`
	Item           string     `json:"item"`
	SourceModified *time.Time `json:"source_modified,omitempty"`
	Bytes          *int64     `json:"bytes,omitempty"`
	Fingerprint    string     `json:"fingerprint,omitempty"`
	RecordCount    *int       `json:"record_count,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// YearRange is the [first, last] year of a resource. It is written as JSON
// numbers when every year is an integer, as strings otherwise.
type YearRange []string

func (r YearRange) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	years := make([]int64, 0, len(r))
	for _, y := range r {
		n, err := strconv.ParseInt(y, 10, 64)
		if err != nil {
			return codec.Marshal([]string(r))
		}
		years = append(years, n)
	}
	return codec.Marshal(years)
}

func (r *YearRange) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := codec.DecodeNumbers(bytes.NewReader(data), &raw); err != nil {
		return err
	}
	if raw == nil {
		*r = nil
		return nil
	}
	out := make(YearRange, 0, len(raw))
	for _, v := range raw {
		switch t := v.(type) {
		case string:
			out = append(out, t)
		case codec.Number:
			out = append(out, t.String())
		default:
			return fmt.Errorf("year_range: unexpected %T", v)
		}
	}
	*r = out
	return nil
}
