package sync

import (
	"time"

	"github.com/fomcagent/datasync/internal/state"
)

// destination object metadata keys
const (
	MetaSourceModified    = "source_modified"
	MetaSourceModifiedRaw = "source_modified_raw"
	MetaContentHash       = "content_hash"
	MetaSourceURL         = "source_url"
	MetaRunID             = "sync_run_id"
)

// ParseSourceModified reads a stored source_modified value. RFC3339 is
// written by this module; zone-less ISO values from older writers are taken
// to be in loc.
func ParseSourceModified(value string, loc *time.Location) (time.Time, error) {
	return state.ParseTime(value, loc)
}

func formatSourceModified(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
