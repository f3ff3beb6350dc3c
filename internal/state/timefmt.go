package state

import (
	"time"
)

var legacyLayouts = []string{
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
}

// ParseTime reads a timestamp written to state or object metadata. RFC3339
// is what this module writes; zone-less ISO values from older writers are
// taken to be in loc.
func ParseTime(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	var lastErr error
	for _, layout := range legacyLayouts {
		t, err := time.ParseInLocation(layout, value, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
