package sync

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/fomcagent/datasync/internal/codec"
	"github.com/fomcagent/datasync/internal/state"
)

const contentTypeJSON = "application/json"

// ResourceSource is a JSON endpoint stored as a single object at Key
type ResourceSource struct {
	ID  string
	URL string
	Key string

	// fields used for the summary statistics kept in the resource state
	RecordsField string
	YearField    string
	MeasureField string
}

// ResourceSyncer rewrites one JSON resource when its content fingerprint
// differs from the one recorded on the destination object.
type ResourceSyncer struct {
	source ResourceSource
	deps   Deps
	states *state.Store
}

func NewResourceSyncer(source ResourceSource, deps Deps) *ResourceSyncer {
	deps = deps.withDefaults()
	return &ResourceSyncer{
		source: source,
		deps:   deps,
		states: deps.states(),
	}
}

func (s *ResourceSyncer) SourceID() string {
	return s.source.ID
}

func (s *ResourceSyncer) Sync(ctx context.Context) (*ResourceSummary, error) {
	run := newPublishRun(s.deps, s.source.ID)

	var payload any
	if _, err := s.deps.Fetcher.GetJSON(ctx, s.source.URL, &payload); err != nil {
		return nil, &FetchError{URL: s.source.URL, Err: err}
	}

	fingerprint, err := Fingerprint(payload)
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", s.source.URL, err)
	}

	return publish(ctx, s.deps, s.states, &publication{
		sourceID:    s.source.ID,
		key:         s.source.Key,
		url:         s.source.URL,
		fingerprint: fingerprint,
		contentType: contentTypeJSON,
		encode: func() ([]byte, error) {
			body, err := codec.MarshalIndent(payload)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", s.source.URL, err)
			}
			return body, nil
		},
		stats: func() resourceStats { return computeStats(payload, s.source) },
	}, run)
}

type resourceStats struct {
	found   bool
	records int
	years   []string
	values  *state.NumberRange
}

// computeStats summarizes the record array of payload: either the payload
// itself or its RecordsField member.
func computeStats(payload any, source ResourceSource) resourceStats {
	var records []any
	switch t := payload.(type) {
	case []any:
		records = t
	case map[string]any:
		arr, ok := t[source.RecordsField].([]any)
		if !ok {
			return resourceStats{}
		}
		records = arr
	default:
		return resourceStats{}
	}

	stats := resourceStats{found: true, records: len(records)}

	var minYear, maxYear string
	var minYearNum, maxYearNum float64
	minValue, maxValue := math.Inf(1), math.Inf(-1)
	for _, rec := range records {
		row, ok := rec.(map[string]any)
		if !ok {
			continue
		}

		if year, ok := scalarString(row[source.YearField]); ok && year != "" {
			n, err := strconv.ParseFloat(year, 64)
			if minYear == "" || (err == nil && n < minYearNum) {
				minYear, minYearNum = year, n
			}
			if maxYear == "" || (err == nil && n > maxYearNum) {
				maxYear, maxYearNum = year, n
			}
		}

		if value, ok := scalarFloat(row[source.MeasureField]); ok {
			minValue = math.Min(minValue, value)
			maxValue = math.Max(maxValue, value)
		}
	}

	if minYear != "" {
		stats.years = []string{minYear, maxYear}
	}
	if !math.IsInf(minValue, 1) {
		stats.values = &state.NumberRange{Min: minValue, Max: maxValue}
	}
	return stats
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case codec.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	}
	return "", false
}

func scalarFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case codec.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}
