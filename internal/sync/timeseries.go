package sync

import (
	"context"
	"math"
	"strconv"

	"github.com/fomcagent/datasync/internal/state"
	"github.com/fomcagent/datasync/internal/timeseries"
)

const contentTypeTSV = "text/tab-separated-values; charset=utf-8"

// TimeseriesSource is a set of API series merged into one TSV object
type TimeseriesSource struct {
	ID        string
	URL       string
	Key       string
	SeriesIDs []string
	StartYear int
	EndYear   int
	MaxYears  int
	APIKey    string
}

// TimeseriesSyncer posts one request per year window, merges the rows and
// rewrites Key only when the rendered TSV hashes differently.
type TimeseriesSyncer struct {
	source TimeseriesSource
	deps   Deps
	states *state.Store
}

func NewTimeseriesSyncer(source TimeseriesSource, deps Deps) *TimeseriesSyncer {
	deps = deps.withDefaults()
	return &TimeseriesSyncer{
		source: source,
		deps:   deps,
		states: deps.states(),
	}
}

func (s *TimeseriesSyncer) SourceID() string {
	return s.source.ID
}

func (s *TimeseriesSyncer) Sync(ctx context.Context) (*ResourceSummary, error) {
	run := newPublishRun(s.deps, s.source.ID)

	maxYears := timeseries.ClampMaxYears(s.source.MaxYears, s.source.APIKey != "")
	var rows []timeseries.Row
	for _, chunk := range timeseries.YearChunks(s.source.StartYear, s.source.EndYear, maxYears) {
		var resp timeseries.Response
		req := timeseries.NewRequest(s.source.SeriesIDs, chunk, s.source.APIKey)
		if _, err := s.deps.Fetcher.PostJSON(ctx, s.source.URL, req, &resp); err != nil {
			return nil, &FetchError{URL: s.source.URL, Err: err}
		}
		chunkRows, err := resp.Rows()
		if err != nil {
			return nil, &FetchError{URL: s.source.URL, Err: err}
		}
		run.log.Debug("fetched year window", "start", chunk.Start, "end", chunk.End, "rows", len(chunkRows))
		rows = append(rows, chunkRows...)
	}

	rows = timeseries.Merge(rows)
	body := timeseries.RenderTSV(rows)

	return publish(ctx, s.deps, s.states, &publication{
		sourceID:    s.source.ID,
		key:         s.source.Key,
		url:         s.source.URL,
		fingerprint: hashBytes(body),
		contentType: contentTypeTSV,
		metadata:    map[string]string{"source": "bls_api"},
		encode:      func() ([]byte, error) { return body, nil },
		stats:       func() resourceStats { return rowStats(rows) },
	}, run)
}

func rowStats(rows []timeseries.Row) resourceStats {
	stats := resourceStats{found: true, records: len(rows)}

	minYear, maxYear := math.MaxInt, math.MinInt
	minValue, maxValue := math.Inf(1), math.Inf(-1)
	for _, row := range rows {
		if year, err := strconv.Atoi(row.Year); err == nil {
			minYear, maxYear = min(minYear, year), max(maxYear, year)
		}
		if value, err := strconv.ParseFloat(row.Value, 64); err == nil {
			minValue = math.Min(minValue, value)
			maxValue = math.Max(maxValue, value)
		}
	}

	if minYear != math.MaxInt {
		stats.years = []string{strconv.Itoa(minYear), strconv.Itoa(maxYear)}
	}
	if !math.IsInf(minValue, 1) {
		stats.values = &state.NumberRange{Min: minValue, Max: maxValue}
	}
	return stats
}
