package config

import (
	"github.com/fomcagent/datasync/internal/listing"
	"github.com/fomcagent/datasync/internal/state"
	"github.com/fomcagent/datasync/internal/sync"
	"github.com/fomcagent/datasync/internal/utils"
)

func validateSourceID(id string) error {
	return state.ValidateSourceID(id)
}

func isValidURL(s string) bool {
	return utils.IsValidURL(s)
}

func newFilter(d DirectorySourceConfig) (*listing.Filter, error) {
	return listing.NewFilter(d.Patterns, map[string]string{
		"series": d.Series(),
		"id":     d.ID,
	})
}

// DirectorySource converts d to the syncer's source description
func (d DirectorySourceConfig) DirectorySource() (sync.DirectorySource, error) {
	filter, err := newFilter(d)
	if err != nil {
		return sync.DirectorySource{}, err
	}
	return sync.DirectorySource{
		ID:                d.ID,
		URL:               utils.EnsureTrailingSlash(d.URL),
		Prefix:            d.Prefix,
		Filter:            filter,
		AllowEmptyListing: d.AllowEmptyListing,
	}, nil
}

func (r ResourceSourceConfig) ResourceSource() sync.ResourceSource {
	return sync.ResourceSource{
		ID:           r.ID,
		URL:          r.URL,
		Key:          r.Key,
		RecordsField: r.RecordsField,
		YearField:    r.YearField,
		MeasureField: r.MeasureField,
	}
}

func (ts TimeseriesConfig) TimeseriesSource() sync.TimeseriesSource {
	return sync.TimeseriesSource{
		ID:        ts.ID,
		URL:       ts.URL,
		Key:       ts.Key,
		SeriesIDs: ts.SeriesIDs,
		StartYear: ts.StartYear,
		EndYear:   ts.EndYear,
		MaxYears:  ts.MaxYears,
		APIKey:    ts.APIKey,
	}
}
