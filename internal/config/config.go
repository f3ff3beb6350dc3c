// Package config loads datasync settings from a config file, DATASYNC_*
// environment variables and command flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/fomcagent/datasync/internal/blob"
	"github.com/fomcagent/datasync/internal/fetch"
	"github.com/fomcagent/datasync/internal/timeseries"
)

const (
	DefaultBLSBaseURL  = "https://download.bls.gov/pub/time.series"
	DefaultBLSPattern  = "{series}.data.0.Current"
	DefaultResourceKey = "population.json"

	// {id} is replaced by the timeseries source id
	DefaultTimeseriesKey = "{id}/{id}.data.0.Current"
)

var DefaultLockDir = filepath.Join(os.TempDir(), "datasync", "locks")

type Config struct {
	Path        string                  `mapstructure:"-"`
	Destination blob.Config             `mapstructure:"destination"`
	HTTP        fetch.Config            `mapstructure:"http"`
	Lock        LockConfig              `mapstructure:"lock"`
	Listing     ListingConfig           `mapstructure:"listing"`
	Runner      RunnerConfig            `mapstructure:"runner"`
	BLS         BLSConfig               `mapstructure:"bls"`
	Directories []DirectorySourceConfig `mapstructure:"directories"`
	Resources   []ResourceSourceConfig  `mapstructure:"resources"`
	Timeseries  []TimeseriesConfig      `mapstructure:"timeseries"`
}

type LockConfig struct {
	Dir  string        `mapstructure:"dir"`
	Wait time.Duration `mapstructure:"wait"`
}

type ListingConfig struct {
	Timezone string `mapstructure:"timezone"`
}

type RunnerConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	Delay       time.Duration `mapstructure:"delay"`
}

// BLSConfig is shorthand for one directory source per series under BaseURL
type BLSConfig struct {
	BaseURL  string   `mapstructure:"base_url"`
	Series   []string `mapstructure:"series"`
	Patterns []string `mapstructure:"patterns"`
	// registration key shared by timeseries sources without their own
	APIKey string `mapstructure:"api_key"`
}

type DirectorySourceConfig struct {
	ID                string   `mapstructure:"id"`
	URL               string   `mapstructure:"url"`
	Prefix            string   `mapstructure:"prefix"`
	Patterns          []string `mapstructure:"patterns"`
	AllowEmptyListing bool     `mapstructure:"allow_empty_listing"`

	// value of {series} in patterns, the id unless expanded from bls
	series string
}

type ResourceSourceConfig struct {
	ID           string `mapstructure:"id"`
	URL          string `mapstructure:"url"`
	Key          string `mapstructure:"key"`
	RecordsField string `mapstructure:"records_field"`
	YearField    string `mapstructure:"year_field"`
	MeasureField string `mapstructure:"measure_field"`
}

type TimeseriesConfig struct {
	ID        string   `mapstructure:"id"`
	URL       string   `mapstructure:"url"`
	Key       string   `mapstructure:"key"`
	SeriesIDs []string `mapstructure:"series_ids"`
	StartYear int      `mapstructure:"start_year"`
	EndYear   int      `mapstructure:"end_year"`
	MaxYears  int      `mapstructure:"max_years_per_request"`
	APIKey    string   `mapstructure:"api_key"`
}

// Location is the zone listing timestamps are read in
func (c *Config) Location() (*time.Location, error) {
	if c.Listing.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Listing.Timezone)
	if err != nil {
		return nil, fmt.Errorf("listing timezone: %w", err)
	}
	return loc, nil
}

// Sources returns every directory source, the bls shorthand expanded first
func (c *Config) Sources() []DirectorySourceConfig {
	var out []DirectorySourceConfig
	for _, series := range c.BLS.Series {
		if series == "" {
			continue
		}
		out = append(out, DirectorySourceConfig{
			ID:       series,
			URL:      c.BLS.BaseURL + "/" + series + "/",
			Prefix:   series,
			Patterns: c.BLS.Patterns,
			series:   series,
		})
	}
	for _, d := range c.Directories {
		if d.Prefix == "" {
			d.Prefix = d.ID
		}
		d.series = d.ID
		out = append(out, d)
	}
	return out
}

// ResourceSources returns every resource with defaults applied
func (c *Config) ResourceSources() []ResourceSourceConfig {
	out := make([]ResourceSourceConfig, 0, len(c.Resources))
	for _, r := range c.Resources {
		if r.Key == "" {
			r.Key = DefaultResourceKey
		}
		if r.RecordsField == "" {
			r.RecordsField = "data"
		}
		if r.YearField == "" {
			r.YearField = "Year"
		}
		if r.MeasureField == "" {
			r.MeasureField = "Population"
		}
		out = append(out, r)
	}
	return out
}

// TimeseriesSources returns every timeseries source with defaults applied.
// The end year defaults to the current one.
func (c *Config) TimeseriesSources() []TimeseriesConfig {
	out := make([]TimeseriesConfig, 0, len(c.Timeseries))
	for _, ts := range c.Timeseries {
		if ts.URL == "" {
			ts.URL = timeseries.DefaultURL
		}
		if ts.Key == "" {
			ts.Key = strings.ReplaceAll(DefaultTimeseriesKey, "{id}", ts.ID)
		}
		if len(ts.SeriesIDs) == 0 {
			ts.SeriesIDs = slices.Clone(timeseries.DefaultSeries)
		}
		if ts.StartYear == 0 {
			ts.StartYear = timeseries.DefaultStartYear
		}
		if ts.EndYear == 0 {
			ts.EndYear = time.Now().Year()
		}
		if ts.APIKey == "" {
			ts.APIKey = c.BLS.APIKey
		}
		ts.MaxYears = timeseries.ClampMaxYears(ts.MaxYears, ts.APIKey != "")
		out = append(out, ts)
	}
	return out
}

// Series is the {series} substitution of the source's patterns
func (d *DirectorySourceConfig) Series() string {
	if d.series == "" {
		return d.ID
	}
	return d.series
}

func (c *Config) Validate() error {
	var errs []error

	if err := c.Destination.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("destination: %w", err))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Runner.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("runner.concurrency must not be negative"))
	}
	if c.HTTP.Retry.MaxTries == 0 {
		errs = append(errs, fmt.Errorf("http.retry.max_tries must be at least 1"))
	}

	ids := map[string]bool{}
	keys := map[string]string{}
	checkID := func(kind, id string) {
		if err := validateSourceID(id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			return
		}
		if ids[id] {
			errs = append(errs, fmt.Errorf("%s: duplicate source id %q", kind, id))
		}
		ids[id] = true
	}

	for _, d := range c.Sources() {
		checkID("directory", d.ID)
		if !isValidURL(d.URL) {
			errs = append(errs, fmt.Errorf("directory %q: invalid url %q", d.ID, d.URL))
		}
		if _, err := newFilter(d); err != nil {
			errs = append(errs, fmt.Errorf("directory %q: %w", d.ID, err))
		}
	}
	for _, r := range c.ResourceSources() {
		checkID("resource", r.ID)
		if !isValidURL(r.URL) {
			errs = append(errs, fmt.Errorf("resource %q: invalid url %q", r.ID, r.URL))
		}
		if other, ok := keys[r.Key]; ok {
			errs = append(errs, fmt.Errorf("resource %q: key %q already used by %q", r.ID, r.Key, other))
		}
		keys[r.Key] = r.ID
	}
	for _, ts := range c.TimeseriesSources() {
		checkID("timeseries", ts.ID)
		if !isValidURL(ts.URL) {
			errs = append(errs, fmt.Errorf("timeseries %q: invalid url %q", ts.ID, ts.URL))
		}
		if ts.EndYear < ts.StartYear {
			errs = append(errs, fmt.Errorf("timeseries %q: end_year %d before start_year %d", ts.ID, ts.EndYear, ts.StartYear))
		}
		if other, ok := keys[ts.Key]; ok {
			errs = append(errs, fmt.Errorf("timeseries %q: key %q already used by %q", ts.ID, ts.Key, other))
		}
		keys[ts.Key] = ts.ID
	}

	return errors.Join(errs...)
}
