package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/fomcagent/datasync/internal/blob"
	"github.com/fomcagent/datasync/internal/config"
	"github.com/fomcagent/datasync/internal/fetch"
	"github.com/fomcagent/datasync/internal/listing"
	"github.com/fomcagent/datasync/internal/lock"
	"github.com/fomcagent/datasync/internal/sync"
)

// syncEnv wires the configured destination, fetcher and locker together
type syncEnv struct {
	cfg   *config.Config
	store blob.ClosableStore
	deps  sync.Deps
}

func newSyncEnv(ctx context.Context, cfg *config.Config) (*syncEnv, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	locker, err := lock.NewFileLocker(cfg.Lock.Dir, cfg.Lock.Wait)
	if err != nil {
		return nil, err
	}

	store, err := blob.Open(ctx, &cfg.Destination)
	if err != nil {
		return nil, err
	}

	return &syncEnv{
		cfg:   cfg,
		store: store,
		deps: sync.Deps{
			Fetcher: fetch.NewClient(&cfg.HTTP),
			Blobs:   store,
			Locker:  locker,
			Parser:  listing.NewParser(loc),
		},
	}, nil
}

func (e *syncEnv) Close() error {
	return e.store.Close()
}

// directoryJobs returns the directory syncers named in ids, or all of them
func (e *syncEnv) directoryJobs(ids []string) ([]sync.Job, error) {
	var jobs []sync.Job
	seen := map[string]bool{}
	for _, src := range e.cfg.Sources() {
		if len(ids) > 0 && !slices.Contains(ids, src.ID) {
			continue
		}
		source, err := src.DirectorySource()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, sync.NewDirectorySyncer(source, e.deps))
		seen[src.ID] = true
	}
	return jobs, missingIDs(ids, seen, "directory")
}

// resourceJobs returns the resource syncers named in ids, or all of them
func (e *syncEnv) resourceJobs(ids []string) ([]sync.Job, error) {
	var jobs []sync.Job
	seen := map[string]bool{}
	for _, src := range e.cfg.ResourceSources() {
		if len(ids) > 0 && !slices.Contains(ids, src.ID) {
			continue
		}
		jobs = append(jobs, sync.NewResourceSyncer(src.ResourceSource(), e.deps))
		seen[src.ID] = true
	}
	return jobs, missingIDs(ids, seen, "resource")
}

// timeseriesJobs returns the timeseries syncers named in ids, or all of them
func (e *syncEnv) timeseriesJobs(ids []string) ([]sync.Job, error) {
	var jobs []sync.Job
	seen := map[string]bool{}
	for _, src := range e.cfg.TimeseriesSources() {
		if len(ids) > 0 && !slices.Contains(ids, src.ID) {
			continue
		}
		jobs = append(jobs, sync.NewTimeseriesSyncer(src.TimeseriesSource(), e.deps))
		seen[src.ID] = true
	}
	return jobs, missingIDs(ids, seen, "timeseries")
}

func missingIDs(ids []string, seen map[string]bool, kind string) error {
	for _, id := range ids {
		if !seen[id] {
			return fmt.Errorf("no %s source with id %q", kind, id)
		}
	}
	return nil
}
