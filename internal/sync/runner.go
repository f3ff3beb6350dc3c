package sync

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Job is one source the Runner can sync
type Job interface {
	SourceID() string
	run(ctx context.Context) Result
}

type Result struct {
	SourceID  string            `json:"source_id"`
	Kind      string            `json:"kind"`
	Directory *DirectorySummary `json:"directory,omitempty"`
	Resource  *ResourceSummary  `json:"resource,omitempty"`
	Err       error             `json:"-"`
	Error     string            `json:"error,omitempty"`
}

// Failed reports a run-level error or any per-item failure
func (r *Result) Failed() bool {
	return r.Err != nil || (r.Directory != nil && r.Directory.HasFailures())
}

func (s *DirectorySyncer) run(ctx context.Context) Result {
	summary, err := s.Sync(ctx)
	return newResult(s.source.ID, "directory", summary, nil, err)
}

func (s *ResourceSyncer) run(ctx context.Context) Result {
	summary, err := s.Sync(ctx)
	return newResult(s.source.ID, "resource", nil, summary, err)
}

func (s *TimeseriesSyncer) run(ctx context.Context) Result {
	summary, err := s.Sync(ctx)
	return newResult(s.source.ID, "timeseries", nil, summary, err)
}

func newResult(id, kind string, dir *DirectorySummary, res *ResourceSummary, err error) Result {
	r := Result{SourceID: id, Kind: kind, Directory: dir, Resource: res, Err: err}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Runner syncs many sources. Sources never share state, so they may run in
// parallel up to Concurrency. With a concurrency of one, Delay is waited
// between consecutive sources to stay polite with the remote host.
type Runner struct {
	Jobs        []Job
	Concurrency int
	Delay       time.Duration
}

type Report struct {
	Results []Result `json:"results"`
}

func (r *Report) Failures() int {
	n := 0
	for i := range r.Results {
		if r.Results[i].Failed() {
			n++
		}
	}
	return n
}

// Run syncs every job and returns once all have finished. A failing source
// does not stop the others.
func (r *Runner) Run(ctx context.Context) *Report {
	results := make([]Result, len(r.Jobs))

	if r.Concurrency <= 1 {
		for i, job := range r.Jobs {
			if i > 0 && r.Delay > 0 {
				if err := sleep(ctx, r.Delay); err != nil {
					results[i] = newResult(job.SourceID(), "", nil, nil, err)
					continue
				}
			}
			results[i] = r.runJob(ctx, job)
		}
		return &Report{Results: results}
	}

	var g errgroup.Group
	g.SetLimit(r.Concurrency)
	for i, job := range r.Jobs {
		g.Go(func() error {
			results[i] = r.runJob(ctx, job)
			return nil
		})
	}
	g.Wait()

	return &Report{Results: results}
}

func (r *Runner) runJob(ctx context.Context, job Job) Result {
	if err := ctx.Err(); err != nil {
		return newResult(job.SourceID(), "", nil, nil, err)
	}
	res := job.run(ctx)
	if res.Err != nil {
		slog.ErrorContext(ctx, "source failed", "source", res.SourceID, "error", res.Err)
	}
	return res
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
