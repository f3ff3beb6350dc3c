package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fomcagent/datasync/internal/blob"
	"github.com/fomcagent/datasync/internal/state"
	"github.com/google/uuid"
)

// publishRun identifies one single-object run
type publishRun struct {
	id      string
	now     time.Time
	started time.Time
	log     *slog.Logger
}

func newPublishRun(deps Deps, sourceID string) *publishRun {
	id := uuid.New().String()
	return &publishRun{
		id:      id,
		now:     deps.Clock(),
		started: time.Now(),
		log:     slog.With("source", sourceID, "run", id),
	}
}

// publication is a single destination object written only when its content
// hash differs from the content_hash metadata of the stored object
type publication struct {
	sourceID    string
	key         string
	url         string
	fingerprint string
	contentType string
	metadata    map[string]string
	encode      func() ([]byte, error)
	stats       func() resourceStats
}

func publish(ctx context.Context, deps Deps, states *state.Store, p *publication, run *publishRun) (*ResourceSummary, error) {
	release, err := deps.Locker.Acquire(ctx, p.sourceID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(); err != nil {
			run.log.Warn("release lock", "error", err)
		}
	}()

	summary := &ResourceSummary{
		SourceID:    p.sourceID,
		RunID:       run.id,
		Fingerprint: p.fingerprint,
	}

	info, err := deps.Blobs.Head(ctx, p.key)
	if err != nil && !errors.Is(err, blob.ErrObjectNotFound) {
		return nil, &DestinationError{Op: "head", Key: p.key, Err: err}
	}

	if stored, _ := info.Meta(MetaContentHash); stored == p.fingerprint {
		summary.Action = state.ActionUnchanged
		summary.Duration = time.Since(run.started)
		entry := state.ChangeLogEntry{
			Timestamp:   run.now,
			RunID:       run.id,
			Action:      state.ActionUnchanged,
			Item:        p.key,
			Fingerprint: p.fingerprint,
		}
		if err := states.AppendLog(ctx, p.sourceID, entry); err != nil {
			return summary, &DestinationError{Op: "append log", Key: state.LogKey(p.sourceID), Err: err}
		}
		run.log.Info("resource unchanged", "summary", summary)
		return summary, nil
	}

	// all reads of prior state happen before the first write
	prior, err := states.LoadResource(ctx, p.sourceID)
	if errors.Is(err, state.ErrStateCorrupt) {
		run.log.Warn("state corrupt, replacing it", "error", err)
	} else if err != nil {
		return nil, &DestinationError{Op: "load state", Key: state.StateKey(p.sourceID), Err: err}
	}

	body, err := p.encode()
	if err != nil {
		return nil, err
	}
	metadata := map[string]string{
		MetaContentHash: p.fingerprint,
		MetaSourceURL:   p.url,
		MetaRunID:       run.id,
	}
	for k, v := range p.metadata {
		metadata[k] = v
	}
	if _, err := deps.Blobs.Put(ctx, &blob.PutParams{
		Key:         p.key,
		Body:        body,
		ContentType: p.contentType,
		Metadata:    metadata,
	}); err != nil {
		return nil, &DestinationError{Op: "put", Key: p.key, Err: err}
	}

	stats := p.stats()
	next := &state.ResourceState{
		SourceID:    p.sourceID,
		LastSync:    run.now,
		ContentHash: p.fingerprint,
		RecordCount: stats.records,
		YearRange:   stats.years,
		ValueRange:  stats.values,
		APIURL:      p.url,
	}
	if prior != nil && prior.ContentHash != "" {
		run.log.Debug("replacing resource", "previous", prior.ContentHash)
	}
	if err := states.SaveResource(ctx, next); err != nil {
		return nil, &DestinationError{Op: "save state", Key: state.StateKey(p.sourceID), Err: err}
	}

	summary.Action = state.ActionUpdated
	if stats.found {
		count := stats.records
		summary.RecordCount = &count
	}
	summary.Duration = time.Since(run.started)

	size := int64(len(body))
	entry := state.ChangeLogEntry{
		Timestamp:   run.now,
		RunID:       run.id,
		Action:      state.ActionUpdated,
		Item:        p.key,
		Bytes:       &size,
		Fingerprint: p.fingerprint,
		RecordCount: summary.RecordCount,
	}
	if err := states.AppendLog(ctx, p.sourceID, entry); err != nil {
		return summary, &DestinationError{Op: "append log", Key: state.LogKey(p.sourceID), Err: err}
	}

	run.log.Info("resource updated", "summary", summary)
	return summary, nil
}
