package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/fomcagent/datasync/internal/blob"
	"github.com/fomcagent/datasync/internal/listing"
	"github.com/fomcagent/datasync/internal/state"
	"github.com/fomcagent/datasync/internal/utils"
	"github.com/google/uuid"
)

// DirectorySource is a remote HTML directory mirrored under Prefix
type DirectorySource struct {
	ID     string
	URL    string
	Prefix string
	// Filter narrows which listed files are synced. Deletion always compares
	// against the full listing, so narrowing never removes objects.
	Filter            *listing.Filter
	AllowEmptyListing bool
}

// ObjectKey is the destination key of a listed file
func (s *DirectorySource) ObjectKey(filename string) string {
	if s.Prefix == "" {
		return filename
	}
	return path.Join(s.Prefix, filename)
}

// DirectorySyncer reconciles the destination with a remote directory listing,
// writing only files whose listing timestamp moved past the one recorded on
// the destination object.
type DirectorySyncer struct {
	source DirectorySource
	deps   Deps
	states *state.Store
}

func NewDirectorySyncer(source DirectorySource, deps Deps) *DirectorySyncer {
	deps = deps.withDefaults()
	return &DirectorySyncer{
		source: source,
		deps:   deps,
		states: deps.states(),
	}
}

func (s *DirectorySyncer) SourceID() string {
	return s.source.ID
}

// directoryRun is the mutable state of one Sync call
type directoryRun struct {
	runID   string
	now     time.Time
	log     *slog.Logger
	state   *state.SourceState
	summary *DirectorySummary
	entries []state.ChangeLogEntry
}

func (r *directoryRun) append(entry state.ChangeLogEntry) {
	entry.Timestamp = r.now
	entry.RunID = r.runID
	r.entries = append(r.entries, entry)
}

// Sync runs one reconciliation. Per-file failures are collected in the
// summary; an error is returned only when the run as a whole could not
// complete, in which case the persisted state is left untouched unless a
// summary is also returned.
func (s *DirectorySyncer) Sync(ctx context.Context) (*DirectorySummary, error) {
	started := time.Now()
	run := &directoryRun{
		runID: uuid.New().String(),
		now:   s.deps.Clock(),
	}
	run.log = slog.With("source", s.source.ID, "run", run.runID)
	run.summary = newDirectorySummary(s.source.ID, run.runID)

	page, err := s.deps.Fetcher.GetText(ctx, s.source.URL)
	if err != nil {
		return nil, &FetchError{URL: s.source.URL, Err: err}
	}
	files := s.deps.Parser.Parse(page)
	run.log.Debug("listing parsed", "url", s.source.URL, "files", len(files))

	release, err := s.deps.Locker.Acquire(ctx, s.source.ID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(); err != nil {
			run.log.Warn("release lock", "error", err)
		}
	}()

	run.state, err = s.states.LoadSource(ctx, s.source.ID)
	if errors.Is(err, state.ErrStateCorrupt) {
		run.log.Warn("state corrupt, starting from empty state", "error", err)
	} else if err != nil {
		return nil, &DestinationError{Op: "load state", Key: state.StateKey(s.source.ID), Err: err}
	}

	if len(files) == 0 && len(run.state.Files) > 0 && !s.source.AllowEmptyListing {
		return nil, fmt.Errorf("%w: %s lists no files but %d are known", ErrEmptyListing, s.source.URL, len(run.state.Files))
	}

	known := mapset.NewThreadUnsafeSet[string]()
	for name := range run.state.Files {
		known.Add(name)
	}
	remote := mapset.NewThreadUnsafeSet[string]()

	for _, file := range files {
		if !remote.Add(file.Filename) {
			run.log.Warn("duplicate listing entry", "file", file.Filename)
			continue
		}
		if !s.source.Filter.Match(file.Filename) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.syncFile(ctx, run, known, file)
	}

	deleted := known.Difference(remote).ToSlice()
	slices.Sort(deleted)
	for _, name := range deleted {
		s.deleteFile(ctx, run, name)
	}

	run.state.LastSync = run.now
	if err := s.states.SaveSource(ctx, run.state); err != nil {
		return nil, &DestinationError{Op: "save state", Key: state.StateKey(s.source.ID), Err: err}
	}
	run.summary.Duration = time.Since(started)

	if err := s.states.AppendLog(ctx, s.source.ID, run.entries...); err != nil {
		return run.summary, &DestinationError{Op: "append log", Key: state.LogKey(s.source.ID), Err: err}
	}

	run.log.Info("directory synced", "summary", run.summary)
	return run.summary, nil
}

func (s *DirectorySyncer) syncFile(ctx context.Context, run *directoryRun, known mapset.Set[string], file listing.RemoteFile) {
	key := s.source.ObjectKey(file.Filename)
	if !blob.ValidateKey(key) {
		s.fail(run, file.Filename, "validate", fmt.Errorf("%w: %q", blob.ErrInvalidKey, key))
		return
	}

	info, err := s.deps.Blobs.Head(ctx, key)
	if err != nil && !errors.Is(err, blob.ErrObjectNotFound) {
		s.fail(run, file.Filename, "head", &DestinationError{Op: "head", Key: key, Err: err})
		return
	}
	exists := err == nil

	if exists && !s.needsUpdate(run, file, info) {
		run.summary.record(state.ActionUnchanged, file.Filename)
		modified := file.LastModified
		run.append(state.ChangeLogEntry{
			Action:         state.ActionUnchanged,
			Item:           file.Filename,
			SourceModified: &modified,
		})
		if !run.state.Known(file.Filename) {
			// written by an interrupted run that never saved its state
			run.state.Files[file.Filename] = state.FileRecord{
				Filename:       file.Filename,
				SourceModified: file.LastModified,
				SizeBytes:      info.Size,
			}
			run.log.Info("recorded untracked object", "file", file.Filename)
		}
		return
	}

	fileURL := utils.JoinURL(s.source.URL, file.Filename)
	body, err := s.deps.Fetcher.GetBytes(ctx, fileURL)
	if err != nil {
		s.fail(run, file.Filename, "fetch", &FetchError{URL: fileURL, Err: err})
		return
	}

	metadata := map[string]string{
		MetaSourceURL: fileURL,
		MetaRunID:     run.runID,
	}
	if file.HasTimestamp() {
		metadata[MetaSourceModified] = formatSourceModified(file.LastModified)
	} else {
		metadata[MetaSourceModifiedRaw] = file.RawTimestamp
	}

	if _, err := s.deps.Blobs.Put(ctx, &blob.PutParams{
		Key:         key,
		Body:        body,
		ContentType: utils.DetectContentType(file.Filename, body),
		Metadata:    metadata,
	}); err != nil {
		s.fail(run, file.Filename, "put", &DestinationError{Op: "put", Key: key, Err: err})
		return
	}

	action := state.ActionAdded
	if known.Contains(file.Filename) {
		action = state.ActionUpdated
	}
	size := int64(len(body))
	run.state.Files[file.Filename] = state.FileRecord{
		Filename:       file.Filename,
		SourceModified: file.LastModified,
		SizeBytes:      size,
	}
	run.summary.record(action, file.Filename)

	entry := state.ChangeLogEntry{Action: action, Item: file.Filename, Bytes: &size}
	if file.HasTimestamp() {
		modified := file.LastModified
		entry.SourceModified = &modified
	}
	run.append(entry)
	run.log.Info("file written", "file", file.Filename, "action", action, "size", size)
}

// needsUpdate compares the listing timestamp with the one recorded on the
// destination object. Anything that cannot be compared is rewritten.
func (s *DirectorySyncer) needsUpdate(run *directoryRun, file listing.RemoteFile, info *blob.ObjectInfo) bool {
	if !file.HasTimestamp() {
		run.log.Warn("forcing update", "file", file.Filename, "error", fmt.Errorf("%w: %q", listing.ErrParse, file.RawTimestamp))
		return true
	}
	stored, ok := info.Meta(MetaSourceModified)
	if !ok || stored == "" {
		return true
	}
	storedTime, err := ParseSourceModified(stored, s.deps.Parser.Location)
	if err != nil {
		run.log.Warn("forcing update, bad stored timestamp", "file", file.Filename, "value", stored)
		return true
	}
	return file.LastModified.After(storedTime)
}

func (s *DirectorySyncer) deleteFile(ctx context.Context, run *directoryRun, name string) {
	key := s.source.ObjectKey(name)
	entry := state.ChangeLogEntry{Action: state.ActionDeleted, Item: name}

	if err := s.deps.Blobs.Delete(ctx, key); err != nil {
		// best effort: the file is gone upstream either way
		run.log.Warn("delete failed", "file", name, "key", key, "error", err)
		failure := newItemFailure(name, "delete", &DestinationError{Op: "delete", Key: key, Err: err})
		run.summary.Failed = append(run.summary.Failed, failure)
		entry.Error = failure.Error
	} else {
		run.log.Info("file deleted", "file", name)
	}

	delete(run.state.Files, name)
	run.summary.record(state.ActionDeleted, name)
	run.append(entry)
}

func (s *DirectorySyncer) fail(run *directoryRun, name, op string, err error) {
	run.log.Error("file sync failed", "file", name, "op", op, "error", err)
	failure := newItemFailure(name, op, err)
	run.summary.Failed = append(run.summary.Failed, failure)
	run.append(state.ChangeLogEntry{
		Action: state.ActionFailed,
		Item:   name,
		Error:  failure.Error,
	})
}
