// Package state persists per-source snapshots and change logs next to the
// synchronized data, under the `_sync_state/{source_id}/` namespace.
package state

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/fomcagent/datasync/internal/blob"
	"github.com/fomcagent/datasync/internal/codec"
)

const (
	contentTypeJSON   = "application/json"
	contentTypeNDJSON = "application/x-ndjson"
)

type Store struct {
	blobs blob.Store
}

func NewStore(blobs blob.Store) *Store {
	return &Store{blobs: blobs}
}

// LoadSource returns the directory snapshot for sourceID. A missing snapshot
// yields an empty state. A snapshot that does not decode also yields an empty
// state, together with an error wrapping ErrStateCorrupt, so the caller can
// report it and carry on with a full re-sync.
func (s *Store) LoadSource(ctx context.Context, sourceID string) (*SourceState, error) {
	st := NewSourceState(sourceID)
	err := s.load(ctx, StateKey(sourceID), st)
	if err != nil {
		if errors.Is(err, ErrStateCorrupt) {
			return NewSourceState(sourceID), err
		}
		return nil, err
	}
	if st.Files == nil {
		st.Files = make(map[string]FileRecord)
	}
	for name, rec := range st.Files {
		if rec.Filename == "" {
			rec.Filename = name
			st.Files[name] = rec
		}
	}
	st.SourceID = sourceID
	return st, nil
}

// LoadResource is LoadSource for single resources. A missing snapshot has
// an empty ContentHash.
func (s *Store) LoadResource(ctx context.Context, sourceID string) (*ResourceState, error) {
	st := &ResourceState{SourceID: sourceID}
	if err := s.load(ctx, StateKey(sourceID), st); err != nil {
		if errors.Is(err, ErrStateCorrupt) {
			return &ResourceState{SourceID: sourceID}, err
		}
		return nil, err
	}
	st.SourceID = sourceID
	return st, nil
}

func (s *Store) SaveSource(ctx context.Context, st *SourceState) error {
	return s.save(ctx, StateKey(st.SourceID), st)
}

func (s *Store) SaveResource(ctx context.Context, st *ResourceState) error {
	return s.save(ctx, StateKey(st.SourceID), st)
}

func (s *Store) load(ctx context.Context, key string, v any) error {
	obj, err := s.blobs.Get(ctx, key)
	if errors.Is(err, blob.ErrObjectNotFound) {
		return nil
	} else if err != nil {
		return fmt.Errorf("load state %s: %w", key, err)
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return fmt.Errorf("load state %s: %w", key, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrStateCorrupt, key)
	}
	if err := codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStateCorrupt, key, err)
	}
	return nil
}

func (s *Store) save(ctx context.Context, key string, v any) error {
	data, err := codec.MarshalIndent(v)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", key, err)
	}
	if _, err := s.blobs.Put(ctx, &blob.PutParams{
		Key:         key,
		Body:        data,
		ContentType: contentTypeJSON,
	}); err != nil {
		return fmt.Errorf("save state %s: %w", key, err)
	}
	return nil
}

// AppendLog adds entries to the end of the change log of sourceID. The
// destination has no append primitive, so the whole log is read and
// rewritten; callers must hold the source lock.
func (s *Store) AppendLog(ctx context.Context, sourceID string, entries ...ChangeLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	key := LogKey(sourceID)

	existing, err := s.readAll(ctx, key)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Grow(len(existing) + len(entries)*160)
	buf.Write(existing)
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		buf.WriteByte('\n')
	}
	for _, entry := range entries {
		line, err := codec.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode log entry: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	if _, err := s.blobs.Put(ctx, &blob.PutParams{
		Key:         key,
		Body:        buf.Bytes(),
		ContentType: contentTypeNDJSON,
	}); err != nil {
		return fmt.Errorf("write log %s: %w", key, err)
	}
	return nil
}

// ReadLog returns the last limit entries of the change log, oldest first.
// limit <= 0 returns everything. Lines that do not decode are skipped.
func (s *Store) ReadLog(ctx context.Context, sourceID string, limit int) ([]ChangeLogEntry, error) {
	key := LogKey(sourceID)
	data, err := s.readAll(ctx, key)
	if err != nil {
		return nil, err
	}

	var entries []ChangeLogEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry ChangeLogEntry
		if err := codec.Unmarshal(line, &entry); err != nil {
			slog.WarnContext(ctx, "skipping bad log line", "key", key, "line", lineNo, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log %s: %w", key, err)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func (s *Store) readAll(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.blobs.Get(ctx, key)
	if errors.Is(err, blob.ErrObjectNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}
