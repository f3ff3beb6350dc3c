package state

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/fomcagent/datasync/internal/blob"
	"github.com/fomcagent/datasync/internal/codec"
	"github.com/fomcagent/datasync/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, blob.Store) {
	t.Helper()
	conn, err := db.NewSqliteDB()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	blobs, err := blob.NewSQLiteStore(conn, "test")
	require.NoError(t, err)
	return NewStore(blobs), blobs
}

func TestLoadSource_Missing(t *testing.T) {
	store, _ := newTestStore(t)

	st, err := store.LoadSource(context.Background(), "bls-pr")
	require.NoError(t, err)
	assert.Equal(t, "bls-pr", st.SourceID)
	assert.Empty(t, st.Files)
	assert.True(t, st.LastSync.IsZero())
}

func TestSaveLoadSource(t *testing.T) {
	ctx := context.Background()
	store, blobs := newTestStore(t)

	modified := time.Date(2026, 1, 15, 8, 30, 0, 0, time.UTC)
	st := NewSourceState("bls-pr")
	st.LastSync = time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)
	st.Files["pr.series"] = FileRecord{Filename: "pr.series", SourceModified: modified, SizeBytes: 34567}
	require.NoError(t, store.SaveSource(ctx, st))

	info, err := blobs.Head(ctx, "_sync_state/bls-pr/latest_state.json")
	require.NoError(t, err)
	assert.Equal(t, "application/json", info.ContentType)

	loaded, err := store.LoadSource(ctx, "bls-pr")
	require.NoError(t, err)
	assert.True(t, loaded.Known("pr.series"))
	assert.False(t, loaded.Known("pr.class"))
	assert.Equal(t, int64(34567), loaded.Files["pr.series"].SizeBytes)
	assert.True(t, modified.Equal(loaded.Files["pr.series"].SourceModified))
	assert.True(t, st.LastSync.Equal(loaded.LastSync))
}

func TestLoadSource_CorruptFailsOpen(t *testing.T) {
	ctx := context.Background()
	store, blobs := newTestStore(t)

	for _, body := range []string{"{not json", "", "   "} {
		_, err := blobs.Put(ctx, &blob.PutParams{Key: StateKey("bls-pr"), Body: []byte(body)})
		require.NoError(t, err)

		st, err := store.LoadSource(ctx, "bls-pr")
		assert.ErrorIs(t, err, ErrStateCorrupt)
		require.NotNil(t, st)
		assert.Empty(t, st.Files)
		assert.Equal(t, "bls-pr", st.SourceID)
	}
}

func TestLoadSource_FillsMissingFields(t *testing.T) {
	ctx := context.Background()
	store, blobs := newTestStore(t)

	body := `{"source_id": "other", "files": {"a.csv": {"source_modified": "2026-01-15T08:30:00Z", "bytes": 3}}}`
	_, err := blobs.Put(ctx, &blob.PutParams{Key: StateKey("bls-pr"), Body: []byte(body)})
	require.NoError(t, err)

	st, err := store.LoadSource(ctx, "bls-pr")
	require.NoError(t, err)
	assert.Equal(t, "bls-pr", st.SourceID)
	assert.Equal(t, "a.csv", st.Files["a.csv"].Filename)
	assert.Equal(t, int64(3), st.Files["a.csv"].SizeBytes)
}

func readStateDoc(t *testing.T, blobs blob.Store, key string) map[string]any {
	t.Helper()
	obj, err := blobs.Get(context.Background(), key)
	require.NoError(t, err)
	defer obj.Body.Close()
	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, codec.Unmarshal(data, &doc))
	return doc
}

func TestSaveSource_FileRecordKeys(t *testing.T) {
	ctx := context.Background()
	store, blobs := newTestStore(t)

	st := NewSourceState("bls-pr")
	st.Files["a"] = FileRecord{
		Filename:       "a",
		SourceModified: time.Date(2026, 1, 15, 8, 30, 0, 0, time.UTC),
		SizeBytes:      3,
	}
	require.NoError(t, store.SaveSource(ctx, st))

	doc := readStateDoc(t, blobs, StateKey("bls-pr"))
	files, ok := doc["files"].(map[string]any)
	require.True(t, ok)
	rec, ok := files["a"].(map[string]any)
	require.True(t, ok)

	assert.Len(t, rec, 2)
	assert.Equal(t, "2026-01-15T08:30:00Z", rec["source_modified"])
	assert.EqualValues(t, 3, rec["bytes"])
	assert.NotContains(t, rec, "filename")
}

func TestLoadSource_LegacyZonelessState(t *testing.T) {
	ctx := context.Background()
	store, blobs := newTestStore(t)

	body := `{
  "series": "pr",
  "last_sync": "2026-01-16T00:00:00.123456+00:00",
  "files": {
    "a": {"source_modified": "2026-01-15T08:30:00", "bytes": 3},
    "b": {"source_modified": "2026-01-14T08:30:00", "bytes": 4},
    "c": {"source_modified": "whenever", "bytes": 5}
  }
}`
	_, err := blobs.Put(ctx, &blob.PutParams{Key: StateKey("pr"), Body: []byte(body)})
	require.NoError(t, err)

	st, err := store.LoadSource(ctx, "pr")
	require.NoError(t, err)
	require.Len(t, st.Files, 3)
	assert.True(t, st.Known("a"))
	assert.True(t, st.Known("b"))

	assert.Equal(t, time.Date(2026, 1, 15, 8, 30, 0, 0, time.UTC), st.Files["a"].SourceModified)
	assert.Equal(t, int64(4), st.Files["b"].SizeBytes)
	assert.True(t, st.Files["c"].SourceModified.IsZero())
	assert.Equal(t, int64(5), st.Files["c"].SizeBytes)
	assert.Equal(t, 2026, st.LastSync.Year())
}

func TestParseTime(t *testing.T) {
	ny := time.FixedZone("EST", -5*60*60)

	got, err := ParseTime("2026-01-15T08:30:00Z", ny)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 15, 8, 30, 0, 0, time.UTC), got.UTC())

	got, err = ParseTime("2026-01-15T08:30:00", ny)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 15, 13, 30, 0, 0, time.UTC), got.UTC())

	got, err = ParseTime("2026-01-15 08:30:00.5", nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 15, 8, 30, 0, 500000000, time.UTC), got)

	_, err = ParseTime("not-a-time", time.UTC)
	assert.Error(t, err)
}

func TestResourceState(t *testing.T) {
	ctx := context.Background()
	store, blobs := newTestStore(t)

	st, err := store.LoadResource(ctx, "datausa-population")
	require.NoError(t, err)
	assert.Empty(t, st.ContentHash)

	st.ContentHash = "0123456789abcdef"
	st.RecordCount = 10
	st.YearRange = []string{"2013", "2022"}
	st.ValueRange = &NumberRange{Min: 316128839, Max: 333287557}
	st.APIURL = "https://example.com/api"
	require.NoError(t, store.SaveResource(ctx, st))

	loaded, err := store.LoadResource(ctx, "datausa-population")
	require.NoError(t, err)
	assert.Equal(t, st.ContentHash, loaded.ContentHash)
	assert.Equal(t, YearRange{"2013", "2022"}, loaded.YearRange)
	assert.Equal(t, 333287557.0, loaded.ValueRange.Max)

	doc := readStateDoc(t, blobs, StateKey("datausa-population"))
	assert.Equal(t, []any{2013.0, 2022.0}, doc["year_range"])

	_, err = blobs.Put(ctx, &blob.PutParams{Key: StateKey("datausa-population"), Body: []byte("[")})
	require.NoError(t, err)
	loaded, err = store.LoadResource(ctx, "datausa-population")
	assert.ErrorIs(t, err, ErrStateCorrupt)
	assert.Empty(t, loaded.ContentHash)
}

func TestAppendLog(t *testing.T) {
	ctx := context.Background()
	store, blobs := newTestStore(t)

	ts := time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)
	size := int64(10)
	require.NoError(t, store.AppendLog(ctx, "bls-pr",
		ChangeLogEntry{Timestamp: ts, Action: ActionAdded, Item: "a", SourceModified: &ts, Bytes: &size},
		ChangeLogEntry{Timestamp: ts, Action: ActionAdded, Item: "b"},
	))
	require.NoError(t, store.AppendLog(ctx, "bls-pr",
		ChangeLogEntry{Timestamp: ts, Action: ActionDeleted, Item: "b"},
	))
	require.NoError(t, store.AppendLog(ctx, "bls-pr"))

	obj, err := blobs.Get(ctx, LogKey("bls-pr"))
	require.NoError(t, err)
	raw, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"action":"added"`)
	assert.Contains(t, lines[0], `"bytes":10`)
	assert.NotContains(t, lines[2], "source_modified")

	entries, err := store.ReadLog(ctx, "bls-pr", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ActionDeleted, entries[2].Action)
	assert.Equal(t, int64(10), *entries[0].Bytes)

	tail, err := store.ReadLog(ctx, "bls-pr", 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "b", tail[0].Item)
}

func TestAppendLog_RepairsMissingNewline(t *testing.T) {
	ctx := context.Background()
	store, blobs := newTestStore(t)

	_, err := blobs.Put(ctx, &blob.PutParams{
		Key:  LogKey("s"),
		Body: []byte(`{"timestamp":"2026-01-01T00:00:00Z","action":"added","item":"x"}` + "\ngarbage"),
	})
	require.NoError(t, err)

	require.NoError(t, store.AppendLog(ctx, "s", ChangeLogEntry{Action: ActionUnchanged, Item: "x"}))

	entries, err := store.ReadLog(ctx, "s", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ActionUnchanged, entries[1].Action)
}

func TestReadLog_Missing(t *testing.T) {
	store, _ := newTestStore(t)
	entries, err := store.ReadLog(context.Background(), "nothing", 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "_sync_state/bls-pr/latest_state.json", StateKey("bls-pr"))
	assert.Equal(t, "_sync_state/bls-pr/sync_log.jsonl", LogKey("bls-pr"))
	assert.Equal(t, "_sync_state/bls-pr/", Prefix("bls-pr"))

	assert.NoError(t, ValidateSourceID("bls-pr"))
	assert.NoError(t, ValidateSourceID("datausa.population_v2"))
	for _, bad := range []string{"", "..", "a/b", "-lead", "sp ace", strings.Repeat("x", 129)} {
		assert.ErrorIs(t, ValidateSourceID(bad), ErrInvalidSourceID, bad)
	}
}

func TestYearRange_JSON(t *testing.T) {
	data, err := codec.Marshal(YearRange{"2013", "2022"})
	require.NoError(t, err)
	assert.JSONEq(t, `[2013, 2022]`, string(data))

	data, err = codec.Marshal(YearRange{"2013", "2022-Q1"})
	require.NoError(t, err)
	assert.JSONEq(t, `["2013", "2022-Q1"]`, string(data))

	var r YearRange
	require.NoError(t, codec.Unmarshal([]byte(`[2013, "2022"]`), &r))
	assert.Equal(t, YearRange{"2013", "2022"}, r)

	assert.Error(t, codec.Unmarshal([]byte(`[true]`), &r))
}
