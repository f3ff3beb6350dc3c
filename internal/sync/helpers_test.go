package sync

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/fomcagent/datasync/internal/blob"
	"github.com/fomcagent/datasync/internal/db"
	"github.com/fomcagent/datasync/internal/fetch"
	"github.com/fomcagent/datasync/internal/listing"
	"github.com/fomcagent/datasync/internal/lock"
	"github.com/fomcagent/datasync/internal/state"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)

// countingStore records calls made against a real sqlite store and can
// inject failures per key.
type countingStore struct {
	blob.Store

	mu          stdsync.Mutex
	contentPuts []string
	deletes     []string
	failPut     map[string]error
	failDelete  map[string]error
	failHead    map[string]error
}

func newCountingStore(t *testing.T) *countingStore {
	t.Helper()
	conn, err := db.NewSqliteDB()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store, err := blob.NewSQLiteStore(conn, "test")
	require.NoError(t, err)
	return &countingStore{
		Store:      store,
		failPut:    map[string]error{},
		failDelete: map[string]error{},
		failHead:   map[string]error{},
	}
}

func (c *countingStore) Head(ctx context.Context, key string) (*blob.ObjectInfo, error) {
	c.mu.Lock()
	err := c.failHead[key]
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.Store.Head(ctx, key)
}

func (c *countingStore) Put(ctx context.Context, params *blob.PutParams) (*blob.ObjectInfo, error) {
	c.mu.Lock()
	err := c.failPut[params.Key]
	if err == nil && !strings.HasPrefix(params.Key, state.Namespace+"/") {
		c.contentPuts = append(c.contentPuts, params.Key)
	}
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.Store.Put(ctx, params)
}

func (c *countingStore) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	c.deletes = append(c.deletes, key)
	err := c.failDelete[key]
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.Store.Delete(ctx, key)
}

func (c *countingStore) resetCounts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contentPuts = nil
	c.deletes = nil
}

func (c *countingStore) putCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.contentPuts)
}

type remoteFile struct {
	modified string
	body     string
}

// remoteDir serves an anchor-first directory listing under /pr/
type remoteDir struct {
	mu       stdsync.Mutex
	files    map[string]remoteFile
	status   map[string]int
	gets     map[string]int
	listings int
	srv      *httptest.Server
}

func newRemoteDir(t *testing.T) *remoteDir {
	t.Helper()
	r := &remoteDir{
		files:  map[string]remoteFile{},
		status: map[string]int{},
		gets:   map[string]int{},
	}
	r.srv = httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *remoteDir) URL() string {
	return r.srv.URL + "/pr/"
}

func (r *remoteDir) set(name, modified, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[name] = remoteFile{modified: modified, body: body}
}

func (r *remoteDir) remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, name)
}

func (r *remoteDir) setStatus(name string, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[name] = code
}

func (r *remoteDir) clearStatus(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.status, name)
}

func (r *remoteDir) fileGets(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets[name]
}

func (r *remoteDir) serve(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := strings.TrimPrefix(req.URL.Path, "/pr/")
	if name == "" {
		r.listings++
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, r.renderListing())
		return
	}

	r.gets[name]++
	if code, ok := r.status[name]; ok {
		w.WriteHeader(code)
		return
	}
	f, ok := r.files[name]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	fmt.Fprint(w, f.body)
}

func (r *remoteDir) renderListing() string {
	names := make([]string, 0, len(r.files))
	for name := range r.files {
		names = append(names, name)
	}
	slices.Sort(names)

	var b strings.Builder
	b.WriteString("<html><body><pre>\n")
	b.WriteString(`<a href="/pub/">[To Parent Directory]</a>` + "\n")
	for _, name := range names {
		f := r.files[name]
		fmt.Fprintf(&b, "<a href=\"%s\">%s</a>      %s       %d\n", name, name, f.modified, len(f.body))
	}
	b.WriteString("</pre></body></html>")
	return b.String()
}

func testFetcher() *fetch.Client {
	return fetch.NewClient(&fetch.Config{
		UserAgent: "datasync-test",
		Retry: fetch.RetryPolicy{
			MaxTries:        3,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
			Multiplier:      2,
		},
	})
}

func testDeps(store blob.Store) Deps {
	return Deps{
		Fetcher: testFetcher(),
		Blobs:   store,
		Locker:  lock.NewMemoryLocker(),
		Parser:  listing.NewParser(time.UTC),
		Clock:   func() time.Time { return testNow },
	}
}
