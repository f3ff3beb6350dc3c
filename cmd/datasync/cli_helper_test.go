package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	stdsync "sync"
	"testing"

	"github.com/fomcagent/datasync/internal/codec"
	"github.com/stretchr/testify/require"
)

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}

// runCLI executes a fresh root command and returns stdout and stderr
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stripANSI(stdout.String()), stripANSI(stderr.String()), err
}

// fakeUpstream serves a bls-style directory tree under /bls/{series}/, a
// JSON resource at /api/population and a timeseries API at /api/timeseries.
type fakeUpstream struct {
	mu         stdsync.Mutex
	files      map[string]string
	modified   string
	population string
	failList   bool
	srv        *httptest.Server
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	u := &fakeUpstream{
		files: map[string]string{
			"pr.data.0.Current": "series_id\tyear\tperiod\tvalue\nPRS30006011\t2025\tQ01\t1.2\n",
			"pr.series":         "series_id\tseries_title\n",
		},
		modified:   "1/29/2026  8:30 AM",
		population: `{"data":[{"Year":"2022","Population":331097593},{"Year":"2023","Population":332387540}]}`,
	}
	u.srv = httptest.NewServer(http.HandlerFunc(u.serve))
	t.Cleanup(u.srv.Close)
	return u
}

func (u *fakeUpstream) setFile(name, body, modified string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.files[name] = body
	u.modified = modified
}

func (u *fakeUpstream) setFailList(fail bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failList = fail
}

func (u *fakeUpstream) serve(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch {
	case r.URL.Path == "/api/population":
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, u.population)
	case r.URL.Path == "/api/timeseries" && r.Method == http.MethodPost:
		var req struct {
			SeriesIDs []string `json:"seriesid"`
			StartYear string   `json:"startyear"`
		}
		if err := codec.NewDecoder(r.Body).Decode(&req); err != nil || len(req.SeriesIDs) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"REQUEST_SUCCEEDED","message":[],"Results":{"series":[{"seriesID":%q,"data":[{"year":%q,"period":"M01","value":"4.0","footnotes":[{}]}]}]}}`,
			req.SeriesIDs[0], req.StartYear)
	case r.URL.Path == "/bls/pr/":
		if u.failList {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><H1>download.bls.gov - /pub/time.series/pr/</H1><hr><pre>`)
		fmt.Fprint(w, `<A HREF="/pub/time.series/">[To Parent Directory]</A><br><br>`)
		for _, name := range []string{"pr.data.0.Current", "pr.series"} {
			body, ok := u.files[name]
			if !ok {
				continue
			}
			fmt.Fprintf(w, ` %s        %d <A HREF="/bls/pr/%s">%s</A><br>`, u.modified, len(body), name, name)
		}
		fmt.Fprint(w, `</pre><hr></body></html>`)
	case strings.HasPrefix(r.URL.Path, "/bls/pr/"):
		body, ok := u.files[strings.TrimPrefix(r.URL.Path, "/bls/pr/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, body)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// writeTestConfig points a sqlite destination and lock dir at t.TempDir()
func writeTestConfig(t *testing.T, upstream *fakeUpstream) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "datasync.yaml")

	yaml := fmt.Sprintf(`destination:
  backend: sqlite
  sqlite:
    path: %s
    bucket_name: test-bucket
http:
  retry:
    max_tries: 1
    initial_interval: 10ms
lock:
  dir: %s
runner:
  delay: 0s
bls:
  base_url: %s/bls
  series: [pr]
resources:
  - id: population
    url: %s/api/population
`,
		filepath.Join(dir, "datasync.db"),
		filepath.Join(dir, "locks"),
		upstream.srv.URL,
		upstream.srv.URL,
	)
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

// appendConfig adds raw yaml to the config written by writeTestConfig
func appendConfig(t *testing.T, path, yaml string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(yaml)
	require.NoError(t, err)
}
