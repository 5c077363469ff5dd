package drive

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/54b3r/drivesearch-go/internal/credential"
	"github.com/54b3r/drivesearch-go/internal/rag"
)

// plainClients hands out a client that stamps the record's token so tests
// can assert which user the call was made as.
type plainClients struct{}

func (plainClients) Client(_ context.Context, rec credential.Record) *http.Client {
	return &http.Client{Transport: bearerTransport{token: rec.AccessToken}}
}

type bearerTransport struct{ token string }

func (b bearerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", "Bearer "+b.token)
	return http.DefaultTransport.RoundTrip(r)
}

// fakeDrive serves a minimal Drive v3 files API.
type fakeDrive struct {
	mu       sync.Mutex
	queries  []string
	auth     []string
	contents map[string]string
	pages    [][]map[string]string
	listErr  bool
}

func (d *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	d.auth = append(d.auth, r.Header.Get("Authorization"))
	d.mu.Unlock()

	switch {
	case r.URL.Path == "/drive/v3/files":
		d.list(w, r)
	case strings.HasPrefix(r.URL.Path, "/drive/v3/files/"):
		d.media(w, r, strings.TrimPrefix(r.URL.Path, "/drive/v3/files/"))
	default:
		http.NotFound(w, r)
	}
}

func (d *fakeDrive) list(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	d.queries = append(d.queries, r.URL.Query().Get("q"))
	d.mu.Unlock()

	if d.listErr {
		writeAPIError(w, http.StatusUnauthorized, "Invalid Credentials")
		return
	}
	page := 0
	if tok := r.URL.Query().Get("pageToken"); tok != "" {
		page = int(tok[0] - '0')
	}
	body := map[string]any{"files": d.pages[page]}
	if page+1 < len(d.pages) {
		body["nextPageToken"] = string(rune('0' + page + 1))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (d *fakeDrive) media(w http.ResponseWriter, r *http.Request, id string) {
	if r.URL.Query().Get("alt") != "media" {
		http.Error(w, "expected alt=media", http.StatusBadRequest)
		return
	}
	switch id {
	case "slow":
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		return
	case "forbidden":
		writeAPIError(w, http.StatusForbidden, "The user does not have sufficient permissions")
		return
	}
	content, ok := d.contents[id]
	if !ok {
		writeAPIError(w, http.StatusNotFound, "File not found: "+id)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(content))
}

func writeAPIError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": msg},
	})
}

func newTestFetcher(t *testing.T, d *fakeDrive, cfg *Config) *Fetcher {
	t.Helper()
	srv := httptest.NewServer(d)
	t.Cleanup(srv.Close)
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Endpoint = srv.URL + "/drive/v3/"
	return NewFetcher(plainClients{}, cfg)
}

var testRecord = credential.Record{AccessToken: "user-token"}

func TestListTextFiles_FollowsPages(t *testing.T) {
	t.Parallel()
	d := &fakeDrive{pages: [][]map[string]string{
		{
			{"id": "a", "name": "a.txt", "mimeType": "text/plain", "webViewLink": "https://drive/a"},
			{"id": "b", "name": "b.md", "mimeType": "text/markdown"},
		},
		{
			{"id": "c", "name": "c.txt", "mimeType": "text/plain"},
		},
	}}
	f := newTestFetcher(t, d, nil)

	files, err := f.ListTextFiles(context.Background(), testRecord)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(files))
	}
	if files[0].ID != "a" || files[0].WebViewLink != "https://drive/a" || files[2].ID != "c" {
		t.Errorf("unexpected files %+v", files)
	}
	if files[1].WebViewLink != "" {
		t.Errorf("missing webViewLink should stay empty, got %q", files[1].WebViewLink)
	}
	if len(d.queries) != 2 {
		t.Errorf("expected 2 list calls, got %d", len(d.queries))
	}
	if d.queries[0] != textFilesQuery {
		t.Errorf("unexpected query %q", d.queries[0])
	}
	if d.auth[0] != "Bearer user-token" {
		t.Errorf("expected call as the user, got %q", d.auth[0])
	}
}

func TestListTextFiles_NoMatches(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, &fakeDrive{pages: [][]map[string]string{{}}}, nil)
	files, err := f.ListTextFiles(context.Background(), testRecord)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if files == nil || len(files) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", files)
	}
}

func TestListTextFiles_Error(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, &fakeDrive{listErr: true}, nil)
	if _, err := f.ListTextFiles(context.Background(), testRecord); !errors.Is(err, ErrList) {
		t.Errorf("expected ErrList, got %v", err)
	}
}

func TestFetchContent(t *testing.T) {
	t.Parallel()
	d := &fakeDrive{contents: map[string]string{"a": "# notes\nhello"}}
	f := newTestFetcher(t, d, nil)

	got, err := f.FetchContent(context.Background(), testRecord, "a")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got != "# notes\nhello" {
		t.Errorf("unexpected content %q", got)
	}

	_, err = f.FetchContent(context.Background(), testRecord, "missing")
	if !errors.Is(err, ErrContentFetch) || !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrContentFetch wrapping ErrFileNotFound, got %v", err)
	}

	_, err = f.FetchContent(context.Background(), testRecord, "forbidden")
	if !errors.Is(err, ErrContentFetch) || errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected plain ErrContentFetch, got %v", err)
	}
}

func TestFetchContent_ReplacesInvalidUTF8(t *testing.T) {
	t.Parallel()
	d := &fakeDrive{contents: map[string]string{"latin1": "caf\xe9 au lait"}}
	f := newTestFetcher(t, d, nil)

	got, err := f.FetchContent(context.Background(), testRecord, "latin1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got != "caf\uFFFD au lait" {
		t.Errorf("expected invalid byte replaced, got %q", got)
	}
}

func TestFetchAllContents_IsolatesFailures(t *testing.T) {
	t.Parallel()
	d := &fakeDrive{contents: map[string]string{
		"a":     "alpha",
		"b":     "bravo",
		"empty": "",
		"d":     "delta",
	}}
	f := newTestFetcher(t, d, &Config{Concurrency: 2, Timeout: 200 * time.Millisecond})

	in := []rag.DriveFile{
		{ID: "a", Name: "a.txt"},
		{ID: "forbidden", Name: "secret.txt"},
		{ID: "b", Name: "b.txt"},
		{ID: "empty", Name: "empty.txt"},
		{ID: "slow", Name: "slow.txt"},
		{ID: "missing", Name: "gone.txt"},
		{ID: "d", Name: "d.txt"},
	}
	fetched, skipped := f.FetchAllContents(context.Background(), testRecord, in)

	var ids []string
	for _, df := range fetched {
		ids = append(ids, df.ID+"="+df.Content)
	}
	if got := strings.Join(ids, ","); got != "a=alpha,b=bravo,d=delta" {
		t.Errorf("unexpected fetched set %q", got)
	}

	if len(skipped) != 4 {
		t.Fatalf("expected 4 skipped, got %d: %+v", len(skipped), skipped)
	}
	want := []string{"forbidden", "empty", "slow", "missing"}
	for i, s := range skipped {
		if s.FileID != want[i] {
			t.Errorf("skipped[%d]: expected %s, got %s", i, want[i], s.FileID)
		}
		if s.Stage != rag.StageFetch || s.Reason == "" {
			t.Errorf("skipped[%d]: unexpected entry %+v", i, s)
		}
	}
	if skipped[1].Reason != "empty content" {
		t.Errorf("expected empty content reason, got %q", skipped[1].Reason)
	}
}

func TestNewFetcher_Defaults(t *testing.T) {
	t.Parallel()
	f := NewFetcher(plainClients{}, nil)
	if f.concurrency != DefaultConcurrency || f.timeout != DefaultTimeout {
		t.Errorf("unexpected defaults concurrency=%d timeout=%s", f.concurrency, f.timeout)
	}
}
