package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/drivesearch-go/internal/auth"
	"github.com/54b3r/drivesearch-go/internal/credential"
	"github.com/54b3r/drivesearch-go/internal/ingestion"
	"github.com/54b3r/drivesearch-go/internal/rag"
	"github.com/54b3r/drivesearch-go/internal/store"
)

// okHandler is a trivial handler used to verify that allowed requests reach
// the downstream handler.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// validToken resolves successfully in fakeAuth unless overridden.
const validToken = "ya29.valid"

// fakeAuth is a test double for TokenManager.
type fakeAuth struct {
	// records maps a presented token to the record Resolve returns.
	records map[string]credential.Record
	// exchangeErr is returned by Exchange when set.
	exchangeErr error
	// codes records every code passed to Exchange.
	codes []string
	// resolveCalls counts Resolve invocations.
	resolveCalls int
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{records: map[string]credential.Record{
		validToken: {AccessToken: validToken, RefreshToken: "1//r", ExpiryDate: 4_102_444_800_000},
	}}
}

func (f *fakeAuth) AuthURL() string { return "https://accounts.example/o/oauth2/auth?state=drivesearch" }

func (f *fakeAuth) Exchange(_ context.Context, code string) (credential.Record, error) {
	f.codes = append(f.codes, code)
	if f.exchangeErr != nil {
		return credential.Record{}, f.exchangeErr
	}
	return credential.Record{AccessToken: "ya29.fresh&odd=1", ExpiryDate: 1}, nil
}

func (f *fakeAuth) Resolve(_ context.Context, token string) (credential.Record, error) {
	f.resolveCalls++
	rec, ok := f.records[token]
	if !ok {
		return credential.Record{}, auth.ErrTokenNotFound
	}
	return rec, nil
}

// fakeDrive is a test double for DriveReader.
type fakeDrive struct {
	files    []rag.DriveFile
	listErr  error
	contents map[string]string
	fetchErr error
	calls    int
	// seen is the record handed to the last call.
	seen credential.Record
}

func (f *fakeDrive) ListTextFiles(_ context.Context, rec credential.Record) ([]rag.DriveFile, error) {
	f.calls++
	f.seen = rec
	return f.files, f.listErr
}

func (f *fakeDrive) FetchContent(_ context.Context, rec credential.Record, fileID string) (string, error) {
	f.calls++
	f.seen = rec
	if f.fetchErr != nil {
		return "", f.fetchErr
	}
	return f.contents[fileID], nil
}

// fakeIngest is a test double for Ingester.
type fakeIngest struct {
	res   ingestion.Result
	err   error
	calls int
}

func (f *fakeIngest) Run(context.Context, credential.Record) (ingestion.Result, error) {
	f.calls++
	return f.res, f.err
}

// fakeSearch is a test double for Searcher.
type fakeSearch struct {
	results  []rag.SearchResult
	err      error
	calls    int
	gotQuery string
	gotLimit int
}

func (f *fakeSearch) Search(_ context.Context, query string, limit int) ([]rag.SearchResult, error) {
	f.calls++
	f.gotQuery, f.gotLimit = query, limit
	return f.results, f.err
}

// fakeRuns is a test double for RunLister.
type fakeRuns struct {
	runs []store.Run
	err  error
	gotN int
}

func (f *fakeRuns) Recent(_ context.Context, n int) ([]store.Run, error) {
	f.gotN = n
	return f.runs, f.err
}

// fakePinger is a test double for the Pinger interface.
type fakePinger struct {
	name string
	err  error
}

func (f *fakePinger) Name() string                 { return f.name }
func (f *fakePinger) Ping(_ context.Context) error { return f.err }

// testServer bundles a Server with its fakes and isolated registry.
type testServer struct {
	*Server
	auth   *fakeAuth
	drive  *fakeDrive
	ingest *fakeIngest
	search *fakeSearch
	reg    *prometheus.Registry
}

// newTestServer builds a Server over fresh fakes. runs may be nil.
func newTestServer(t *testing.T, runs RunLister, pingers ...Pinger) *testServer {
	t.Helper()
	ts := &testServer{
		auth:   newFakeAuth(),
		drive:  &fakeDrive{},
		ingest: &fakeIngest{},
		search: &fakeSearch{},
		reg:    prometheus.NewRegistry(),
	}
	s, err := New(Deps{
		Auth:   ts.auth,
		Drive:  ts.drive,
		Ingest: ts.ingest,
		Search: ts.search,
		Runs:   runs,
	}, &Config{
		Logger:              slog.New(slog.DiscardHandler),
		Pingers:             pingers,
		FrontendCallbackURL: "http://localhost:5173/google/callback?from=api",
		MetricsRegistry:     ts.reg,
		MetricsGatherer:     ts.reg,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts.Server = s
	return ts
}

// do sends one request through the full middleware chain. An empty token
// sends no Authorization header.
func (ts *testServer) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

// decodedEnvelope is the client view of an API response.
type decodedEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// decode parses the response envelope, failing the test on bad JSON.
func decode(t *testing.T, w *httptest.ResponseRecorder) decodedEnvelope {
	t.Helper()
	var env decodedEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body: %s)", err, w.Body.String())
	}
	return env
}

// expectError asserts an error envelope with status code and message.
func expectError(t *testing.T, w *httptest.ResponseRecorder, code int, message string) {
	t.Helper()
	if w.Code != code {
		t.Fatalf("expected %d, got %d (body: %s)", code, w.Code, w.Body.String())
	}
	env := decode(t, w)
	if env.Status != "error" {
		t.Errorf("status: expected error, got %q", env.Status)
	}
	if message != "" && env.Message != message {
		t.Errorf("message: expected %q, got %q", message, env.Message)
	}
}

// counterValue returns the value of the counter name with the given label
// pairs, or -1 when absent.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return -1
}

var errBoom = errors.New("boom")
