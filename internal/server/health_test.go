package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
)

// TestHandleHealth_OK verifies that GET /api/health returns 200 with
// {"status":"ok"}.
func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/api/health", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d (body: %s)", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if body["status"] != "ok" || body["version"] == "" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestHandleReady(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		pingers   []Pinger
		wantCode  int
		wantReady bool
		wantOK    map[string]bool
	}{
		{"no pingers", nil, http.StatusOK, true, map[string]bool{}},
		{
			"all healthy",
			[]Pinger{&fakePinger{name: "qdrant"}, &fakePinger{name: "redis"}},
			http.StatusOK, true,
			map[string]bool{"qdrant": true, "redis": true},
		},
		{
			"one failing",
			[]Pinger{&fakePinger{name: "qdrant"}, &fakePinger{name: "redis", err: errors.New("connection refused")}},
			http.StatusServiceUnavailable, false,
			map[string]bool{"qdrant": true, "redis": false},
		},
		{
			"all failing",
			[]Pinger{&fakePinger{name: "qdrant", err: errors.New("timeout")}, &fakePinger{name: "history", err: errors.New("locked")}},
			http.StatusServiceUnavailable, false,
			map[string]bool{"qdrant": false, "history": false},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ts := newTestServer(t, nil, tc.pingers...)

			w := ts.do(t, http.MethodGet, "/api/ready", "", "")

			if w.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d (body: %s)", tc.wantCode, w.Code, w.Body.String())
			}
			var resp readyResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Ready != tc.wantReady {
				t.Errorf("ready: want %v, got %v", tc.wantReady, resp.Ready)
			}
			if len(resp.Checks) != len(tc.wantOK) {
				t.Fatalf("expected %d checks, got %d", len(tc.wantOK), len(resp.Checks))
			}
			for _, c := range resp.Checks {
				if c.OK != tc.wantOK[c.Name] {
					t.Errorf("check %q: ok=%v", c.Name, c.OK)
				}
				if !c.OK && c.Error == "" {
					t.Errorf("check %q: expected non-empty error", c.Name)
				}
			}
		})
	}
}

// pingStub records whether Ping was called.
type pingStub struct {
	err    error
	called bool
}

func (p *pingStub) Ping(context.Context) error {
	p.called = true
	return p.err
}

func TestNewPinger(t *testing.T) {
	t.Parallel()

	ok := &pingStub{}
	p := NewPinger("redis", ok)
	if p.Name() != "redis" {
		t.Errorf("name = %q", p.Name())
	}
	if err := p.Ping(context.Background()); err != nil || !ok.called {
		t.Errorf("expected delegated successful ping, err=%v called=%v", err, ok.called)
	}

	bad := &pingStub{err: errBoom}
	err := NewPinger("history", bad).Ping(context.Background())
	if !errors.Is(err, errBoom) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
}
