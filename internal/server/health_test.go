package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// fakePinger reports err after an optional delay.
type fakePinger struct {
	name  string
	err   error
	delay time.Duration
}

func (f *fakePinger) Name() string { return f.name }

func (f *fakePinger) Ping(ctx context.Context) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func newReadyTestServer(pingers ...Pinger) *Server {
	s := newTestServer()
	s.pingers = pingers
	return s
}

func getReady(t *testing.T, s *Server) (int, readyResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("want application/json, got %q", ct)
	}
	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return w.Code, resp
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	newTestServer().handleHealth(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("want status ok, got %q", body["status"])
	}
}

func TestHandleReady(t *testing.T) {
	t.Parallel()

	down := errors.New("connection refused")
	cases := []struct {
		name      string
		pingers   []Pinger
		wantCode  int
		wantReady bool
		wantOK    []bool
	}{
		{"no probes", nil, http.StatusOK, true, nil},
		{
			"all healthy",
			[]Pinger{&fakePinger{name: "store"}, &fakePinger{name: "embedder"}},
			http.StatusOK, true, []bool{true, true},
		},
		{
			"embedder down",
			[]Pinger{&fakePinger{name: "store"}, &fakePinger{name: "embedder", err: down}},
			http.StatusServiceUnavailable, false, []bool{true, false},
		},
		{
			"everything down",
			[]Pinger{&fakePinger{name: "store", err: down}, &fakePinger{name: "embedder", err: down}},
			http.StatusServiceUnavailable, false, []bool{false, false},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			code, resp := getReady(t, newReadyTestServer(tc.pingers...))

			if code != tc.wantCode {
				t.Fatalf("want %d, got %d", tc.wantCode, code)
			}
			if resp.Ready != tc.wantReady {
				t.Errorf("want ready=%v, got %v", tc.wantReady, resp.Ready)
			}
			if resp.Backend != "memory" {
				t.Errorf("want backend memory, got %q", resp.Backend)
			}
			if len(resp.Checks) != len(tc.wantOK) {
				t.Fatalf("want %d checks, got %d", len(tc.wantOK), len(resp.Checks))
			}
			for i, c := range resp.Checks {
				if c.OK != tc.wantOK[i] {
					t.Errorf("check %q: want ok=%v", c.Name, tc.wantOK[i])
				}
				if !c.OK && c.Error != down.Error() {
					t.Errorf("check %q: want error %q, got %q", c.Name, down, c.Error)
				}
			}
		})
	}
}

// Probes run concurrently but are reported in registration order.
func TestHandleReady_ConcurrentProbes(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(
		&fakePinger{name: "slow-a", delay: 200 * time.Millisecond},
		&fakePinger{name: "slow-b", delay: 200 * time.Millisecond},
		&fakePinger{name: "fast"},
	)

	start := time.Now()
	code, resp := getReady(t, s)
	elapsed := time.Since(start)

	if code != http.StatusOK {
		t.Fatalf("want 200, got %d", code)
	}
	if elapsed >= 390*time.Millisecond {
		t.Errorf("probes appear serialized: took %s", elapsed)
	}
	for i, want := range []string{"slow-a", "slow-b", "fast"} {
		if resp.Checks[i].Name != want {
			t.Errorf("check %d: want %q, got %q", i, want, resp.Checks[i].Name)
		}
	}
	if resp.Checks[0].LatencyMS < 150 {
		t.Errorf("want slow probe latency recorded, got %.1fms", resp.Checks[0].LatencyMS)
	}
}

func TestHandleReady_CancelledRequest(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(&fakePinger{name: "store", delay: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil).WithContext(ctx))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d", w.Code)
	}
}
