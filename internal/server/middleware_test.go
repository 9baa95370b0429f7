package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/54b3r/ragcore-go/internal/logging"
)

func TestRequestID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header string
		reuse  bool
	}{
		{"", false},
		{"trace-123_abc.7", true},
		{"has space", false},
		{"bad\nnewline", false},
		{strings.Repeat("a", maxRequestIDLen), true},
		{strings.Repeat("a", maxRequestIDLen+1), false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header[requestIDHeader] = []string{tc.header}
		}
		got := requestID(req)
		if tc.reuse {
			if got != tc.header {
				t.Errorf("requestID(%q): want it reused, got %q", tc.header, got)
			}
			continue
		}
		if _, err := uuid.Parse(got); err != nil {
			t.Errorf("requestID(%q): want a fresh UUID, got %q", tc.header, got)
		}
	}
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	var seenInHandler bool
	h := requestLogger(logging.NewWriter(&buf, "debug", "json"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.FromContext(r.Context()).Debug("inside")
		seenInHandler = true
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK) // ignored by net/http; first status wins
		_, _ = w.Write([]byte("12345"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/indexes", nil)
	req.Header.Set(requestIDHeader, "abc-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if !seenInHandler {
		t.Fatal("handler not called")
	}
	if got := w.Header().Get(requestIDHeader); got != "abc-1" {
		t.Errorf("want echoed request id, got %q", got)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 log lines, got %d: %s", len(lines), buf.String())
	}
	var inner, done map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &inner); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &done); err != nil {
		t.Fatal(err)
	}
	if inner["request_id"] != "abc-1" {
		t.Errorf("want handler logger tagged with request id, got %v", inner)
	}
	if done["status"] != float64(http.StatusTeapot) || done["bytes"] != float64(5) {
		t.Errorf("want status 418 and 5 bytes, got %v", done)
	}
}
