package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q): want %v, got %v", in, want, got)
		}
	}
}

func TestNewWriter_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriter(&buf, "warn", "")
	log.Info("dropped")
	log.Warn("kept", slog.String("index", "docs"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("want 1 line at warn level, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("want JSON output, got %q: %v", lines[0], err)
	}
	if rec["msg"] != "kept" || rec["index"] != "docs" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestNewWriter_Text(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewWriter(&buf, "debug", "TEXT").Debug("hello", slog.Int("n", 3))
	if got := buf.String(); !strings.Contains(got, "msg=hello") || !strings.Contains(got, "n=3") {
		t.Errorf("want text output, got %q", got)
	}
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	if FromContext(context.Background()) != slog.Default() {
		t.Error("want slog.Default without a stored logger")
	}
	l := NewWriter(&bytes.Buffer{}, "", "")
	if FromContext(WithLogger(context.Background(), l)) != l {
		t.Error("want the stored logger back")
	}
}

func TestWith(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewWriter(&buf, "", "json"))
	ctx, _ = With(ctx, slog.String("index", "docs"))
	_, l := With(ctx, slog.String("op", "upsert"))
	l.Info("done")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["index"] != "docs" || rec["op"] != "upsert" {
		t.Errorf("want attributes from both levels, got %v", rec)
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	if Discard().Enabled(context.Background(), slog.LevelError) {
		t.Error("want discard logger disabled at every level")
	}
}
