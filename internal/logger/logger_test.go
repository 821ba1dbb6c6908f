package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid json line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestSlogBridge_CarriesContextAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Component: "fetch"}, &buf)
	log := NewSlog(&zl).With("upstream", "gmrt")

	ctx := WithRunID(context.Background(), "run-1")
	ctx = WithRequestID(ctx, "req-1")
	log.InfoContext(ctx, "tile ready", "size_bytes", 42, "err", errors.New("none"))

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %s", len(lines), buf.String())
	}
	l := lines[0]
	for k, want := range map[string]any{
		"msg":        "tile ready",
		"level":      "info",
		"component":  "fetch",
		"run_id":     "run-1",
		"request_id": "req-1",
		"upstream":   "gmrt",
		"size_bytes": float64(42),
		"err":        "none",
	} {
		if l[k] != want {
			t.Fatalf("field %q=%v want %v (line=%v)", k, l[k], want, l)
		}
	}
	if _, ok := l["timestamp"]; !ok {
		t.Fatalf("missing timestamp: %v", l)
	}
}

func TestBuild_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	log := NewSlog(&zl)
	log.Info("dropped")
	log.Debug("dropped")
	log.Warn("kept")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["msg"] != "kept" {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestWithGroup_PrefixesKeys(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info"}, &buf)
	NewSlog(&zl).WithGroup("coverage").Info("split", "west", 170.0)

	lines := decodeLines(t, &buf)
	if lines[0]["coverage.west"] != 170.0 {
		t.Fatalf("group prefix missing: %v", lines[0])
	}
}

func TestRunIDRoundTrip(t *testing.T) {
	ctx := WithRunID(context.Background(), "abc")
	if RunID(ctx) != "abc" {
		t.Fatalf("RunID=%q", RunID(ctx))
	}
	if RunID(context.Background()) != "" {
		t.Fatalf("expected empty run id")
	}
	if id := NewID(); len(id) != 16 {
		t.Fatalf("NewID len=%d", len(id))
	}
}
