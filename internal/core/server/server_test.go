package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mohammed-shakir/gmrt-tiles/internal/core/config"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/gmrt"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/observability"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/router"
	"github.com/mohammed-shakir/gmrt-tiles/internal/metrics"
	"github.com/mohammed-shakir/gmrt-tiles/internal/runs"
	"github.com/mohammed-shakir/gmrt-tiles/pkg/tiles"
)

func TestHandler_EndToEnd(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/tiff")
		_, _ = w.Write([]byte("II*\x00" + strings.Repeat("x", 100)))
	}))
	defer upstream.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gs, err := gmrt.NewGridServer(upstream.URL)
	if err != nil {
		t.Fatal(err)
	}
	client, err := tiles.New(tiles.WithProvider(gs), tiles.WithLogger(logger),
		tiles.WithFetchOptions(tiles.FetchOptions{Timeout: 5 * time.Second}))
	if err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	cfg := config.Config{DestDir: dest, DefaultResolution: "low"}
	mp := metrics.Init(metrics.Config{Enabled: true})
	observability.Init(mp.Registerer(), true)

	h := NewHandler(logger, Deps{
		Downloads: router.New(logger, cfg, client, runs.New(4), nil),
		Metrics:   mp,
	})
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/downloads", "application/json",
		strings.NewReader(`{"bbox":[170,-10,-170,10],"dest":"run1"}`))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), `"count_created":2`) {
		t.Fatalf("body=%s", body)
	}
	if _, err := os.Stat(filepath.Join(dest, "run1", "gmrt_low_170.000_-10.000_180.000_10.000.tif")); err != nil {
		t.Fatalf("expected file: %v", err)
	}

	for _, p := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(srv.URL + p)
		if err != nil {
			t.Fatal(err)
		}
		b, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status=%d", p, resp.StatusCode)
		}
		if p == "/metrics" && !strings.Contains(string(b), `http_requests_total{method="POST",route="/v1/downloads",status="200"}`) {
			t.Fatalf("metrics missing http request line:\n%s", b)
		}
	}
}

func TestHandler_MetricsDisabled(t *testing.T) {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), Deps{Metrics: metrics.Init(metrics.Config{})})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, config.Config{Addr: "127.0.0.1:0"}, slog.New(slog.NewTextHandler(io.Discard, nil)), http.NotFoundHandler())
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
