// Package fetch streams upstream rasters to disk with retries and atomic placement.
package fetch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/mohammed-shakir/gmrt-tiles/internal/core/model"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/naming"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/observability"
)

const (
	DefaultTimeout = 30 * time.Second
	DefaultRetries = 3
	DefaultBackoff = 500 * time.Millisecond

	previewLimit = 1 << 10
	sniffLimit   = 512
	copyBufSize  = 64 << 10
)

// content types that mean the upstream answered with an error page
var errorContentTypes = []string{"text/html", "text/plain", "application/json"}

type Options struct {
	// Timeout bounds a single attempt, body streaming included.
	Timeout time.Duration
	// Retries is the number of extra attempts after the first failure.
	Retries int
	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration
	// Upstream labels latency metrics.
	Upstream string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.Backoff < 0 {
		o.Backoff = 0
	}
	if o.Upstream == "" {
		o.Upstream = "gmrt"
	}
	return o
}

// DefaultOptions mirrors the documented defaults: 30s timeout, 3 retries, 0.5s backoff.
func DefaultOptions() Options {
	return Options{Timeout: DefaultTimeout, Retries: DefaultRetries, Backoff: DefaultBackoff, Upstream: "gmrt"}
}

// UpstreamError is a non-success status or an error page served as 200.
type UpstreamError struct {
	URL         string
	StatusCode  int
	Status      string
	ContentType string
	Preview     string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode < 200 || e.StatusCode >= 300 {
		return fmt.Sprintf("HTTP error while downloading %s: %s\nResponse preview: %s", e.URL, e.Status, e.Preview)
	}
	return fmt.Sprintf("unexpected content-type %q for %s. Response preview: %s", e.ContentType, e.URL, e.Preview)
}

func (e *UpstreamError) Unwrap() error { return model.ErrUpstream }

type Fetcher struct {
	logger *slog.Logger
	client *http.Client
	opts   Options
	sleep  func(ctx context.Context, d time.Duration) error // for tests
	now    func() time.Time
}

func New(logger *slog.Logger, client *http.Client, opts Options) *Fetcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{
		logger: logger,
		client: client,
		opts:   opts.withDefaults(),
		sleep:  sleepCtx,
		now:    time.Now,
	}
}

// Fetch materializes rawURL at dest and returns the final size in bytes.
// An existing dest is returned as-is unless overwrite is set.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dest string, overwrite bool) (int64, error) {
	if !overwrite {
		if fi, err := os.Stat(dest); err == nil {
			if fi.IsDir() {
				return 0, fmt.Errorf("destination %s is a directory", dest)
			}
			return fi.Size(), nil
		}
	}

	part := naming.PartPath(dest)
	attempt := 0
	for {
		size, err := f.attempt(ctx, rawURL, part, dest)
		if err == nil {
			observability.AddBytes(size)
			return size, nil
		}

		attempt++
		if rmErr := os.Remove(part); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			f.logger.Debug("remove partial file", "path", part, "err", rmErr)
		}
		if ctx.Err() != nil {
			return 0, fmt.Errorf("fetch %s: %w", rawURL, ctx.Err())
		}
		if attempt > f.opts.Retries {
			f.logger.Error("fetch failed", "url", rawURL, "attempts", attempt, "err", err)
			return 0, err
		}

		delay := f.opts.Backoff * time.Duration(attempt)
		f.logger.Warn("fetch failed; retrying",
			"url", rawURL,
			"attempt", attempt,
			"delay", delay.String(),
			"err", err)
		if err := f.sleep(ctx, delay); err != nil {
			return 0, fmt.Errorf("fetch %s: %w", rawURL, err)
		}
	}
}

func (f *Fetcher) attempt(ctx context.Context, rawURL, part, dest string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "image/tiff, application/octet-stream;q=0.9, */*;q=0.1")

	start := f.now()
	resp, err := f.client.Do(req)
	if err != nil {
		observability.IncAttempt("transport_error")
		return 0, fmt.Errorf("%w: get %s: %w", model.ErrUpstream, rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	observability.ObserveUpstreamLatency(f.opts.Upstream, time.Since(start).Seconds())

	body := bufio.NewReaderSize(resp.Body, copyBufSize)
	ctype := strings.ToLower(resp.Header.Get("Content-Type"))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.IncAttempt("http_error")
		return 0, &UpstreamError{
			URL:         rawURL,
			StatusCode:  resp.StatusCode,
			Status:      resp.Status,
			ContentType: ctype,
			Preview:     preview(body),
		}
	}

	if isErrorContentType(ctype) || (isGeneric(ctype) && sniffsAsText(body)) {
		observability.IncAttempt("content_type")
		return 0, &UpstreamError{
			URL:         rawURL,
			StatusCode:  resp.StatusCode,
			Status:      resp.Status,
			ContentType: ctype,
			Preview:     preview(body),
		}
	}

	if err := os.MkdirAll(filepath.Dir(part), 0o755); err != nil {
		return 0, fmt.Errorf("create parent dir: %w", err)
	}
	out, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", part, err)
	}
	buf := make([]byte, copyBufSize)
	if _, err := io.CopyBuffer(out, body, buf); err != nil {
		_ = out.Close()
		observability.IncAttempt("stream_error")
		return 0, fmt.Errorf("%w: stream %s: %w", model.ErrUpstream, rawURL, err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", part, err)
	}

	if err := os.Rename(part, dest); err != nil {
		return 0, fmt.Errorf("replace %s: %w", dest, err)
	}
	fi, err := os.Stat(dest)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", dest, err)
	}
	observability.IncAttempt("ok")
	f.logger.Debug("fetch done",
		"url", rawURL,
		"path", dest,
		"size_bytes", fi.Size(),
		"duration", time.Since(start).String())
	return fi.Size(), nil
}

func isErrorContentType(ctype string) bool {
	for _, t := range errorContentTypes {
		if strings.Contains(ctype, t) {
			return true
		}
	}
	return false
}

func isGeneric(ctype string) bool {
	ctype = strings.TrimSpace(ctype)
	return ctype == "" || strings.HasPrefix(ctype, "application/octet-stream")
}

// sniffsAsText peeks at the body without consuming it.
func sniffsAsText(r *bufio.Reader) bool {
	head, _ := r.Peek(sniffLimit)
	if len(head) == 0 {
		return false
	}
	for m := mimetype.Detect(head); m != nil; m = m.Parent() {
		base, _, err := mime.ParseMediaType(m.String())
		if err == nil && slices.Contains(errorContentTypes, base) {
			return true
		}
	}
	return false
}

func preview(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, previewLimit))
	if err != nil && len(b) == 0 {
		return "<unavailable>"
	}
	return string(b)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
