// Package tiles downloads GMRT raster tiles for bounding boxes and returns a
// manifest of the files it produced.
package tiles

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mohammed-shakir/gmrt-tiles/internal/core/bbox"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/fetch"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/gmrt"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/model"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/naming"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/observability"
	"github.com/mohammed-shakir/gmrt-tiles/internal/logger"
)

// Downloader materializes a URL at dest and returns the final size.
type Downloader interface {
	Fetch(ctx context.Context, url, dest string, overwrite bool) (int64, error)
}

// Recorder observes every manifest entry a run produces.
type Recorder interface {
	Record(ctx context.Context, runID string, e ManifestEntry) error
}

type Client struct {
	logger     *slog.Logger
	provider   gmrt.Provider
	downloader Downloader
	recorders  []Recorder
	prefix     string
	fetchOpts  FetchOptions
	httpClient *http.Client
	newRunID   func() string
}

type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithProvider(p gmrt.Provider) Option {
	return func(c *Client) {
		if p != nil {
			c.provider = p
		}
	}
}

// WithDownloader replaces the streaming downloader; fetch options and the
// HTTP client are then ignored.
func WithDownloader(d Downloader) Option {
	return func(c *Client) { c.downloader = d }
}

// WithRecorder adds a recorder. Recorder failures are logged and never fail a run.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.recorders = append(c.recorders, r)
		}
	}
}

// WithFilePrefix sets the source part of filenames ("gmrt" by default).
func WithFilePrefix(p string) Option {
	return func(c *Client) {
		if p != "" {
			c.prefix = p
		}
	}
}

func WithFetchOptions(o FetchOptions) Option {
	return func(c *Client) { c.fetchOpts = o }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func New(opts ...Option) (*Client, error) {
	c := &Client{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		prefix:    gmrt.Source,
		fetchOpts: fetch.DefaultOptions(),
		newRunID:  func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(c)
	}
	if c.provider == nil {
		gs, err := gmrt.NewGridServer("")
		if err != nil {
			return nil, err
		}
		c.provider = gs
	}
	if c.downloader == nil {
		if c.fetchOpts.Upstream == "" {
			c.fetchOpts.Upstream = c.provider.Name()
		}
		c.downloader = fetch.New(c.logger, c.httpClient, c.fetchOpts)
	}
	return c, nil
}

// Download runs the request against the default client.
func Download(ctx context.Context, req Request) (*Result, error) {
	c, err := New()
	if err != nil {
		return nil, err
	}
	return c.Download(ctx, req)
}

// Download fetches every coverage of the requested box(es) into req.Dest.
//
// A single box fails fast: the error is returned alongside the partial
// result. In batch mode a failing box is recorded in Result.Errors and the
// remaining boxes are still processed; the returned error is nil.
func (c *Client) Download(ctx context.Context, req Request) (*Result, error) {
	if (req.BBox == nil) == (req.BBoxes == nil) {
		return nil, fmt.Errorf("%w: exactly one of bbox or bboxes must be provided", ErrInvalidArgument)
	}
	format, err := model.ParseFormat(string(req.Format))
	if err != nil {
		return nil, err
	}
	res, err := model.ParseResolution(string(req.Resolution))
	if err != nil {
		return nil, err
	}
	policy, err := model.ParseOverwritePolicy(string(req.Overwrite))
	if err != nil {
		return nil, err
	}
	dest, err := ensureDest(req.Dest)
	if err != nil {
		return nil, err
	}

	runID := c.newRunID()
	ctx = logger.WithRunID(ctx, runID)
	result := newResult(runID)
	job := job{dest: dest, format: format, res: res, force: policy.Force()}

	if !req.Batch() {
		if err := c.downloadBox(ctx, job, req.BBox, result); err != nil {
			result.Errors = append(result.Errors, "bbox error: "+err.Error())
			return result, err
		}
		return result, nil
	}

	for _, vals := range req.BBoxes {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("bbox %s error: %v", fmtVals(vals), ctx.Err()))
			continue
		}
		if err := c.downloadBox(ctx, job, vals, result); err != nil {
			c.logger.WarnContext(ctx, "bbox failed", "bbox", fmtVals(vals), "err", err)
			result.Errors = append(result.Errors, fmt.Sprintf("bbox %s error: %v", fmtVals(vals), err))
		}
	}
	return result, nil
}

type job struct {
	dest   string
	format model.Format
	res    model.Resolution
	force  bool
}

func (c *Client) downloadBox(ctx context.Context, j job, vals []float64, result *Result) error {
	box, err := bbox.Validate(vals)
	if err != nil {
		return err
	}
	covs, err := bbox.Split(box)
	if err != nil {
		return err
	}
	prefix := naming.Prefix(c.prefix, j.res)
	for _, cov := range covs {
		path := filepath.Join(j.dest, naming.Filename(prefix, j.format, cov))
		entry, err := c.materialize(ctx, j, cov, path)
		if err != nil {
			observability.IncDownload(observability.StatusFailed)
			return err
		}
		result.add(entry)
		observability.IncDownload(string(entry.Status))
		c.logger.InfoContext(ctx, "tile ready",
			"path", entry.Path,
			"status", string(entry.Status),
			"size_bytes", entry.SizeBytes,
			"coverage", cov.String())
		c.record(ctx, result.RunID, entry)
	}
	return nil
}

func (c *Client) materialize(ctx context.Context, j job, cov model.Coverage, path string) (ManifestEntry, error) {
	if !j.force {
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
			return ManifestEntry{
				Path: path, Format: j.format, Coverage: cov,
				SizeBytes: fi.Size(), Status: StatusReused,
			}, nil
		}
	}
	url, err := c.provider.URL(cov, j.format, j.res)
	if err != nil {
		return ManifestEntry{}, err
	}
	size, err := c.downloader.Fetch(ctx, url, path, j.force)
	if err != nil {
		return ManifestEntry{}, err
	}
	return ManifestEntry{
		Path: path, Format: j.format, Coverage: cov,
		SizeBytes: size, Status: StatusCreated,
	}, nil
}

func (c *Client) record(ctx context.Context, runID string, e ManifestEntry) {
	for _, r := range c.recorders {
		if err := r.Record(ctx, runID, e); err != nil {
			c.logger.WarnContext(ctx, "recorder failed", "path", e.Path, "err", err)
		}
	}
}

func ensureDest(dest string) (string, error) {
	if dest == "" {
		dest = "."
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("%w: cannot create destination %s: %w", ErrPermissionDenied, dest, err)
	}
	probe, err := os.CreateTemp(dest, ".write-probe-*")
	if err != nil {
		return "", fmt.Errorf("%w: destination %s is not writable: %w", ErrPermissionDenied, dest, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return dest, nil
}

func fmtVals(vals []float64) string {
	return fmt.Sprintf("%v", vals)
}
