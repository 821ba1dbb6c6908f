package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/mohammed-shakir/gmrt-tiles/internal/core/config"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/observability"
	"github.com/mohammed-shakir/gmrt-tiles/internal/manifestindex"
	"github.com/mohammed-shakir/gmrt-tiles/internal/runs"
	"github.com/mohammed-shakir/gmrt-tiles/pkg/tiles"
)

const maxBodyBytes = 1 << 20

// Downloader runs one download request.
type Downloader interface {
	Download(ctx context.Context, req tiles.Request) (*tiles.Result, error)
}

// ManifestLookup finds indexed files covering a point.
type ManifestLookup interface {
	Lookup(ctx context.Context, lat, lon float64) ([]manifestindex.Record, error)
}

type Handlers struct {
	logger *slog.Logger
	cfg    config.Config
	dl     Downloader
	runs   *runs.Store
	index  ManifestLookup
	group  singleflight.Group
}

// New wires the download handlers. index may be nil when the manifest index is disabled.
func New(logger *slog.Logger, cfg config.Config, dl Downloader, store *runs.Store, index ManifestLookup) *Handlers {
	if store == nil {
		store = runs.New(cfg.RunsCacheSize)
	}
	return &Handlers{logger: logger, cfg: cfg, dl: dl, runs: store, index: index}
}

// Mount registers the /v1 routes on r.
func (h *Handlers) Mount(r chi.Router) {
	r.Post("/v1/downloads", h.observe("/v1/downloads", h.CreateDownload))
	r.Get("/v1/downloads/{id}", h.observe("/v1/downloads/{id}", h.GetDownload))
	r.Get("/v1/manifest", h.observe("/v1/manifest", h.Manifest))
}

type errorBody struct {
	Error  string        `json:"error"`
	Result *tiles.Result `json:"result,omitempty"`
}

// CreateDownload runs a download. Identical concurrent requests share one run.
func (h *Handlers) CreateDownload(w http.ResponseWriter, r *http.Request) {
	req, err := ParseDownloadRequest(r, h.cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, nil)
		return
	}
	key, err := requestKey(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, nil)
		return
	}

	type outcome struct {
		res *tiles.Result
		err error
	}
	v, _, shared := h.group.Do(key, func() (any, error) {
		// detached from the first caller so its disconnect does not fail the others
		ctx := context.WithoutCancel(r.Context())
		res, err := h.dl.Download(ctx, req)
		h.runs.Put(res)
		return outcome{res: res, err: err}, nil
	})
	out := v.(outcome)
	if shared {
		h.logger.DebugContext(r.Context(), "download coalesced", "key", key)
	}
	if out.err != nil {
		writeError(w, statusFor(out.err), out.err, out.res)
		return
	}
	h.writeResult(w, r, http.StatusOK, out.res)
}

func (h *Handlers) GetDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, ok := h.runs.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("run %q not found", id), nil)
		return
	}
	h.writeResult(w, r, http.StatusOK, res)
}

func (h *Handlers) Manifest(w http.ResponseWriter, r *http.Request) {
	if h.index == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("manifest index is disabled"), nil)
		return
	}
	lat, err := parseFloatParam(r, "lat")
	if err != nil {
		writeError(w, http.StatusBadRequest, err, nil)
		return
	}
	lon, err := parseFloatParam(r, "lon")
	if err != nil {
		writeError(w, http.StatusBadRequest, err, nil)
		return
	}
	recs, err := h.index.Lookup(r.Context(), lat, lon)
	if err != nil {
		writeError(w, statusFor(err), err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": recs})
}

func (h *Handlers) writeResult(w http.ResponseWriter, r *http.Request, code int, res *tiles.Result) {
	if strings.EqualFold(r.URL.Query().Get("format"), "geojson") {
		w.Header().Set("Content-Type", "application/geo+json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(res.FeatureCollection()); err != nil {
			h.logger.Warn("encode geojson manifest", "err", err)
		}
		return
	}
	writeJSON(w, code, res)
}

func (h *Handlers) observe(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

type downloadBody struct {
	BBox       []float64   `json:"bbox"`
	BBoxes     [][]float64 `json:"bboxes"`
	Dest       string      `json:"dest"`
	Format     string      `json:"format"`
	Resolution string      `json:"resolution"`
	Overwrite  string      `json:"overwrite"`
}

// ParseDownloadRequest decodes the JSON body and roots dest under cfg.DestDir.
// dest must be a relative path that stays inside that directory.
func ParseDownloadRequest(r *http.Request, cfg config.Config) (tiles.Request, error) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	var b downloadBody
	if err := dec.Decode(&b); err != nil {
		return tiles.Request{}, fmt.Errorf("%w: invalid request body: %w", tiles.ErrInvalidArgument, err)
	}

	dest := cfg.DestDir
	if d := strings.TrimSpace(b.Dest); d != "" {
		if !filepath.IsLocal(d) {
			return tiles.Request{}, fmt.Errorf("%w: dest must be a relative path inside the server destination", tiles.ErrInvalidArgument)
		}
		dest = filepath.Join(cfg.DestDir, d)
	}
	res := b.Resolution
	if res == "" {
		res = cfg.DefaultResolution
	}
	return tiles.Request{
		BBox:       b.BBox,
		BBoxes:     b.BBoxes,
		Dest:       dest,
		Format:     tiles.Format(b.Format),
		Resolution: tiles.Resolution(res),
		Overwrite:  tiles.OverwritePolicy(b.Overwrite),
	}, nil
}

func requestKey(req tiles.Request) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", tiles.ErrInvalidArgument, err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(b)), nil
}

func parseFloatParam(r *http.Request, name string) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, fmt.Errorf("missing required parameter: %s", name)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return f, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tiles.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, tiles.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tiles.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, tiles.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, code int, err error, res *tiles.Result) {
	writeJSON(w, code, errorBody{Error: err.Error(), Result: res})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
