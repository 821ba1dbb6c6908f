package tiles

import (
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/fetch"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/model"
)

type (
	BoundingBox     = model.BoundingBox
	Coverage        = model.Coverage
	Format          = model.Format
	Resolution      = model.Resolution
	OverwritePolicy = model.OverwritePolicy
	Status          = model.Status
	ManifestEntry   = model.ManifestEntry

	// FetchOptions tunes the streaming downloader.
	FetchOptions = fetch.Options
	// UpstreamError is returned when the grid service answers with an error.
	UpstreamError = fetch.UpstreamError
)

const (
	FormatGeoTIFF = model.FormatGeoTIFF

	ResolutionLow    = model.ResolutionLow
	ResolutionMedium = model.ResolutionMedium
	ResolutionHigh   = model.ResolutionHigh

	OverwriteReuse = model.OverwriteReuse
	OverwriteForce = model.OverwriteForce

	StatusCreated = model.StatusCreated
	StatusReused  = model.StatusReused
)

var (
	ErrInvalidArgument   = model.ErrInvalidArgument
	ErrUnsupportedFormat = model.ErrUnsupportedFormat
	ErrPermissionDenied  = model.ErrPermissionDenied
	ErrUpstream          = model.ErrUpstream
	ErrNotFound          = model.ErrNotFound
)

// Request selects what to download. Exactly one of BBox and BBoxes is set.
// Zero Format, Resolution and Overwrite mean geotiff, medium and reuse.
type Request struct {
	BBox       []float64       `json:"bbox,omitempty"`
	BBoxes     [][]float64     `json:"bboxes,omitempty"`
	Dest       string          `json:"dest,omitempty"`
	Format     Format          `json:"format,omitempty"`
	Resolution Resolution      `json:"resolution,omitempty"`
	Overwrite  OverwritePolicy `json:"overwrite,omitempty"`
}

// Batch reports whether the request uses the multi-box form.
func (r Request) Batch() bool { return r.BBoxes != nil }
