// Package model defines core domain types shared across the tile client.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
)

// BoundingBox is a geographic extent in WGS84 degrees. West may be greater
// than East when the box crosses the antimeridian.
type BoundingBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Wraps reports whether the box crosses the antimeridian.
func (b BoundingBox) Wraps() bool { return b.West > b.East }

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%g %g %g %g]", b.West, b.South, b.East, b.North)
}

// Coverage is a validated, non-wrapping box: West <= East always holds.
// Build one with NewCoverage; the fields are unexported so a wrapping
// range cannot be constructed elsewhere.
type Coverage struct {
	west, south, east, north float64
}

func NewCoverage(west, south, east, north float64) (Coverage, error) {
	for _, v := range [...]float64{west, south, east, north} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Coverage{}, fmt.Errorf("%w: coverage values must be finite", ErrInvalidArgument)
		}
	}
	if west < -180 || west > 180 || east < -180 || east > 180 {
		return Coverage{}, fmt.Errorf("%w: coverage longitude values must be in [-180, 180]", ErrInvalidArgument)
	}
	if south < -90 || south > 90 || north < -90 || north > 90 {
		return Coverage{}, fmt.Errorf("%w: coverage latitude values must be in [-90, 90]", ErrInvalidArgument)
	}
	if west > east {
		return Coverage{}, fmt.Errorf("%w: coverage must not wrap (west %g > east %g)", ErrInvalidArgument, west, east)
	}
	if south >= north {
		return Coverage{}, fmt.Errorf("%w: south must be < north", ErrInvalidArgument)
	}
	return Coverage{west: west, south: south, east: east, north: north}, nil
}

func (c Coverage) West() float64  { return c.west }
func (c Coverage) South() float64 { return c.south }
func (c Coverage) East() float64  { return c.east }
func (c Coverage) North() float64 { return c.north }

// Bounds returns the coverage as (west, south, east, north).
func (c Coverage) Bounds() (west, south, east, north float64) {
	return c.west, c.south, c.east, c.north
}

// Bound converts the coverage to an orb.Bound (lon/lat planar).
func (c Coverage) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{c.west, c.south},
		Max: orb.Point{c.east, c.north},
	}
}

func (c Coverage) String() string {
	return fmt.Sprintf("%.3f,%.3f,%.3f,%.3f", c.west, c.south, c.east, c.north)
}

func (c Coverage) MarshalJSON() ([]byte, error) {
	return json.Marshal(BoundingBox{West: c.west, South: c.south, East: c.east, North: c.north})
}

func (c *Coverage) UnmarshalJSON(b []byte) error {
	var bb BoundingBox
	if err := json.Unmarshal(b, &bb); err != nil {
		return fmt.Errorf("decode coverage: %w", err)
	}
	cv, err := NewCoverage(bb.West, bb.South, bb.East, bb.North)
	if err != nil {
		return err
	}
	*c = cv
	return nil
}

// Format is the raster output format requested from the upstream service.
type Format string

const FormatGeoTIFF Format = "geotiff"

// Formats lists every supported output format.
var Formats = []Format{FormatGeoTIFF}

func (f Format) Valid() bool { return f == FormatGeoTIFF }

// Extension is the file extension (without dot) written for the format.
func (f Format) Extension() string {
	switch f {
	case FormatGeoTIFF:
		return "tif"
	default:
		return ""
	}
}

func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FormatGeoTIFF, nil
	}
	if !f.Valid() {
		return "", fmt.Errorf("%w: %w: %q (supported: geotiff)", ErrInvalidArgument, ErrUnsupportedFormat, s)
	}
	return f, nil
}

// Resolution is a named resolution level.
type Resolution string

const (
	ResolutionLow    Resolution = "low"
	ResolutionMedium Resolution = "medium"
	ResolutionHigh   Resolution = "high"
)

var Resolutions = []Resolution{ResolutionLow, ResolutionMedium, ResolutionHigh}

func (r Resolution) Valid() bool {
	switch r {
	case ResolutionLow, ResolutionMedium, ResolutionHigh:
		return true
	default:
		return false
	}
}

func ParseResolution(s string) (Resolution, error) {
	r := Resolution(strings.ToLower(strings.TrimSpace(s)))
	if r == "" {
		return ResolutionMedium, nil
	}
	if !r.Valid() {
		return "", fmt.Errorf("%w: unsupported resolution %q (supported: low, medium, high)", ErrInvalidArgument, s)
	}
	return r, nil
}

// OverwritePolicy decides whether an existing file is reused or fetched again.
type OverwritePolicy string

const (
	OverwriteReuse OverwritePolicy = "reuse"
	OverwriteForce OverwritePolicy = "force"
)

func (p OverwritePolicy) Valid() bool {
	return p == OverwriteReuse || p == OverwriteForce
}

func (p OverwritePolicy) Force() bool { return p == OverwriteForce }

func ParseOverwritePolicy(s string) (OverwritePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reuse", "skip", "false":
		return OverwriteReuse, nil
	case "force", "overwrite", "true":
		return OverwriteForce, nil
	default:
		return "", fmt.Errorf("%w: unsupported overwrite policy %q (supported: reuse, force)", ErrInvalidArgument, s)
	}
}

// Status tells how a manifest entry was obtained.
type Status string

const (
	StatusCreated Status = "created"
	StatusReused  Status = "reused"
)

// ManifestEntry describes one file materialized on disk.
type ManifestEntry struct {
	Path      string   `json:"path"`
	Format    Format   `json:"format"`
	Coverage  Coverage `json:"coverage"`
	SizeBytes int64    `json:"size_bytes"`
	Status    Status   `json:"status"`
}
