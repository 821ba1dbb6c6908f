package tiles

import (
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/gmrt-tiles/internal/core/naming"
)

// Result is the manifest of one Download call.
type Result struct {
	RunID   string          `json:"run_id,omitempty"`
	Entries []ManifestEntry `json:"entries"`
	Created int             `json:"count_created"`
	Reused  int             `json:"count_reused"`
	Errors  []string        `json:"errors"`
}

func newResult(runID string) *Result {
	return &Result{RunID: runID, Entries: []ManifestEntry{}, Errors: []string{}}
}

func (r *Result) add(e ManifestEntry) {
	r.Entries = append(r.Entries, e)
	switch e.Status {
	case StatusCreated:
		r.Created++
	case StatusReused:
		r.Reused++
	}
}

// Path returns the first entry whose file exists and carries a GeoTIFF extension.
func (r *Result) Path() (string, error) {
	if r != nil {
		for _, e := range r.Entries {
			if !naming.HasRasterExt(e.Path) {
				continue
			}
			if fi, err := os.Stat(e.Path); err == nil && fi.Mode().IsRegular() {
				return e.Path, nil
			}
		}
	}
	return "", fmt.Errorf("%w: no GeoTIFF found in download result", ErrNotFound)
}

// Path is the function form of (*Result).Path.
func Path(r *Result) (string, error) { return r.Path() }

// FeatureCollection renders the manifest as GeoJSON, one polygon per entry.
func (r *Result) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if r == nil {
		return fc
	}
	for _, e := range r.Entries {
		f := geojson.NewFeature(e.Coverage.Bound().ToPolygon())
		f.Properties["path"] = e.Path
		f.Properties["format"] = string(e.Format)
		f.Properties["size_bytes"] = e.SizeBytes
		f.Properties["status"] = string(e.Status)
		fc.Append(f)
	}
	if r.RunID != "" {
		fc.ExtraMembers = geojson.Properties{"run_id": r.RunID}
	}
	return fc
}
