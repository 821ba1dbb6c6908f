package manifestindex

import (
	"errors"
	"fmt"
	"math"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/gmrt-tiles/internal/core/model"
)

const (
	// polygon edges wider than this are split so H3 never takes the short way round
	maxSliceWidth = 60.0
	// DefaultMaxCells bounds the cell set of one entry before it is filed as wide.
	DefaultMaxCells = 4096
)

var errTooManyCells = errors.New("coverage spans too many cells")

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

// PointCell returns the cell containing (lat, lon).
func PointCell(lat, lon float64, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	c, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell for (%g, %g): %w", lat, lon, err)
	}
	return c.String(), nil
}

// CoverageCells returns the sorted cells that may contain a point of c: the
// polyfill of c plus its corner and centroid cells, grown by one ring so that
// boundary cells whose centers fall outside c are included.
func CoverageCells(c model.Coverage, res, maxCells int) ([]string, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	if maxCells <= 0 {
		maxCells = DefaultMaxCells
	}

	seeds := map[h3.Cell]struct{}{}
	for _, sl := range lonSlices(c.West(), c.East()) {
		if sl[1] > sl[0] {
			loop := h3.GeoLoop{
				{Lat: c.South(), Lng: sl[0]},
				{Lat: c.South(), Lng: sl[1]},
				{Lat: c.North(), Lng: sl[1]},
				{Lat: c.North(), Lng: sl[0]},
			}
			cells, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: loop}, res)
			if err != nil {
				return nil, fmt.Errorf("h3 polyfill: %w", err)
			}
			for _, cell := range cells {
				seeds[cell] = struct{}{}
			}
			if len(seeds) > maxCells {
				return nil, errTooManyCells
			}
		}
	}
	for _, ll := range []h3.LatLng{
		{Lat: c.South(), Lng: c.West()},
		{Lat: c.South(), Lng: c.East()},
		{Lat: c.North(), Lng: c.East()},
		{Lat: c.North(), Lng: c.West()},
		{Lat: (c.South() + c.North()) / 2, Lng: (c.West() + c.East()) / 2},
	} {
		cell, err := h3.LatLngToCell(ll, res)
		if err != nil {
			return nil, fmt.Errorf("h3 corner cell: %w", err)
		}
		seeds[cell] = struct{}{}
	}

	out := make(map[string]struct{}, len(seeds)*2)
	for cell := range seeds {
		disk, err := h3.GridDisk(cell, 1)
		if err != nil {
			return nil, fmt.Errorf("h3 grid disk: %w", err)
		}
		for _, d := range disk {
			out[d.String()] = struct{}{}
		}
		if len(out) > maxCells {
			return nil, errTooManyCells
		}
	}

	cells := make([]string, 0, len(out))
	for s := range out {
		cells = append(cells, s)
	}
	sort.Strings(cells)
	return cells, nil
}

// lonSlices cuts [west, east] into pieces no wider than maxSliceWidth.
func lonSlices(west, east float64) [][2]float64 {
	if east <= west {
		return [][2]float64{{west, east}}
	}
	n := int(math.Ceil((east - west) / maxSliceWidth))
	step := (east - west) / float64(n)
	out := make([][2]float64, 0, n)
	for i := range n {
		lo := west + float64(i)*step
		hi := lo + step
		if i == n-1 {
			hi = east
		}
		out = append(out, [2]float64{lo, hi})
	}
	return out
}
