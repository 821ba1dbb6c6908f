// Package bbox validates raw bounding boxes and splits antimeridian-crossing
// longitude spans into non-wrapping coverages.
package bbox

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/gmrt-tiles/internal/core/model"
)

// Validate checks [west, south, east, north] in degrees. West > East is legal
// and means the box crosses the antimeridian.
func Validate(vals []float64) (model.BoundingBox, error) {
	if len(vals) != 4 {
		return model.BoundingBox{}, fmt.Errorf("%w: bbox must have shape [west, south, east, north], got %d values",
			model.ErrInvalidArgument, len(vals))
	}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.BoundingBox{}, fmt.Errorf("%w: bbox values must be finite", model.ErrInvalidArgument)
		}
	}
	west, south, east, north := vals[0], vals[1], vals[2], vals[3]
	if !(west >= -180 && west <= 180 && east >= -180 && east <= 180) {
		return model.BoundingBox{}, fmt.Errorf("%w: longitude values must be in [-180, 180]", model.ErrInvalidArgument)
	}
	if !(south >= -90 && south <= 90 && north >= -90 && north <= 90) {
		return model.BoundingBox{}, fmt.Errorf("%w: latitude values must be in [-90, 90]", model.ErrInvalidArgument)
	}
	if south >= north {
		return model.BoundingBox{}, fmt.Errorf("%w: south must be < north", model.ErrInvalidArgument)
	}
	return model.BoundingBox{West: west, South: south, East: east, North: north}, nil
}

// Parse reads "west,south,east,north" (commas or whitespace) and validates it.
func Parse(s string) (model.BoundingBox, error) {
	vals, err := ParseValues(s)
	if err != nil {
		return model.BoundingBox{}, err
	}
	return Validate(vals)
}

// ParseValues splits "w,s,e,n" into floats without range checks.
func ParseValues(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty bbox", model.ErrInvalidArgument)
	}
	vals := make([]float64, 0, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			var ne *strconv.NumError
			if errors.As(err, &ne) {
				err = ne.Err
			}
			return nil, fmt.Errorf("%w: bbox value %d (%q): %v", model.ErrInvalidArgument, i, f, err)
		}
		vals = append(vals, v)
	}
	return vals, nil
}

// SplitLongitudes returns one or two (west, east) pairs with west <= east.
func SplitLongitudes(west, east float64) [][2]float64 {
	if west <= east {
		return [][2]float64{{west, east}}
	}
	return [][2]float64{{west, 180.0}, {-180.0, east}}
}

// Split turns a validated box into one or two non-wrapping coverages sharing
// the box's latitude span.
func Split(b model.BoundingBox) ([]model.Coverage, error) {
	ranges := SplitLongitudes(b.West, b.East)
	out := make([]model.Coverage, 0, len(ranges))
	for _, r := range ranges {
		c, err := model.NewCoverage(r[0], b.South, r[1], b.North)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", b, err)
		}
		out = append(out, c)
	}
	return out, nil
}
