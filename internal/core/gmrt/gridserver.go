// Package gmrt builds request URLs for the GMRT GridServer.
package gmrt

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/gmrt-tiles/internal/core/model"
)

const (
	DefaultBaseURL = "https://www.gmrt.org/services/GridServer"
	// Source is the file name prefix and metrics label for this upstream.
	Source = "gmrt"
)

// Provider maps a coverage request to an upstream URL.
type Provider interface {
	Name() string
	URL(c model.Coverage, f model.Format, r model.Resolution) (string, error)
}

// GridServer is the GMRT GridServer query interface.
type GridServer struct {
	base *url.URL
}

func NewGridServer(base string) (*GridServer, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse gridserver url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("gridserver url %q: scheme must be http or https", base)
	}
	return &GridServer{base: u}, nil
}

func (g *GridServer) Name() string { return Source }

func (g *GridServer) URL(c model.Coverage, f model.Format, r model.Resolution) (string, error) {
	params, err := BuildParams(c, f, r)
	if err != nil {
		return "", err
	}
	u := *g.base
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// BuildURL is the stateless form of (*GridServer).URL.
func BuildURL(base string, c model.Coverage, f model.Format, r model.Resolution) (string, error) {
	g, err := NewGridServer(base)
	if err != nil {
		return "", err
	}
	return g.URL(c, f, r)
}

func BuildParams(c model.Coverage, f model.Format, r model.Resolution) (url.Values, error) {
	if f != model.FormatGeoTIFF {
		return nil, fmt.Errorf("%w: %w: GMRT supports only %q, got %q",
			model.ErrInvalidArgument, model.ErrUnsupportedFormat, model.FormatGeoTIFF, f)
	}
	level, err := Level(r)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("format", string(f))
	params.Set("west", formatCoord(c.West()))
	params.Set("east", formatCoord(c.East()))
	params.Set("south", formatCoord(c.South()))
	params.Set("north", formatCoord(c.North()))
	params.Set("resolution", level)
	return params, nil
}

// Level maps a named resolution to the GridServer's resolution vocabulary.
func Level(r model.Resolution) (string, error) {
	switch r {
	case model.ResolutionLow:
		return "low", nil
	case model.ResolutionMedium:
		return "med", nil
	case model.ResolutionHigh:
		return "high", nil
	default:
		return "", fmt.Errorf("%w: unsupported resolution %q", model.ErrInvalidArgument, r)
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
