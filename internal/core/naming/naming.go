// Package naming derives deterministic on-disk names for coverage files.
package naming

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mohammed-shakir/gmrt-tiles/internal/core/model"
)

// PartSuffix marks the temporary sibling a download is streamed into.
const PartSuffix = ".part"

// Filename returns <prefix>_<west>_<south>_<east>_<north>.<ext> with
// coordinates at fixed 3-decimal precision. Same inputs give the same name.
func Filename(prefix string, f model.Format, c model.Coverage) string {
	p := sanitizePrefix(strings.TrimSpace(prefix))
	if p == "" {
		p = "tile"
	}
	ext := f.Extension()
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s_%s_%s_%s_%s.%s",
		p, coord(c.West()), coord(c.South()), coord(c.East()), coord(c.North()), ext)
}

// Prefix joins the source identifier and resolution, e.g. "gmrt_medium".
func Prefix(source string, r model.Resolution) string {
	if r == "" {
		return source
	}
	return source + "_" + string(r)
}

// PartPath is the temp path used while dest is being written.
func PartPath(dest string) string { return dest + PartSuffix }

// HasRasterExt reports whether p carries a GeoTIFF extension.
func HasRasterExt(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".tif", ".tiff":
		return true
	default:
		return false
	}
}

// negative zero (and values rounding to it) print as 0.000
func coord(v float64) string {
	s := fmt.Sprintf("%.3f", v)
	if s == "-0.000" {
		return "0.000"
	}
	return s
}

func sanitizePrefix(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
