package naming

import (
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/mohammed-shakir/gmrt-tiles/internal/core/model"
)

func mustCov(t *testing.T, w, s, e, n float64) model.Coverage {
	t.Helper()
	c, err := model.NewCoverage(w, s, e, n)
	if err != nil {
		t.Fatalf("NewCoverage(%g,%g,%g,%g): %v", w, s, e, n, err)
	}
	return c
}

func TestFilename_Format(t *testing.T) {
	got := Filename("gmrt", model.FormatGeoTIFF, mustCov(t, 10.5, 20.5, 30.5, 40.5))
	want := "gmrt_10.500_20.500_30.500_40.500.tif"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFilename_Determinism(t *testing.T) {
	c := mustCov(t, -10, -5, 10, 5)
	k1 := Filename("gmrt_medium", model.FormatGeoTIFF, c)
	k2 := Filename("gmrt_medium", model.FormatGeoTIFF, c)
	if k1 != k2 {
		t.Fatalf("determinism failed:\n k1=%s\n k2=%s", k1, k2)
	}
}

func TestFilename_SignPreserved_NoCollision(t *testing.T) {
	neg := Filename("tile", model.FormatGeoTIFF, mustCov(t, -10, -5, 10, 5))
	if !strings.Contains(neg, "-10.000_-5.000_10.000_5.000") {
		t.Fatalf("negative coordinates not rendered with sign: %s", neg)
	}
	a := Filename("tile", model.FormatGeoTIFF, mustCov(t, -10, 0, -5, 1))
	b := Filename("tile", model.FormatGeoTIFF, mustCov(t, 5, 0, 10, 1))
	if a == b {
		t.Fatalf("distinct coverages must yield distinct names: %s", a)
	}
}

func TestFilename_DistinctCoveragesDistinctNames(t *testing.T) {
	covs := []model.Coverage{
		mustCov(t, 170, -10, 180, 10),
		mustCov(t, -180, -10, -170, 10),
		mustCov(t, 55.05, -21.5, 55.95, -20.7),
		mustCov(t, 55.05, -21.5, 55.95, -20.6),
	}
	seen := map[string]bool{}
	for _, c := range covs {
		n := Filename("gmrt", model.FormatGeoTIFF, c)
		if seen[n] {
			t.Fatalf("collision on %s", n)
		}
		seen[n] = true
	}
}

func TestFilename_PrefixSanitized(t *testing.T) {
	n := Filename("../weird prefix/", model.FormatGeoTIFF, mustCov(t, 0, 0, 1, 1))
	if strings.ContainsAny(n, "/\\ ") {
		t.Fatalf("unsafe characters leaked into name: %s", n)
	}
	if !regexp.MustCompile(`^[A-Za-z0-9_\-.]+$`).MatchString(n) {
		t.Fatalf("name contains disallowed characters: %s", n)
	}
	if got := Filename("", model.FormatGeoTIFF, mustCov(t, 0, 0, 1, 1)); !strings.HasPrefix(got, "tile_") {
		t.Fatalf("empty prefix should fall back to tile_, got %s", got)
	}
}

func TestFilename_NegativeZeroNormalized(t *testing.T) {
	a := Filename("g", model.FormatGeoTIFF, mustCov(t, math0(-1), 0, 1, 1))
	b := Filename("g", model.FormatGeoTIFF, mustCov(t, 0, 0, 1, 1))
	if a != b {
		t.Fatalf("-0 and 0 should name the same file: %s vs %s", a, b)
	}
}

func TestPrefixAndRasterExt(t *testing.T) {
	if got := Prefix("gmrt", model.ResolutionMedium); got != "gmrt_medium" {
		t.Fatalf("Prefix=%q", got)
	}
	if !HasRasterExt(filepath.Join("out", "x.TIFF")) || HasRasterExt("x.xyz") {
		t.Fatalf("HasRasterExt mismatch")
	}
	if PartPath("/a/b.tif") != "/a/b.tif.part" {
		t.Fatalf("PartPath mismatch")
	}
}

// math0 returns a signed zero without tripping constant folding.
func math0(sign float64) float64 {
	z := 0.0
	return z * sign
}
