package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNewCoverage_RejectsWrapping(t *testing.T) {
	if _, err := NewCoverage(170, -10, -170, 10); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for wrapping coverage, got %v", err)
	}
	if _, err := NewCoverage(0, 10, 1, 10); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty latitude span, got %v", err)
	}
}

func TestNewCoverage_ZeroWidthAtSeamIsAccepted(t *testing.T) {
	c, err := NewCoverage(180, -10, 180, 10)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.West() != 180 || c.East() != 180 {
		t.Fatalf("unexpected coverage %v", c)
	}
}

func TestCoverage_JSONShape(t *testing.T) {
	c, err := NewCoverage(-10, -5, 10, 5)
	if err != nil {
		t.Fatalf("NewCoverage: %v", err)
	}
	b, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"west":-10,"south":-5,"east":10,"north":5}`
	if string(b) != want {
		t.Fatalf("json=%s want %s", b, want)
	}

	var bad Coverage
	if err := json.Unmarshal([]byte(`{"west":10,"south":-5,"east":-10,"north":5}`), &bad); err == nil {
		t.Fatalf("expected decode of wrapping coverage to fail")
	}
}

func TestCoverage_Bound(t *testing.T) {
	c, _ := NewCoverage(-10, -5, 10, 5)
	b := c.Bound()
	if b.Left() != -10 || b.Bottom() != -5 || b.Right() != 10 || b.Top() != 5 {
		t.Fatalf("unexpected bound %+v", b)
	}
}

func TestParseEnums(t *testing.T) {
	if f, err := ParseFormat(""); err != nil || f != FormatGeoTIFF {
		t.Fatalf("default format: got %q, %v", f, err)
	}
	if _, err := ParseFormat("png"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("png must be rejected, got %v", err)
	}
	if r, err := ParseResolution("HIGH"); err != nil || r != ResolutionHigh {
		t.Fatalf("resolution: got %q, %v", r, err)
	}
	if _, err := ParseResolution("ultra"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("ultra must be rejected, got %v", err)
	}
	if p, err := ParseOverwritePolicy("overwrite"); err != nil || !p.Force() {
		t.Fatalf("overwrite policy: got %q, %v", p, err)
	}
	if _, err := ParseOverwritePolicy("sometimes"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("unknown policy must be rejected, got %v", err)
	}
}
