package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mohammed-shakir/gmrt-tiles/pkg/tiles"
)

func fakeGMRT(t *testing.T) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/tiff")
		_, _ = w.Write([]byte("II*\x00" + strings.Repeat("x", 32)))
	}))
	t.Cleanup(srv.Close)
	t.Setenv("GMRT_BASE_URL", srv.URL)
	t.Setenv("MANIFEST_INDEX_ENABLED", "false")
	t.Setenv("EVENTS_ENABLED", "false")
}

func TestRun_BatchJSON(t *testing.T) {
	fakeGMRT(t)
	dest := t.TempDir()
	var out, errOut bytes.Buffer

	code := run(context.Background(), []string{
		"-bbox", "-10,-5,10,5",
		"-bbox", "170,-10,-170,10",
		"-dest", dest, "-resolution", "high", "-json",
	}, &out, &errOut)
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, errOut.String())
	}
	var res tiles.Result
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v\n%s", err, out.String())
	}
	if res.Created != 3 || len(res.Entries) != 3 {
		t.Fatalf("result: %+v", res)
	}
	if _, err := os.Stat(filepath.Join(dest, "gmrt_high_-10.000_-5.000_10.000_5.000.tif")); err != nil {
		t.Fatal(err)
	}
}

func TestRun_ReuseAndText(t *testing.T) {
	fakeGMRT(t)
	dest := t.TempDir()
	args := []string{"-bbox", "0,0,1,1", "-dest", dest}
	var out, errOut bytes.Buffer
	if code := run(context.Background(), args, &out, &errOut); code != 0 {
		t.Fatalf("first run exit=%d: %s", code, errOut.String())
	}
	out.Reset()
	if code := run(context.Background(), args, &out, &errOut); code != 0 {
		t.Fatalf("second run exit=%d: %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "reused") || !strings.Contains(out.String(), "created=0 reused=1 errors=0") {
		t.Fatalf("output: %s", out.String())
	}
}

func TestRun_UsageErrors(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(context.Background(), nil, &out, &errOut); code != 2 {
		t.Fatalf("missing bbox: exit=%d", code)
	}
	if code := run(context.Background(), []string{"-bbox", "1,2,x,4"}, &out, &errOut); code != 2 {
		t.Fatalf("unparseable bbox: exit=%d", code)
	}
}

func TestRun_InvalidSingleBoxExits1(t *testing.T) {
	fakeGMRT(t)
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"-bbox", "1,2,3", "-dest", t.TempDir()}, &out, &errOut)
	if code != 1 {
		t.Fatalf("exit=%d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "bbox error:") {
		t.Fatalf("output: %s", out.String())
	}
}

func TestRun_BatchKeepsGoodBoxes(t *testing.T) {
	fakeGMRT(t)
	dest := t.TempDir()
	var out, errOut bytes.Buffer

	code := run(context.Background(), []string{
		"-bbox", "-10,-5,10,5",
		"-bbox", "200,-5,210,5",
		"-dest", dest, "-json",
	}, &out, &errOut)
	if code != 1 {
		t.Fatalf("exit=%d want 1 (batch with errors)", code)
	}
	var res tiles.Result
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v\n%s", err, out.String())
	}
	if res.Created != 1 || len(res.Entries) != 1 {
		t.Fatalf("result: %+v", res)
	}
	if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "bbox [200 -5 210 5] error:") {
		t.Fatalf("errors: %q", res.Errors)
	}
	if _, err := os.Stat(filepath.Join(dest, "gmrt_medium_-10.000_-5.000_10.000_5.000.tif")); err != nil {
		t.Fatal(err)
	}
}

func TestRun_InvalidFormatExits1(t *testing.T) {
	fakeGMRT(t)
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{
		"-bbox", "0,0,1,1", "-bbox", "0,0,1,1", "-dest", t.TempDir(), "-format", "png",
	}, &out, &errOut)
	if code != 1 {
		t.Fatalf("exit=%d", code)
	}
}
