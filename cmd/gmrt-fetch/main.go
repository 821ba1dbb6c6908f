package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mohammed-shakir/gmrt-tiles/internal/app"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/bbox"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/config"
	"github.com/mohammed-shakir/gmrt-tiles/internal/logger"
	"github.com/mohammed-shakir/gmrt-tiles/pkg/tiles"
)

type bboxList []string

func (b *bboxList) String() string { return strings.Join(*b, " ") }

func (b *bboxList) Set(v string) error {
	*b = append(*b, v)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("gmrt-fetch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var boxes bboxList
	fs.Var(&boxes, "bbox", "west,south,east,north (repeat for a batch)")
	dest := fs.String("dest", "", "destination directory (default DEST_DIR)")
	resolution := fs.String("resolution", "", "low, medium or high (default DEFAULT_RESOLUTION)")
	overwrite := fs.Bool("overwrite", false, "re-download files that already exist")
	format := fs.String("format", "geotiff", "output format")
	asJSON := fs.Bool("json", false, "print the manifest as JSON")
	configPath := fs.String("config", "", "optional YAML config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(boxes) == 0 {
		fmt.Fprintln(stderr, "at least one -bbox is required")
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   true,
		SampleN:   cfg.LogSampleN,
		Component: "gmrt-fetch",
	}, stderr)
	appLog := logger.NewSlog(&zl)

	req, err := buildRequest(boxes, cfg, *dest, *resolution, *format, *overwrite)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	a, err := app.Build(ctx, cfg, appLog)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer func() { _ = a.Close() }()

	res, dlErr := a.Client.Download(ctx, req)
	if res != nil {
		if err := printResult(stdout, res, *asJSON); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	}
	if dlErr != nil {
		fmt.Fprintln(stderr, dlErr)
		return 1
	}
	if len(res.Errors) > 0 {
		return 1
	}
	return 0
}

func buildRequest(boxes []string, cfg config.Config, dest, resolution, format string, overwrite bool) (tiles.Request, error) {
	vals := make([][]float64, 0, len(boxes))
	for _, s := range boxes {
		v, err := bbox.ParseValues(s)
		if err != nil {
			return tiles.Request{}, fmt.Errorf("-bbox %q: %w", s, err)
		}
		vals = append(vals, v)
	}
	if dest == "" {
		dest = cfg.DestDir
	}
	if resolution == "" {
		resolution = cfg.DefaultResolution
	}
	req := tiles.Request{
		Dest:       dest,
		Format:     tiles.Format(format),
		Resolution: tiles.Resolution(resolution),
		Overwrite:  tiles.OverwriteReuse,
	}
	if overwrite {
		req.Overwrite = tiles.OverwriteForce
	}
	if len(vals) == 1 {
		req.BBox = vals[0]
	} else {
		req.BBoxes = vals
	}
	return req, nil
}

func printResult(w io.Writer, res *tiles.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	for _, e := range res.Entries {
		if _, err := fmt.Fprintf(w, "%-7s %10d  %s\n", e.Status, e.SizeBytes, e.Path); err != nil {
			return err
		}
	}
	for _, msg := range res.Errors {
		if _, err := fmt.Fprintf(w, "error   %s\n", msg); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "created=%d reused=%d errors=%d\n", res.Created, res.Reused, len(res.Errors))
	return err
}
