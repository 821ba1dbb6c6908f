// Package manifestindex records manifest entries in Redis under H3 cells so
// the files covering a point can be found without scanning the destination.
package manifestindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/mohammed-shakir/gmrt-tiles/internal/core/model"
)

type Options struct {
	Res       int
	TTL       time.Duration
	OpTimeout time.Duration
	MaxCells  int
}

// Record is what the index stores per file.
type Record struct {
	RunID     string              `json:"run_id"`
	Entry     model.ManifestEntry `json:"entry"`
	IndexedAt time.Time           `json:"indexed_at"`
}

type Index struct {
	store  *Store
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

func New(store *Store, opts Options, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 250 * time.Millisecond
	}
	if opts.MaxCells <= 0 {
		opts.MaxCells = DefaultMaxCells
	}
	return &Index{store: store, opts: opts, logger: logger, now: time.Now}
}

// Record indexes e under every cell its coverage may touch.
func (ix *Index) Record(ctx context.Context, runID string, e model.ManifestEntry) error {
	cells, err := CoverageCells(e.Coverage, ix.opts.Res, ix.opts.MaxCells)
	var setKeys []string
	switch {
	case errors.Is(err, errTooManyCells):
		setKeys = []string{WideKey}
	case err != nil:
		return fmt.Errorf("index %s: %w", e.Path, err)
	default:
		setKeys = make([]string, len(cells))
		for i, c := range cells {
			setKeys[i] = CellKey(c)
		}
	}

	blob, err := json.Marshal(Record{RunID: runID, Entry: e, IndexedAt: ix.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode index record: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, ix.opts.OpTimeout)
	defer cancel()
	if err := ix.store.Put(ctx, EntryKey(e.Path), blob, setKeys, ix.opts.TTL); err != nil {
		return err
	}
	ix.logger.DebugContext(ctx, "manifest entry indexed", "path", e.Path, "cells", len(setKeys))
	return nil
}

// Lookup returns the indexed records whose coverage contains (lat, lon),
// sorted by path.
func (ix *Index) Lookup(ctx context.Context, lat, lon float64) ([]Record, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("%w: point (%g, %g) out of range", model.ErrInvalidArgument, lat, lon)
	}
	cell, err := PointCell(lat, lon, ix.opts.Res)
	if err != nil {
		return nil, err
	}
	cellKey := CellKey(cell)

	ctx, cancel := context.WithTimeout(ctx, ix.opts.OpTimeout)
	defer cancel()

	members, err := ix.store.Members(ctx, cellKey, WideKey)
	if err != nil {
		return nil, err
	}
	blobs, err := ix.store.MGet(ctx, members)
	if err != nil {
		return nil, err
	}

	var stale []string
	out := make([]Record, 0, len(blobs))
	for _, k := range members {
		b, ok := blobs[k]
		if !ok {
			stale = append(stale, k)
			continue
		}
		var r Record
		if err := json.Unmarshal(b, &r); err != nil {
			ix.logger.WarnContext(ctx, "skip undecodable index record", "key", k, "err", err)
			continue
		}
		if contains(r.Entry.Coverage, lat, lon) {
			out = append(out, r)
		}
	}
	if len(stale) > 0 {
		for _, k := range []string{cellKey, WideKey} {
			if err := ix.store.Forget(ctx, k, stale...); err != nil {
				ix.logger.DebugContext(ctx, "forget stale index members", "key", k, "err", err)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entry.Path < out[j].Entry.Path })
	return out, nil
}

func contains(c model.Coverage, lat, lon float64) bool {
	return lon >= c.West() && lon <= c.East() && lat >= c.South() && lat <= c.North()
}
