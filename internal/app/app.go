// Package app assembles the tiles client and its optional recorders from config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/gmrt-tiles/internal/core/config"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/gmrt"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/health"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/httpclient"
	"github.com/mohammed-shakir/gmrt-tiles/internal/events"
	"github.com/mohammed-shakir/gmrt-tiles/internal/manifestindex"
	"github.com/mohammed-shakir/gmrt-tiles/pkg/tiles"
)

type App struct {
	Client *tiles.Client
	// Index is nil unless MANIFEST_INDEX_ENABLED.
	Index   *manifestindex.Index
	store   *manifestindex.Store
	events  *events.Publisher
	indexer *events.Indexer
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	provider, err := gmrt.NewGridServer(cfg.GMRTBaseURL)
	if err != nil {
		return nil, fmt.Errorf("grid server: %w", err)
	}

	a := &App{}
	opts := []tiles.Option{
		tiles.WithLogger(logger),
		tiles.WithProvider(provider),
		tiles.WithFilePrefix(cfg.FilePrefix),
		tiles.WithHTTPClient(httpclient.NewOutbound(cfg.DownloadTimeout)),
		tiles.WithFetchOptions(tiles.FetchOptions{
			Timeout:  cfg.DownloadTimeout,
			Retries:  cfg.DownloadRetries,
			Backoff:  cfg.DownloadBackoff,
			Upstream: provider.Name(),
		}),
	}

	if cfg.ManifestIndex.Enabled {
		st, err := manifestindex.NewStore(ctx, cfg.ManifestIndex.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("manifest index: %w", err)
		}
		a.store = st
		a.Index = manifestindex.New(st, manifestindex.Options{
			Res:       cfg.ManifestIndex.H3Res,
			TTL:       cfg.ManifestIndex.TTL,
			OpTimeout: cfg.ManifestIndex.OpTimeout,
		}, logger)
		opts = append(opts, tiles.WithRecorder(a.Index))
		logger.Info("manifest index enabled", "redis", cfg.ManifestIndex.RedisAddr, "h3_res", cfg.ManifestIndex.H3Res)
	}

	if cfg.Events.Enabled {
		pub, err := events.NewPublisher(config.Brokers(cfg.Events.Brokers), cfg.Events.Topic, 0, logger)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.events = pub
		opts = append(opts, tiles.WithRecorder(pub))
		logger.Info("manifest events enabled", "brokers", cfg.Events.Brokers, "topic", cfg.Events.Topic)
	}

	if cfg.Events.IndexerEnabled {
		if a.Index == nil {
			_ = a.Close()
			return nil, errors.New("INDEXER_ENABLED requires MANIFEST_INDEX_ENABLED")
		}
		a.indexer = events.NewIndexer(
			events.DefaultIndexerConfig(config.Brokers(cfg.Events.Brokers), cfg.Events.Topic, cfg.Events.GroupID),
			a.Index, logger)
	}

	c, err := tiles.New(opts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Client = c
	return a, nil
}

// Start launches background consumers. It returns immediately.
func (a *App) Start(ctx context.Context) error {
	if a.indexer == nil {
		return nil
	}
	return a.indexer.Start(ctx)
}

// Ready lists the dependencies worth probing from /readyz.
func (a *App) Ready() map[string]health.Pinger {
	out := map[string]health.Pinger{}
	if a.store != nil {
		out["redis"] = a.store
	}
	if a.indexer != nil {
		out["kafka_indexer"] = a.indexer
	}
	return out
}

func (a *App) Close() error {
	var errs []error
	if a.indexer != nil {
		a.indexer.Stop()
	}
	if a.events != nil {
		errs = append(errs, a.events.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
