package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammed-shakir/gmrt-tiles/internal/app"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/config"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/observability"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/router"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/server"
	"github.com/mohammed-shakir/gmrt-tiles/internal/logger"
	"github.com/mohammed-shakir/gmrt-tiles/internal/metrics"
	"github.com/mohammed-shakir/gmrt-tiles/internal/runs"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "optional YAML config file (environment overrides it)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zl := logger.Build(logger.Config{Component: "tiles-server"}, os.Stderr)
		zl.Error().Err(err).Msg("load config")
		return 1
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "tiles-server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	mp := metrics.Init(metrics.Config{
		Enabled: cfg.MetricsEnabled,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	observability.Init(mp.Registerer(), cfg.MetricsEnabled)
	observability.ExposeBuildInfo(Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("failed to initialize", "err", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			appLog.Warn("close dependencies", "err", err)
		}
	}()

	if err := a.Start(ctx); err != nil {
		appLog.Error("failed to start background consumers", "err", err)
		return 1
	}

	appLog.Info("starting tiles server",
		"addr", cfg.Addr,
		"version", Version,
		"gmrt", cfg.GMRTBaseURL,
		"dest", cfg.DestDir)

	var idx router.ManifestLookup
	if a.Index != nil {
		idx = a.Index
	}
	handler := server.NewHandler(appLog, server.Deps{
		Downloads: router.New(appLog, cfg, a.Client, runs.New(cfg.RunsCacheSize), idx),
		Metrics:   mp,
		Ready:     a.Ready(),
	})

	if err := server.Run(ctx, cfg, appLog, handler); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
