package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/gmrt-tiles/internal/core/config"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/health"
	middleware "github.com/mohammed-shakir/gmrt-tiles/internal/core/middleware"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/router"
	"github.com/mohammed-shakir/gmrt-tiles/internal/metrics"
)

type Deps struct {
	Downloads *router.Handlers
	Metrics   *metrics.Provider
	// Ready lists the dependencies probed by /readyz.
	Ready map[string]health.Pinger
}

func NewHandler(logger *slog.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(deps.Ready, 2*time.Second))
	if deps.Metrics.Enabled() {
		r.Get(deps.Metrics.Path(), deps.Metrics.Handler().ServeHTTP)
	}
	if deps.Downloads != nil {
		deps.Downloads.Mount(r)
	}
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, handler http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// a batch request streams several rasters before it answers
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
