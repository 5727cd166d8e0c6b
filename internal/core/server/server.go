// Package server wires the HTTP surface and runs it until shutdown.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rezw4n/geotiles/internal/core/config"
	"github.com/rezw4n/geotiles/internal/core/health"
	"github.com/rezw4n/geotiles/internal/core/middleware"
	"github.com/rezw4n/geotiles/internal/core/router"
)

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, h *router.Handler, ready health.ReadinessReporter) error {
	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(ready))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.With(middleware.MaxBytes(cfg.MaxUploadBytes)).
			Post("/overlay", router.Instrument("/v1/overlay", h.SubmitOverlay))
		r.Get("/overlay", router.Instrument("/v1/overlay", h.OverlayStatus))
		r.Delete("/overlay", router.Instrument("/v1/overlay", h.ClearOverlay))
		r.Get("/export/{format}", router.Instrument("/v1/export", h.Export))
		r.Get("/capabilities/{service}", router.Instrument("/v1/capabilities", h.Capabilities))
		r.Get("/catalog", router.Instrument("/v1/catalog", h.CatalogQuery))
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
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
