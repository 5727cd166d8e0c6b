package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/rezw4n/geotiles/internal/catalog"
	"github.com/rezw4n/geotiles/internal/core/config"
	"github.com/rezw4n/geotiles/internal/core/observability"
	"github.com/rezw4n/geotiles/internal/core/router"
	"github.com/rezw4n/geotiles/internal/core/server"
	"github.com/rezw4n/geotiles/internal/crs"
	"github.com/rezw4n/geotiles/internal/export"
	"github.com/rezw4n/geotiles/internal/logger"
	"github.com/rezw4n/geotiles/internal/overlay"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: "geotiles-server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting geotiles-server",
		"addr", cfg.Addr,
		"version", Version,
		"redis", cfg.RedisAddr)

	registry := crs.New(crs.NewMapBackend(), func() crs.Backend { return crs.NewMapBackend() })
	if err := registry.EnsureRegistered(crs.DefaultDefinitions()); err != nil {
		appLog.Error("crs bootstrap failed", "err", err)
		return 1
	}

	surface := overlay.NewVirtualSurface()
	manager, err := overlay.NewManager(surface, registry, overlay.Config{
		Opacity:    cfg.OverlayOpacity,
		Resolution: cfg.OverlayResolution,
	}, appLog)
	if err != nil {
		appLog.Error("overlay manager setup failed", "err", err)
		return 1
	}

	cat := catalog.New()
	manager.OnAttach = func(h *overlay.Handle) {
		cat.Add(catalog.Entry{
			ID:          uuid.New().String(),
			Name:        h.Source.Name,
			GeoBounds:   h.Bounds,
			Width:       h.Meta.Width,
			Height:      h.Meta.Height,
			EPSG:        h.EPSG,
			Fingerprint: h.Source.Fingerprint(),
			AttachedAt:  time.Now(),
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cache *export.Cache
	if cfg.RedisAddr != "" {
		cache, err = export.NewCache(ctx, cfg.RedisAddr, cfg.CacheTTL, cfg.CacheOpTimeout)
		if err != nil {
			appLog.Warn("export cache unavailable, running uncached", "err", err)
			cache = nil
		} else {
			defer func() { _ = cache.Close() }()
		}
	}

	tiler, err := export.NewTiler(cfg.TileSize, cfg.MaxExportTiles)
	if err != nil {
		appLog.Error("tiler setup failed", "err", err)
		return 1
	}
	exports := export.NewService(cache, appLog,
		export.NewPMTilesGenerator(tiler),
		export.NewTileZipGenerator(tiler),
	)

	h := &router.Handler{
		Manager: manager,
		Surface: surface,
		Catalog: cat,
		Exports: exports,
		Cfg:     cfg,
		Log:     appLog,
	}

	if err := server.Run(ctx, cfg, appLog, h, registry); err != nil {
		appLog.Error("server error", "err", err)
		return 1
	}

	manager.Clear()
	appLog.Info("shutdown complete")
	return 0
}
