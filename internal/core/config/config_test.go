package config

import (
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()

	if cfg.Addr != ":8090" {
		t.Fatalf("addr=%q", cfg.Addr)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log level=%q", cfg.LogLevel)
	}
	if cfg.MaxUploadBytes != 500<<20 {
		t.Fatalf("max upload=%d", cfg.MaxUploadBytes)
	}
	if cfg.OverlayOpacity != 0.8 || cfg.OverlayResolution != 256 {
		t.Fatalf("overlay defaults: %v/%d", cfg.OverlayOpacity, cfg.OverlayResolution)
	}
	if cfg.DefaultMinZoom != 0 || cfg.DefaultMaxZoom != 12 {
		t.Fatalf("zoom defaults: %d..%d", cfg.DefaultMinZoom, cfg.DefaultMaxZoom)
	}
	if cfg.CacheTTL != 15*time.Minute {
		t.Fatalf("cache ttl=%v", cfg.CacheTTL)
	}
	if cfg.LayerName != "raster" {
		t.Fatalf("layer name=%q", cfg.LayerName)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("ADDR", ":9999")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("EXPORT_CACHE_TTL", "1h")
	t.Setenv("MAX_UPLOAD_BYTES", "1048576")
	t.Setenv("LOG_CONSOLE", "true")
	t.Setenv("EXPORT_MAX_TILES", "128")

	cfg := FromEnv()
	if cfg.Addr != ":9999" || cfg.RedisAddr != "redis:6379" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.CacheTTL != time.Hour {
		t.Fatalf("cache ttl=%v", cfg.CacheTTL)
	}
	if cfg.MaxUploadBytes != 1<<20 {
		t.Fatalf("max upload=%d", cfg.MaxUploadBytes)
	}
	if !cfg.LogConsole {
		t.Fatal("log console not picked up")
	}
	if cfg.MaxExportTiles != 128 {
		t.Fatalf("max tiles=%d", cfg.MaxExportTiles)
	}
}

func TestFromEnv_ClampsBadValues(t *testing.T) {
	t.Setenv("OVERLAY_OPACITY", "3.5")
	t.Setenv("EXPORT_MIN_ZOOM", "9")
	t.Setenv("EXPORT_MAX_ZOOM", "2")

	cfg := FromEnv()
	if cfg.OverlayOpacity != 1 {
		t.Fatalf("opacity=%v want clamped to 1", cfg.OverlayOpacity)
	}
	// An inverted zoom range falls back to the defaults.
	if cfg.DefaultMinZoom != 0 || cfg.DefaultMaxZoom != 12 {
		t.Fatalf("zoom range %d..%d want 0..12", cfg.DefaultMinZoom, cfg.DefaultMaxZoom)
	}

	t.Setenv("OVERLAY_OPACITY", "-1")
	if cfg := FromEnv(); cfg.OverlayOpacity != 0 {
		t.Fatalf("opacity=%v want clamped to 0", cfg.OverlayOpacity)
	}

	t.Setenv("MAX_UPLOAD_BYTES", "not-a-number")
	if cfg := FromEnv(); cfg.MaxUploadBytes != 500<<20 {
		t.Fatalf("unparseable values must fall back, got %d", cfg.MaxUploadBytes)
	}
}
