// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool

	RedisAddr      string
	CacheTTL       time.Duration
	CacheOpTimeout time.Duration

	MaxUploadBytes int64

	OverlayOpacity    float64
	OverlayResolution int

	TileSize       int
	MaxExportTiles int
	DefaultMinZoom int
	DefaultMaxZoom int
	LayerName      string
}

func FromEnv() Config {
	opacity := getfloat("OVERLAY_OPACITY", 0.8)
	if opacity < 0 {
		opacity = 0
	}
	if opacity > 1 {
		opacity = 1
	}

	minZoom := getint("EXPORT_MIN_ZOOM", 0)
	maxZoom := getint("EXPORT_MAX_ZOOM", 12)
	if minZoom < 0 {
		minZoom = 0
	}
	if maxZoom > 22 {
		maxZoom = 22
	}
	if minZoom > maxZoom {
		minZoom, maxZoom = 0, 12
	}

	return Config{
		Addr:       getenv("ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),

		RedisAddr:      getenv("REDIS_ADDR", ""),
		CacheTTL:       getduration("EXPORT_CACHE_TTL", 15*time.Minute),
		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),

		MaxUploadBytes: getint64("MAX_UPLOAD_BYTES", 500<<20),

		OverlayOpacity:    opacity,
		OverlayResolution: getint("OVERLAY_RESOLUTION", 256),

		TileSize:       getint("EXPORT_TILE_SIZE", 256),
		MaxExportTiles: getint("EXPORT_MAX_TILES", 4096),
		DefaultMinZoom: minZoom,
		DefaultMaxZoom: maxZoom,
		LayerName:      getenv("LAYER_NAME", "raster"),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
