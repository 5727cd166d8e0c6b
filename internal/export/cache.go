package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/redis/go-redis/v9"

	"github.com/rezw4n/geotiles/internal/core/observability"
)

// Cache is a write-through redis cache of generated export blobs, snappy
// compressed. A nil *Cache is valid and caches nothing: the cache is an
// optimization, never a failure source.
type Cache struct {
	rdb       *redis.Client
	ttl       time.Duration
	opTimeout time.Duration
}

// NewCache connects to redis at addr. An empty addr or a failed ping
// returns (nil, err) and callers run uncached.
func NewCache(ctx context.Context, addr string, ttl, opTimeout time.Duration) (*Cache, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	observability.ObserveCacheOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if opTimeout <= 0 {
		opTimeout = 250 * time.Millisecond
	}
	return &Cache{rdb: rdb, ttl: ttl, opTimeout: opTimeout}, nil
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil {
		observability.IncCacheSkip()
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	start := time.Now()
	raw, err := c.rdb.Get(ctx, key).Bytes()
	observability.ObserveCacheOp("get", err, time.Since(start).Seconds())
	if err != nil {
		observability.IncCacheMiss()
		return nil, false
	}
	data, err := snappy.Decode(nil, raw)
	if err != nil {
		// A corrupt entry behaves like a miss.
		observability.IncCacheMiss()
		return nil, false
	}
	observability.IncCacheHit()
	return data, true
}

func (c *Cache) Put(ctx context.Context, key string, data []byte) {
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	start := time.Now()
	err := c.rdb.Set(ctx, key, snappy.Encode(nil, data), c.ttl).Err()
	observability.ObserveCacheOp("set", err, time.Since(start).Seconds())
}

// Close releases the redis connection.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

// cacheKey identifies a blob by format, source content and zoom range.
// The output name only affects the download filename, not the bytes,
// except for capabilities-bearing formats where it names the layer.
func cacheKey(format string, job Job) string {
	return fmt.Sprintf("export:%s:%016x:%d-%d:%s",
		format, job.Source.Fingerprint(), job.Opts.MinZoom, job.Opts.MaxZoom,
		sanitizeName(job.Opts.OutputName))
}

func sanitizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := r
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '_', r == '-', r == '.':
		default:
			out = '-'
		}
		if out == '-' && prev == '-' {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	const maxLen = 120
	k := b.String()
	if len(k) > maxLen {
		k = k[:maxLen]
	}
	return k
}
