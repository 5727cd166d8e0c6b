package export

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang/snappy"
)

func TestCache_RoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)
	c, err := NewCache(context.Background(), srv.Addr(), time.Minute, time.Second)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	ctx := context.Background()
	payload := []byte("zip bytes zip bytes zip bytes")
	c.Put(ctx, "export:test", payload)

	got, ok := c.Get(ctx, "export:test")
	if !ok {
		t.Fatal("expected a hit")
	}
	if string(got) != string(payload) {
		t.Fatalf("got %q want %q", got, payload)
	}

	// The stored value is snappy-compressed, not the raw payload.
	raw, err := srv.Get("export:test")
	if err != nil {
		t.Fatalf("read stored value: %v", err)
	}
	decoded, err := snappy.Decode(nil, []byte(raw))
	if err != nil {
		t.Fatalf("stored value is not snappy: %v", err)
	}
	if string(decoded) != string(payload) {
		t.Fatal("compressed value does not decode to the payload")
	}
}

func TestCache_MissAndExpiry(t *testing.T) {
	srv := miniredis.RunT(t)
	c, err := NewCache(context.Background(), srv.Addr(), 50*time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	ctx := context.Background()
	if _, ok := c.Get(ctx, "never-set"); ok {
		t.Fatal("unexpected hit")
	}

	c.Put(ctx, "short-lived", []byte("x"))
	srv.FastForward(time.Second)
	if _, ok := c.Get(ctx, "short-lived"); ok {
		t.Fatal("entry survived its TTL")
	}
}

func TestCache_CorruptEntryIsAMiss(t *testing.T) {
	srv := miniredis.RunT(t)
	c, err := NewCache(context.Background(), srv.Addr(), time.Minute, time.Second)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	srv.Set("broken", "definitely not snappy framing")
	if _, ok := c.Get(context.Background(), "broken"); ok {
		t.Fatal("corrupt entry must behave like a miss")
	}
}

func TestCache_NilIsSafe(t *testing.T) {
	var c *Cache
	ctx := context.Background()
	c.Put(ctx, "k", []byte("v"))
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("nil cache must never hit")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}

func TestNewCache_Unreachable(t *testing.T) {
	if _, err := NewCache(context.Background(), "127.0.0.1:1", time.Minute, time.Second); err == nil {
		t.Fatal("expected a connection error")
	}
	if _, err := NewCache(context.Background(), "", time.Minute, time.Second); err == nil {
		t.Fatal("empty address must be rejected")
	}
}
