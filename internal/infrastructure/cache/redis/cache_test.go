package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	cache := New(srv.Addr(), "", 0)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, srv
}

func TestCacheSetGet(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "ctx:u1", []byte(`[{"id":"rec-1"}]`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	raw, ok, err := cache.Get(ctx, "ctx:u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("expected hit")
	}
	if string(raw) != `[{"id":"rec-1"}]` {
		t.Fatalf("unexpected payload: %s", raw)
	}
}

func TestCacheMissIsNotAnError(t *testing.T) {
	cache, _ := newTestCache(t)

	raw, ok, err := cache.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("expected nil error on miss, got %v", err)
	}
	if ok || raw != nil {
		t.Fatalf("expected miss, got hit with %s", raw)
	}
}

func TestCacheRespectsTTL(t *testing.T) {
	cache, srv := newTestCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "result:abc", []byte("payload"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	srv.FastForward(2 * time.Minute)

	_, ok, err := cache.Get(ctx, "result:abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("expected expiry after TTL")
	}
}

func TestCacheGetFailsWhenServerDown(t *testing.T) {
	cache, srv := newTestCache(t)
	srv.Close()

	_, ok, err := cache.Get(context.Background(), "ctx:u1")
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if ok {
		t.Fatalf("expected no hit on transport error")
	}
}
