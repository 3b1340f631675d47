package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

type snapshot struct {
	Items []string `json:"items"`
	Total int      `json:"total"`
}

func setupTestCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := NewRedisCache("redis://"+s.Addr(), ttl)
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	if _, err := NewRedisCache("not a url", time.Second); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func generation(t *testing.T, c *RedisCache) int64 {
	t.Helper()
	gen, err := c.Generation(context.Background())
	if err != nil {
		t.Fatalf("Generation failed: %v", err)
	}
	return gen
}

func TestSetAndGetJSON(t *testing.T) {
	c, _ := setupTestCache(t, time.Minute)
	ctx := context.Background()
	gen := generation(t, c)

	if err := c.SetJSON(ctx, gen, "views:desc:", snapshot{Items: []string{"a", "b"}, Total: 2}); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var got snapshot
	found, err := c.GetJSON(ctx, gen, "views:desc:", &got)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if !found {
		t.Fatal("expected cache hit")
	}
	if got.Total != 2 || len(got.Items) != 2 || got.Items[1] != "b" {
		t.Errorf("unexpected snapshot: %+v", got)
	}
}

func TestGetJSONMiss(t *testing.T) {
	c, _ := setupTestCache(t, time.Minute)

	var got snapshot
	found, err := c.GetJSON(context.Background(), generation(t, c), "downloads:24", &got)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if found {
		t.Error("expected cache miss")
	}
}

func TestSnapshotsExpire(t *testing.T) {
	c, s := setupTestCache(t, 30*time.Second)
	ctx := context.Background()
	gen := generation(t, c)

	if err := c.SetJSON(ctx, gen, "downloads:24", snapshot{Total: 1}); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}
	s.FastForward(31 * time.Second)

	var got snapshot
	found, err := c.GetJSON(ctx, gen, "downloads:24", &got)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if found {
		t.Error("expected snapshot to expire")
	}
}

func TestInvalidateDropsEverySnapshot(t *testing.T) {
	c, _ := setupTestCache(t, time.Minute)
	ctx := context.Background()
	names := []string{"views:asc:", "views:desc:spring", "downloads:24"}

	before := generation(t, c)
	for _, name := range names {
		if err := c.SetJSON(ctx, before, name, snapshot{Total: 1}); err != nil {
			t.Fatalf("SetJSON %s failed: %v", name, err)
		}
	}
	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	after := generation(t, c)
	if after == before {
		t.Fatalf("expected generation to change, still %d", after)
	}
	for _, name := range names {
		var got snapshot
		found, err := c.GetJSON(ctx, after, name, &got)
		if err != nil {
			t.Fatalf("GetJSON %s failed: %v", name, err)
		}
		if found {
			t.Errorf("expected %s to be invalidated", name)
		}
	}

	if err := c.SetJSON(ctx, after, "downloads:24", snapshot{Total: 3}); err != nil {
		t.Fatalf("SetJSON after invalidate failed: %v", err)
	}
	var got snapshot
	if found, _ := c.GetJSON(ctx, after, "downloads:24", &got); !found || got.Total != 3 {
		t.Errorf("expected fresh snapshot after invalidate, got found=%v %+v", found, got)
	}
}

func TestWriteUnderPinnedGenerationIsNotServedAfterInvalidate(t *testing.T) {
	c, _ := setupTestCache(t, time.Minute)
	ctx := context.Background()

	// A reader pins the generation, then a mutation lands before it writes.
	pinned := generation(t, c)
	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if err := c.SetJSON(ctx, pinned, "downloads:24", snapshot{Total: 1}); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var got snapshot
	found, err := c.GetJSON(ctx, generation(t, c), "downloads:24", &got)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if found {
		t.Errorf("expected stale snapshot to stay unseen, got %+v", got)
	}
}

func TestGenerationFailsWhenServerStops(t *testing.T) {
	c, s := setupTestCache(t, time.Minute)
	s.Close()

	if _, err := c.Generation(context.Background()); err == nil {
		t.Error("expected generation error after server shutdown")
	}
}

func TestNilCacheNeverHits(t *testing.T) {
	var c *RedisCache
	ctx := context.Background()

	gen, err := c.Generation(ctx)
	if err != nil || gen != 0 {
		t.Errorf("Generation on nil cache: gen=%d err=%v", gen, err)
	}
	if err := c.SetJSON(ctx, gen, "x", snapshot{}); err != nil {
		t.Errorf("SetJSON on nil cache: %v", err)
	}
	var got snapshot
	found, err := c.GetJSON(ctx, gen, "x", &got)
	if err != nil || found {
		t.Errorf("expected silent miss, got found=%v err=%v", found, err)
	}
	if err := c.Invalidate(ctx); err != nil {
		t.Errorf("Invalidate on nil cache: %v", err)
	}
	if err := c.Ping(ctx); err != nil {
		t.Errorf("Ping on nil cache: %v", err)
	}
}

func TestPingFailsWhenServerStops(t *testing.T) {
	c, s := setupTestCache(t, time.Minute)
	s.Close()

	if err := c.Ping(context.Background()); err == nil {
		t.Error("expected ping error after server shutdown")
	}
}
