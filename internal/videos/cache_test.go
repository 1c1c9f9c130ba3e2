package videos

import (
	"context"
	"testing"
	"time"

	"github.com/vidfriends/watchparty/internal/models"
)

func TestMemoryCacheLoadAndExpiry(t *testing.T) {
	now := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)
	cache := NewMemoryCache(time.Minute)
	cache.WithNowFunc(func() time.Time { return now })
	ctx := context.Background()

	if _, ok, _ := cache.Load(ctx); ok {
		t.Fatal("expected empty cache to miss")
	}

	if err := cache.Store(ctx, []models.LeaderboardEntry{{VideoID: "v1", TotalWatchTime: 10}}); err != nil {
		t.Fatalf("store: %v", err)
	}

	entries, ok, err := cache.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if len(entries) != 1 || entries[0].VideoID != "v1" {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	now = now.Add(time.Minute)
	if _, ok, _ := cache.Load(ctx); ok {
		t.Fatal("expected cache miss after expiry")
	}
}

func TestMemoryCacheInvalidate(t *testing.T) {
	cache := NewMemoryCache(time.Hour)
	ctx := context.Background()
	_ = cache.Store(ctx, []models.LeaderboardEntry{{VideoID: "v1"}})

	if err := cache.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := cache.Load(ctx); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestMemoryCacheDefaultTTL(t *testing.T) {
	cache := NewMemoryCache(0)
	if cache.ttl <= 0 {
		t.Fatalf("expected ttl to default positive got %v", cache.ttl)
	}
}
