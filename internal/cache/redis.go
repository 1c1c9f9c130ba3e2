// Package cache holds the shared leaderboard cache used when several
// instances serve the same catalog.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"github.com/vidfriends/watchparty/internal/models"
)

// LeaderboardKey is where the computed leaderboard is stored.
const LeaderboardKey = "watchparty:leaderboard"

// RedisLeaderboard stores the leaderboard as a JSON blob with a TTL.
type RedisLeaderboard struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisLeaderboard wraps an existing client.
func NewRedisLeaderboard(client redis.UniversalClient, ttl time.Duration) *RedisLeaderboard {
	return &RedisLeaderboard{client: client, ttl: ttl}
}

// Connect parses url, instruments the client for tracing and checks the
// server answers before returning it.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("instrument redis: %w", err)
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Load returns the cached leaderboard. A missing key is a miss, not an error.
func (c *RedisLeaderboard) Load(ctx context.Context) ([]models.LeaderboardEntry, bool, error) {
	data, err := c.client.Get(ctx, LeaderboardKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get leaderboard: %w", err)
	}

	var entries []models.LeaderboardEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, false, fmt.Errorf("decode leaderboard: %w", err)
	}
	return entries, true, nil
}

// Store writes the leaderboard with the configured TTL.
func (c *RedisLeaderboard) Store(ctx context.Context, entries []models.LeaderboardEntry) error {
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode leaderboard: %w", err)
	}
	if err := c.client.Set(ctx, LeaderboardKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set leaderboard: %w", err)
	}
	return nil
}

// Invalidate removes the cached leaderboard.
func (c *RedisLeaderboard) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, LeaderboardKey).Err(); err != nil {
		return fmt.Errorf("delete leaderboard: %w", err)
	}
	return nil
}
