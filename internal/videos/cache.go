package videos

import (
	"context"
	"sync"
	"time"

	"github.com/vidfriends/watchparty/internal/models"
)

// DefaultLeaderboardTTL is how long a computed leaderboard is served from cache.
const DefaultLeaderboardTTL = time.Minute

// LeaderboardCache stores the most recently computed leaderboard.
type LeaderboardCache interface {
	Load(ctx context.Context) ([]models.LeaderboardEntry, bool, error)
	Store(ctx context.Context, entries []models.LeaderboardEntry) error
	Invalidate(ctx context.Context) error
}

// MemoryCache is a process-local LeaderboardCache with a TTL.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries []models.LeaderboardEntry
	expires time.Time
	valid   bool
}

// NewMemoryCache returns a cache that serves entries for ttl after they are stored.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultLeaderboardTTL
	}
	return &MemoryCache{ttl: ttl, now: time.Now}
}

// Load returns the cached leaderboard while it is fresh.
func (c *MemoryCache) Load(context.Context) ([]models.LeaderboardEntry, bool, error) {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.valid || !now.Before(c.expires) {
		return nil, false, nil
	}
	return append([]models.LeaderboardEntry(nil), c.entries...), true, nil
}

// Store replaces the cached leaderboard.
func (c *MemoryCache) Store(_ context.Context, entries []models.LeaderboardEntry) error {
	now := c.now()

	c.mu.Lock()
	c.entries = append([]models.LeaderboardEntry(nil), entries...)
	c.expires = now.Add(c.ttl)
	c.valid = true
	c.mu.Unlock()
	return nil
}

// Invalidate drops the cached leaderboard.
func (c *MemoryCache) Invalidate(context.Context) error {
	c.mu.Lock()
	c.entries, c.valid = nil, false
	c.mu.Unlock()
	return nil
}

// WithNowFunc allows tests to override the time source.
func (c *MemoryCache) WithNowFunc(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
