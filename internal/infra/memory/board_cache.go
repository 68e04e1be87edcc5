package memory

import (
	"context"
	"sync"
	"time"

	"ctf-scoring-service/internal/domain"
)

// BoardCache keeps computed leaderboards for a short TTL.
type BoardCache struct {
	ttl   time.Duration
	clock func() time.Time

	mu      sync.RWMutex
	entries map[string]cachedBoard
}

type cachedBoard struct {
	board     domain.Leaderboard
	expiresAt time.Time
}

func NewBoardCache(ttl time.Duration) *BoardCache {
	return &BoardCache{ttl: ttl, clock: time.Now, entries: make(map[string]cachedBoard)}
}

func (c *BoardCache) Get(_ context.Context, key string) (domain.Leaderboard, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.Leaderboard{}, false
	}
	return entry.board, true
}

func (c *BoardCache) Set(_ context.Context, key string, lb domain.Leaderboard) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cachedBoard{board: lb, expiresAt: c.clock().Add(c.ttl)}
}

func (c *BoardCache) Invalidate(_ context.Context, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
}
