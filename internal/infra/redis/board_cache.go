package redis

import (
	"context"
	"encoding/json"
	"time"

	"ctf-scoring-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// BoardCache stores computed leaderboards as JSON strings with a short TTL.
type BoardCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewBoardCache(client *redis.Client, ttl time.Duration) *BoardCache {
	return &BoardCache{client: client, ttl: ttl}
}

func (c *BoardCache) Get(ctx context.Context, key string) (domain.Leaderboard, bool) {
	raw, err := c.client.Get(ctx, c.prefixed(key)).Bytes()
	if err != nil {
		return domain.Leaderboard{}, false
	}
	var lb domain.Leaderboard
	if err := json.Unmarshal(raw, &lb); err != nil {
		return domain.Leaderboard{}, false
	}
	return lb, true
}

// Set is best-effort; a failed write only costs a recomputation.
func (c *BoardCache) Set(ctx context.Context, key string, lb domain.Leaderboard) {
	if c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(lb)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.prefixed(key), data, c.ttl).Err()
}

func (c *BoardCache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	prefixed := make([]string, 0, len(keys))
	for _, key := range keys {
		prefixed = append(prefixed, c.prefixed(key))
	}
	_ = c.client.Del(ctx, prefixed...).Err()
}

func (c *BoardCache) prefixed(key string) string {
	return "ctf:" + key
}
