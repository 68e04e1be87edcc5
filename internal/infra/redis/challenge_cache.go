package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"ctf-scoring-service/internal/app"
	"ctf-scoring-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CachedCatalog caches challenge records in Redis and falls back to the
// wrapped catalog on a miss. Challenges are stored as:
//
//	HSET ctf:challenge:{id} data {json} question_type {type}
//
// Canonical solutions are never cached.
type CachedCatalog struct {
	app.Catalog
	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewCachedCatalog(client *redis.Client, inner app.Catalog, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{
		Catalog: inner,
		client:  client,
		ttl:     ttl,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CachedCatalog) Challenge(ctx context.Context, id string) (domain.Challenge, error) {
	key := c.key(id)
	if challenge, ok := c.cached(ctx, key); ok {
		return challenge, nil
	}

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if challenge, ok := c.cached(ctx, key); ok {
			return challenge, nil
		}

		challenge, err := c.Catalog.Challenge(ctx, id)
		if err != nil {
			return domain.Challenge{}, err
		}

		data, err := json.Marshal(challenge)
		if err != nil {
			return challenge, nil
		}
		pipe := c.client.Pipeline()
		pipe.HSet(ctx, key, "data", data, "question_type", string(challenge.QuestionType))
		if ttl := c.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return challenge, nil
	})
	if err != nil {
		return domain.Challenge{}, err
	}
	return result.(domain.Challenge), nil
}

func (c *CachedCatalog) cached(ctx context.Context, key string) (domain.Challenge, bool) {
	raw, err := c.client.HGet(ctx, key, "data").Bytes()
	if err != nil || len(raw) == 0 {
		return domain.Challenge{}, false
	}
	var challenge domain.Challenge
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return domain.Challenge{}, false
	}
	return challenge, true
}

func (c *CachedCatalog) key(id string) string {
	return "ctf:challenge:" + id
}

func (c *CachedCatalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
