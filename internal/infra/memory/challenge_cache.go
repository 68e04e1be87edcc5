package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"ctf-scoring-service/internal/app"
	"ctf-scoring-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CachedCatalog caches challenge records with TTL to avoid repeated DB hits.
// Every other lookup goes straight to the wrapped catalog.
type CachedCatalog struct {
	app.Catalog
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand
	rndMu sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedChallenge
}

type cachedChallenge struct {
	challenge domain.Challenge
	expiresAt time.Time
}

func NewCachedCatalog(inner app.Catalog, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{
		Catalog: inner,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:   make(map[string]cachedChallenge),
	}
}

func (c *CachedCatalog) Challenge(ctx context.Context, id string) (domain.Challenge, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[id]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.challenge, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[id]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.challenge, nil
		}
		c.mu.RUnlock()

		challenge, err := c.Catalog.Challenge(ctx, id)
		if err != nil {
			return domain.Challenge{}, err
		}

		c.mu.Lock()
		c.cache[id] = cachedChallenge{
			challenge: challenge,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return challenge, nil
	})
	if err != nil {
		return domain.Challenge{}, err
	}
	return result.(domain.Challenge), nil
}

func (c *CachedCatalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
