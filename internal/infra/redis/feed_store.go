package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"ctf-scoring-service/internal/app"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RefreshChannel carries refreshed leaderboard feed keys between instances.
const RefreshChannel = "ctf:leaderboard:refresh"

// FeedStore keeps live feeds in process and relays refreshes over Redis
// pub/sub so viewers on every instance see writes made on any of them.
type FeedStore struct {
	client *redis.Client
	origin string
	mu     sync.RWMutex
	feeds  map[string]*app.Feed
}

type refreshMessage struct {
	Origin string `json:"origin"`
	Key    string `json:"key"`
}

func NewFeedStore(client *redis.Client) *FeedStore {
	return &FeedStore{
		client: client,
		origin: uuid.NewString(),
		feeds:  make(map[string]*app.Feed),
	}
}

func (s *FeedStore) GetOrCreate(key string) *app.Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	if feed, ok := s.feeds[key]; ok {
		return feed
	}
	feed := app.NewFeed(key)
	s.feeds[key] = feed
	return feed
}

func (s *FeedStore) Get(key string) (*app.Feed, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	feed, ok := s.feeds[key]
	return feed, ok
}

func (s *FeedStore) DeleteIfEmpty(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if feed, ok := s.feeds[key]; ok && feed.IsEmpty() {
		delete(s.feeds, key)
	}
}

// Announce publishes each key on RefreshChannel.
func (s *FeedStore) Announce(ctx context.Context, keys ...string) error {
	pipe := s.client.Pipeline()
	for _, key := range keys {
		payload, err := json.Marshal(refreshMessage{Origin: s.origin, Key: key})
		if err != nil {
			return fmt.Errorf("encode refresh: %w", err)
		}
		pipe.Publish(ctx, RefreshChannel, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish refresh: %w", err)
	}
	return nil
}

// Listen subscribes to RefreshChannel and returns once the subscription is
// confirmed. Keys announced by this store are skipped.
func (s *FeedStore) Listen(ctx context.Context) (<-chan string, error) {
	sub := s.client.Subscribe(ctx, RefreshChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", RefreshChannel, err)
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var m refreshMessage
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil || m.Origin == s.origin {
					continue
				}
				select {
				case out <- m.Key:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
