package app

import (
	"sync"

	"ctf-scoring-service/internal/domain"
)

// Feed fans a leaderboard scope out to live subscribers.
type Feed struct {
	key         string
	mu          sync.RWMutex
	last        *domain.Leaderboard
	subscribers map[chan domain.Leaderboard]struct{}
}

// NewFeed is exported for infrastructure layers that keep feeds.
func NewFeed(key string) *Feed {
	return &Feed{
		key:         key,
		subscribers: make(map[chan domain.Leaderboard]struct{}),
	}
}

func (f *Feed) Key() string { return f.key }

// Publish stores lb as the latest snapshot and pushes it to every subscriber.
func (f *Feed) Publish(lb domain.Leaderboard) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = &lb
	f.broadcastLocked(lb)
}

// IsEmpty reports whether the feed has no subscribers.
func (f *Feed) IsEmpty() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers) == 0
}

// subscribe registers a channel primed with the newest known snapshot.
func (f *Feed) subscribe(initial domain.Leaderboard) (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	if f.last != nil && f.last.UpdatedAt.After(initial.UpdatedAt) {
		initial = *f.last
	}
	ch <- initial
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

func (f *Feed) broadcastLocked(lb domain.Leaderboard) {
	for ch := range f.subscribers {
		select {
		case ch <- lb:
		default:
			// slow subscriber: replace its oldest pending snapshot
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}
