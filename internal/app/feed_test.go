package app_test

import (
	"context"
	"testing"
	"time"

	"ctf-scoring-service/internal/domain"
)

func TestFeedKeepsNewestForSlowSubscribers(t *testing.T) {
	f := newFixture(t)
	ch, cancel, err := f.boards.Subscribe(context.Background(), practiceQuery())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	feed, ok := f.feeds.Get("leaderboard:practice:score:user")
	if !ok {
		t.Fatalf("subscribe should create the feed")
	}
	for i := 1; i <= 20; i++ {
		feed.Publish(domain.Leaderboard{UpdatedAt: testNow.Add(time.Duration(i) * time.Second)})
	}

	var last domain.Leaderboard
drain:
	for {
		select {
		case lb := <-ch:
			last = lb
		default:
			break drain
		}
	}
	if !last.UpdatedAt.Equal(testNow.Add(20 * time.Second)) {
		t.Fatalf("expected the newest snapshot to survive, got %v", last.UpdatedAt)
	}
}

func TestLateSubscriberGetsNewestSnapshot(t *testing.T) {
	f := newFixture(t)
	first, cancel, err := f.boards.Subscribe(context.Background(), practiceQuery())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	<-first

	feed, _ := f.feeds.Get("leaderboard:practice:score:user")
	newer := domain.Leaderboard{Mode: domain.ModePractice, UpdatedAt: testNow.Add(time.Hour)}
	feed.Publish(newer)

	second, cancel2, err := f.boards.Subscribe(context.Background(), practiceQuery())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel2()
	if got := <-second; !got.UpdatedAt.Equal(newer.UpdatedAt) {
		t.Fatalf("expected the newer published snapshot, got %v", got.UpdatedAt)
	}
}
