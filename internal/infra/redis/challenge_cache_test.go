package redis

import (
	"context"
	"testing"
	"time"

	"ctf-scoring-service/internal/domain"
	"ctf-scoring-service/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestCachedCatalogCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	inner := &countingCatalog{Catalog: sampleCatalog()}
	catalog := NewCachedCatalog(client, inner, time.Minute)

	got, err := catalog.Challenge(context.Background(), "flag-1")
	if err != nil {
		t.Fatalf("get challenge: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected loader called once, got %d", inner.calls)
	}
	if !mr.Exists("ctf:challenge:flag-1") {
		t.Fatalf("expected challenge hash in redis")
	}

	// Second call should hit cache, loader not incremented.
	cached, _ := catalog.Challenge(context.Background(), "flag-1")
	if inner.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", inner.calls)
	}
	if cached.FlagScore != got.FlagScore || cached.QuestionType != domain.QuestionPractice {
		t.Fatalf("cached challenge differs: %+v", cached)
	}
	if mr.HGet("ctf:challenge:flag-1", "question_type") != "practice" {
		t.Fatalf("expected question_type field in hash")
	}
}

type countingCatalog struct {
	*memory.Catalog
	calls int
}

func (c *countingCatalog) Challenge(ctx context.Context, id string) (domain.Challenge, error) {
	c.calls++
	return c.Catalog.Challenge(ctx, id)
}

func sampleCatalog() *memory.Catalog {
	flag := "FLAG{x}"
	catalog := memory.NewCatalog()
	catalog.PutChallenge(domain.Challenge{
		ID:           "flag-1",
		Title:        "Warmup",
		QuestionType: domain.QuestionPractice,
		SolutionType: domain.SolutionFlag,
		FlagScore:    5,
	}, domain.Solutions{Flag: &flag})
	return catalog
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
