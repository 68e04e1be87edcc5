package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"ctf-scoring-service/internal/domain"
)

func TestCachedCatalogCachesChallenges(t *testing.T) {
	inner := &countingCatalog{Catalog: sampleCatalog()}
	catalog := NewCachedCatalog(inner, time.Minute)

	if _, err := catalog.Challenge(context.Background(), "flag-1"); err != nil {
		t.Fatalf("get challenge: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected loader once, got %d", inner.calls)
	}

	if _, err := catalog.Challenge(context.Background(), "flag-1"); err != nil {
		t.Fatalf("get challenge 2: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", inner.calls)
	}
}

func TestCachedCatalogExpires(t *testing.T) {
	inner := &countingCatalog{Catalog: sampleCatalog()}
	catalog := NewCachedCatalog(inner, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	catalog.clock = func() time.Time { return now }

	_, _ = catalog.Challenge(context.Background(), "flag-1")
	now = now.Add(2 * time.Minute)
	_, _ = catalog.Challenge(context.Background(), "flag-1")
	if inner.calls != 2 {
		t.Fatalf("expected reload after ttl, got %d calls", inner.calls)
	}
}

func TestCachedCatalogDoesNotCacheMisses(t *testing.T) {
	inner := &countingCatalog{Catalog: sampleCatalog()}
	catalog := NewCachedCatalog(inner, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := catalog.Challenge(context.Background(), "missing")
		if !errors.Is(err, domain.ErrChallengeNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	}
	if inner.calls != 2 {
		t.Fatalf("expected misses to reach the loader, got %d calls", inner.calls)
	}
}

type countingCatalog struct {
	*Catalog
	calls int
}

func (c *countingCatalog) Challenge(ctx context.Context, id string) (domain.Challenge, error) {
	c.calls++
	return c.Catalog.Challenge(ctx, id)
}

func sampleCatalog() *Catalog {
	flag := "FLAG{x}"
	catalog := NewCatalog()
	catalog.PutChallenge(domain.Challenge{
		ID:           "flag-1",
		Title:        "Warmup",
		QuestionType: domain.QuestionCompetition,
		SolutionType: domain.SolutionFlag,
		FlagScore:    5,
	}, domain.Solutions{Flag: &flag})
	catalog.PutContest(domain.Contest{
		ID:        "ctf-1",
		Name:      "Spring CTF",
		StartTime: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		IsActive:  true,
	}, "flag-1")
	return catalog
}
