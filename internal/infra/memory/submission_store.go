package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ctf-scoring-service/internal/domain"
)

// SubmissionStore is an append-only in-memory submission log.
type SubmissionStore struct {
	catalog *Catalog
	clock   func() time.Time

	mu   sync.RWMutex
	subs []domain.Submission
	seq  int64
	last time.Time
}

// NewSubmissionStore uses catalog to re-validate contest guards at write time.
func NewSubmissionStore(catalog *Catalog) *SubmissionStore {
	return NewSubmissionStoreWithClock(catalog, time.Now)
}

// NewSubmissionStoreWithClock allows deterministic timestamps in tests.
func NewSubmissionStoreWithClock(catalog *Catalog, now func() time.Time) *SubmissionStore {
	return &SubmissionStore{catalog: catalog, clock: now}
}

func (s *SubmissionStore) Record(_ context.Context, guard *domain.ContestGuard, subs []domain.Submission) ([]domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().UTC().Truncate(time.Microsecond)
	if guard != nil && s.catalog != nil {
		if err := s.catalog.CheckContest(*guard, now); err != nil {
			return nil, err
		}
	}
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now

	stored := make([]domain.Submission, len(subs))
	for i, sub := range subs {
		s.seq++
		sub.Seq = s.seq
		sub.SubmittedAt = now
		stored[i] = sub
	}
	s.subs = append(s.subs, stored...)
	return stored, nil
}

func (s *SubmissionStore) List(_ context.Context, filter domain.SubmissionFilter) ([]domain.Submission, error) {
	s.mu.RLock()
	out := make([]domain.Submission, 0)
	for _, sub := range s.subs {
		if filter.Matches(sub) {
			out = append(out, sub)
		}
	}
	s.mu.RUnlock()

	if filter.NewestFirst {
		sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
