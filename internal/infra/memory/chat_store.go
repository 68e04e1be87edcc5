package memory

import (
	"context"
	"sync"
	"time"

	"ctf-scoring-service/internal/domain"
)

// ChatStore keeps coaching threads in memory.
type ChatStore struct {
	clock func() time.Time

	mu         sync.RWMutex
	nextThread int64
	nextTurn   int64
	threads    map[int64]domain.ChatThread
	byOwner    map[string]int64
	turns      map[int64][]domain.ChatTurn
}

func NewChatStore() *ChatStore {
	return &ChatStore{
		clock:   time.Now,
		threads: make(map[int64]domain.ChatThread),
		byOwner: make(map[string]int64),
		turns:   make(map[int64][]domain.ChatTurn),
	}
}

func ownerKey(userID, challengeID string) string {
	return userID + "|" + challengeID
}

func (s *ChatStore) GetOrCreateThread(_ context.Context, userID, challengeID string) (domain.ChatThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byOwner[ownerKey(userID, challengeID)]; ok {
		return s.threads[id], nil
	}
	s.nextThread++
	now := s.clock()
	thread := domain.ChatThread{
		ID:          s.nextThread,
		UserID:      userID,
		ChallengeID: challengeID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.threads[thread.ID] = thread
	s.byOwner[ownerKey(userID, challengeID)] = thread.ID
	return thread, nil
}

func (s *ChatStore) FindThread(_ context.Context, userID, challengeID string) (domain.ChatThread, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byOwner[ownerKey(userID, challengeID)]
	if !ok {
		return domain.ChatThread{}, false, nil
	}
	return s.threads[id], true, nil
}

func (s *ChatStore) AppendTurn(_ context.Context, turn domain.ChatTurn) (domain.ChatTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[turn.ThreadID]; !ok {
		return domain.ChatTurn{}, domain.ErrThreadNotFound
	}
	s.nextTurn++
	turn.ID = s.nextTurn
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.clock()
	}
	s.turns[turn.ThreadID] = append(s.turns[turn.ThreadID], turn)
	return turn, nil
}

func (s *ChatStore) RecentTurns(_ context.Context, threadID int64, n int) ([]domain.ChatTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.turns[threadID]
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return append([]domain.ChatTurn(nil), turns...), nil
}

func (s *ChatStore) ListTurns(_ context.Context, threadID int64, offset, limit int) ([]domain.ChatTurn, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.turns[threadID]
	total := len(turns)
	if offset < 0 {
		offset = 0
	}
	out := make([]domain.ChatTurn, 0, min(limit, total))
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, turns[i])
	}
	return out, total, nil
}

func (s *ChatStore) TouchThread(_ context.Context, threadID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread, ok := s.threads[threadID]
	if !ok {
		return domain.ErrThreadNotFound
	}
	thread.UpdatedAt = at
	s.threads[threadID] = thread
	return nil
}

func (s *ChatStore) DeleteThread(_ context.Context, threadID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread, ok := s.threads[threadID]
	if !ok {
		return nil
	}
	delete(s.threads, threadID)
	delete(s.turns, threadID)
	delete(s.byOwner, ownerKey(thread.UserID, thread.ChallengeID))
	return nil
}
