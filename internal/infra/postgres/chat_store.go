package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ctf-scoring-service/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

// ChatStore persists coaching threads and their turns.
type ChatStore struct {
	db    *bun.DB
	clock func() time.Time
}

func NewChatStore(db *bun.DB) *ChatStore {
	return &ChatStore{db: db, clock: time.Now}
}

func (s *ChatStore) GetOrCreateThread(ctx context.Context, userID, challengeID string) (domain.ChatThread, error) {
	now := s.clock().UTC()
	row := chatThreadRow{UserID: userID, ChallengeID: challengeID, CreatedAt: now, UpdatedAt: now}
	// The no-op update makes RETURNING yield the existing row on conflict.
	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (user_id, challenge_id) DO UPDATE").
		Set("user_id = EXCLUDED.user_id").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.ChatThread{}, fmt.Errorf("get or create thread: %w", err)
	}
	return row.toDomain(), nil
}

func (s *ChatStore) FindThread(ctx context.Context, userID, challengeID string) (domain.ChatThread, bool, error) {
	var row chatThreadRow
	err := s.db.NewSelect().
		Model(&row).
		Where("user_id = ?", userID).
		Where("challenge_id = ?", challengeID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ChatThread{}, false, nil
	}
	if err != nil {
		return domain.ChatThread{}, false, fmt.Errorf("find thread: %w", err)
	}
	return row.toDomain(), true, nil
}

func (s *ChatStore) AppendTurn(ctx context.Context, turn domain.ChatTurn) (domain.ChatTurn, error) {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.clock()
	}
	row := chatTurnRow{
		ThreadID:       turn.ThreadID,
		Role:           string(turn.Role),
		Content:        turn.Content,
		PercentOnTrack: turn.PercentOnTrack,
		CreatedAt:      turn.CreatedAt.UTC(),
	}
	if _, err := s.db.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.Field('C') == "23503" {
			return domain.ChatTurn{}, domain.ErrThreadNotFound
		}
		return domain.ChatTurn{}, fmt.Errorf("append turn: %w", err)
	}
	return row.toDomain(), nil
}

func (s *ChatStore) RecentTurns(ctx context.Context, threadID int64, n int) ([]domain.ChatTurn, error) {
	var rows []chatTurnRow
	q := s.db.NewSelect().Model(&rows).Where("thread_id = ?", threadID).Order("id DESC")
	if n > 0 {
		q = q.Limit(n)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	out := make([]domain.ChatTurn, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = row.toDomain()
	}
	return out, nil
}

func (s *ChatStore) ListTurns(ctx context.Context, threadID int64, offset, limit int) ([]domain.ChatTurn, int, error) {
	if offset < 0 {
		offset = 0
	}
	var rows []chatTurnRow
	total, err := s.db.NewSelect().
		Model(&rows).
		Where("thread_id = ?", threadID).
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list turns: %w", err)
	}
	out := make([]domain.ChatTurn, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, total, nil
}

func (s *ChatStore) TouchThread(ctx context.Context, threadID int64, at time.Time) error {
	res, err := s.db.NewUpdate().
		Model((*chatThreadRow)(nil)).
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", threadID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("touch thread: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrThreadNotFound
	}
	return nil
}

// DeleteThread removes the thread; turns go with it via ON DELETE CASCADE.
func (s *ChatStore) DeleteThread(ctx context.Context, threadID int64) error {
	if _, err := s.db.NewDelete().Model((*chatThreadRow)(nil)).Where("id = ?", threadID).Exec(ctx); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	return nil
}
