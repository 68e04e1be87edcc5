package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ctf-scoring-service/internal/domain"
	"github.com/uptrace/bun"
)

// SubmissionStore is the append-only submission log backed by bun.
type SubmissionStore struct {
	db    *bun.DB
	clock func() time.Time
}

func NewSubmissionStore(db *bun.DB) *SubmissionStore {
	return &SubmissionStore{db: db, clock: time.Now}
}

// Record inserts every submission in one transaction. A contest guard locks the
// contest row and re-checks linkage and window before anything is written.
func (s *SubmissionStore) Record(ctx context.Context, guard *domain.ContestGuard, subs []domain.Submission) ([]domain.Submission, error) {
	if len(subs) == 0 {
		return nil, nil
	}
	rows := make([]submissionRow, len(subs))
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := s.clock().UTC().Truncate(time.Microsecond)
		if guard != nil {
			if err := checkContest(ctx, tx, *guard, now); err != nil {
				return err
			}
		}
		for i, sub := range subs {
			sub.SubmittedAt = now
			rows[i] = submissionRowFrom(sub)
		}
		_, err := tx.NewInsert().Model(&rows).Returning("seq").Exec(ctx)
		return err
	})
	if err != nil {
		if domain.IsDenial(err) || domain.IsIntegrity(err) {
			return nil, err
		}
		return nil, fmt.Errorf("record submissions: %w", err)
	}

	stored := make([]domain.Submission, len(rows))
	for i, row := range rows {
		stored[i] = row.toDomain()
	}
	return stored, nil
}

func checkContest(ctx context.Context, tx bun.Tx, guard domain.ContestGuard, now time.Time) error {
	var contest contestRow
	err := tx.NewSelect().Model(&contest).Where("id = ?", guard.ContestID).For("UPDATE").Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Deny(domain.ReasonContestClosed)
	}
	if err != nil {
		return fmt.Errorf("lock contest: %w", err)
	}

	var linked []string
	err = tx.NewSelect().
		Table("contest_challenges").
		Column("contest_id").
		Where("challenge_id = ?", guard.ChallengeID).
		OrderExpr("contest_id").
		Scan(ctx, &linked)
	if err != nil {
		return fmt.Errorf("load contest links: %w", err)
	}
	switch {
	case len(linked) == 0:
		return &domain.IntegrityError{Reason: domain.IntegrityNoContest, ChallengeID: guard.ChallengeID}
	case len(linked) > 1:
		return &domain.IntegrityError{Reason: domain.IntegrityMultipleContests, ChallengeID: guard.ChallengeID, ContestIDs: linked}
	case linked[0] != guard.ContestID:
		return domain.Deny(domain.ReasonContestClosed)
	}
	if !contest.toDomain().AcceptsAt(now) {
		return domain.Deny(domain.ReasonContestClosed)
	}
	return nil
}

func (s *SubmissionStore) List(ctx context.Context, filter domain.SubmissionFilter) ([]domain.Submission, error) {
	if filter.ContestIDs != nil && len(filter.ContestIDs) == 0 {
		return []domain.Submission{}, nil
	}

	var rows []submissionRow
	q := s.db.NewSelect().Model(&rows)
	if filter.ChallengeID != "" {
		q = q.Where("challenge_id = ?", filter.ChallengeID)
	}
	switch filter.Scope {
	case domain.ScopePractice:
		q = q.Where("contest_id IS NULL")
	case domain.ScopeContests:
		q = q.Where("contest_id IS NOT NULL")
	}
	if filter.ContestIDs != nil {
		q = q.Where("contest_id IN (?)", bun.In(filter.ContestIDs))
	}
	if filter.Actor != nil {
		q = q.Where("actor_kind = ? AND actor_id = ?", string(filter.Actor.Kind), filter.Actor.ID)
	}
	if filter.ActorKind != "" {
		q = q.Where("actor_kind = ?", string(filter.ActorKind))
	}
	if filter.From != nil {
		q = q.Where("submitted_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("submitted_at <= ?", *filter.To)
	}
	if filter.NewestFirst {
		q = q.Order("seq DESC")
	} else {
		q = q.Order("seq ASC")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	out := make([]domain.Submission, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}
