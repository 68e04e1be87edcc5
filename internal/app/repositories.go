package app

import (
	"context"
	"time"

	"ctf-scoring-service/internal/domain"
)

// Catalog is the read-only view of challenges, contests, solutions and membership.
type Catalog interface {
	Challenge(ctx context.Context, id string) (domain.Challenge, error)
	ContestsForChallenge(ctx context.Context, challengeID string) ([]domain.Contest, error)
	Contest(ctx context.Context, id string) (domain.Contest, error)
	Contests(ctx context.Context) ([]domain.Contest, error)
	Solutions(ctx context.Context, challengeID string) (domain.Solutions, error)
	GroupForUser(ctx context.Context, userID string) (domain.Group, bool, error)
	DisplayNames(ctx context.Context, kind domain.ActorKind, ids []string) (map[string]string, error)
}

// SubmissionStore is the append-only submission log.
type SubmissionStore interface {
	// Record writes all submissions or none. A non-nil guard is re-validated
	// against the contest inside the same transaction. Timestamps and sequence
	// numbers are assigned by the store.
	Record(ctx context.Context, guard *domain.ContestGuard, subs []domain.Submission) ([]domain.Submission, error)
	List(ctx context.Context, filter domain.SubmissionFilter) ([]domain.Submission, error)
}

// Grader scores free-text procedure answers.
type Grader interface {
	Grade(ctx context.Context, req domain.GradeRequest) domain.GradeResult
}

// Coach answers practice chat messages.
type Coach interface {
	Coach(ctx context.Context, req domain.CoachRequest) domain.CoachResult
}

// ChatStore persists coaching threads and turns.
type ChatStore interface {
	GetOrCreateThread(ctx context.Context, userID, challengeID string) (domain.ChatThread, error)
	FindThread(ctx context.Context, userID, challengeID string) (domain.ChatThread, bool, error)
	AppendTurn(ctx context.Context, turn domain.ChatTurn) (domain.ChatTurn, error)
	// RecentTurns returns at most n turns, oldest first.
	RecentTurns(ctx context.Context, threadID int64, n int) ([]domain.ChatTurn, error)
	// ListTurns returns a newest-first page and the total number of turns.
	ListTurns(ctx context.Context, threadID int64, offset, limit int) ([]domain.ChatTurn, int, error)
	TouchThread(ctx context.Context, threadID int64, at time.Time) error
	DeleteThread(ctx context.Context, threadID int64) error
}

// BoardCache keeps computed leaderboards between writes.
type BoardCache interface {
	Get(ctx context.Context, key string) (domain.Leaderboard, bool)
	Set(ctx context.Context, key string, lb domain.Leaderboard)
	Invalidate(ctx context.Context, keys ...string)
}

// FeedRepository abstracts where live leaderboard feeds are kept.
type FeedRepository interface {
	GetOrCreate(key string) *Feed
	Get(key string) (*Feed, bool)
	DeleteIfEmpty(key string)
}

// FeedRelay carries refreshed feed keys between instances sharing a backend.
// Listen delivers keys announced by other instances only and closes the
// channel once ctx is done.
type FeedRelay interface {
	Announce(ctx context.Context, keys ...string) error
	Listen(ctx context.Context) (<-chan string, error)
}
