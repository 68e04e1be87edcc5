package postgres

import (
	"time"

	"ctf-scoring-service/internal/domain"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type contestRow struct {
	bun.BaseModel `bun:"table:contests"`

	ID            string    `bun:"id,pk"`
	StartTime     time.Time `bun:"start_time"`
	EndTime       time.Time `bun:"end_time"`
	IsActive      bool      `bun:"is_active"`
	PublishResult bool      `bun:"publish_result"`
}

func (r contestRow) toDomain() domain.Contest {
	return domain.Contest{
		ID:            r.ID,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		IsActive:      r.IsActive,
		PublishResult: r.PublishResult,
	}
}

type submissionRow struct {
	bun.BaseModel `bun:"table:submissions"`

	ID          uuid.UUID `bun:"id,pk,type:uuid"`
	Seq         int64     `bun:"seq,nullzero"`
	ActorKind   string    `bun:"actor_kind"`
	ActorID     string    `bun:"actor_id"`
	ActorName   string    `bun:"actor_name"`
	SubmittedBy string    `bun:"submitted_by"`
	ChallengeID string    `bun:"challenge_id"`
	ContestID   *string   `bun:"contest_id"`
	Kind        string    `bun:"kind"`
	Value       string    `bun:"value"`
	Content     string    `bun:"content"`
	Status      string    `bun:"status"`
	Score       int       `bun:"score"`
	Feedback    string    `bun:"feedback"`
	SubmittedAt time.Time `bun:"submitted_at"`
}

func submissionRowFrom(sub domain.Submission) submissionRow {
	return submissionRow{
		ID:          sub.ID,
		ActorKind:   string(sub.Actor.Kind),
		ActorID:     sub.Actor.ID,
		ActorName:   sub.Actor.Name,
		SubmittedBy: sub.SubmittedBy,
		ChallengeID: sub.ChallengeID,
		ContestID:   sub.ContestID,
		Kind:        string(sub.Kind),
		Value:       sub.Value,
		Content:     sub.Content,
		Status:      string(sub.Status),
		Score:       sub.Score,
		Feedback:    sub.Feedback,
		SubmittedAt: sub.SubmittedAt,
	}
}

func (r submissionRow) toDomain() domain.Submission {
	return domain.Submission{
		ID:          r.ID,
		Seq:         r.Seq,
		Actor:       domain.Actor{Kind: domain.ActorKind(r.ActorKind), ID: r.ActorID, Name: r.ActorName},
		SubmittedBy: r.SubmittedBy,
		ChallengeID: r.ChallengeID,
		ContestID:   r.ContestID,
		Kind:        domain.Kind(r.Kind),
		Value:       r.Value,
		Content:     r.Content,
		Status:      domain.SubmissionStatus(r.Status),
		Score:       r.Score,
		Feedback:    r.Feedback,
		SubmittedAt: r.SubmittedAt.UTC(),
	}
}

type chatThreadRow struct {
	bun.BaseModel `bun:"table:chat_threads"`

	ID          int64     `bun:"id,pk,autoincrement"`
	UserID      string    `bun:"user_id"`
	ChallengeID string    `bun:"challenge_id"`
	CreatedAt   time.Time `bun:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at"`
}

func (r chatThreadRow) toDomain() domain.ChatThread {
	return domain.ChatThread{
		ID:          r.ID,
		UserID:      r.UserID,
		ChallengeID: r.ChallengeID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type chatTurnRow struct {
	bun.BaseModel `bun:"table:chat_turns"`

	ID             int64     `bun:"id,pk,autoincrement"`
	ThreadID       int64     `bun:"thread_id"`
	Role           string    `bun:"role"`
	Content        string    `bun:"content"`
	PercentOnTrack *int      `bun:"percent_on_track"`
	CreatedAt      time.Time `bun:"created_at"`
}

func (r chatTurnRow) toDomain() domain.ChatTurn {
	return domain.ChatTurn{
		ID:             r.ID,
		ThreadID:       r.ThreadID,
		Role:           domain.ChatRole(r.Role),
		Content:        r.Content,
		PercentOnTrack: r.PercentOnTrack,
		CreatedAt:      r.CreatedAt,
	}
}
