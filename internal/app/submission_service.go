package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ctf-scoring-service/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubmitResult is what a caller learns about a recorded attempt.
type SubmitResult struct {
	ChallengeID  string
	QuestionType domain.QuestionType
	Results      []RecordedVerdict
}

// RecordedVerdict pairs a stored submission with the ceiling it was scored against.
type RecordedVerdict struct {
	domain.Submission
	MaxScore int
}

// SubmissionService runs an attempt through eligibility, evaluation and recording.
type SubmissionService struct {
	catalog      Catalog
	resolver     *EligibilityResolver
	evaluator    *Evaluator
	store        SubmissionStore
	boards       *LeaderboardService
	tasks        *TaskQueue
	logger       *zap.Logger
	gradeTimeout time.Duration
}

// SubmissionOptions wires optional collaborators.
type SubmissionOptions struct {
	Boards       *LeaderboardService
	Tasks        *TaskQueue
	Logger       *zap.Logger
	Now          func() time.Time
	GradeTimeout time.Duration
}

func NewSubmissionService(catalog Catalog, grader Grader, store SubmissionStore, opts SubmissionOptions) *SubmissionService {
	s := &SubmissionService{
		catalog:      catalog,
		resolver:     NewEligibilityResolver(catalog, opts.Now),
		evaluator:    NewEvaluator(grader),
		store:        store,
		boards:       opts.Boards,
		tasks:        opts.Tasks,
		logger:       opts.Logger,
		gradeTimeout: opts.GradeTimeout,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.gradeTimeout <= 0 {
		s.gradeTimeout = 2 * time.Minute
	}
	return s
}

// Submit evaluates and records one request. Every permitted kind produces its
// own record; a denial or integrity error writes nothing.
func (s *SubmissionService) Submit(ctx context.Context, principal domain.Principal, challengeID string, attempt domain.Attempt) (SubmitResult, error) {
	challenge, err := s.catalog.Challenge(ctx, challengeID)
	if err != nil {
		return SubmitResult{}, err
	}

	eligibility, err := s.resolver.Resolve(ctx, challenge, principal, attempt)
	if err != nil {
		s.logRejection(challengeID, principal, err)
		return SubmitResult{}, err
	}

	solutions, err := s.catalog.Solutions(ctx, challengeID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("load solutions: %w", err)
	}

	// A client disconnect must not leave a graded attempt unrecorded.
	work, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.gradeTimeout)
	defer cancel()

	verdicts := s.evaluator.Evaluate(work, challenge, solutions, eligibility.Kinds, attempt)
	subs := make([]domain.Submission, 0, len(verdicts))
	for _, v := range verdicts {
		sub := domain.Submission{
			ID:          uuid.New(),
			Actor:       eligibility.Actor,
			SubmittedBy: principal.UserID,
			ChallengeID: challenge.ID,
			Kind:        v.Kind,
			Status:      v.Status,
			Score:       v.Score,
			Feedback:    v.Feedback,
		}
		if v.Kind == domain.KindFlag {
			sub.Value = v.Input
		} else {
			sub.Content = v.Input
		}
		if eligibility.Contest != nil {
			id := eligibility.Contest.ID
			sub.ContestID = &id
		}
		subs = append(subs, sub)
	}

	var guard *domain.ContestGuard
	if eligibility.Contest != nil {
		guard = &domain.ContestGuard{ContestID: eligibility.Contest.ID, ChallengeID: challenge.ID}
	}
	stored, err := s.store.Record(work, guard, subs)
	if err != nil {
		s.logRejection(challengeID, principal, err)
		return SubmitResult{}, err
	}
	s.afterWrite(stored)

	result := SubmitResult{ChallengeID: challenge.ID, QuestionType: challenge.QuestionType}
	for i, sub := range stored {
		result.Results = append(result.Results, RecordedVerdict{Submission: sub, MaxScore: verdicts[i].MaxScore})
	}
	return result, nil
}

// Previous lists the caller's own attempts at a challenge, newest first.
func (s *SubmissionService) Previous(ctx context.Context, principal domain.Principal, challengeID string) ([]domain.Submission, error) {
	challenge, err := s.catalog.Challenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	actor, err := s.resolver.ResolveActor(ctx, challenge, principal)
	if err != nil {
		return nil, err
	}
	subs, err := s.store.List(ctx, domain.SubmissionFilter{
		ChallengeID: challenge.ID,
		Actor:       &actor,
		NewestFirst: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return subs, nil
}

func (s *SubmissionService) afterWrite(stored []domain.Submission) {
	if s.boards == nil || len(stored) == 0 {
		return
	}
	contestID := stored[0].ContestID
	refresh := func(ctx context.Context) error { return s.boards.Refresh(ctx, contestID) }
	if s.tasks == nil {
		if err := refresh(context.Background()); err != nil {
			s.logger.Warn("leaderboard refresh failed", zap.Error(err))
		}
		return
	}
	s.tasks.Go("leaderboard refresh", refresh)
}

func (s *SubmissionService) logRejection(challengeID string, principal domain.Principal, err error) {
	var integrity *domain.IntegrityError
	switch {
	case errors.As(err, &integrity):
		s.logger.Error("challenge catalog integrity error",
			zap.String("challenge_id", challengeID),
			zap.String("reason", string(integrity.Reason)),
			zap.Strings("contest_ids", integrity.ContestIDs),
		)
	case domain.IsDenial(err):
		s.logger.Debug("submission denied",
			zap.String("challenge_id", challengeID),
			zap.String("user_id", principal.UserID),
			zap.String("reason", err.Error()),
		)
	}
}
