package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ctf-scoring-service/internal/domain"
)

// Eligibility describes a permitted attempt.
type Eligibility struct {
	Challenge domain.Challenge
	Contest   *domain.Contest
	Actor     domain.Actor
	Kinds     []domain.Kind
}

// EligibilityResolver applies the submission rules in a fixed order.
type EligibilityResolver struct {
	catalog Catalog
	now     func() time.Time
}

func NewEligibilityResolver(catalog Catalog, now func() time.Time) *EligibilityResolver {
	if now == nil {
		now = time.Now
	}
	return &EligibilityResolver{catalog: catalog, now: now}
}

// Resolve returns the eligibility of an attempt, a *domain.DenialError, a
// *domain.IntegrityError, or a wrapped catalog failure.
func (r *EligibilityResolver) Resolve(ctx context.Context, challenge domain.Challenge, principal domain.Principal, attempt domain.Attempt) (Eligibility, error) {
	out := Eligibility{Challenge: challenge}

	if challenge.QuestionType == domain.QuestionCompetition {
		contest, err := r.resolveContest(ctx, challenge.ID)
		if err != nil {
			return Eligibility{}, err
		}
		if !contest.AcceptsAt(r.now()) {
			return Eligibility{}, domain.Deny(domain.ReasonContestClosed)
		}
		out.Contest = &contest
	}

	actor, err := r.resolveActor(ctx, challenge, principal)
	if err != nil {
		return Eligibility{}, err
	}
	out.Actor = actor

	kinds, err := submittedKinds(challenge.SolutionType, attempt)
	if err != nil {
		return Eligibility{}, err
	}
	out.Kinds = kinds
	return out, nil
}

// ResolveActor maps the caller to the actor that owns attempts at the challenge.
func (r *EligibilityResolver) ResolveActor(ctx context.Context, challenge domain.Challenge, principal domain.Principal) (domain.Actor, error) {
	return r.resolveActor(ctx, challenge, principal)
}

func (r *EligibilityResolver) resolveContest(ctx context.Context, challengeID string) (domain.Contest, error) {
	contests, err := r.catalog.ContestsForChallenge(ctx, challengeID)
	if err != nil {
		return domain.Contest{}, fmt.Errorf("load contests for challenge: %w", err)
	}
	switch len(contests) {
	case 0:
		return domain.Contest{}, &domain.IntegrityError{Reason: domain.IntegrityNoContest, ChallengeID: challengeID}
	case 1:
		return contests[0], nil
	default:
		ids := make([]string, 0, len(contests))
		for _, c := range contests {
			ids = append(ids, c.ID)
		}
		return domain.Contest{}, &domain.IntegrityError{Reason: domain.IntegrityMultipleContests, ChallengeID: challengeID, ContestIDs: ids}
	}
}

// Group actors come from stored membership only, never from request input.
func (r *EligibilityResolver) resolveActor(ctx context.Context, challenge domain.Challenge, principal domain.Principal) (domain.Actor, error) {
	if !challenge.GroupOnly {
		return domain.UserActor(principal.UserID, principal.Username), nil
	}
	group, ok, err := r.catalog.GroupForUser(ctx, principal.UserID)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("load group membership: %w", err)
	}
	if !ok {
		return domain.Actor{}, domain.Deny(domain.ReasonGroupRequired)
	}
	return domain.GroupActor(group.ID, group.Name), nil
}

func submittedKinds(solution domain.SolutionType, attempt domain.Attempt) ([]domain.Kind, error) {
	if len(solution.Kinds()) == 0 {
		return nil, domain.Deny(domain.ReasonUnknownSolution)
	}
	if blank(attempt.Value) {
		return nil, &domain.DenialError{Reason: domain.ReasonEmptySubmission, Kind: domain.KindFlag}
	}
	if blank(attempt.Content) {
		return nil, &domain.DenialError{Reason: domain.ReasonEmptySubmission, Kind: domain.KindProcedure}
	}
	var kinds []domain.Kind
	if present(attempt.Value) {
		if !solution.Accepts(domain.KindFlag) {
			return nil, &domain.DenialError{Reason: domain.ReasonKindNotAccepted, Kind: domain.KindFlag}
		}
		kinds = append(kinds, domain.KindFlag)
	}
	if present(attempt.Content) {
		if !solution.Accepts(domain.KindProcedure) {
			return nil, &domain.DenialError{Reason: domain.ReasonKindNotAccepted, Kind: domain.KindProcedure}
		}
		kinds = append(kinds, domain.KindProcedure)
	}
	if len(kinds) == 0 {
		return nil, domain.Deny(domain.ReasonEmptySubmission)
	}
	return kinds, nil
}

func present(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

// blank reports a field that was sent but holds only whitespace.
func blank(s *string) bool {
	return s != nil && strings.TrimSpace(*s) == ""
}
