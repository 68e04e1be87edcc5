package app

import (
	"context"
	"crypto/subtle"
	"strings"

	"ctf-scoring-service/internal/domain"
)

// missingReference is shown when a procedure answer cannot be graded for lack of a reference.
const missingReference = "This challenge has no reference procedure yet; your answer is saved for review."

// Evaluator resolves status and score for each submitted kind independently.
type Evaluator struct {
	grader Grader
}

func NewEvaluator(grader Grader) *Evaluator {
	return &Evaluator{grader: grader}
}

// Evaluate never returns the canonical solution in its verdicts.
func (e *Evaluator) Evaluate(ctx context.Context, challenge domain.Challenge, solutions domain.Solutions, kinds []domain.Kind, attempt domain.Attempt) []domain.Verdict {
	verdicts := make([]domain.Verdict, 0, len(kinds))
	for _, kind := range kinds {
		switch kind {
		case domain.KindFlag:
			verdicts = append(verdicts, evaluateFlag(challenge, solutions.Flag, deref(attempt.Value)))
		case domain.KindProcedure:
			verdicts = append(verdicts, e.evaluateProcedure(ctx, challenge, solutions.Procedure, deref(attempt.Content)))
		}
	}
	return verdicts
}

func evaluateFlag(challenge domain.Challenge, canonical *string, value string) domain.Verdict {
	submitted := strings.TrimSpace(value)
	verdict := domain.Verdict{
		Kind:     domain.KindFlag,
		Input:    submitted,
		Status:   domain.StatusIncorrect,
		MaxScore: challenge.MaxScore(domain.KindFlag),
	}
	if canonical != nil && flagMatches(submitted, strings.TrimSpace(*canonical)) {
		verdict.Status = domain.StatusCorrect
		verdict.Score = verdict.MaxScore
	}
	return verdict
}

// flagMatches is an exact, case-sensitive comparison in constant time.
func flagMatches(submitted, canonical string) bool {
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(canonical)) == 1
}

func (e *Evaluator) evaluateProcedure(ctx context.Context, challenge domain.Challenge, canonical *string, content string) domain.Verdict {
	submitted := strings.TrimSpace(content)
	verdict := domain.Verdict{
		Kind:     domain.KindProcedure,
		Input:    submitted,
		Status:   domain.StatusPending,
		MaxScore: challenge.MaxScore(domain.KindProcedure),
	}
	if canonical == nil || strings.TrimSpace(*canonical) == "" {
		verdict.Feedback = missingReference
		return verdict
	}

	result := e.grader.Grade(ctx, domain.GradeRequest{
		Content:   submitted,
		Challenge: challenge,
		Canonical: *canonical,
		MaxScore:  verdict.MaxScore,
	})
	verdict.Status = result.Status
	verdict.Score = clampScore(result.Score, verdict.MaxScore)
	verdict.Feedback = result.Explanation
	if !verdict.Status.Valid() {
		verdict.Status = domain.StatusPending
	}
	return verdict
}

func clampScore(score, ceiling int) int {
	if score < 0 {
		return 0
	}
	if score > ceiling {
		return ceiling
	}
	return score
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
