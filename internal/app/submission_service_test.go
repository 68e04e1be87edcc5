package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ctf-scoring-service/internal/domain"
)

func TestFlagSubmissionEndToEnd(t *testing.T) {
	f := newFixture(t)
	alice := user("u1", "alice")

	cases := []struct {
		value  string
		status domain.SubmissionStatus
		score  int
	}{
		{"FLAG{x}", domain.StatusCorrect, 5},
		{" FLAG{x} ", domain.StatusCorrect, 5},
		{"flag{x}", domain.StatusIncorrect, 0},
		{"FLAG{ x}", domain.StatusIncorrect, 0},
	}
	for _, tc := range cases {
		res := f.submitFlag(t, alice, "flag-1", tc.value)
		if len(res.Results) != 1 {
			t.Fatalf("%q: expected one result, got %d", tc.value, len(res.Results))
		}
		got := res.Results[0]
		if got.Status != tc.status || got.Score != tc.score || got.MaxScore != 5 {
			t.Fatalf("%q: expected %s/%d, got %s/%d", tc.value, tc.status, tc.score, got.Status, got.Score)
		}
		if got.ContestID != nil || got.Actor != domain.UserActor("u1", "alice") {
			t.Fatalf("%q: unexpected attribution %+v", tc.value, got.Submission)
		}
	}
	if n := len(f.allSubmissions(t)); n != len(cases) {
		t.Fatalf("expected %d records, got %d", len(cases), n)
	}
}

func TestContentOnFlagChallengeIsDeniedWithoutRecords(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Submit(context.Background(), user("u1", "alice"), "flag-1", domain.Attempt{
		Value:   strPtr("FLAG{x}"),
		Content: strPtr("I read the source"),
	})
	var denial *domain.DenialError
	if !errors.As(err, &denial) || denial.Reason != domain.ReasonKindNotAccepted || denial.Kind != domain.KindProcedure {
		t.Fatalf("expected kind denial, got %v", err)
	}
	if n := len(f.allSubmissions(t)); n != 0 {
		t.Fatalf("expected no records, got %d", n)
	}
}

func TestUnlinkedCompetitionChallengeIsIntegrityError(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Submit(context.Background(), user("u1", "alice"), "orphan", domain.Attempt{Value: strPtr("FLAG{o}")})
	var integrity *domain.IntegrityError
	if !errors.As(err, &integrity) || integrity.Reason != domain.IntegrityNoContest {
		t.Fatalf("expected integrity error, got %v", err)
	}
	if n := len(f.allSubmissions(t)); n != 0 {
		t.Fatalf("expected no records, got %d", n)
	}
}

func TestMultipleContestsIsIntegrityError(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Submit(context.Background(), user("u1", "alice"), "dup", domain.Attempt{Value: strPtr("FLAG{d}")})
	var integrity *domain.IntegrityError
	if !errors.As(err, &integrity) || integrity.Reason != domain.IntegrityMultipleContests || len(integrity.ContestIDs) != 2 {
		t.Fatalf("expected multiple contests error, got %v", err)
	}
	if !strings.Contains(err.Error(), "open") || !strings.Contains(err.Error(), "future") {
		t.Fatalf("message should name both contests: %q", err.Error())
	}
}

func TestFutureContestIsDeniedWithoutRecords(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Submit(context.Background(), user("u1", "alice"), "ctf-b", domain.Attempt{Value: strPtr("FLAG{b}")})
	var denial *domain.DenialError
	if !errors.As(err, &denial) || denial.Reason != domain.ReasonContestClosed {
		t.Fatalf("expected contest closed denial, got %v", err)
	}
	if !strings.Contains(err.Error(), "not accepting submissions") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if n := len(f.allSubmissions(t)); n != 0 {
		t.Fatalf("expected no records, got %d", n)
	}
}

func TestCompetitionSubmissionIsAttributedToContest(t *testing.T) {
	f := newFixture(t)
	res := f.submitFlag(t, user("u1", "alice"), "ctf-a", "FLAG{a}")
	got := res.Results[0]
	if got.ContestID == nil || *got.ContestID != "open" || got.Score != 10 {
		t.Fatalf("unexpected competition record %+v", got.Submission)
	}
	if res.QuestionType != domain.QuestionCompetition {
		t.Fatalf("unexpected question type %s", res.QuestionType)
	}
}

func TestContestUnlinkedDuringGradingRecordsNothing(t *testing.T) {
	f := newFixture(t)
	f.catalog.PutChallenge(domain.Challenge{ID: "ctf-proc", Title: "Essay", QuestionType: domain.QuestionCompetition, SolutionType: domain.SolutionProcedure},
		domain.Solutions{Procedure: strPtr("explain the race")})
	f.catalog.Link("open", "ctf-proc")
	f.grader.results = []domain.GradeResult{{Status: domain.StatusCorrect, Score: 1}}
	f.grader.onGrade = func() {
		f.catalog.Unlink("open", "ctf-proc")
		f.catalog.Link("future", "ctf-proc")
	}

	_, err := f.service.Submit(context.Background(), user("u1", "alice"), "ctf-proc", domain.Attempt{Content: strPtr("toctou")})
	var denial *domain.DenialError
	if !errors.As(err, &denial) || denial.Reason != domain.ReasonContestClosed {
		t.Fatalf("expected write-time denial, got %v", err)
	}
	if n := len(f.allSubmissions(t)); n != 0 {
		t.Fatalf("expected no records, got %d", n)
	}
}

func TestFlagAndProcedureProduceSeparateRecords(t *testing.T) {
	f := newFixture(t)
	f.grader.results = []domain.GradeResult{{Status: domain.StatusCorrect, Score: 99, Explanation: "great"}}

	res, err := f.service.Submit(context.Background(), user("u1", "alice"), "both-1", domain.Attempt{
		Value:   strPtr("FLAG{nope}"),
		Content: strPtr("  poison the tcache  "),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("expected two results, got %d", len(res.Results))
	}
	flag, proc := res.Results[0], res.Results[1]
	if flag.Kind != domain.KindFlag || flag.Status != domain.StatusIncorrect || flag.Score != 0 || flag.Value != "FLAG{nope}" {
		t.Fatalf("unexpected flag record %+v", flag.Submission)
	}
	if proc.Kind != domain.KindProcedure || proc.Status != domain.StatusCorrect || proc.Score != 3 || proc.MaxScore != 3 {
		t.Fatalf("procedure score must be clamped to 3, got %+v", proc.Submission)
	}
	if proc.Content != "poison the tcache" {
		t.Fatalf("unexpected stored content %q", proc.Content)
	}

	req := f.grader.requests[0]
	if req.Canonical != "tcache poisoning" || req.MaxScore != 3 || req.Content != "poison the tcache" {
		t.Fatalf("unexpected grade request %+v", req)
	}
	if n := len(f.allSubmissions(t)); n != 2 {
		t.Fatalf("expected two records, got %d", n)
	}
}

func TestInvalidGraderStatusBecomesPending(t *testing.T) {
	f := newFixture(t)
	f.grader.results = []domain.GradeResult{{Status: "solved", Score: 2, Explanation: "?"}}
	res, err := f.service.Submit(context.Background(), user("u1", "alice"), "proc-1", domain.Attempt{Content: strPtr("answer")})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Results[0].Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", res.Results[0].Status)
	}
}

func TestGradingSurvivesClientCancellation(t *testing.T) {
	f := newFixture(t)
	f.grader.results = []domain.GradeResult{{Status: domain.StatusIncorrect, Score: 1, Explanation: "partial"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := f.service.Submit(ctx, user("u1", "alice"), "proc-1", domain.Attempt{Content: strPtr("answer")})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if f.grader.ctxErrs[0] != nil {
		t.Fatalf("grader saw a cancelled context: %v", f.grader.ctxErrs[0])
	}
	if len(res.Results) != 1 || len(f.allSubmissions(t)) != 1 {
		t.Fatalf("graded attempt must be recorded")
	}
}

func TestGroupOnlyChallengeUsesMembership(t *testing.T) {
	f := newFixture(t)
	res := f.submitFlag(t, user("u2", "Bob"), "team-1", "FLAG{team}")
	got := res.Results[0]
	if got.Actor.Kind != domain.ActorGroup || got.Actor.ID != "g1" || got.SubmittedBy != "u2" {
		t.Fatalf("expected group attribution, got %+v", got.Submission)
	}

	_, err := f.service.Submit(context.Background(), user("u3", "carol"), "team-1", domain.Attempt{Value: strPtr("FLAG{team}")})
	var denial *domain.DenialError
	if !errors.As(err, &denial) || denial.Reason != domain.ReasonGroupRequired {
		t.Fatalf("expected group required denial, got %v", err)
	}
}

func TestEmptySubmissionIsDenied(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Submit(context.Background(), user("u1", "alice"), "flag-1", domain.Attempt{Value: strPtr("   ")})
	var denial *domain.DenialError
	if !errors.As(err, &denial) || denial.Reason != domain.ReasonEmptySubmission {
		t.Fatalf("expected empty submission denial, got %v", err)
	}
}

func TestUnknownChallengeIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Submit(context.Background(), user("u1", "alice"), "missing", domain.Attempt{Value: strPtr("x")})
	if !errors.Is(err, domain.ErrChallengeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPreviousListsOwnAttemptsNewestFirst(t *testing.T) {
	f := newFixture(t)
	f.submitFlag(t, user("u1", "alice"), "flag-1", "first")
	f.clock.Advance(time.Minute)
	f.submitFlag(t, user("u1", "alice"), "flag-1", "FLAG{x}")
	f.submitFlag(t, user("u3", "carol"), "flag-1", "other")

	subs, err := f.service.Previous(context.Background(), user("u1", "alice"), "flag-1")
	if err != nil {
		t.Fatalf("previous: %v", err)
	}
	if len(subs) != 2 || subs[0].Value != "FLAG{x}" || subs[1].Value != "first" {
		t.Fatalf("unexpected history %+v", subs)
	}
	if !subs[0].SubmittedAt.After(subs[1].SubmittedAt) {
		t.Fatalf("timestamps must increase")
	}
}
