package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ctf-scoring-service/internal/app"
	"ctf-scoring-service/internal/domain"
)

func denialReason(t *testing.T, err error) domain.DenialReason {
	t.Helper()
	var d *domain.DenialError
	if !errors.As(err, &d) {
		t.Fatalf("expected a denial, got %v", err)
	}
	return d.Reason
}

func TestResolveChecksContestBeforeGroupAndContent(t *testing.T) {
	f := newFixture(t)
	f.catalog.PutChallenge(domain.Challenge{ID: "ctf-team", QuestionType: domain.QuestionCompetition, SolutionType: domain.SolutionFlag, GroupOnly: true}, domain.Solutions{})
	f.catalog.Link("future", "ctf-team")

	resolver := app.NewEligibilityResolver(f.catalog, f.clock.Now)
	challenge, _ := f.catalog.Challenge(context.Background(), "ctf-team")

	// carol has no group and sends nothing, yet the closed contest wins
	_, err := resolver.Resolve(context.Background(), challenge, user("u3", "carol"), domain.Attempt{})
	if got := denialReason(t, err); got != domain.ReasonContestClosed {
		t.Fatalf("expected contest closed first, got %s", got)
	}

	f.clock.Advance(25 * time.Hour)
	_, err = resolver.Resolve(context.Background(), challenge, user("u3", "carol"), domain.Attempt{})
	if got := denialReason(t, err); got != domain.ReasonGroupRequired {
		t.Fatalf("expected group required before content checks, got %s", got)
	}

	_, err = resolver.Resolve(context.Background(), challenge, user("u1", "alice"), domain.Attempt{Content: strPtr("steps")})
	if got := denialReason(t, err); got != domain.ReasonKindNotAccepted {
		t.Fatalf("expected kind not accepted, got %s", got)
	}

	e, err := resolver.Resolve(context.Background(), challenge, user("u1", "alice"), domain.Attempt{Value: strPtr("FLAG{?}")})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if e.Actor != domain.GroupActor("g1", "red team") || e.Contest == nil || e.Contest.ID != "future" {
		t.Fatalf("unexpected eligibility %+v", e)
	}
}

func TestResolveUnknownSolutionType(t *testing.T) {
	f := newFixture(t)
	challenge := domain.Challenge{ID: "weird", QuestionType: domain.QuestionPractice, SolutionType: "riddle"}
	resolver := app.NewEligibilityResolver(f.catalog, f.clock.Now)

	_, err := resolver.Resolve(context.Background(), challenge, user("u1", "alice"), domain.Attempt{Value: strPtr("x")})
	if got := denialReason(t, err); got != domain.ReasonUnknownSolution {
		t.Fatalf("expected unknown solution type, got %s", got)
	}
}

func TestResolveRejectsBlankFields(t *testing.T) {
	f := newFixture(t)
	resolver := app.NewEligibilityResolver(f.catalog, f.clock.Now)
	cases := []struct {
		challengeID string
		attempt     domain.Attempt
		kind        domain.Kind
	}{
		{"both-1", domain.Attempt{Value: strPtr("FLAG{heap}"), Content: strPtr("  \n")}, domain.KindProcedure},
		{"flag-1", domain.Attempt{Value: strPtr("FLAG{x}"), Content: strPtr("   ")}, domain.KindProcedure},
		{"proc-1", domain.Attempt{Value: strPtr(""), Content: strPtr("smash it")}, domain.KindFlag},
	}
	for _, tc := range cases {
		challenge, _ := f.catalog.Challenge(context.Background(), tc.challengeID)
		_, err := resolver.Resolve(context.Background(), challenge, user("u1", "alice"), tc.attempt)
		var denial *domain.DenialError
		if !errors.As(err, &denial) || denial.Reason != domain.ReasonEmptySubmission || denial.Kind != tc.kind {
			t.Fatalf("%s: expected blank %s denial, got %v", tc.challengeID, tc.kind, err)
		}
		if denial.Error() != "The submitted "+string(tc.kind)+" must not be blank." {
			t.Fatalf("unexpected message %q", denial.Error())
		}
	}
}
