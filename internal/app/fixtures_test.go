package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"ctf-scoring-service/internal/app"
	"ctf-scoring-service/internal/domain"
	"ctf-scoring-service/internal/infra/memory"
	"go.uber.org/zap/zaptest"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func user(id, name string) domain.Principal {
	return domain.Principal{UserID: id, Username: name, Role: domain.RoleUser}
}

// scriptedGrader returns canned results in order and records every request.
type scriptedGrader struct {
	mu       sync.Mutex
	results  []domain.GradeResult
	requests []domain.GradeRequest
	ctxErrs  []error
	onGrade  func()
}

func (g *scriptedGrader) Grade(ctx context.Context, req domain.GradeRequest) domain.GradeResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.onGrade != nil {
		g.onGrade()
	}
	g.requests = append(g.requests, req)
	g.ctxErrs = append(g.ctxErrs, ctx.Err())
	if len(g.results) == 0 {
		return domain.GradeResult{Status: domain.StatusPending, Explanation: "no script"}
	}
	out := g.results[0]
	g.results = g.results[1:]
	return out
}

type fixture struct {
	catalog *memory.Catalog
	store   *memory.SubmissionStore
	grader  *scriptedGrader
	boards  *app.LeaderboardService
	service *app.SubmissionService
	reports *app.ReportService
	feeds   *memory.FeedStore
	clock   *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newFixture builds a catalog with:
//
//	flag-1   practice, flag, score 5, FLAG{x}
//	proc-1   practice, procedure, score 4
//	both-1   practice, flag_and_procedure, flag 2 / procedure 3
//	team-1   practice, flag, group only
//	ctf-a    competition in open contest "open" (published)
//	ctf-b    competition in future contest "future"
//	orphan   competition without a contest
//	dup      competition linked to two contests
func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: testNow}
	catalog := memory.NewCatalog()

	catalog.PutUser("u1", "alice")
	catalog.PutUser("u2", "Bob")
	catalog.PutUser("u3", "carol")
	catalog.PutGroup(domain.Group{ID: "g1", Name: "red team"}, "u1", "u2")

	catalog.PutChallenge(domain.Challenge{ID: "flag-1", Title: "Warmup", QuestionType: domain.QuestionPractice, SolutionType: domain.SolutionFlag, FlagScore: 5},
		domain.Solutions{Flag: strPtr("FLAG{x}")})
	catalog.PutChallenge(domain.Challenge{ID: "proc-1", Title: "Stack smash", QuestionType: domain.QuestionPractice, SolutionType: domain.SolutionProcedure, ProcedureScore: 4},
		domain.Solutions{Procedure: strPtr("overwrite the return address")})
	catalog.PutChallenge(domain.Challenge{ID: "both-1", Title: "Heap", QuestionType: domain.QuestionPractice, SolutionType: domain.SolutionFlagAndProcedure, FlagScore: 2, ProcedureScore: 3},
		domain.Solutions{Flag: strPtr("FLAG{heap}"), Procedure: strPtr("tcache poisoning")})
	catalog.PutChallenge(domain.Challenge{ID: "team-1", Title: "Relay", QuestionType: domain.QuestionPractice, SolutionType: domain.SolutionFlag, GroupOnly: true},
		domain.Solutions{Flag: strPtr("FLAG{team}")})
	catalog.PutChallenge(domain.Challenge{ID: "ctf-a", Title: "Finals A", QuestionType: domain.QuestionCompetition, SolutionType: domain.SolutionFlag, FlagScore: 10},
		domain.Solutions{Flag: strPtr("FLAG{a}")})
	catalog.PutChallenge(domain.Challenge{ID: "ctf-b", Title: "Finals B", QuestionType: domain.QuestionCompetition, SolutionType: domain.SolutionFlag},
		domain.Solutions{Flag: strPtr("FLAG{b}")})
	catalog.PutChallenge(domain.Challenge{ID: "orphan", Title: "Lost", QuestionType: domain.QuestionCompetition, SolutionType: domain.SolutionFlag},
		domain.Solutions{Flag: strPtr("FLAG{o}")})
	catalog.PutChallenge(domain.Challenge{ID: "dup", Title: "Twice", QuestionType: domain.QuestionCompetition, SolutionType: domain.SolutionFlag},
		domain.Solutions{Flag: strPtr("FLAG{d}")})

	catalog.PutContest(domain.Contest{ID: "open", Name: "Open", IsActive: true, PublishResult: true,
		StartTime: testNow.Add(-time.Hour), EndTime: testNow.Add(time.Hour)}, "ctf-a", "dup")
	catalog.PutContest(domain.Contest{ID: "future", Name: "Future", IsActive: true,
		StartTime: testNow.Add(24 * time.Hour), EndTime: testNow.Add(48 * time.Hour)}, "ctf-b", "dup")

	store := memory.NewSubmissionStoreWithClock(catalog, clock.Now)
	grader := &scriptedGrader{}
	logger := zaptest.NewLogger(t)
	feeds := memory.NewFeedStore()
	boards := app.NewLeaderboardService(catalog, store, app.LeaderboardOptions{
		Cache:  memory.NewBoardCache(time.Minute),
		Feeds:  feeds,
		Logger: logger,
		Now:    clock.Now,
	})
	service := app.NewSubmissionService(catalog, grader, store, app.SubmissionOptions{
		Boards: boards,
		Logger: logger,
		Now:    clock.Now,
	})
	return &fixture{
		catalog: catalog,
		store:   store,
		grader:  grader,
		boards:  boards,
		service: service,
		reports: app.NewReportService(catalog, store),
		feeds:   feeds,
		clock:   clock,
	}
}

func (f *fixture) allSubmissions(t *testing.T) []domain.Submission {
	t.Helper()
	subs, err := f.store.List(context.Background(), domain.SubmissionFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return subs
}

func (f *fixture) submitFlag(t *testing.T, p domain.Principal, challengeID, value string) app.SubmitResult {
	t.Helper()
	res, err := f.service.Submit(context.Background(), p, challengeID, domain.Attempt{Value: strPtr(value)})
	if err != nil {
		t.Fatalf("submit %s: %v", challengeID, err)
	}
	return res
}

func practiceQuery() domain.BoardQuery {
	return domain.BoardQuery{Mode: domain.ModePractice}
}

func flagAttempt(value string) domain.Attempt {
	return domain.Attempt{Value: strPtr(value)}
}
