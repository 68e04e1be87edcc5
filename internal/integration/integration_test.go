package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"ctf-scoring-service/internal/app"
	"ctf-scoring-service/internal/domain"
	"ctf-scoring-service/internal/infra/postgres"
	"ctf-scoring-service/internal/infra/postgres/migrations"
	infraredis "ctf-scoring-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap/zaptest"
)

type stubGrader struct{}

func (stubGrader) Grade(_ context.Context, req domain.GradeRequest) domain.GradeResult {
	return domain.GradeResult{Status: domain.StatusCorrect, Score: req.MaxScore, Explanation: "looks right"}
}

type stubCoach struct{}

func (stubCoach) Coach(context.Context, domain.CoachRequest) domain.CoachResult {
	return domain.CoachResult{Reply: "keep going", PercentOnTrack: 60}
}

func TestSubmitAndRankEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openDB(pgURL)
	defer db.Close()
	migrateAndSeed(t, ctx, db)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	logger := zaptest.NewLogger(t)
	catalog := infraredis.NewCachedCatalog(redisClient, postgres.NewCatalog(pool), 5*time.Minute)
	store := postgres.NewSubmissionStore(db)
	boards := app.NewLeaderboardService(catalog, store, app.LeaderboardOptions{
		Cache:  infraredis.NewBoardCache(redisClient, time.Minute),
		Feeds:  infraredis.NewFeedStore(redisClient),
		Logger: logger,
	})
	service := app.NewSubmissionService(catalog, stubGrader{}, store, app.SubmissionOptions{
		Boards: boards,
		Logger: logger,
	})

	alice := domain.Principal{UserID: "u1", Username: "alice", Role: domain.RoleUser}
	bob := domain.Principal{UserID: "u2", Username: "bob", Role: domain.RoleUser}

	res, err := service.Submit(ctx, alice, "flag-1", domain.Attempt{Value: strPtr(" FLAG{warmup} ")})
	if err != nil {
		t.Fatalf("submit flag: %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].Status != domain.StatusCorrect || res.Results[0].Score != 3 {
		t.Fatalf("unexpected flag result %+v", res.Results)
	}
	if _, err := service.Submit(ctx, bob, "proc-1", domain.Attempt{Content: strPtr("overflow the buffer")}); err != nil {
		t.Fatalf("submit procedure: %v", err)
	}
	if _, err := service.Submit(ctx, bob, "ctf-a", domain.Attempt{Value: strPtr("FLAG{final}")}); err != nil {
		t.Fatalf("submit contest flag: %v", err)
	}

	if exists, _ := redisClient.Exists(ctx, "ctf:challenge:flag-1").Result(); exists != 1 {
		t.Fatalf("expected challenge to be cached in redis")
	}

	page, err := boards.Query(ctx, domain.BoardQuery{Mode: domain.ModePractice})
	if err != nil {
		t.Fatalf("practice board: %v", err)
	}
	if len(page.Entries) != 2 || page.Entries[0].ActorID != "u2" || page.Entries[0].TotalScore != 4 {
		t.Fatalf("expected bob leading practice, got %+v", page.Entries)
	}

	contest, err := boards.Query(ctx, domain.BoardQuery{Mode: domain.ModeCompetition, ContestID: "open"})
	if err != nil {
		t.Fatalf("contest board: %v", err)
	}
	if len(contest.Entries) != 1 || contest.Entries[0].Name != "bob" || contest.Entries[0].TotalScore != 10 {
		t.Fatalf("unexpected contest board %+v", contest.Entries)
	}

	_, err = service.Submit(ctx, alice, "orphan", domain.Attempt{Value: strPtr("x")})
	if !domain.IsIntegrity(err) {
		t.Fatalf("expected integrity error for unlinked challenge, got %v", err)
	}

	previous, err := service.Previous(ctx, bob, "ctf-a")
	if err != nil {
		t.Fatalf("previous: %v", err)
	}
	if len(previous) != 1 || previous[0].ContestID == nil || *previous[0].ContestID != "open" {
		t.Fatalf("unexpected previous attempts %+v", previous)
	}
}

func TestContestClosedAtWriteTime(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db := openDB(pgURL)
	defer db.Close()
	migrateAndSeed(t, ctx, db)

	store := postgres.NewSubmissionStore(db)
	if _, err := db.ExecContext(ctx, `UPDATE contests SET is_active = FALSE WHERE id = ?`, "open"); err != nil {
		t.Fatalf("close contest: %v", err)
	}

	contestID := "open"
	_, err := store.Record(ctx, &domain.ContestGuard{ContestID: "open", ChallengeID: "ctf-a"}, []domain.Submission{{
		Actor:       domain.UserActor("u1", "alice"),
		SubmittedBy: "u1",
		ChallengeID: "ctf-a",
		ContestID:   &contestID,
		Kind:        domain.KindFlag,
		Status:      domain.StatusIncorrect,
	}})
	var denial *domain.DenialError
	if !errors.As(err, &denial) || denial.Reason != domain.ReasonContestClosed {
		t.Fatalf("expected contest closed, got %v", err)
	}

	subs, err := store.List(ctx, domain.SubmissionFilter{ChallengeID: "ctf-a"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("denied write must not persist, got %d rows", len(subs))
	}
}

func TestChatThreadEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db := openDB(pgURL)
	defer db.Close()
	migrateAndSeed(t, ctx, db)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	chat := app.NewChatService(postgres.NewCatalog(pool), stubCoach{}, postgres.NewChatStore(db), app.ChatOptions{
		Logger: zaptest.NewLogger(t),
	})
	alice := domain.Principal{UserID: "u1", Username: "alice", Role: domain.RoleUser}

	first, err := chat.Send(ctx, alice, "flag-1", "where do I look?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	second, err := chat.Send(ctx, alice, "flag-1", "found the header")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if first.ThreadID != second.ThreadID {
		t.Fatalf("expected one thread per user and challenge")
	}

	history, err := chat.History(ctx, alice, "flag-1", 1, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if history.Count != 4 || history.Results[0].Role != domain.ChatRoleAssistant {
		t.Fatalf("unexpected history %+v", history)
	}

	if err := chat.Clear(ctx, alice, "flag-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	history, err = chat.History(ctx, alice, "flag-1", 1, 10)
	if err != nil {
		t.Fatalf("history after clear: %v", err)
	}
	if history.Count != 0 || history.ThreadID != nil {
		t.Fatalf("expected empty history after clear, got %+v", history)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "ctf", "POSTGRES_PASSWORD": "ctfpass", "POSTGRES_DB": "ctfdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://ctf:ctfpass@%s:%s/ctfdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func openDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// migrateAndSeed applies migrations and inserts a small catalog:
// two practice challenges, one contest challenge in an open published
// contest and one competition challenge without a contest.
func migrateAndSeed(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	now := time.Now().UTC()
	statements := []struct {
		query string
		args  []interface{}
	}{
		{`INSERT INTO users (id, username) VALUES ('u1', 'alice'), ('u2', 'bob')`, nil},
		{`INSERT INTO challenges (id, title, question_type, solution_type, flag_score, procedure_score) VALUES
			('flag-1', 'Warmup', 'practice', 'flag', 3, 1),
			('proc-1', 'Overflow', 'practice', 'procedure', 1, 4),
			('ctf-a', 'Finals', 'competition', 'flag', 10, 1),
			('orphan', 'Lost', 'competition', 'flag', 1, 1)`, nil},
		{`INSERT INTO flag_solutions (challenge_id, value) VALUES
			('flag-1', 'FLAG{warmup}'), ('ctf-a', 'FLAG{final}'), ('orphan', 'FLAG{lost}')`, nil},
		{`INSERT INTO text_solutions (challenge_id, content) VALUES ('proc-1', 'overflow the buffer to reach the return address')`, nil},
		{`INSERT INTO contests (id, slug, name, start_time, end_time, is_active, publish_result) VALUES (?, ?, ?, ?, ?, TRUE, TRUE)`,
			[]interface{}{"open", "open", "Open finals", now.Add(-time.Hour), now.Add(time.Hour)}},
		{`INSERT INTO contest_challenges (contest_id, challenge_id) VALUES ('open', 'ctf-a')`, nil},
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}

func strPtr(s string) *string { return &s }
