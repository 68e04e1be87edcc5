package postgres

import (
	"context"
	"errors"
	"fmt"

	"ctf-scoring-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const challengeColumns = `id, title, description, category, difficulty, constraints,
	input_format, output_format, sample_input, sample_output,
	question_type, solution_type, group_only, flag_score, procedure_score`

const contestColumns = `c.id, c.slug, c.name, c.start_time, c.end_time, c.is_active, c.publish_result, c.group_only`

// Catalog reads challenges, contests and membership from Postgres.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

func (c *Catalog) Challenge(ctx context.Context, id string) (domain.Challenge, error) {
	row := c.pool.QueryRow(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id=$1`, id)
	var (
		ch                         domain.Challenge
		questionType, solutionType string
	)
	err := row.Scan(
		&ch.ID, &ch.Title, &ch.Description, &ch.Category, &ch.Difficulty, &ch.Constraints,
		&ch.InputFormat, &ch.OutputFormat, &ch.SampleInput, &ch.SampleOutput,
		&questionType, &solutionType, &ch.GroupOnly, &ch.FlagScore, &ch.ProcedureScore,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Challenge{}, domain.ErrChallengeNotFound
	}
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("load challenge: %w", err)
	}
	ch.QuestionType = domain.QuestionType(questionType)
	ch.SolutionType = domain.SolutionType(solutionType)
	return ch, nil
}

func (c *Catalog) ContestsForChallenge(ctx context.Context, challengeID string) ([]domain.Contest, error) {
	rows, err := c.pool.Query(ctx, `SELECT `+contestColumns+`
		FROM contests c JOIN contest_challenges cc ON cc.contest_id = c.id
		WHERE cc.challenge_id=$1 ORDER BY c.id`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("load contests for challenge: %w", err)
	}
	return scanContests(rows)
}

func (c *Catalog) Contest(ctx context.Context, id string) (domain.Contest, error) {
	rows, err := c.pool.Query(ctx, `SELECT `+contestColumns+` FROM contests c WHERE c.id=$1`, id)
	if err != nil {
		return domain.Contest{}, fmt.Errorf("load contest: %w", err)
	}
	contests, err := scanContests(rows)
	if err != nil {
		return domain.Contest{}, err
	}
	if len(contests) == 0 {
		return domain.Contest{}, domain.ErrContestNotFound
	}
	return contests[0], nil
}

func (c *Catalog) Contests(ctx context.Context) ([]domain.Contest, error) {
	rows, err := c.pool.Query(ctx, `SELECT `+contestColumns+` FROM contests c ORDER BY c.id`)
	if err != nil {
		return nil, fmt.Errorf("load contests: %w", err)
	}
	return scanContests(rows)
}

func (c *Catalog) Solutions(ctx context.Context, challengeID string) (domain.Solutions, error) {
	var sol domain.Solutions
	err := c.pool.QueryRow(ctx, `SELECT f.value, t.content
		FROM challenges ch
		LEFT JOIN flag_solutions f ON f.challenge_id = ch.id
		LEFT JOIN text_solutions t ON t.challenge_id = ch.id
		WHERE ch.id=$1`, challengeID).Scan(&sol.Flag, &sol.Procedure)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Solutions{}, domain.ErrChallengeNotFound
	}
	if err != nil {
		return domain.Solutions{}, fmt.Errorf("load solutions: %w", err)
	}
	return sol, nil
}

func (c *Catalog) GroupForUser(ctx context.Context, userID string) (domain.Group, bool, error) {
	var g domain.Group
	err := c.pool.QueryRow(ctx, `SELECT g.id, g.name
		FROM user_groups g JOIN user_group_members m ON m.group_id = g.id
		WHERE m.user_id=$1`, userID).Scan(&g.ID, &g.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Group{}, false, nil
	}
	if err != nil {
		return domain.Group{}, false, fmt.Errorf("load group: %w", err)
	}
	return g, true, nil
}

func (c *Catalog) DisplayNames(ctx context.Context, kind domain.ActorKind, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT id, username FROM users WHERE id = ANY($1)`
	if kind == domain.ActorGroup {
		query = `SELECT id, name FROM user_groups WHERE id = ANY($1)`
	}
	rows, err := c.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("load display names: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan display name: %w", err)
		}
		out[id] = name
	}
	return out, rows.Err()
}

func scanContests(rows pgx.Rows) ([]domain.Contest, error) {
	defer rows.Close()
	var out []domain.Contest
	for rows.Next() {
		var ct domain.Contest
		if err := rows.Scan(&ct.ID, &ct.Slug, &ct.Name, &ct.StartTime, &ct.EndTime, &ct.IsActive, &ct.PublishResult, &ct.GroupOnly); err != nil {
			return nil, fmt.Errorf("scan contest: %w", err)
		}
		out = append(out, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load contests: %w", err)
	}
	return out, nil
}
