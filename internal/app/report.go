package app

import (
	"context"
	"fmt"
	"sort"

	"ctf-scoring-service/internal/domain"
)

// ReportService builds the admin audit view of a challenge.
type ReportService struct {
	catalog Catalog
	store   SubmissionStore
}

func NewReportService(catalog Catalog, store SubmissionStore) *ReportService {
	return &ReportService{catalog: catalog, store: store}
}

// Generate groups a challenge's attempts per actor. Only admins may call it.
func (s *ReportService) Generate(ctx context.Context, principal domain.Principal, req domain.ReportRequest) (domain.Report, error) {
	if !principal.IsAdmin() {
		return domain.Report{}, domain.ErrForbidden
	}
	if req.From != nil && req.To != nil && req.To.Before(*req.From) {
		return domain.Report{}, domain.ErrInvalidRange
	}

	challenge, err := s.catalog.Challenge(ctx, req.ChallengeID)
	if err != nil {
		return domain.Report{}, err
	}
	solutions, err := s.catalog.Solutions(ctx, challenge.ID)
	if err != nil {
		return domain.Report{}, fmt.Errorf("load solutions: %w", err)
	}

	kind := domain.ActorUser
	if challenge.GroupOnly {
		kind = domain.ActorGroup
	}
	subs, err := s.store.List(ctx, domain.SubmissionFilter{
		ChallengeID: challenge.ID,
		ActorKind:   kind,
		From:        req.From,
		To:          req.To,
		NewestFirst: true,
	})
	if err != nil {
		return domain.Report{}, fmt.Errorf("list submissions: %w", err)
	}

	ids := make([]string, 0)
	rows := make(map[string]*domain.ReportRow)
	for _, sub := range subs {
		row, ok := rows[sub.Actor.ID]
		if !ok {
			row = &domain.ReportRow{
				ID:           string(kind) + "-" + sub.Actor.ID,
				Actor:        domain.Actor{Kind: kind, ID: sub.Actor.ID, Name: sub.Actor.Name},
				SolutionType: challenge.SolutionType,
				Attempts: map[domain.Kind][]domain.ReportAttempt{
					domain.KindFlag:      {},
					domain.KindProcedure: {},
				},
			}
			rows[sub.Actor.ID] = row
			ids = append(ids, sub.Actor.ID)
		}
		addAttempt(row, sub)
	}

	names, err := s.catalog.DisplayNames(ctx, kind, ids)
	if err != nil {
		return domain.Report{}, fmt.Errorf("load display names: %w", err)
	}

	report := domain.Report{
		Challenge: challenge,
		Solutions: solutions,
		From:      req.From,
		To:        req.To,
		Rows:      make([]domain.ReportRow, 0, len(rows)),
	}
	for _, id := range ids {
		row := rows[id]
		if name := names[id]; name != "" {
			row.Actor.Name = name
		}
		row.TotalScore = row.Flag.BestScore + row.Procedure.BestScore
		report.Rows = append(report.Rows, *row)
	}
	sort.SliceStable(report.Rows, func(i, j int) bool {
		if !report.Rows[i].LatestAt.Equal(report.Rows[j].LatestAt) {
			return report.Rows[i].LatestAt.After(report.Rows[j].LatestAt)
		}
		return report.Rows[i].ID < report.Rows[j].ID
	})
	return report, nil
}

// addAttempt keeps per-kind attempts in arrival order; callers pass subs newest first.
func addAttempt(row *domain.ReportRow, sub domain.Submission) {
	summary := &row.Flag
	input := sub.Value
	if sub.Kind == domain.KindProcedure {
		summary = &row.Procedure
		input = sub.Content
	}

	summary.Attempts++
	if sub.Score > summary.BestScore {
		summary.BestScore = sub.Score
	}
	if summary.LatestSubmittedAt == nil || sub.SubmittedAt.After(*summary.LatestSubmittedAt) {
		at, status := sub.SubmittedAt, sub.Status
		summary.LatestSubmittedAt = &at
		summary.LatestStatus = &status
	}
	if sub.SubmittedAt.After(row.LatestAt) {
		row.LatestAt = sub.SubmittedAt
	}

	row.Attempts[sub.Kind] = append(row.Attempts[sub.Kind], domain.ReportAttempt{
		ID:          sub.ID.String(),
		Input:       input,
		Status:      sub.Status,
		Score:       sub.Score,
		Feedback:    sub.Feedback,
		SubmittedBy: sub.SubmittedBy,
		ContestID:   sub.ContestID,
		SubmittedAt: sub.SubmittedAt,
	})
}
