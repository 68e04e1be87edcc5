package domain

import "time"

// ReportRequest selects the attempts of one challenge, optionally bounded in time.
type ReportRequest struct {
	ChallengeID string
	From        *time.Time
	To          *time.Time
}

// KindSummary condenses the attempts of one kind.
type KindSummary struct {
	Attempts          int               `json:"attempts"`
	BestScore         int               `json:"bestScore"`
	LatestStatus      *SubmissionStatus `json:"latestStatus"`
	LatestSubmittedAt *time.Time        `json:"latestSubmittedAt"`
}

// ReportAttempt is one attempt as shown to admins.
type ReportAttempt struct {
	ID          string           `json:"id"`
	Input       string           `json:"input"`
	Status      SubmissionStatus `json:"status"`
	Score       int              `json:"score"`
	Feedback    string           `json:"feedback,omitempty"`
	SubmittedBy string           `json:"submittedBy"`
	ContestID   *string          `json:"contestId,omitempty"`
	SubmittedAt time.Time        `json:"submittedAt"`
}

// ReportRow aggregates one actor's attempts at the challenge.
type ReportRow struct {
	ID           string                   `json:"id"`
	Actor        Actor                    `json:"actor"`
	SolutionType SolutionType             `json:"solutionType"`
	Flag         KindSummary              `json:"flag"`
	Procedure    KindSummary              `json:"procedure"`
	TotalScore   int                      `json:"totalScore"`
	LatestAt     time.Time                `json:"latestAt"`
	Attempts     map[Kind][]ReportAttempt `json:"attempts"`
}

// Report is the admin audit view of a challenge.
type Report struct {
	Challenge Challenge   `json:"challenge"`
	Solutions Solutions   `json:"correctSolution"`
	From      *time.Time  `json:"from,omitempty"`
	To        *time.Time  `json:"to,omitempty"`
	Rows      []ReportRow `json:"rows"`
}
