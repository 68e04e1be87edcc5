package domain

import "time"

// BoardMode selects the scope of a leaderboard query.
type BoardMode string

const (
	ModePractice    BoardMode = "practice"
	ModeCompetition BoardMode = "competition"
)

// RankBy selects how attempts collapse into a total.
type RankBy string

const (
	RankByScore  RankBy = "score"
	RankBySolved RankBy = "solved"
)

// BoardQuery describes one leaderboard request.
type BoardQuery struct {
	Mode      BoardMode
	ContestID string
	RankBy    RankBy
	ActorKind ActorKind
	Search    string
	Page      int
	PageSize  int
}

// LeaderboardEntry is one ranked actor.
type LeaderboardEntry struct {
	Rank       int       `json:"rank"`
	ActorType  ActorKind `json:"actorType"`
	ActorID    string    `json:"actorId"`
	Name       string    `json:"name"`
	TotalScore int       `json:"totalScore"`
	Solved     int       `json:"solved"`
}

// Leaderboard is a ranked snapshot of one scope.
type Leaderboard struct {
	Mode      BoardMode          `json:"mode"`
	ContestID string             `json:"contestId,omitempty"`
	RankBy    RankBy             `json:"rankBy"`
	ActorType ActorKind          `json:"actorType"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// LeaderboardPage is a filtered, paginated view of a Leaderboard.
type LeaderboardPage struct {
	Leaderboard
	Count    int `json:"count"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}
