package domain

import "time"

// ChatRole is the author of a chat turn.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatThread is the coaching conversation of one user on one challenge.
type ChatThread struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"userId"`
	ChallengeID string    `json:"challengeId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ChatTurn is a single message in a thread.
type ChatTurn struct {
	ID             int64     `json:"id"`
	ThreadID       int64     `json:"threadId"`
	Role           ChatRole  `json:"role"`
	Content        string    `json:"content"`
	PercentOnTrack *int      `json:"percentOnTrack,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// CoachRequest carries the inputs of one coaching call.
type CoachRequest struct {
	Text         string
	Challenge    Challenge
	Solution     string
	SolutionKind Kind
	RecentTurns  []ChatTurn
}

// CoachResult is always well-formed, including on provider failure.
type CoachResult struct {
	Reply          string `json:"reply"`
	PercentOnTrack int    `json:"percentOnTrack"`
}

// ChatReply is returned to the caller after one coaching exchange.
type ChatReply struct {
	ThreadID       int64  `json:"threadId"`
	Reply          string `json:"reply"`
	PercentOnTrack int    `json:"percentOnTrack"`
}

// ChatHistory is a newest-first page of turns.
type ChatHistory struct {
	ThreadID *int64     `json:"threadId"`
	Count    int        `json:"count"`
	Page     int        `json:"page"`
	PageSize int        `json:"pageSize"`
	Results  []ChatTurn `json:"results"`
}
