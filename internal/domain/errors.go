package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrChallengeNotFound indicates the challenge could not be loaded.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrContestNotFound indicates an unknown contest id.
	ErrContestNotFound = errors.New("contest not found")
	// ErrResultsUnpublished is returned when a contest board is queried before results are published.
	ErrResultsUnpublished = errors.New("contest results are not published")
	// ErrForbidden is returned when the caller lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated is returned when no valid caller identity is present.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInvalidMode indicates an unsupported leaderboard mode.
	ErrInvalidMode = errors.New("invalid mode, use practice or competition")
	// ErrInvalidRankBy indicates an unsupported ranking mode.
	ErrInvalidRankBy = errors.New("invalid rank_by, use score or solved")
	// ErrInvalidActorKind indicates an unsupported actor filter.
	ErrInvalidActorKind = errors.New("invalid actor, use user or group")
	// ErrInvalidRange indicates a report window whose end precedes its start.
	ErrInvalidRange = errors.New("invalid time range")
	// ErrNotPractice is returned when chat is requested for a non-practice challenge.
	ErrNotPractice = errors.New("chat is only available for practice challenges")
	// ErrNoSolution indicates a challenge without any canonical solution.
	ErrNoSolution = errors.New("challenge has no solution configured")
	// ErrEmptyMessage indicates a blank chat message.
	ErrEmptyMessage = errors.New("message text is required")
	// ErrThreadNotFound indicates a chat thread that does not exist.
	ErrThreadNotFound = errors.New("chat thread not found")
)

// DenialReason names why an attempt was refused before evaluation.
type DenialReason string

const (
	ReasonContestClosed   DenialReason = "contest_not_accepting"
	ReasonGroupRequired   DenialReason = "group_required"
	ReasonKindNotAccepted DenialReason = "kind_not_accepted"
	ReasonEmptySubmission DenialReason = "empty_submission"
	ReasonUnknownSolution DenialReason = "unknown_solution_type"
)

// DenialError is an expected, user-facing refusal.
type DenialError struct {
	Reason DenialReason
	Kind   Kind
}

func Deny(reason DenialReason) *DenialError { return &DenialError{Reason: reason} }

func (e *DenialError) Error() string {
	switch e.Reason {
	case ReasonContestClosed:
		return "Contest is not accepting submissions at this time."
	case ReasonGroupRequired:
		return "You must join a group to submit this challenge."
	case ReasonKindNotAccepted:
		return fmt.Sprintf("This challenge does not accept %s submissions.", e.Kind)
	case ReasonEmptySubmission:
		if e.Kind != "" {
			return fmt.Sprintf("The submitted %s must not be blank.", e.Kind)
		}
		return "Provide at least one of: value or content."
	case ReasonUnknownSolution:
		return "This challenge has an unknown solution type."
	default:
		return "Submission denied."
	}
}

// IntegrityReason names a catalog authoring bug.
type IntegrityReason string

const (
	IntegrityNoContest        IntegrityReason = "not_linked_to_contest"
	IntegrityMultipleContests IntegrityReason = "multiple_contests"
)

// IntegrityError aborts a request because the catalog is inconsistent.
type IntegrityError struct {
	Reason      IntegrityReason
	ChallengeID string
	ContestIDs  []string
}

func (e *IntegrityError) Error() string {
	switch e.Reason {
	case IntegrityNoContest:
		return "Competition challenge is not linked to any contest."
	case IntegrityMultipleContests:
		return fmt.Sprintf("Challenge is linked to multiple contests (%s). Fix data integrity.", strings.Join(e.ContestIDs, ", "))
	default:
		return "Challenge catalog is inconsistent."
	}
}

// IsDenial reports whether err carries a DenialError.
func IsDenial(err error) bool {
	var d *DenialError
	return errors.As(err, &d)
}

// IsIntegrity reports whether err carries an IntegrityError.
func IsIntegrity(err error) bool {
	var i *IntegrityError
	return errors.As(err, &i)
}
