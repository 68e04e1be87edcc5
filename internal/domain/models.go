package domain

import (
	"time"

	"github.com/google/uuid"
)

// QuestionType decides whether a challenge is played in practice or inside a contest.
type QuestionType string

const (
	QuestionPractice    QuestionType = "practice"
	QuestionCompetition QuestionType = "competition"
	QuestionUnassigned  QuestionType = "unassigned"
)

// SolutionType lists the submission kinds a challenge accepts.
type SolutionType string

const (
	SolutionFlag             SolutionType = "flag"
	SolutionProcedure        SolutionType = "procedure"
	SolutionFlagAndProcedure SolutionType = "flag_and_procedure"
)

// Kind is one submission channel.
type Kind string

const (
	KindFlag      Kind = "flag"
	KindProcedure Kind = "procedure"
)

// Kinds returns the submission kinds permitted by the solution type.
// Unknown solution types permit nothing.
func (s SolutionType) Kinds() []Kind {
	switch s {
	case SolutionFlag:
		return []Kind{KindFlag}
	case SolutionProcedure:
		return []Kind{KindProcedure}
	case SolutionFlagAndProcedure:
		return []Kind{KindFlag, KindProcedure}
	default:
		return nil
	}
}

// Accepts reports whether kind is allowed by the solution type.
func (s SolutionType) Accepts(kind Kind) bool {
	for _, k := range s.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// Challenge is a read-only catalog record.
type Challenge struct {
	ID             string       `json:"id" yaml:"id"`
	Title          string       `json:"title" yaml:"title"`
	Description    string       `json:"description" yaml:"description"`
	Category       string       `json:"category" yaml:"category"`
	Difficulty     string       `json:"difficulty" yaml:"difficulty"`
	Constraints    string       `json:"constraints,omitempty" yaml:"constraints"`
	InputFormat    string       `json:"inputFormat,omitempty" yaml:"input_format"`
	OutputFormat   string       `json:"outputFormat,omitempty" yaml:"output_format"`
	SampleInput    string       `json:"sampleInput,omitempty" yaml:"sample_input"`
	SampleOutput   string       `json:"sampleOutput,omitempty" yaml:"sample_output"`
	QuestionType   QuestionType `json:"questionType" yaml:"question_type"`
	SolutionType   SolutionType `json:"solutionType" yaml:"solution_type"`
	GroupOnly      bool         `json:"groupOnly" yaml:"group_only"`
	FlagScore      int          `json:"flagScore" yaml:"flag_score"`           // defaults to 1 if zero
	ProcedureScore int          `json:"procedureScore" yaml:"procedure_score"` // defaults to 1 if zero
}

// MaxScore returns the configured score ceiling for a kind.
func (c Challenge) MaxScore(kind Kind) int {
	points := c.FlagScore
	if kind == KindProcedure {
		points = c.ProcedureScore
	}
	if points <= 0 {
		return 1
	}
	return points
}

// Contest is a time-boxed container of challenges.
type Contest struct {
	ID            string    `json:"id" yaml:"id"`
	Slug          string    `json:"slug" yaml:"slug"`
	Name          string    `json:"name" yaml:"name"`
	StartTime     time.Time `json:"startTime" yaml:"start_time"`
	EndTime       time.Time `json:"endTime" yaml:"end_time"`
	IsActive      bool      `json:"isActive" yaml:"is_active"`
	PublishResult bool      `json:"publishResult" yaml:"publish_result"`
	GroupOnly     bool      `json:"groupOnly" yaml:"group_only"`
}

// AcceptsAt reports whether the contest takes submissions at t (window bounds inclusive).
func (c Contest) AcceptsAt(t time.Time) bool {
	if !c.IsActive {
		return false
	}
	return !t.Before(c.StartTime) && !t.After(c.EndTime)
}

// Solutions holds the canonical answers of a challenge. Nil means not configured.
type Solutions struct {
	Flag      *string `json:"flag,omitempty"`
	Procedure *string `json:"procedure,omitempty"`
}

// Group is a team of users.
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ActorKind distinguishes individual from team submissions.
type ActorKind string

const (
	ActorUser  ActorKind = "user"
	ActorGroup ActorKind = "group"
)

// Actor is the submitting entity: exactly one user or one group.
type Actor struct {
	Kind ActorKind `json:"type"`
	ID   string    `json:"id"`
	Name string    `json:"name,omitempty"`
}

func UserActor(id, name string) Actor  { return Actor{Kind: ActorUser, ID: id, Name: name} }
func GroupActor(id, name string) Actor { return Actor{Kind: ActorGroup, ID: id, Name: name} }

// Key identifies the actor independent of its display name.
func (a Actor) Key() string {
	return string(a.Kind) + "-" + a.ID
}

// Role is the caller's authorization level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Submission is one immutable attempt of one kind.
type Submission struct {
	ID          uuid.UUID        `json:"id"`
	Seq         int64            `json:"-"`
	Actor       Actor            `json:"actor"`
	SubmittedBy string           `json:"submittedBy"`
	ChallengeID string           `json:"challengeId"`
	ContestID   *string          `json:"contestId,omitempty"` // nil for practice
	Kind        Kind             `json:"type"`
	Value       string           `json:"value,omitempty"`
	Content     string           `json:"content,omitempty"`
	Status      SubmissionStatus `json:"status"`
	Score       int              `json:"score"`
	Feedback    string           `json:"feedback,omitempty"`
	SubmittedAt time.Time        `json:"submittedAt"`
}

// Attempt is the raw request body of a submission.
type Attempt struct {
	Value   *string
	Content *string
}

// Verdict is the evaluated outcome of one kind of an attempt.
type Verdict struct {
	Kind     Kind
	Input    string
	Status   SubmissionStatus
	Score    int
	MaxScore int
	Feedback string
}

// GradeRequest carries the inputs of one AI grading call.
type GradeRequest struct {
	Content   string
	Challenge Challenge
	Canonical string
	MaxScore  int
}

// GradeResult is always well-formed, including on provider failure.
type GradeResult struct {
	Status      SubmissionStatus
	Score       int
	Explanation string
}

// SubmissionFilter narrows a scan of the submission log. Zero values do not filter.
type SubmissionFilter struct {
	ChallengeID string
	Scope       ScopeKind
	ContestIDs  []string
	Actor       *Actor
	ActorKind   ActorKind
	From        *time.Time
	To          *time.Time
	NewestFirst bool
	Limit       int
}

// ScopeKind selects which part of the log a query reads.
type ScopeKind string

const (
	ScopeAny      ScopeKind = ""
	ScopePractice ScopeKind = "practice"
	ScopeContests ScopeKind = "contests"
)

// ContestGuard asks the recorder to revalidate contest linkage at write time.
type ContestGuard struct {
	ContestID   string
	ChallengeID string
}

// Matches reports whether sub passes every set field of the filter.
func (f SubmissionFilter) Matches(sub Submission) bool {
	if f.ChallengeID != "" && sub.ChallengeID != f.ChallengeID {
		return false
	}
	switch f.Scope {
	case ScopePractice:
		if sub.ContestID != nil {
			return false
		}
	case ScopeContests:
		if sub.ContestID == nil {
			return false
		}
	}
	if f.ContestIDs != nil {
		if sub.ContestID == nil || !contains(f.ContestIDs, *sub.ContestID) {
			return false
		}
	}
	if f.Actor != nil && (sub.Actor.Kind != f.Actor.Kind || sub.Actor.ID != f.Actor.ID) {
		return false
	}
	if f.ActorKind != "" && sub.Actor.Kind != f.ActorKind {
		return false
	}
	if f.From != nil && sub.SubmittedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && sub.SubmittedAt.After(*f.To) {
		return false
	}
	return true
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
