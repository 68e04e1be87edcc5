package domain

import "fmt"

// SubmissionStatus is the closed set of resolved states of an attempt.
type SubmissionStatus string

const (
	StatusPending   SubmissionStatus = "pending"
	StatusCorrect   SubmissionStatus = "correct"
	StatusIncorrect SubmissionStatus = "incorrect"
)

// ParseStatus maps a stored label to the enum; unknown labels are an error.
func ParseStatus(raw string) (SubmissionStatus, error) {
	switch s := SubmissionStatus(raw); s {
	case StatusPending, StatusCorrect, StatusIncorrect:
		return s, nil
	default:
		return "", fmt.Errorf("unknown submission status %q", raw)
	}
}

func (s SubmissionStatus) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}
