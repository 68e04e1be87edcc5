package grader

import (
	"context"
	"errors"
	"fmt"
)

// Message is one role/content pair sent to a language model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider is the vendor boundary: structured messages in, raw text out.
type Provider interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, messages []Message) (string, error)

func (f ProviderFunc) Generate(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

// ErrorCode classifies a retryable provider failure.
type ErrorCode string

const (
	CodeTimeout     ErrorCode = "timeout"
	CodeRateLimited ErrorCode = "rate_limited"
	CodeUnavailable ErrorCode = "unavailable"
)

// TransientError marks a failure worth retrying. Any other error is fatal.
type TransientError struct {
	Code ErrorCode
	Err  error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transient provider error: %s", e.Code)
	}
	return fmt.Sprintf("transient provider error: %s: %v", e.Code, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(code ErrorCode, err error) error {
	return &TransientError{Code: code, Err: err}
}

// transientCode returns the code of a retryable error, or false for fatal ones.
func transientCode(err error) (ErrorCode, bool) {
	var t *TransientError
	if errors.As(err, &t) {
		return t.Code, true
	}
	return "", false
}
