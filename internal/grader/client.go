package grader

import (
	"context"
	"errors"
	"strings"
	"time"

	"ctf-scoring-service/internal/domain"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	maxContentRunes = 8000
	maxReplyRunes   = 2000
	defaultPercent  = 50
)

const (
	fallbackUnavailable = "AI feedback is temporarily unavailable. Please try again in a moment."
	fallbackRateLimited = "Too many requests right now. Please wait a moment and try again."
	fallbackTimeout     = "The AI took too long to respond. Please try again."
	unparsableGrade     = "The evaluation could not be read. Your answer is saved and will be reviewed."
	unparsableCoach     = "I could not format the feedback properly. Please try again."
	emptyGradeReply     = "Share more details about your approach (inputs, outputs, edge cases) for more precise feedback."
	emptyCoachReply     = "Tell me what you tried so far, and I will guide your next step."
	missingContent      = "Please provide your solution attempt so it can be evaluated."
	missingMessage      = "Please type a message so I can help."
)

// Options tunes the retry and timeout policy.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Client wraps a Provider with timeouts, bounded retries and safe fallbacks.
// Its results are always well-formed.
type Client struct {
	provider   Provider
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

func NewClient(provider Provider, opts Options) *Client {
	c := &Client{
		provider:   provider,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		logger:     opts.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = 20 * time.Second
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if c.retryDelay <= 0 {
		c.retryDelay = 600 * time.Millisecond
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Budget is the longest a single Grade or Coach call can take.
func (c *Client) Budget() time.Duration {
	total := time.Duration(c.maxRetries+1) * c.timeout
	for i := 1; i <= c.maxRetries; i++ {
		total += time.Duration(i) * c.retryDelay
	}
	return total
}

// Grade scores a procedure answer against the reference solution.
func (c *Client) Grade(ctx context.Context, req domain.GradeRequest) domain.GradeResult {
	content := truncateRunes(strings.TrimSpace(req.Content), maxContentRunes)
	if content == "" {
		return domain.GradeResult{Status: domain.StatusPending, Explanation: missingContent}
	}
	maxScore := req.MaxScore
	if maxScore < 0 {
		maxScore = 0
	}

	raw, err := c.generate(ctx, "grade", gradeMessages(content, req.Challenge, req.Canonical, maxScore))
	if err != nil {
		return domain.GradeResult{Status: domain.StatusPending, Explanation: fallbackFor(err)}
	}

	obj, ok := extractJSON(raw)
	if !ok {
		c.logger.Warn("grader output not parseable", zap.Int("length", len(raw)))
		return domain.GradeResult{Status: domain.StatusPending, Explanation: unparsableGrade}
	}

	reply := finishReply(stringField(obj, "reply"), req.Canonical, emptyGradeReply)
	score, _ := intField(obj, "score")
	return domain.GradeResult{
		Status:      statusLabel(stringField(obj, "status")),
		Score:       clamp(score, 0, maxScore),
		Explanation: reply,
	}
}

// Coach answers a practice chat message without revealing the solution.
func (c *Client) Coach(ctx context.Context, req domain.CoachRequest) domain.CoachResult {
	text := truncateRunes(strings.TrimSpace(req.Text), maxChatRunes)
	if text == "" {
		return domain.CoachResult{Reply: missingMessage}
	}

	raw, err := c.generate(ctx, "coach", coachMessages(text, req))
	if err != nil {
		return domain.CoachResult{Reply: fallbackFor(err)}
	}

	obj, ok := extractJSON(raw)
	if !ok {
		return domain.CoachResult{Reply: unparsableCoach, PercentOnTrack: defaultPercent}
	}

	percent, ok := intField(obj, "percent_on_track")
	if !ok {
		percent = defaultPercent
	}
	return domain.CoachResult{
		Reply:          finishReply(stringField(obj, "reply"), req.Solution, emptyCoachReply),
		PercentOnTrack: clamp(percent, 0, 100),
	}
}

// generate runs REQUESTED -> SUCCESS | TRANSIENT_FAILURE (retry) -> EXHAUSTED | FATAL_FAILURE.
func (c *Client) generate(ctx context.Context, purpose string, messages []Message) (string, error) {
	var (
		raw      string
		attempts int
	)
	operation := func() error {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		text, err := c.provider.Generate(callCtx, messages)
		if err == nil {
			raw = text
			return nil
		}
		if _, ok := transientCode(err); !ok {
			if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return Transient(CodeTimeout, err)
			}
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(&linearBackOff{step: c.retryDelay}, uint64(c.maxRetries)), ctx)
	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		c.logger.Warn("grader call failed, retrying",
			zap.String("purpose", purpose),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})

	switch code, transient := transientCode(err); {
	case err == nil:
		c.logger.Debug("grader call succeeded", zap.String("purpose", purpose), zap.Int("attempts", attempts))
		return raw, nil
	case transient:
		c.logger.Warn("grader retries exhausted",
			zap.String("purpose", purpose),
			zap.String("code", string(code)),
			zap.Int("attempts", attempts),
		)
	default:
		c.logger.Error("grader call failed", zap.String("purpose", purpose), zap.Int("attempts", attempts), zap.Error(err))
	}
	return "", err
}

func fallbackFor(err error) string {
	code, _ := transientCode(err)
	switch code {
	case CodeRateLimited:
		return fallbackRateLimited
	case CodeTimeout:
		return fallbackTimeout
	default:
		return fallbackUnavailable
	}
}

// finishReply redacts the secret, caps the length and fills in empty replies.
func finishReply(reply, secret, empty string) string {
	reply = redact(strings.TrimSpace(reply), secret)
	if utf8Len(reply) > maxReplyRunes {
		reply = strings.TrimRight(truncateRunes(reply, maxReplyRunes), " \t\r\n") + "…"
	}
	if reply == "" {
		return empty
	}
	return reply
}

func statusLabel(raw string) domain.SubmissionStatus {
	switch domain.SubmissionStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.StatusCorrect:
		return domain.StatusCorrect
	case domain.StatusIncorrect:
		return domain.StatusIncorrect
	default:
		return domain.StatusPending
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
