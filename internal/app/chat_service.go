package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"ctf-scoring-service/internal/domain"
	"go.uber.org/zap"
)

const (
	maxChatText     = 4000
	recentChatTurns = 6
	defaultChatPage = 20
	maxChatPage     = 100
)

// ChatService runs the practice coaching conversation.
type ChatService struct {
	catalog      Catalog
	coach        Coach
	store        ChatStore
	tasks        *TaskQueue
	logger       *zap.Logger
	now          func() time.Time
	coachTimeout time.Duration
}

// ChatOptions wires optional collaborators.
type ChatOptions struct {
	Tasks        *TaskQueue
	Logger       *zap.Logger
	Now          func() time.Time
	CoachTimeout time.Duration
}

func NewChatService(catalog Catalog, coach Coach, store ChatStore, opts ChatOptions) *ChatService {
	s := &ChatService{
		catalog:      catalog,
		coach:        coach,
		store:        store,
		tasks:        opts.Tasks,
		logger:       opts.Logger,
		now:          opts.Now,
		coachTimeout: opts.CoachTimeout,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.coachTimeout <= 0 {
		s.coachTimeout = 2 * time.Minute
	}
	return s
}

// Send stores the user's message, asks the coach and stores the reply.
func (s *ChatService) Send(ctx context.Context, principal domain.Principal, challengeID, text string) (domain.ChatReply, error) {
	text = truncateRunes(strings.TrimSpace(text), maxChatText)
	if text == "" {
		return domain.ChatReply{}, domain.ErrEmptyMessage
	}

	challenge, err := s.catalog.Challenge(ctx, challengeID)
	if err != nil {
		return domain.ChatReply{}, err
	}
	if challenge.QuestionType != domain.QuestionPractice {
		return domain.ChatReply{}, domain.ErrNotPractice
	}
	solution, kind, err := s.referenceSolution(ctx, challenge.ID)
	if err != nil {
		return domain.ChatReply{}, err
	}

	thread, err := s.store.GetOrCreateThread(ctx, principal.UserID, challenge.ID)
	if err != nil {
		return domain.ChatReply{}, fmt.Errorf("open chat thread: %w", err)
	}
	recent, err := s.store.RecentTurns(ctx, thread.ID, recentChatTurns)
	if err != nil {
		return domain.ChatReply{}, fmt.Errorf("load recent turns: %w", err)
	}
	if _, err := s.store.AppendTurn(ctx, domain.ChatTurn{
		ThreadID:  thread.ID,
		Role:      domain.ChatRoleUser,
		Content:   text,
		CreatedAt: s.now(),
	}); err != nil {
		return domain.ChatReply{}, fmt.Errorf("store user turn: %w", err)
	}

	work, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.coachTimeout)
	defer cancel()
	result := s.coach.Coach(work, domain.CoachRequest{
		Text:         text,
		Challenge:    challenge,
		Solution:     solution,
		SolutionKind: kind,
		RecentTurns:  recent,
	})

	percent := result.PercentOnTrack
	if _, err := s.store.AppendTurn(work, domain.ChatTurn{
		ThreadID:       thread.ID,
		Role:           domain.ChatRoleAssistant,
		Content:        result.Reply,
		PercentOnTrack: &percent,
		CreatedAt:      s.now(),
	}); err != nil {
		s.logger.Warn("store assistant turn failed", zap.Int64("thread_id", thread.ID), zap.Error(err))
	}
	s.touch(thread.ID)

	return domain.ChatReply{
		ThreadID:       thread.ID,
		Reply:          result.Reply,
		PercentOnTrack: result.PercentOnTrack,
	}, nil
}

// History returns a newest-first page of the caller's thread on a challenge.
func (s *ChatService) History(ctx context.Context, principal domain.Principal, challengeID string, page, pageSize int) (domain.ChatHistory, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultChatPage
	}
	if pageSize > maxChatPage {
		pageSize = maxChatPage
	}
	history := domain.ChatHistory{Page: page, PageSize: pageSize, Results: []domain.ChatTurn{}}

	thread, ok, err := s.store.FindThread(ctx, principal.UserID, challengeID)
	if err != nil {
		return domain.ChatHistory{}, fmt.Errorf("find chat thread: %w", err)
	}
	if !ok {
		return history, nil
	}
	offset := math.MaxInt
	if page-1 <= math.MaxInt/pageSize {
		offset = (page - 1) * pageSize
	}
	turns, total, err := s.store.ListTurns(ctx, thread.ID, offset, pageSize)
	if err != nil {
		return domain.ChatHistory{}, fmt.Errorf("list chat turns: %w", err)
	}
	history.ThreadID = &thread.ID
	history.Count = total
	history.Results = turns
	return history, nil
}

// Clear deletes the caller's thread on a challenge. Missing threads are not an error.
func (s *ChatService) Clear(ctx context.Context, principal domain.Principal, challengeID string) error {
	thread, ok, err := s.store.FindThread(ctx, principal.UserID, challengeID)
	if err != nil {
		return fmt.Errorf("find chat thread: %w", err)
	}
	if !ok {
		return nil
	}
	return s.store.DeleteThread(ctx, thread.ID)
}

// referenceSolution prefers the flag, then the procedure text.
func (s *ChatService) referenceSolution(ctx context.Context, challengeID string) (string, domain.Kind, error) {
	solutions, err := s.catalog.Solutions(ctx, challengeID)
	if err != nil {
		return "", "", fmt.Errorf("load solutions: %w", err)
	}
	if solutions.Flag != nil && strings.TrimSpace(*solutions.Flag) != "" {
		return *solutions.Flag, domain.KindFlag, nil
	}
	if solutions.Procedure != nil && strings.TrimSpace(*solutions.Procedure) != "" {
		return *solutions.Procedure, domain.KindProcedure, nil
	}
	return "", "", domain.ErrNoSolution
}

func (s *ChatService) touch(threadID int64) {
	at := s.now()
	touch := func(ctx context.Context) error { return s.store.TouchThread(ctx, threadID, at) }
	if s.tasks != nil {
		s.tasks.Go("chat thread touch", touch)
		return
	}
	if err := touch(context.Background()); err != nil {
		s.logger.Warn("chat thread touch failed", zap.Int64("thread_id", threadID), zap.Error(err))
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
