package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"ctf-scoring-service/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// LeaderboardService ranks actors from the submission log. It never writes to the log.
type LeaderboardService struct {
	catalog         Catalog
	store           SubmissionStore
	cache           BoardCache
	feeds           FeedRepository
	relay           FeedRelay
	logger          *zap.Logger
	now             func() time.Time
	sf              singleflight.Group
	defaultPageSize int
	maxPageSize     int
}

// LeaderboardOptions tunes pagination and optional collaborators.
type LeaderboardOptions struct {
	Cache           BoardCache
	Feeds           FeedRepository
	Relay           FeedRelay
	Logger          *zap.Logger
	Now             func() time.Time
	DefaultPageSize int
	MaxPageSize     int
}

func NewLeaderboardService(catalog Catalog, store SubmissionStore, opts LeaderboardOptions) *LeaderboardService {
	s := &LeaderboardService{
		catalog:         catalog,
		store:           store,
		cache:           opts.Cache,
		feeds:           opts.Feeds,
		relay:           opts.Relay,
		logger:          opts.Logger,
		now:             opts.Now,
		defaultPageSize: opts.DefaultPageSize,
		maxPageSize:     opts.MaxPageSize,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.defaultPageSize <= 0 {
		s.defaultPageSize = 50
	}
	if s.maxPageSize < s.defaultPageSize {
		s.maxPageSize = s.defaultPageSize
	}
	return s
}

// boardScope is a validated leaderboard query without search and paging.
type boardScope struct {
	mode      domain.BoardMode
	contestID string
	rankBy    domain.RankBy
	actorKind domain.ActorKind
}

func (b boardScope) key() string {
	scope := "practice"
	if b.mode == domain.ModeCompetition {
		scope = "contest:" + b.contestID
		if b.contestID == "" {
			scope = "contests:all"
		}
	}
	return "leaderboard:" + scope + ":" + string(b.rankBy) + ":" + string(b.actorKind)
}

// Query returns one page of the ranked board. Search runs after ranking so
// ranks are those of the full board.
func (s *LeaderboardService) Query(ctx context.Context, q domain.BoardQuery) (domain.LeaderboardPage, error) {
	scope, err := normalizeQuery(q)
	if err != nil {
		return domain.LeaderboardPage{}, err
	}
	lb, err := s.board(ctx, scope)
	if err != nil {
		return domain.LeaderboardPage{}, err
	}

	entries := filterByName(lb.Entries, q.Search)
	page, size := s.pageBounds(q.Page, q.PageSize)
	start, end := len(entries), len(entries)
	if page-1 <= len(entries)/size {
		start = (page - 1) * size
		end = min(start+size, len(entries))
	}

	out := domain.LeaderboardPage{
		Leaderboard: lb,
		Count:       len(entries),
		Page:        page,
		PageSize:    size,
	}
	out.Entries = entries[start:end]
	return out, nil
}

// Subscribe streams fresh snapshots of a board after each write in its scope.
// The caller must invoke the returned cancel function.
func (s *LeaderboardService) Subscribe(ctx context.Context, q domain.BoardQuery) (<-chan domain.Leaderboard, func(), error) {
	if s.feeds == nil {
		return nil, nil, errors.New("live leaderboard is not enabled")
	}
	scope, err := normalizeQuery(q)
	if err != nil {
		return nil, nil, err
	}
	initial, err := s.board(ctx, scope)
	if err != nil {
		return nil, nil, err
	}
	key := scope.key()
	ch, cancel := s.feeds.GetOrCreate(key).subscribe(initial)
	return ch, func() {
		cancel()
		s.feeds.DeleteIfEmpty(key)
	}, nil
}

// Refresh drops cached boards affected by a write to contestID (nil for
// practice), announces the scopes to other instances and republishes the
// live feeds kept here.
func (s *LeaderboardService) Refresh(ctx context.Context, contestID *string) error {
	scopes := affectedScopes(contestID)
	keys := make([]string, 0, len(scopes))
	for _, sc := range scopes {
		keys = append(keys, sc.key())
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, keys...)
	}
	if s.feeds == nil {
		return nil
	}
	var errs []error
	if s.relay != nil {
		if err := s.relay.Announce(ctx, keys...); err != nil {
			errs = append(errs, fmt.Errorf("announce refresh: %w", err))
		}
	}
	for _, sc := range scopes {
		if err := s.republish(ctx, sc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Relay republishes boards refreshed by other instances until ctx is done.
func (s *LeaderboardService) Relay(ctx context.Context) error {
	if s.relay == nil || s.feeds == nil {
		return nil
	}
	keys, err := s.relay.Listen(ctx)
	if err != nil {
		return fmt.Errorf("listen for refreshes: %w", err)
	}
	for key := range keys {
		scope, ok := parseScopeKey(key)
		if !ok {
			s.logger.Warn("ignoring unknown leaderboard scope", zap.String("feed", key))
			continue
		}
		if err := s.republish(ctx, scope); err != nil {
			s.logger.Warn("relayed refresh failed", zap.String("feed", key), zap.Error(err))
		}
	}
	return nil
}

// republish pushes a fresh board to the local feed of scope, if anyone is watching.
func (s *LeaderboardService) republish(ctx context.Context, scope boardScope) error {
	feed, ok := s.feeds.Get(scope.key())
	if !ok || feed.IsEmpty() {
		return nil
	}
	lb, err := s.board(ctx, scope)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", scope.key(), err)
	}
	feed.Publish(lb)
	s.logger.Debug("leaderboard feed published", zap.String("feed", feed.Key()), zap.Int("entries", len(lb.Entries)))
	return nil
}

// parseScopeKey is the inverse of boardScope.key.
func parseScopeKey(key string) (boardScope, bool) {
	rest, ok := strings.CutPrefix(key, "leaderboard:")
	if !ok {
		return boardScope{}, false
	}
	parts := strings.Split(rest, ":")
	n := len(parts)
	if n < 3 {
		return boardScope{}, false
	}
	q := domain.BoardQuery{RankBy: domain.RankBy(parts[n-2]), ActorKind: domain.ActorKind(parts[n-1])}
	switch head := strings.Join(parts[:n-2], ":"); {
	case head == "practice":
		q.Mode = domain.ModePractice
	case head == "contests:all":
		q.Mode = domain.ModeCompetition
	case strings.HasPrefix(head, "contest:") && len(head) > len("contest:"):
		q.Mode = domain.ModeCompetition
		q.ContestID = strings.TrimPrefix(head, "contest:")
	default:
		return boardScope{}, false
	}
	scope, err := normalizeQuery(q)
	if err != nil || scope.key() != key {
		return boardScope{}, false
	}
	return scope, true
}

func affectedScopes(contestID *string) []boardScope {
	var bases []boardScope
	if contestID == nil {
		bases = []boardScope{{mode: domain.ModePractice}}
	} else {
		bases = []boardScope{
			{mode: domain.ModeCompetition, contestID: *contestID},
			{mode: domain.ModeCompetition},
		}
	}
	var out []boardScope
	for _, b := range bases {
		for _, rankBy := range []domain.RankBy{domain.RankByScore, domain.RankBySolved} {
			for _, kind := range []domain.ActorKind{domain.ActorUser, domain.ActorGroup} {
				b.rankBy, b.actorKind = rankBy, kind
				out = append(out, b)
			}
		}
	}
	return out
}

func normalizeQuery(q domain.BoardQuery) (boardScope, error) {
	scope := boardScope{mode: q.Mode, rankBy: q.RankBy, actorKind: q.ActorKind}
	switch q.Mode {
	case domain.ModePractice:
	case domain.ModeCompetition:
		scope.contestID = strings.TrimSpace(q.ContestID)
	default:
		return boardScope{}, domain.ErrInvalidMode
	}
	switch scope.rankBy {
	case "":
		scope.rankBy = domain.RankByScore
	case domain.RankByScore, domain.RankBySolved:
	default:
		return boardScope{}, domain.ErrInvalidRankBy
	}
	switch scope.actorKind {
	case "":
		scope.actorKind = domain.ActorUser
	case domain.ActorUser, domain.ActorGroup:
	default:
		return boardScope{}, domain.ErrInvalidActorKind
	}
	return scope, nil
}

// board checks visibility on every call, then serves from cache or computes once per key.
func (s *LeaderboardService) board(ctx context.Context, scope boardScope) (domain.Leaderboard, error) {
	filter, err := s.filterFor(ctx, scope)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	key := scope.key()
	if s.cache != nil {
		if lb, ok := s.cache.Get(ctx, key); ok {
			return lb, nil
		}
	}

	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		lb, err := s.compute(ctx, scope, filter)
		if err != nil {
			return domain.Leaderboard{}, err
		}
		if s.cache != nil {
			s.cache.Set(ctx, key, lb)
		}
		return lb, nil
	})
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return result.(domain.Leaderboard), nil
}

func (s *LeaderboardService) filterFor(ctx context.Context, scope boardScope) (domain.SubmissionFilter, error) {
	filter := domain.SubmissionFilter{ActorKind: scope.actorKind}
	if scope.mode == domain.ModePractice {
		filter.Scope = domain.ScopePractice
		return filter, nil
	}

	filter.Scope = domain.ScopeContests
	if scope.contestID != "" {
		contest, err := s.catalog.Contest(ctx, scope.contestID)
		if err != nil {
			return filter, err
		}
		if !contest.PublishResult {
			return filter, domain.ErrResultsUnpublished
		}
		filter.ContestIDs = []string{contest.ID}
		return filter, nil
	}

	contests, err := s.catalog.Contests(ctx)
	if err != nil {
		return filter, fmt.Errorf("list contests: %w", err)
	}
	filter.ContestIDs = []string{}
	for _, c := range contests {
		if c.PublishResult {
			filter.ContestIDs = append(filter.ContestIDs, c.ID)
		}
	}
	return filter, nil
}

func (s *LeaderboardService) compute(ctx context.Context, scope boardScope, filter domain.SubmissionFilter) (domain.Leaderboard, error) {
	lb := domain.Leaderboard{
		Mode:      scope.mode,
		ContestID: scope.contestID,
		RankBy:    scope.rankBy,
		ActorType: scope.actorKind,
		Entries:   []domain.LeaderboardEntry{},
		UpdatedAt: s.now(),
	}
	if filter.ContestIDs != nil && len(filter.ContestIDs) == 0 {
		return lb, nil
	}

	subs, err := s.store.List(ctx, filter)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("list submissions: %w", err)
	}
	if scope.mode == domain.ModePractice {
		subs, err = s.practiceOnly(ctx, subs)
		if err != nil {
			return domain.Leaderboard{}, err
		}
	}

	ids := make([]string, 0)
	seen := make(map[string]struct{})
	for _, sub := range subs {
		if _, ok := seen[sub.Actor.ID]; !ok {
			seen[sub.Actor.ID] = struct{}{}
			ids = append(ids, sub.Actor.ID)
		}
	}
	names, err := s.catalog.DisplayNames(ctx, scope.actorKind, ids)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("load display names: %w", err)
	}

	lb.Entries = Rank(subs, scope.rankBy, names)
	return lb, nil
}

// practiceOnly drops attempts at challenges that are not practice challenges.
func (s *LeaderboardService) practiceOnly(ctx context.Context, subs []domain.Submission) ([]domain.Submission, error) {
	practice := make(map[string]bool)
	out := subs[:0:0]
	for _, sub := range subs {
		ok, known := practice[sub.ChallengeID]
		if !known {
			challenge, err := s.catalog.Challenge(ctx, sub.ChallengeID)
			switch {
			case errors.Is(err, domain.ErrChallengeNotFound):
				ok = false
			case err != nil:
				return nil, fmt.Errorf("load challenge %s: %w", sub.ChallengeID, err)
			default:
				ok = challenge.QuestionType == domain.QuestionPractice
			}
			practice[sub.ChallengeID] = ok
		}
		if ok {
			out = append(out, sub)
		}
	}
	return out, nil
}

// Rank collapses attempts into one entry per actor. Score mode sums the best
// score per challenge; solved mode counts challenges with a correct attempt.
// Ties break on case-insensitive name, then actor id; ranks are sequential.
func Rank(subs []domain.Submission, rankBy domain.RankBy, names map[string]string) []domain.LeaderboardEntry {
	type tally struct {
		actor  domain.Actor
		best   map[string]int
		solved map[string]struct{}
	}
	tallies := make(map[string]*tally)
	for _, sub := range subs {
		t, ok := tallies[sub.Actor.Key()]
		if !ok {
			t = &tally{actor: sub.Actor, best: make(map[string]int), solved: make(map[string]struct{})}
			tallies[sub.Actor.Key()] = t
		}
		if prev, ok := t.best[sub.ChallengeID]; !ok || sub.Score > prev {
			t.best[sub.ChallengeID] = sub.Score
		}
		if sub.Status == domain.StatusCorrect {
			t.solved[sub.ChallengeID] = struct{}{}
		}
	}

	entries := make([]domain.LeaderboardEntry, 0, len(tallies))
	for _, t := range tallies {
		if rankBy == domain.RankBySolved && len(t.solved) == 0 {
			continue
		}
		total := 0
		for _, score := range t.best {
			total += score
		}
		name := names[t.actor.ID]
		if name == "" {
			name = t.actor.Name
		}
		if name == "" {
			name = t.actor.ID
		}
		entries = append(entries, domain.LeaderboardEntry{
			ActorType:  t.actor.Kind,
			ActorID:    t.actor.ID,
			Name:       name,
			TotalScore: total,
			Solved:     len(t.solved),
		})
	}

	primary := func(e domain.LeaderboardEntry) int {
		if rankBy == domain.RankBySolved {
			return e.Solved
		}
		return e.TotalScore
	}
	sort.Slice(entries, func(i, j int) bool {
		if pi, pj := primary(entries[i]), primary(entries[j]); pi != pj {
			return pi > pj
		}
		ni, nj := strings.ToLower(entries[i].Name), strings.ToLower(entries[j].Name)
		if ni != nj {
			return ni < nj
		}
		return entries[i].ActorID < entries[j].ActorID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func filterByName(entries []domain.LeaderboardEntry, search string) []domain.LeaderboardEntry {
	needle := strings.ToLower(strings.TrimSpace(search))
	if needle == "" {
		return entries
	}
	out := make([]domain.LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Name), needle) {
			out = append(out, e)
		}
	}
	return out
}

func (s *LeaderboardService) pageBounds(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = s.defaultPageSize
	}
	if size > s.maxPageSize {
		size = s.maxPageSize
	}
	return page, size
}
