package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"ctf-scoring-service/internal/domain"
	"gopkg.in/yaml.v3"
)

// Catalog is an in-memory catalog, useful for tests, demos and seed files.
type Catalog struct {
	mu         sync.RWMutex
	challenges map[string]domain.Challenge
	solutions  map[string]domain.Solutions
	contests   map[string]domain.Contest
	links      map[string][]string // challenge id -> contest ids
	users      map[string]string
	groups     map[string]domain.Group
	membership map[string]string // user id -> group id
}

func NewCatalog() *Catalog {
	return &Catalog{
		challenges: make(map[string]domain.Challenge),
		solutions:  make(map[string]domain.Solutions),
		contests:   make(map[string]domain.Contest),
		links:      make(map[string][]string),
		users:      make(map[string]string),
		groups:     make(map[string]domain.Group),
		membership: make(map[string]string),
	}
}

func (c *Catalog) PutChallenge(ch domain.Challenge, solutions domain.Solutions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.challenges[ch.ID] = ch
	c.solutions[ch.ID] = solutions
}

// PutContest stores a contest and links the given challenges to it.
func (c *Catalog) PutContest(contest domain.Contest, challengeIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contests[contest.ID] = contest
	for _, id := range challengeIDs {
		c.linkLocked(contest.ID, id)
	}
}

func (c *Catalog) Link(contestID, challengeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.linkLocked(contestID, challengeID)
}

func (c *Catalog) Unlink(contestID, challengeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	links := c.links[challengeID][:0]
	for _, id := range c.links[challengeID] {
		if id != contestID {
			links = append(links, id)
		}
	}
	c.links[challengeID] = links
}

func (c *Catalog) linkLocked(contestID, challengeID string) {
	for _, id := range c.links[challengeID] {
		if id == contestID {
			return
		}
	}
	c.links[challengeID] = append(c.links[challengeID], contestID)
}

func (c *Catalog) PutUser(id, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[id] = username
}

// PutGroup stores a group and moves the given users into it.
func (c *Catalog) PutGroup(group domain.Group, members ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[group.ID] = group
	for _, userID := range members {
		c.membership[userID] = group.ID
	}
}

func (c *Catalog) Challenge(_ context.Context, id string) (domain.Challenge, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if ch, ok := c.challenges[id]; ok {
		return ch, nil
	}
	return domain.Challenge{}, domain.ErrChallengeNotFound
}

func (c *Catalog) ContestsForChallenge(_ context.Context, challengeID string) ([]domain.Contest, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Contest, 0, len(c.links[challengeID]))
	for _, id := range c.links[challengeID] {
		if contest, ok := c.contests[id]; ok {
			out = append(out, contest)
		}
	}
	return out, nil
}

func (c *Catalog) Contest(_ context.Context, id string) (domain.Contest, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if contest, ok := c.contests[id]; ok {
		return contest, nil
	}
	return domain.Contest{}, domain.ErrContestNotFound
}

func (c *Catalog) Contests(_ context.Context) ([]domain.Contest, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Contest, 0, len(c.contests))
	for _, contest := range c.contests {
		out = append(out, contest)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *Catalog) Solutions(_ context.Context, challengeID string) (domain.Solutions, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.solutions[challengeID], nil
}

func (c *Catalog) GroupForUser(_ context.Context, userID string) (domain.Group, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	groupID, ok := c.membership[userID]
	if !ok {
		return domain.Group{}, false, nil
	}
	group, ok := c.groups[groupID]
	return group, ok, nil
}

func (c *Catalog) DisplayNames(_ context.Context, kind domain.ActorKind, ids []string) (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		switch kind {
		case domain.ActorGroup:
			if g, ok := c.groups[id]; ok {
				out[id] = g.Name
			}
		default:
			if name, ok := c.users[id]; ok {
				out[id] = name
			}
		}
	}
	return out, nil
}

// CheckContest re-validates a contest guard against the current catalog state.
func (c *Catalog) CheckContest(guard domain.ContestGuard, now time.Time) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	links := c.links[guard.ChallengeID]
	switch {
	case len(links) == 0:
		return &domain.IntegrityError{Reason: domain.IntegrityNoContest, ChallengeID: guard.ChallengeID}
	case len(links) > 1:
		return &domain.IntegrityError{Reason: domain.IntegrityMultipleContests, ChallengeID: guard.ChallengeID, ContestIDs: append([]string(nil), links...)}
	case links[0] != guard.ContestID:
		return domain.Deny(domain.ReasonContestClosed)
	}
	contest, ok := c.contests[guard.ContestID]
	if !ok || !contest.AcceptsAt(now) {
		return domain.Deny(domain.ReasonContestClosed)
	}
	return nil
}

// CatalogSeed is the YAML layout accepted by LoadCatalogSeed.
type CatalogSeed struct {
	Challenges []struct {
		domain.Challenge `yaml:",inline"`
		Flag             *string `yaml:"flag"`
		Procedure        *string `yaml:"procedure"`
	} `yaml:"challenges"`
	Contests []struct {
		domain.Contest `yaml:",inline"`
		Challenges     []string `yaml:"challenges"`
	} `yaml:"contests"`
	Users []struct {
		ID       string `yaml:"id"`
		Username string `yaml:"username"`
	} `yaml:"users"`
	Groups []struct {
		ID      string   `yaml:"id"`
		Name    string   `yaml:"name"`
		Members []string `yaml:"members"`
	} `yaml:"groups"`
}

// LoadCatalogSeed builds a catalog from a YAML file.
func LoadCatalogSeed(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed: %w", err)
	}
	var seed CatalogSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse catalog seed: %w", err)
	}

	catalog := NewCatalog()
	for _, ch := range seed.Challenges {
		catalog.PutChallenge(ch.Challenge, domain.Solutions{Flag: ch.Flag, Procedure: ch.Procedure})
	}
	for _, ct := range seed.Contests {
		if !ct.EndTime.After(ct.StartTime) {
			return nil, fmt.Errorf("contest %s: end_time must be after start_time", ct.ID)
		}
		catalog.PutContest(ct.Contest, ct.Challenges...)
	}
	for _, u := range seed.Users {
		catalog.PutUser(u.ID, u.Username)
	}
	for _, g := range seed.Groups {
		catalog.PutGroup(domain.Group{ID: g.ID, Name: g.Name}, g.Members...)
	}
	return catalog, nil
}
