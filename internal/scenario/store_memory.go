package scenario

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryStore struct {
	mu        sync.RWMutex
	scenarios map[string]Scenario
	nodes     map[string][]DecisionNode
	attempts  map[string]Attempt
	responses map[string][]ChoiceResponse
	users     map[string]User
}

// NewInMemoryStore is a process-local Store for tests and demos.
func NewInMemoryStore() Store {
	return &memoryStore{
		scenarios: map[string]Scenario{},
		nodes:     map[string][]DecisionNode{},
		attempts:  map[string]Attempt{},
		responses: map[string][]ChoiceResponse{},
		users:     map[string]User{},
	}
}

func (m *memoryStore) LoadGraph(_ context.Context, scenarioID string) (*Graph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sc, ok := m.scenarios[scenarioID]
	if !ok {
		return nil, notFound("scenario", scenarioID)
	}
	nodes := m.nodes[scenarioID]
	if len(nodes) == 0 {
		return nil, fmt.Errorf("scenario %q: %w", scenarioID, ErrEmptyScenario)
	}
	return NewGraph(sc, nodes), nil
}

func (m *memoryStore) PutGraph(_ context.Context, g *Graph) error {
	if err := g.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sc := g.Scenario()
	for _, a := range m.attempts {
		if a.ScenarioID == sc.ID {
			return fmt.Errorf("scenario %q: %w", sc.ID, ErrScenarioInUse)
		}
	}
	if prev, ok := m.scenarios[sc.ID]; ok && sc.CreatedAt.IsZero() {
		sc.CreatedAt = prev.CreatedAt
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now().UTC()
	}
	m.scenarios[sc.ID] = sc
	m.nodes[sc.ID] = g.Nodes()
	return nil
}

func (m *memoryStore) ListScenarios(_ context.Context, opts ListOpts) ([]ScenarioSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(opts.Q))
	out := []ScenarioSummary{}
	for id, sc := range m.scenarios {
		if q != "" && !strings.Contains(strings.ToLower(sc.Title), q) {
			continue
		}
		out = append(out, ScenarioSummary{
			ID: id, Title: sc.Title, Description: sc.Description,
			NodeCount: len(m.nodes[id]), CreatedAt: sc.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return page(out, opts.Limit, opts.Offset), nil
}

func (m *memoryStore) SetScenarioAsset(_ context.Context, scenarioID, kind, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.scenarios[scenarioID]
	if !ok {
		return notFound("scenario", scenarioID)
	}
	switch kind {
	case AssetBackground:
		sc.BackgroundAsset = key
	case AssetAvatar:
		sc.AvatarAsset = key
	default:
		return fmt.Errorf("unknown asset kind %q", kind)
	}
	m.scenarios[scenarioID] = sc
	return nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, notFound("attempt", id)
	}
	return a, nil
}

func (m *memoryStore) ActiveAttempt(_ context.Context, scenarioID, userID string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.activeLocked(scenarioID, userID); ok {
		return a, nil
	}
	return Attempt{}, notFound("active attempt for user", userID)
}

func (m *memoryStore) activeLocked(scenarioID, userID string) (Attempt, bool) {
	for _, a := range m.attempts {
		if a.ScenarioID == scenarioID && a.UserID == userID && a.Status == StatusInProgress {
			return a, true
		}
	}
	return Attempt{}, false
}

func (m *memoryStore) CreateAttempt(_ context.Context, a Attempt) (Attempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scenarios[a.ScenarioID]; !ok {
		return Attempt{}, false, notFound("scenario", a.ScenarioID)
	}
	if existing, ok := m.activeLocked(a.ScenarioID, a.UserID); ok {
		return existing, false, nil
	}
	m.attempts[a.ID] = a
	return a, true, nil
}

func (m *memoryStore) LastResponseForNode(_ context.Context, attemptID, nodeID string) (ChoiceResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rs := m.responses[attemptID]
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i].DecisionNodeID == nodeID {
			return rs[i], nil
		}
	}
	return ChoiceResponse{}, notFound("response for node", nodeID)
}

func (m *memoryStore) RecordResponse(_ context.Context, expected Attempt, resp ChoiceResponse, t Transition, now time.Time) (Attempt, ChoiceResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[expected.ID]
	if !ok {
		return Attempt{}, ChoiceResponse{}, notFound("attempt", expected.ID)
	}
	if a.Status != StatusInProgress || a.ResponseCount != expected.ResponseCount {
		return Attempt{}, ChoiceResponse{}, ErrStaleAttempt
	}

	resp.AttemptID = a.ID
	resp.Seq = a.ResponseCount + 1
	resp.RespondedAt = now
	resp.NextDecisionID = t.NextDecisionID()
	resp.Completed = t.Complete

	rs := append(m.responses[a.ID], resp)
	sum := 0
	for _, r := range rs {
		sum += r.PointsAwarded
	}
	rs[len(rs)-1].ScoreAfter = sum
	m.responses[a.ID] = rs

	a.Score = sum
	a.ResponseCount = resp.Seq
	a.CurrentNodeID = resp.NextDecisionID
	if t.Complete {
		done := now
		a.Status = StatusComplete
		a.CompletedAt = &done
	}
	m.attempts[a.ID] = a
	return a, rs[len(rs)-1], nil
}

func (m *memoryStore) Responses(_ context.Context, attemptID string) ([]ChoiceResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.attempts[attemptID]; !ok {
		return nil, notFound("attempt", attemptID)
	}
	out := make([]ChoiceResponse, len(m.responses[attemptID]))
	copy(out, m.responses[attemptID])
	return out, nil
}

func (m *memoryStore) LatestCompleted(_ context.Context, scenarioID, userID string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *Attempt
	for _, a := range m.attempts {
		if a.ScenarioID != scenarioID || a.UserID != userID || a.Status != StatusComplete || a.CompletedAt == nil {
			continue
		}
		if best == nil || a.CompletedAt.After(*best.CompletedAt) ||
			(a.CompletedAt.Equal(*best.CompletedAt) && a.StartedAt.After(best.StartedAt)) {
			a := a
			best = &a
		}
	}
	if best == nil {
		return Attempt{}, notFound("completed attempt for user", userID)
	}
	return *best, nil
}

func (m *memoryStore) ListAttempts(_ context.Context, scenarioID string) ([]AttemptRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []AttemptRecord{}
	for _, a := range m.attempts {
		if a.ScenarioID != scenarioID {
			continue
		}
		u := m.users[a.UserID]
		out = append(out, AttemptRecord{Attempt: a, Name: u.Name, Email: u.Email})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *memoryStore) GetUser(_ context.Context, idOrUsername string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[idOrUsername]; ok {
		return u, nil
	}
	for _, u := range m.users {
		if u.Username == idOrUsername {
			return u, nil
		}
	}
	return User{}, notFound("user", idOrUsername)
}

func (m *memoryStore) UpsertUser(_ context.Context, u User) error {
	if u.ID == "" {
		return fmt.Errorf("user id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func page[T any](in []T, limit, offset int) []T {
	if offset >= len(in) {
		return []T{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
