package scenario

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-scenarios/internal/db"
)

func ptr(s string) *string { return &s }

// onboarding is the three-node linear scenario used by most tests.
//
//	n1: c1a +10, c1b +30
//	n2: c2a +5,  c2b +15
//	n3: c3a +20 END, c3b +5 END
func onboarding() *Graph {
	return NewGraph(Scenario{ID: "onboarding", Title: "Onboarding"}, []DecisionNode{
		{ID: "n1", DecisionOrder: 1, Prompt: "Welcome", Choices: []Choice{
			{ID: "c1a", Text: "Say hi", Points: 10, NextAction: ActionContinue},
			{ID: "c1b", Text: "Shake hands", Points: 30, NextAction: ActionContinue},
		}},
		{ID: "n2", DecisionOrder: 2, Prompt: "Tour", Choices: []Choice{
			{ID: "c2a", Text: "Follow", Points: 5, NextAction: ActionContinue},
			{ID: "c2b", Text: "Ask", Points: 15, NextAction: ActionContinue},
		}},
		{ID: "n3", DecisionOrder: 3, Prompt: "Wrap up", Choices: []Choice{
			{ID: "c3a", Text: "Thank", Points: 20, NextAction: ActionEnd},
			{ID: "c3b", Text: "Leave", Points: 5, NextAction: ActionEnd},
		}},
	})
}

// branching has orders 10,20,30,40 and exercises forward and backward jumps.
//
//	b1: skip -> b3 (+7), walk (sequential, +1)
//	b2: on (+2)
//	b3: loop -> b1 (-3), next (+4)
//	b4: done END (+100)
func branching() *Graph {
	return NewGraph(Scenario{ID: "branching", Title: "Branching"}, []DecisionNode{
		{ID: "b1", DecisionOrder: 10, Prompt: "Fork", Choices: []Choice{
			{ID: "skip", Text: "Skip ahead", Points: 7, NextAction: ActionContinue, NextDecisionID: ptr("b3")},
			{ID: "walk", Text: "Walk", Points: 1, NextAction: ActionContinue},
		}},
		{ID: "b2", DecisionOrder: 20, Prompt: "Middle", Choices: []Choice{
			{ID: "on", Text: "Carry on", Points: 2, NextAction: ActionContinue},
		}},
		{ID: "b3", DecisionOrder: 30, Prompt: "Crossroads", Choices: []Choice{
			{ID: "loop", Text: "Go back", Points: -3, NextAction: ActionContinue, NextDecisionID: ptr("b1")},
			{ID: "next", Text: "Continue", Points: 4, NextAction: ActionContinue},
		}},
		{ID: "b4", DecisionOrder: 40, Prompt: "End", Choices: []Choice{
			{ID: "done", Text: "Finish", Points: 100, NextAction: ActionEnd},
		}},
	})
}

// linear never sets a jump target and never ends explicitly.
func linear() *Graph {
	orders := []int{5, 1, 9, 3} // deliberately unsorted and non-contiguous
	nodes := make([]DecisionNode, 0, len(orders))
	for _, o := range orders {
		id := "l" + strconv.Itoa(o)
		nodes = append(nodes, DecisionNode{ID: id, DecisionOrder: o, Prompt: id, Choices: []Choice{
			{ID: id + "-x", Text: "x", Points: o, NextAction: ActionContinue},
		}})
	}
	return NewGraph(Scenario{ID: "linear", Title: "Linear"}, nodes)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "_" + uuid.NewString()[:8]
	dbh, err := db.Open(context.Background(), db.DriverSQLite, "file:"+name+"?mode=memory&cache=shared&_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = dbh.Close() })
	return NewSQLStore(dbh, db.DriverSQLite)
}

// forEachStore runs fn against every Store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, st Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewInMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
}

func seed(t *testing.T, st Store, graphs ...*Graph) {
	t.Helper()
	for _, g := range graphs {
		if err := st.PutGraph(context.Background(), g); err != nil {
			t.Fatalf("PutGraph(%s): %v", g.Scenario().ID, err)
		}
	}
}

func newTestEngine(st Store) *Engine {
	return NewEngine(st, st, WithClock(newFakeClock().Now))
}

func start(t *testing.T, e *Engine, scenarioID, userID string) StartResult {
	t.Helper()
	res, err := e.StartAttempt(context.Background(), scenarioID, userID)
	if err != nil {
		t.Fatalf("StartAttempt(%s,%s): %v", scenarioID, userID, err)
	}
	return res
}

func submit(t *testing.T, e *Engine, attemptID, choiceID string) SubmitResult {
	t.Helper()
	res, err := e.SubmitResponse(context.Background(), attemptID, choiceID)
	if err != nil {
		t.Fatalf("SubmitResponse(%s): %v", choiceID, err)
	}
	return res
}

// play starts a fresh attempt and submits choices in order.
func play(t *testing.T, e *Engine, scenarioID, userID string, choices ...string) (string, SubmitResult) {
	t.Helper()
	a := start(t, e, scenarioID, userID).Attempt
	var last SubmitResult
	for _, c := range choices {
		last = submit(t, e, a.ID, c)
	}
	return a.ID, last
}
