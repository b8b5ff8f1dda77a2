package scenario

import (
	"context"
	"time"
)

type ListOpts struct {
	Q      string
	Limit  int
	Offset int
}

// GraphLoader is the read side of the decision graph store.
type GraphLoader interface {
	LoadGraph(ctx context.Context, scenarioID string) (*Graph, error)
}

type GraphStore interface {
	GraphLoader
	// PutGraph stores authored content. It refuses with ErrScenarioInUse once
	// any attempt references the scenario.
	PutGraph(ctx context.Context, g *Graph) error
	ListScenarios(ctx context.Context, opts ListOpts) ([]ScenarioSummary, error)
	SetScenarioAsset(ctx context.Context, scenarioID, kind, key string) error
}

type AttemptStore interface {
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	// ActiveAttempt returns the IN_PROGRESS attempt for the pair or ErrNotFound.
	ActiveAttempt(ctx context.Context, scenarioID, userID string) (Attempt, error)
	// CreateAttempt inserts a. If another IN_PROGRESS attempt for the same
	// pair won the race, that attempt is returned with created=false.
	CreateAttempt(ctx context.Context, a Attempt) (_ Attempt, created bool, _ error)

	// LastResponseForNode returns the latest response recorded for nodeID in
	// the attempt, or ErrNotFound.
	LastResponseForNode(ctx context.Context, attemptID, nodeID string) (ChoiceResponse, error)
	// RecordResponse appends resp and moves the attempt per t, recomputing the
	// score as the sum of all awarded points. It fails with ErrStaleAttempt
	// if the attempt no longer matches expected (status or ResponseCount).
	RecordResponse(ctx context.Context, expected Attempt, resp ChoiceResponse, t Transition, now time.Time) (Attempt, ChoiceResponse, error)
	Responses(ctx context.Context, attemptID string) ([]ChoiceResponse, error)

	// LatestCompleted returns the most recently completed attempt or ErrNotFound.
	LatestCompleted(ctx context.Context, scenarioID, userID string) (Attempt, error)
	ListAttempts(ctx context.Context, scenarioID string) ([]AttemptRecord, error)
}

type UserStore interface {
	GetUser(ctx context.Context, idOrUsername string) (User, error)
	UpsertUser(ctx context.Context, u User) error
}

type Store interface {
	GraphStore
	AttemptStore
	UserStore
}
