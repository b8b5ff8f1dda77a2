package scenario

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mind-engage/mindengage-scenarios/internal/logger"
)

var tracer = otel.Tracer("github.com/mind-engage/mindengage-scenarios/internal/scenario")

// Engine owns attempt lifecycle, choice resolution and score reads. It is
// the only writer of attempts and responses.
type Engine struct {
	graphs GraphLoader
	store  AttemptStore
	log    *logger.Logger
	now    func() time.Time
	newID  func() string
}

type Option func(*Engine)

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

func NewEngine(graphs GraphLoader, store AttemptStore, opts ...Option) *Engine {
	e := &Engine{
		graphs: graphs,
		store:  store,
		log:    logger.Nop(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	e.log = e.log.With("component", "scenario.engine")
	return e
}

type StartResult struct {
	Attempt   Attempt        `json:"attempt"`
	Scenario  Scenario       `json:"scenario"`
	Decisions []DecisionNode `json:"decisions"`
	Resumed   bool           `json:"resumed"`
}

type SubmitResult struct {
	Score              int     `json:"score"`
	NextDecisionID     *string `json:"next_decision_id"`
	IsScenarioComplete bool    `json:"is_scenario_complete"`
	Feedback           string  `json:"feedback,omitempty"`
	ChoiceID           string  `json:"choice_id"`
	// Replayed is true when the call matched an already resolved node and
	// the stored outcome was returned without scoring again.
	Replayed bool `json:"replayed"`
}

// StartAttempt resumes the learner's IN_PROGRESS attempt or creates a new
// one positioned on the first node. The whole graph is returned so the
// client can render without a round trip per node.
func (e *Engine) StartAttempt(ctx context.Context, scenarioID, userID string) (res StartResult, err error) {
	ctx, span := tracer.Start(ctx, "scenario.StartAttempt", trace.WithAttributes(
		attribute.String("scenario.id", scenarioID),
	))
	defer endSpan(span, &err)

	g, err := e.graphs.LoadGraph(ctx, scenarioID)
	if err != nil {
		return StartResult{}, err
	}
	first, ok := g.First()
	if !ok {
		return StartResult{}, ErrEmptyScenario
	}
	res = StartResult{Scenario: g.Scenario(), Decisions: g.Nodes()}

	a, err := e.store.ActiveAttempt(ctx, scenarioID, userID)
	switch {
	case err == nil:
		res.Attempt, res.Resumed = a, true
		span.SetAttributes(attribute.Bool("attempt.resumed", true))
		return res, nil
	case !errors.Is(err, ErrNotFound):
		return StartResult{}, err
	}

	firstID := first.ID
	a, created, err := e.store.CreateAttempt(ctx, Attempt{
		ID:            e.newID(),
		ScenarioID:    scenarioID,
		UserID:        userID,
		Status:        StatusInProgress,
		StartedAt:     e.now(),
		CurrentNodeID: &firstID,
	})
	if err != nil {
		return StartResult{}, err
	}
	if !created {
		e.log.Debug("concurrent start resolved as resume", "attempt_id", a.ID, "scenario_id", scenarioID)
	}
	res.Attempt, res.Resumed = a, !created
	span.SetAttributes(attribute.Bool("attempt.resumed", res.Resumed))
	return res, nil
}

// SubmitResponse resolves choiceID against the attempt's scenario and
// records it. The server result is authoritative over any client prediction.
func (e *Engine) SubmitResponse(ctx context.Context, attemptID, choiceID string) (res SubmitResult, err error) {
	ctx, span := tracer.Start(ctx, "scenario.SubmitResponse", trace.WithAttributes(
		attribute.String("attempt.id", attemptID),
		attribute.String("choice.id", choiceID),
	))
	defer endSpan(span, &err)

	for try := 0; ; try++ {
		res, err = e.submitOnce(ctx, attemptID, choiceID)
		if errors.Is(err, ErrStaleAttempt) && try == 0 {
			e.log.Debug("attempt changed during submit, re-evaluating", "attempt_id", attemptID)
			continue
		}
		return res, err
	}
}

func (e *Engine) submitOnce(ctx context.Context, attemptID, choiceID string) (SubmitResult, error) {
	a, err := e.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return SubmitResult{}, err
	}
	if a.Complete() {
		return SubmitResult{Score: a.Score, IsScenarioComplete: true}, ErrInvalidState
	}
	g, err := e.graphs.LoadGraph(ctx, a.ScenarioID)
	if err != nil {
		return SubmitResult{}, err
	}
	c, node, ok := g.Choice(choiceID)
	if !ok {
		return SubmitResult{}, notFound("choice", choiceID)
	}

	if !a.AtNode(node.ID) {
		prev, err := e.store.LastResponseForNode(ctx, a.ID, node.ID)
		switch {
		case err == nil:
			if prev.ChoiceID != choiceID {
				e.log.Info("resubmission for resolved node with a different choice; keeping original",
					"attempt_id", a.ID, "node_id", node.ID, "choice_id", choiceID, "original_choice_id", prev.ChoiceID)
			}
			return replayResult(g, prev), nil
		case !errors.Is(err, ErrNotFound):
			return SubmitResult{}, err
		}
		e.log.Warn("choice submitted out of sequence",
			"attempt_id", a.ID, "node_id", node.ID, "current_node_id", derefStr(a.CurrentNodeID))
	}

	t := Resolve(g, node, c)
	if t.Inconsistent {
		e.log.Warn("graph inconsistency: jump target not in scenario, advancing sequentially",
			"scenario_id", a.ScenarioID, "node_id", node.ID, "choice_id", c.ID,
			"missing_target", t.MissingID, "fallback_node_id", t.NextNodeID, "complete", t.Complete)
	}

	updated, saved, err := e.store.RecordResponse(ctx, a, ChoiceResponse{
		AttemptID:      a.ID,
		DecisionNodeID: node.ID,
		ChoiceID:       c.ID,
		PointsAwarded:  c.Points,
	}, t, e.now())
	if err != nil {
		return SubmitResult{}, err
	}
	if updated.Complete() {
		e.log.Info("attempt complete", "attempt_id", updated.ID, "scenario_id", updated.ScenarioID, "score", updated.Score)
	}
	return SubmitResult{
		Score:              updated.Score,
		NextDecisionID:     saved.NextDecisionID,
		IsScenarioComplete: saved.Completed,
		Feedback:           c.Feedback,
		ChoiceID:           c.ID,
	}, nil
}

func replayResult(g *Graph, prev ChoiceResponse) SubmitResult {
	res := SubmitResult{
		Score:              prev.ScoreAfter,
		NextDecisionID:     prev.NextDecisionID,
		IsScenarioComplete: prev.Completed,
		ChoiceID:           prev.ChoiceID,
		Replayed:           true,
	}
	if c, _, ok := g.Choice(prev.ChoiceID); ok {
		res.Feedback = c.Feedback
	}
	return res
}

// LatestScore returns the score of the most recently completed attempt.
// ok is false when the learner has not completed the scenario yet.
func (e *Engine) LatestScore(ctx context.Context, scenarioID, userID string) (score int, ok bool, err error) {
	a, err := e.store.LatestCompleted(ctx, scenarioID, userID)
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return a.Score, true, nil
}

func (e *Engine) Scoreboard(ctx context.Context, scenarioID string) (_ []UserAttempts, err error) {
	ctx, span := tracer.Start(ctx, "scenario.Scoreboard", trace.WithAttributes(
		attribute.String("scenario.id", scenarioID),
	))
	defer endSpan(span, &err)

	if _, err := e.graphs.LoadGraph(ctx, scenarioID); err != nil && !errors.Is(err, ErrEmptyScenario) {
		return nil, err
	}
	recs, err := e.store.ListAttempts(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	return BuildScoreboard(recs), nil
}

func (e *Engine) GetAttempt(ctx context.Context, attemptID string) (Attempt, error) {
	return e.store.GetAttempt(ctx, attemptID)
}

// History returns an attempt with its responses in submission order.
func (e *Engine) History(ctx context.Context, attemptID string) (Attempt, []ChoiceResponse, error) {
	a, err := e.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, nil, err
	}
	rs, err := e.store.Responses(ctx, attemptID)
	if err != nil {
		return Attempt{}, nil, err
	}
	return a, rs, nil
}

func endSpan(span trace.Span, errp *error) {
	if errp != nil && *errp != nil {
		span.RecordError(*errp)
		span.SetStatus(codes.Error, (*errp).Error())
	}
	span.End()
}
