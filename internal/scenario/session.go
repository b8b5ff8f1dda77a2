package scenario

import "fmt"

// Session is the headless play state a client keeps between round trips.
// Predicted values are disposable: Reconcile overwrites them with the
// server's result, and nothing here is ever persisted.
type Session struct {
	AttemptID      string
	Graph          *Graph
	CurrentNodeID  string
	PredictedScore int
	Complete       bool
}

func NewSession(res StartResult) *Session {
	s := &Session{
		AttemptID:      res.Attempt.ID,
		Graph:          NewGraph(res.Scenario, res.Decisions),
		CurrentNodeID:  derefStr(res.Attempt.CurrentNodeID),
		PredictedScore: res.Attempt.Score,
		Complete:       res.Attempt.Complete(),
	}
	if s.CurrentNodeID == "" && !s.Complete {
		if first, ok := s.Graph.First(); ok {
			s.CurrentNodeID = first.ID
		}
	}
	return s
}

func (s *Session) Current() (DecisionNode, bool) {
	if s.Complete {
		return DecisionNode{}, false
	}
	return s.Graph.Node(s.CurrentNodeID)
}

// Predict advances locally on the current node for instant feedback.
func (s *Session) Predict(choiceID string) (Transition, error) {
	if s.Complete {
		return Transition{}, ErrInvalidState
	}
	c, node, ok := s.Graph.Choice(choiceID)
	if !ok {
		return Transition{}, notFound("choice", choiceID)
	}
	if node.ID != s.CurrentNodeID {
		return Transition{}, fmt.Errorf("choice %q belongs to node %q, session is on %q", choiceID, node.ID, s.CurrentNodeID)
	}
	t := Resolve(s.Graph, node, c)
	s.PredictedScore += c.Points
	s.Complete = t.Complete
	s.CurrentNodeID = t.NextNodeID
	return t, nil
}

// Reconcile applies the authoritative server result. It reports whether the
// local prediction disagreed.
func (s *Session) Reconcile(res SubmitResult) (mismatch bool) {
	next := derefStr(res.NextDecisionID)
	mismatch = s.PredictedScore != res.Score || s.Complete != res.IsScenarioComplete ||
		(!res.IsScenarioComplete && s.CurrentNodeID != next)
	s.PredictedScore = res.Score
	s.Complete = res.IsScenarioComplete
	s.CurrentNodeID = next
	return mismatch
}
