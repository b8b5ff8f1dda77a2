package scenario

// Transition is the outcome of resolving one choice.
type Transition struct {
	NextNodeID string
	Complete   bool
	// Inconsistent is set when the choice named a target outside the graph
	// and sequential advancement was used instead.
	Inconsistent bool
	MissingID    string
}

// NextDecisionID is nil when the transition completes the scenario.
func (t Transition) NextDecisionID() *string {
	if t.Complete {
		return nil
	}
	return strPtr(t.NextNodeID)
}

// Resolve computes where choice c on node leads. An explicit jump wins over
// DecisionOrder, including jumps backwards. A dangling target falls back to
// the next node by order instead of failing the learner's session.
func Resolve(g *Graph, node DecisionNode, c Choice) Transition {
	if c.NextAction == ActionEnd {
		return Transition{Complete: true}
	}
	var t Transition
	if c.NextDecisionID != nil && *c.NextDecisionID != "" {
		if g.Contains(*c.NextDecisionID) {
			return Transition{NextNodeID: *c.NextDecisionID}
		}
		t.Inconsistent = true
		t.MissingID = *c.NextDecisionID
	}
	next, ok := g.After(node.DecisionOrder)
	if !ok {
		t.Complete = true
		return t
	}
	t.NextNodeID = next.ID
	return t
}
