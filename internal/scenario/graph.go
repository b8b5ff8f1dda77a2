package scenario

import (
	"sort"
)

// Graph is the decision graph of one scenario held as an arena: nodes sorted
// by DecisionOrder and indexed by ID. Choice.NextDecisionID values are plain
// ID references into the same arena.
type Graph struct {
	scenario Scenario
	nodes    []DecisionNode
	byID     map[string]int
	choices  map[string]choiceRef
}

type choiceRef struct{ node, choice int }

// GraphData is the wire/cache form of a Graph.
type GraphData struct {
	Scenario  Scenario       `json:"scenario" validate:"required"`
	Decisions []DecisionNode `json:"decisions" validate:"dive"`
}

// NewGraph copies nodes, stamps scenario/node ownership on them, and orders
// them by DecisionOrder (ties by ID so the order is stable).
func NewGraph(sc Scenario, nodes []DecisionNode) *Graph {
	g := &Graph{
		scenario: sc,
		nodes:    make([]DecisionNode, len(nodes)),
		byID:     make(map[string]int, len(nodes)),
		choices:  map[string]choiceRef{},
	}
	for i, n := range nodes {
		n.ScenarioID = sc.ID
		cs := make([]Choice, len(n.Choices))
		for j, c := range n.Choices {
			c.NodeID = n.ID
			cs[j] = c
		}
		n.Choices = cs
		g.nodes[i] = n
	}
	sort.SliceStable(g.nodes, func(i, j int) bool {
		if g.nodes[i].DecisionOrder != g.nodes[j].DecisionOrder {
			return g.nodes[i].DecisionOrder < g.nodes[j].DecisionOrder
		}
		return g.nodes[i].ID < g.nodes[j].ID
	})
	for i, n := range g.nodes {
		if _, dup := g.byID[n.ID]; !dup {
			g.byID[n.ID] = i
		}
		for j, c := range n.Choices {
			if _, dup := g.choices[c.ID]; !dup {
				g.choices[c.ID] = choiceRef{node: i, choice: j}
			}
		}
	}
	return g
}

func GraphFromData(d GraphData) *Graph { return NewGraph(d.Scenario, d.Decisions) }

func (g *Graph) Data() GraphData {
	return GraphData{Scenario: g.scenario, Decisions: g.Nodes()}
}

func (g *Graph) Scenario() Scenario { return g.scenario }

func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns the nodes in DecisionOrder. The slice is a copy.
func (g *Graph) Nodes() []DecisionNode {
	out := make([]DecisionNode, len(g.nodes))
	copy(out, g.nodes)
	return out
}

func (g *Graph) Contains(nodeID string) bool {
	_, ok := g.byID[nodeID]
	return ok
}

func (g *Graph) Node(id string) (DecisionNode, bool) {
	i, ok := g.byID[id]
	if !ok {
		return DecisionNode{}, false
	}
	return g.nodes[i], true
}

// First is the node with the smallest DecisionOrder.
func (g *Graph) First() (DecisionNode, bool) {
	if len(g.nodes) == 0 {
		return DecisionNode{}, false
	}
	return g.nodes[0], true
}

// After returns the node with the smallest DecisionOrder strictly greater
// than order.
func (g *Graph) After(order int) (DecisionNode, bool) {
	i := sort.Search(len(g.nodes), func(i int) bool { return g.nodes[i].DecisionOrder > order })
	if i == len(g.nodes) {
		return DecisionNode{}, false
	}
	return g.nodes[i], true
}

// Choice finds a choice and its parent node anywhere in the graph.
func (g *Graph) Choice(id string) (Choice, DecisionNode, bool) {
	ref, ok := g.choices[id]
	if !ok {
		return Choice{}, DecisionNode{}, false
	}
	n := g.nodes[ref.node]
	return n.Choices[ref.choice], n, true
}

// Validate checks the authoring invariants. Play never calls it: a graph
// that slipped through is still walked, with Resolve degrading gracefully.
func (g *Graph) Validate() error {
	if g.scenario.ID == "" {
		return invalidGraph("scenario id is required")
	}
	if len(g.nodes) == 0 {
		return invalidGraph("scenario %q has no decision nodes", g.scenario.ID)
	}
	nodeIDs := make(map[string]struct{}, len(g.nodes))
	orders := make(map[int]string, len(g.nodes))
	choiceIDs := map[string]struct{}{}
	for _, n := range g.nodes {
		if n.ID == "" {
			return invalidGraph("node with decision_order %d has no id", n.DecisionOrder)
		}
		if _, dup := nodeIDs[n.ID]; dup {
			return invalidGraph("duplicate node id %q", n.ID)
		}
		nodeIDs[n.ID] = struct{}{}
		if other, dup := orders[n.DecisionOrder]; dup {
			return invalidGraph("nodes %q and %q share decision_order %d", other, n.ID, n.DecisionOrder)
		}
		orders[n.DecisionOrder] = n.ID
		if len(n.Choices) == 0 {
			return invalidGraph("node %q has no choices", n.ID)
		}
		for _, c := range n.Choices {
			if c.ID == "" {
				return invalidGraph("node %q has a choice without id", n.ID)
			}
			if _, dup := choiceIDs[c.ID]; dup {
				return invalidGraph("duplicate choice id %q", c.ID)
			}
			choiceIDs[c.ID] = struct{}{}
			if c.NextAction != ActionContinue && c.NextAction != ActionEnd {
				return invalidGraph("choice %q has unknown next_action %q", c.ID, c.NextAction)
			}
		}
	}
	for _, n := range g.nodes {
		for _, c := range n.Choices {
			if c.NextDecisionID == nil {
				continue
			}
			if _, ok := nodeIDs[*c.NextDecisionID]; !ok {
				return invalidGraph("choice %q jumps to %q which is not a node of scenario %q",
					c.ID, *c.NextDecisionID, g.scenario.ID)
			}
		}
	}
	return nil
}
