package scenario

import (
	"errors"
	"testing"
)

func TestGraphOrdersNodesAndIndexesChoices(t *testing.T) {
	g := linear()
	var got []int
	for _, n := range g.Nodes() {
		got = append(got, n.DecisionOrder)
		if n.ScenarioID != "linear" {
			t.Fatalf("node %s not stamped with scenario id", n.ID)
		}
	}
	want := []int{1, 3, 5, 9}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("orders = %v, want %v", got, want)
		}
	}

	first, ok := g.First()
	if !ok || first.ID != "l1" {
		t.Fatalf("First = %+v, %v", first, ok)
	}
	c, n, ok := g.Choice("l5-x")
	if !ok || n.ID != "l5" || c.NodeID != "l5" {
		t.Fatalf("Choice lookup: %+v %+v %v", c, n, ok)
	}
	if _, _, ok := g.Choice("nope"); ok {
		t.Fatalf("unknown choice found")
	}
}

func TestGraphAfter(t *testing.T) {
	g := linear()
	cases := []struct {
		order int
		want  string
		ok    bool
	}{
		{0, "l1", true},
		{1, "l3", true},
		{4, "l5", true},
		{5, "l9", true},
		{9, "", false},
		{100, "", false},
	}
	for _, tc := range cases {
		n, ok := g.After(tc.order)
		if ok != tc.ok || n.ID != tc.want {
			t.Fatalf("After(%d) = %q,%v want %q,%v", tc.order, n.ID, ok, tc.want, tc.ok)
		}
	}

	if _, ok := NewGraph(Scenario{ID: "x"}, nil).First(); ok {
		t.Fatalf("empty graph has a first node")
	}
}

func TestGraphNodesIsACopy(t *testing.T) {
	g := onboarding()
	ns := g.Nodes()
	ns[0].Prompt = "changed"
	if n, _ := g.Node("n1"); n.Prompt != "Welcome" {
		t.Fatalf("graph mutated through Nodes(): %q", n.Prompt)
	}
}

func TestGraphValidate(t *testing.T) {
	node := func(id string, order int, choices ...Choice) DecisionNode {
		return DecisionNode{ID: id, DecisionOrder: order, Prompt: id, Choices: choices}
	}
	cont := func(id string) Choice { return Choice{ID: id, Text: id, NextAction: ActionContinue} }
	jump := func(id, to string) Choice {
		return Choice{ID: id, Text: id, NextAction: ActionContinue, NextDecisionID: ptr(to)}
	}

	cases := []struct {
		name  string
		g     *Graph
		valid bool
	}{
		{"onboarding", onboarding(), true},
		{"branching", branching(), true},
		{"linear", linear(), true},
		{"no scenario id", NewGraph(Scenario{}, []DecisionNode{node("a", 1, cont("x"))}), false},
		{"no nodes", NewGraph(Scenario{ID: "s"}, nil), false},
		{"node without id", NewGraph(Scenario{ID: "s"}, []DecisionNode{node("", 1, cont("x"))}), false},
		{"duplicate node id", NewGraph(Scenario{ID: "s"}, []DecisionNode{node("a", 1, cont("x")), node("a", 2, cont("y"))}), false},
		{"duplicate order", NewGraph(Scenario{ID: "s"}, []DecisionNode{node("a", 1, cont("x")), node("b", 1, cont("y"))}), false},
		{"no choices", NewGraph(Scenario{ID: "s"}, []DecisionNode{node("a", 1)}), false},
		{"choice without id", NewGraph(Scenario{ID: "s"}, []DecisionNode{node("a", 1, cont(""))}), false},
		{"duplicate choice id", NewGraph(Scenario{ID: "s"}, []DecisionNode{node("a", 1, cont("x")), node("b", 2, cont("x"))}), false},
		{"bad next action", NewGraph(Scenario{ID: "s"}, []DecisionNode{node("a", 1, Choice{ID: "x", NextAction: "JUMP"})}), false},
		{"dangling jump", NewGraph(Scenario{ID: "s"}, []DecisionNode{node("a", 1, jump("x", "ghost"))}), false},
		{"self loop", NewGraph(Scenario{ID: "s"}, []DecisionNode{node("a", 1, jump("x", "a"), cont("y"))}), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.g.Validate()
			if tc.valid && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.valid && !errors.Is(err, ErrInvalidGraph) {
				t.Fatalf("want ErrInvalidGraph, got %v", err)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	b := branching()
	node := func(id string) DecisionNode { n, _ := b.Node(id); return n }
	choice := func(id string) Choice { c, _, _ := b.Choice(id); return c }

	cases := []struct {
		name         string
		node, choice string
		next         string
		complete     bool
	}{
		{"forward jump", "b1", "skip", "b3", false},
		{"sequential", "b1", "walk", "b2", false},
		{"backward jump", "b3", "loop", "b1", false},
		{"sequential to last", "b3", "next", "b4", false},
		{"end", "b4", "done", "", true},
	}
	for _, tc := range cases {
		tr := Resolve(b, node(tc.node), choice(tc.choice))
		if tr.NextNodeID != tc.next || tr.Complete != tc.complete || tr.Inconsistent {
			t.Fatalf("%s: %+v", tc.name, tr)
		}
	}

	// END wins even when a target is set
	endWithJump := Choice{ID: "e", NextAction: ActionEnd, NextDecisionID: ptr("b2")}
	if tr := Resolve(b, node("b1"), endWithJump); !tr.Complete || tr.NextDecisionID() != nil {
		t.Fatalf("END with target: %+v", tr)
	}

	// CONTINUE on the last node completes
	lastCont := Choice{ID: "z", NextAction: ActionContinue}
	if tr := Resolve(b, node("b4"), lastCont); !tr.Complete || tr.Inconsistent {
		t.Fatalf("continue past last: %+v", tr)
	}

	dangling := Choice{ID: "d", NextAction: ActionContinue, NextDecisionID: ptr("ghost")}
	tr := Resolve(b, node("b2"), dangling)
	if !tr.Inconsistent || tr.MissingID != "ghost" || tr.NextNodeID != "b3" || tr.Complete {
		t.Fatalf("dangling mid graph: %+v", tr)
	}
	tr = Resolve(b, node("b4"), dangling)
	if !tr.Inconsistent || !tr.Complete {
		t.Fatalf("dangling at last node: %+v", tr)
	}
}
