package scenario

import (
	"errors"
	"testing"
)

func TestSessionPredictsAndReconciles(t *testing.T) {
	st := NewInMemoryStore()
	seed(t, st, branching())
	e := newTestEngine(st)
	s := NewSession(start(t, e, "branching", "u1"))

	if n, ok := s.Current(); !ok || n.ID != "b1" {
		t.Fatalf("current: %+v %v", n, ok)
	}
	if _, err := s.Predict("next"); err == nil {
		t.Fatalf("choice from another node accepted")
	}
	if _, err := s.Predict("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown choice: %v", err)
	}

	for _, c := range []string{"skip", "next", "done"} {
		tr, err := s.Predict(c)
		if err != nil {
			t.Fatalf("predict %s: %v", c, err)
		}
		res := submit(t, e, s.AttemptID, c)
		if s.Reconcile(res) {
			t.Fatalf("%s: prediction %+v disagreed with server %+v", c, tr, res)
		}
	}
	if !s.Complete || s.PredictedScore != 111 {
		t.Fatalf("final session: %+v", s)
	}
	if _, ok := s.Current(); ok {
		t.Fatalf("complete session has a current node")
	}
	if _, err := s.Predict("skip"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("predict after complete: %v", err)
	}
}

func TestSessionReconcileOverridesPrediction(t *testing.T) {
	s := NewSession(StartResult{
		Attempt:   Attempt{ID: "a1", CurrentNodeID: ptr("n1"), Status: StatusInProgress},
		Scenario:  onboarding().Scenario(),
		Decisions: onboarding().Nodes(),
	})
	if _, err := s.Predict("c1a"); err != nil {
		t.Fatal(err)
	}
	// server saw an earlier response and reports a different state
	if !s.Reconcile(SubmitResult{Score: 30, NextDecisionID: ptr("n3")}) {
		t.Fatalf("mismatch not reported")
	}
	if s.PredictedScore != 30 || s.CurrentNodeID != "n3" || s.Complete {
		t.Fatalf("reconcile did not take server values: %+v", s)
	}
}
