package deployment

import "testing"

func TestCanTransitionAllowsDAGEdges(t *testing.T) {
	cases := []struct {
		from, to State
	}{
		{StateQueued, StateCloning},
		{StateCloning, StateBuilding},
		{StateCloning, StateDeploying},
		{StateBuilding, StateDeploying},
		{StateDeploying, StateSuccess},
		{StateCloning, StateCancelled},
		{StateBuilding, StateFailed},
	}
	for _, tt := range cases {
		if !canTransition(tt.from, tt.to) {
			t.Errorf("canTransition(%s, %s) = false, want true", tt.from, tt.to)
		}
	}
}

func TestCanTransitionRejectsSkippingOrGoingBackward(t *testing.T) {
	cases := []struct {
		from, to State
	}{
		{StateQueued, StateBuilding},
		{StateBuilding, StateCloning},
		{StateDeploying, StateCloning},
		{StateFailed, StateCloning},
	}
	for _, tt := range cases {
		if canTransition(tt.from, tt.to) {
			t.Errorf("canTransition(%s, %s) = true, want false", tt.from, tt.to)
		}
	}
}

func TestCanTransitionAllowsSameStatePatchOnlyUpdates(t *testing.T) {
	for _, s := range []State{StateQueued, StateCloning, StateBuilding, StateDeploying} {
		if !canTransition(s, s) {
			t.Errorf("canTransition(%s, %s) = false, want true (patch-only update)", s, s)
		}
	}
}

func TestCanTransitionRejectsAnythingFromTerminal(t *testing.T) {
	for _, s := range []State{StateSuccess, StateFailed, StateCancelled} {
		if canTransition(s, s) {
			t.Errorf("canTransition(%s, %s) = true, want false (terminal never transitions)", s, s)
		}
		if canTransition(s, StateCloning) {
			t.Errorf("canTransition(%s, cloning) = true, want false", s)
		}
	}
}
