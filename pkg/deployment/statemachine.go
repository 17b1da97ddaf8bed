package deployment

import "fmt"

// validTransitions encodes spec.md §3's DAG: queued → (cloning → building →
// deploying) → {success | failed | cancelled}, with cancelled able to
// preempt any non-terminal state.
var validTransitions = map[State]map[State]bool{
	StateQueued: {
		StateCloning:   true,
		StateCancelled: true,
		StateFailed:    true,
	},
	StateCloning: {
		StateBuilding:  true,
		StateDeploying: true, // pure-static skips the build step
		StateCancelled: true,
		StateFailed:    true,
	},
	StateBuilding: {
		StateDeploying: true,
		StateCancelled: true,
		StateFailed:    true,
	},
	StateDeploying: {
		StateSuccess:   true,
		StateCancelled: true,
		StateFailed:    true,
	},
}

// canTransition reports whether moving from 'from' to 'to' is permitted. A
// terminal state never transitions further, regardless of 'to'. Remaining in
// the same non-terminal state is allowed — UpdateState uses this to attach a
// patch (detected stack, chosen provider) without advancing the DAG.
func canTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if from == to {
		return true
	}
	return validTransitions[from][to]
}

func invalidTransitionError(from, to State) error {
	return fmt.Errorf("invalid state transition: %s -> %s", from, to)
}
