package rl

import "context"

// Environment with a finite, enumerable set of states and actions.
// States and actions are indices in [0, StateCount()) and [0, ActionCount()).
type Environment interface {
	// Reset called at the start of each episode, returns the initial state
	Reset(context.Context) (int, error)
	// Step advances one transition
	Step(context.Context, int) (StepResult, error)
	// SampleAction returns a uniformly random valid action
	SampleAction(context.Context) (int, error)

	StateCount() int
	ActionCount() int
}

// StepResult of a single transition
type StepResult struct {
	State  int
	Reward float64
	// Done marks a terminal transition
	Done bool
	// Truncated marks an episode cut short by a time limit, the next state is not terminal
	Truncated bool
}

// Over returns true if the episode should not continue after this transition
func (s StepResult) Over() bool {
	return s.Done || s.Truncated
}
