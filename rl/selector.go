package rl

import (
	"time"

	"golang.org/x/exp/rand"
)

// Explore returns a uniformly random valid action
type Explore func() (int, error)

// Selector picks the next action from the current estimates of the state
type Selector interface {
	Select(q *QTable, state int, explore Explore) (int, error)
}

// IterationUpdater is implemented by selectors that adapt at the end of every training episode
type IterationUpdater interface {
	UpdateIteration(*EpisodeStats)
}

// EpsilonGreedy explores with probability epsilon and otherwise
// picks the action with the highest estimate (lowest index on ties)
type EpsilonGreedy struct {
	epsilon float64
	rand    *rand.Rand
}

var _ Selector = &EpsilonGreedy{}

func NewEpsilonGreedy(epsilon float64, r *rand.Rand) *EpsilonGreedy {
	if r == nil {
		r = NewRand(uint64(time.Now().UnixNano()))
	}
	return &EpsilonGreedy{
		epsilon: epsilon,
		rand:    r,
	}
}

func (e *EpsilonGreedy) Select(q *QTable, state int, explore Explore) (int, error) {
	if e.rand.Float64() < e.epsilon {
		return explore()
	}
	action, _ := q.Max(state)
	return action, nil
}

// NewRand returns a seeded random number generator
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
