package policies

import (
	"math"
	"time"

	"github.com/zeu5/taxi-rl/rl"
	"golang.org/x/exp/rand"
)

// DecayingEpsilonGreedy is epsilon-greedy where epsilon is multiplied by decay
// after every training episode, never going below min
type DecayingEpsilonGreedy struct {
	epsilon float64
	min     float64
	decay   float64
	rand    *rand.Rand
}

var _ rl.Selector = &DecayingEpsilonGreedy{}
var _ rl.IterationUpdater = &DecayingEpsilonGreedy{}

func NewDecayingEpsilonGreedy(epsilon, min, decay float64, seed uint64) *DecayingEpsilonGreedy {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &DecayingEpsilonGreedy{
		epsilon: epsilon,
		min:     min,
		decay:   decay,
		rand:    rl.NewRand(seed),
	}
}

func (d *DecayingEpsilonGreedy) Epsilon() float64 {
	return d.epsilon
}

func (d *DecayingEpsilonGreedy) Select(q *rl.QTable, state int, explore rl.Explore) (int, error) {
	if d.rand.Float64() < d.epsilon {
		return explore()
	}
	action, _ := q.Max(state)
	return action, nil
}

func (d *DecayingEpsilonGreedy) UpdateIteration(_ *rl.EpisodeStats) {
	d.epsilon = math.Max(d.min, d.epsilon*d.decay)
}
