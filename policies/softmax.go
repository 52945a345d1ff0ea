package policies

import (
	"math"
	"time"

	"github.com/zeu5/taxi-rl/rl"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// SoftMaxPolicy samples actions with probability proportional to exp(Q/temperature)
type SoftMaxPolicy struct {
	temperature float64
	rand        rand.Source
}

var _ rl.Selector = &SoftMaxPolicy{}

func NewSoftMaxPolicy(temperature float64, seed uint64) *SoftMaxPolicy {
	if temperature <= 0 {
		temperature = 1
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &SoftMaxPolicy{
		temperature: temperature,
		rand:        rand.NewSource(seed),
	}
}

func (s *SoftMaxPolicy) Select(q *rl.QTable, state int, _ rl.Explore) (int, error) {
	vals := q.Row(state)
	_, max := q.Max(state)

	sum := float64(0)
	weights := make([]float64, len(vals))
	for i, val := range vals {
		// shifted by the max to keep exp in range
		exp := math.Exp((val - max) / s.temperature)
		weights[i] = exp
		sum += exp
	}
	for i, w := range weights {
		weights[i] = w / sum
	}
	i, ok := sampleuv.NewWeighted(weights, s.rand).Take()
	if !ok {
		greedy, _ := q.Max(state)
		return greedy, nil
	}
	return i, nil
}
