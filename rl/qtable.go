package rl

import (
	"fmt"
	"math"
)

// QTable holds the value estimate of every (state, action) pair,
// all entries start at zero
type QTable struct {
	states  int
	actions int
	table   [][]float64
}

func NewQTable(states, actions int) *QTable {
	table := make([][]float64, states)
	for s := range table {
		table[s] = make([]float64, actions)
	}
	return &QTable{
		states:  states,
		actions: actions,
		table:   table,
	}
}

func (q *QTable) States() int {
	return q.states
}

func (q *QTable) Actions() int {
	return q.actions
}

func (q *QTable) checkState(state int) error {
	if state < 0 || state >= q.states {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrStateOutOfRange, state, q.states)
	}
	return nil
}

func (q *QTable) checkAction(action int) error {
	if action < 0 || action >= q.actions {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrActionOutOfRange, action, q.actions)
	}
	return nil
}

// Get panics on out of range indices, callers validate first
func (q *QTable) Get(state, action int) float64 {
	return q.table[state][action]
}

func (q *QTable) Set(state, action int, val float64) {
	q.table[state][action] = val
}

// Max returns the action with the highest estimate in the state and its value.
// Ties are broken by the lowest action index.
func (q *QTable) Max(state int) (int, float64) {
	maxAction := 0
	maxVal := math.Inf(-1)
	for a, val := range q.table[state] {
		if val > maxVal {
			maxAction = a
			maxVal = val
		}
	}
	return maxAction, maxVal
}

// Row returns a copy of the estimates for the state
func (q *QTable) Row(state int) []float64 {
	row := make([]float64, q.actions)
	copy(row, q.table[state])
	return row
}

func (q *QTable) Copy() *QTable {
	n := NewQTable(q.states, q.actions)
	for s, row := range q.table {
		copy(n.table[s], row)
	}
	return n
}

// IsZero is true if no entry has been written with a non zero value
func (q *QTable) IsZero() bool {
	for _, row := range q.table {
		for _, val := range row {
			if val != 0 {
				return false
			}
		}
	}
	return true
}

// Greedy returns the argmax action of every state
func (q *QTable) Greedy() []int {
	policy := make([]int, q.states)
	for s := range q.table {
		policy[s], _ = q.Max(s)
	}
	return policy
}
