package rl

import "encoding/json"

// Trace of an episode as (state, action, reward, nextState) tuples
type Trace struct {
	states     []int
	actions    []int
	rewards    []float64
	nextStates []int
}

func NewTrace() *Trace {
	return &Trace{
		states:     make([]int, 0),
		actions:    make([]int, 0),
		rewards:    make([]float64, 0),
		nextStates: make([]int, 0),
	}
}

func (t *Trace) Append(state, action int, reward float64, nextState int) {
	t.states = append(t.states, state)
	t.actions = append(t.actions, action)
	t.rewards = append(t.rewards, reward)
	t.nextStates = append(t.nextStates, nextState)
}

func (t *Trace) Len() int {
	return len(t.states)
}

func (t *Trace) Get(i int) (int, int, float64, int, bool) {
	if i < 0 || i >= len(t.states) {
		return 0, 0, 0, 0, false
	}
	return t.states[i], t.actions[i], t.rewards[i], t.nextStates[i], true
}

func (t *Trace) Last() (int, int, float64, int, bool) {
	return t.Get(len(t.states) - 1)
}

type traceStep struct {
	State     int     `json:"state"`
	Action    int     `json:"action"`
	Reward    float64 `json:"reward"`
	NextState int     `json:"next_state"`
}

func (t *Trace) MarshalJSON() ([]byte, error) {
	steps := make([]traceStep, t.Len())
	for i := range steps {
		steps[i] = traceStep{
			State:     t.states[i],
			Action:    t.actions[i],
			Reward:    t.rewards[i],
			NextState: t.nextStates[i],
		}
	}
	return json.Marshal(steps)
}

func (t *Trace) UnmarshalJSON(bs []byte) error {
	steps := make([]traceStep, 0)
	if err := json.Unmarshal(bs, &steps); err != nil {
		return err
	}
	*t = *NewTrace()
	for _, s := range steps {
		t.Append(s.State, s.Action, s.Reward, s.NextState)
	}
	return nil
}
