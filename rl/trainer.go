package rl

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/exp/rand"
	"k8s.io/klog/v2"
)

// PenaltyFunc decides whether the reward of a transition counts as a penalty.
// Used only for the episode statistics.
type PenaltyFunc func(reward float64) bool

// PenaltyReward counts transitions with exactly the given reward as penalties
func PenaltyReward(penalty float64) PenaltyFunc {
	return func(reward float64) bool {
		return reward == penalty
	}
}

// ProgressFunc receives the statistics of every n-th training episode
type ProgressFunc func(*EpisodeStats)

// EpisodeStats collected during one episode
type EpisodeStats struct {
	Episode   int     `json:"episode"`
	Steps     int     `json:"steps"`
	Penalties int     `json:"penalties"`
	Reward    float64 `json:"reward"`
	Done      bool    `json:"done"`
	Truncated bool    `json:"truncated"`
	// Horizon reached before the environment ended the episode
	Horizon bool   `json:"horizon"`
	Trace   *Trace `json:"trace,omitempty"`
}

const DefaultProgressEvery = 100

func logProgress(stats *EpisodeStats) {
	klog.InfoS("Training progress", "episode", stats.Episode+1, "steps", stats.Steps, "penalties", stats.Penalties)
}

type Option func(*Trainer)

// WithRand sets the random source of the default epsilon-greedy selector
func WithRand(r *rand.Rand) Option {
	return func(t *Trainer) {
		t.rand = r
	}
}

// WithSeed seeds the random source of the default epsilon-greedy selector
func WithSeed(seed uint64) Option {
	return WithRand(NewRand(seed))
}

// WithSelector replaces epsilon-greedy action selection
func WithSelector(s Selector) Option {
	return func(t *Trainer) {
		t.selector = s
	}
}

func WithPenalty(p PenaltyFunc) Option {
	return func(t *Trainer) {
		t.penalty = p
	}
}

// WithProgress reports every n-th episode, n <= 0 or nil disables reporting
func WithProgress(every int, f ProgressFunc) Option {
	return func(t *Trainer) {
		t.progressEvery = every
		t.progress = f
	}
}

// WithStepTimeout bounds every environment call, expiry aborts the run
func WithStepTimeout(d time.Duration) Option {
	return func(t *Trainer) {
		t.stepTimeout = d
	}
}

// WithHorizon ends episodes after n steps, n <= 0 means no limit
func WithHorizon(n int) Option {
	return func(t *Trainer) {
		t.horizon = n
	}
}

// WithTrace records the transitions of every episode in the returned statistics
func WithTrace(record bool) Option {
	return func(t *Trainer) {
		t.recordTrace = record
	}
}

// Trainer learns a QTable for the environment using Q-learning
type Trainer struct {
	env      Environment
	hp       Hyperparameters
	table    *QTable
	selector Selector
	rand     *rand.Rand
	penalty  PenaltyFunc

	progressEvery int
	progress      ProgressFunc
	stepTimeout   time.Duration
	horizon       int
	recordTrace   bool

	// training episodes completed so far
	episodes int
}

// NewTrainer validates the configuration and allocates a zero table for the environment
func NewTrainer(env Environment, hp Hyperparameters, opts ...Option) (*Trainer, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil environment", ErrInvalidEnvironment)
	}
	if err := hp.Validate(); err != nil {
		return nil, err
	}
	states, actions := env.StateCount(), env.ActionCount()
	if states <= 0 || actions <= 0 {
		return nil, fmt.Errorf("%w: %d states, %d actions", ErrInvalidEnvironment, states, actions)
	}

	t := &Trainer{
		env:           env,
		hp:            hp,
		table:         NewQTable(states, actions),
		progressEvery: DefaultProgressEvery,
		progress:      logProgress,
	}
	for _, o := range opts {
		o(t)
	}
	if t.selector == nil {
		t.selector = NewEpsilonGreedy(hp.Epsilon, t.rand)
	}
	return t, nil
}

func (t *Trainer) Hyperparameters() Hyperparameters {
	return t.hp
}

// Table returns a copy of the current estimates
func (t *Trainer) Table() *QTable {
	return t.table.Copy()
}

// Policy returns the greedy action of every state
func (t *Trainer) Policy() []int {
	return t.table.Greedy()
}

// Episodes returns the number of training episodes completed
func (t *Trainer) Episodes() int {
	return t.episodes
}

// Train runs the episodes sequentially, updating the table after every transition.
// The statistics of the completed episodes are returned along with the error that aborted the run.
func (t *Trainer) Train(ctx context.Context, episodes int) ([]*EpisodeStats, error) {
	if episodes < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidEpisodes, episodes)
	}
	result := make([]*EpisodeStats, 0)
	for i := 0; i < episodes; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		stats, err := t.runEpisode(ctx, t.episodes, true, t.horizon)
		if err != nil {
			return result, err
		}
		t.episodes += 1
		result = append(result, stats)
		if u, ok := t.selector.(IterationUpdater); ok {
			u.UpdateIteration(stats)
		}

		if t.progress != nil && t.progressEvery > 0 && t.episodes%t.progressEvery == 0 {
			t.progress(stats)
		}
	}
	return result, nil
}

// Evaluate runs greedy episodes without updating the table
func (t *Trainer) Evaluate(ctx context.Context, episodes, horizon int) ([]*EpisodeStats, error) {
	if episodes < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidEpisodes, episodes)
	}
	result := make([]*EpisodeStats, 0)
	for i := 0; i < episodes; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		stats, err := t.runEpisode(ctx, i, false, horizon)
		if err != nil {
			return result, err
		}
		result = append(result, stats)
	}
	return result, nil
}

// SelectAction chooses the next action for the state with the configured selector
func (t *Trainer) SelectAction(ctx context.Context, state int) (int, error) {
	return t.selectAction(ctx, t.episodes, 0, state)
}

// Update applies one Q-learning step to (state, action) and returns the new estimate
func (t *Trainer) Update(state, action int, reward float64, nextState int) (float64, error) {
	if err := t.table.checkState(state); err != nil {
		return 0, err
	}
	if err := t.table.checkAction(action); err != nil {
		return 0, err
	}
	if err := t.table.checkState(nextState); err != nil {
		return 0, err
	}
	return t.update(state, action, reward, nextState), nil
}

func (t *Trainer) update(state, action int, reward float64, nextState int) float64 {
	old := t.table.Get(state, action)
	_, nextMax := t.table.Max(nextState)
	// off-policy target, the max over the next state irrespective of the next action taken
	val := old + t.hp.LearningRate*(reward+t.hp.Discount*nextMax-old)
	t.table.Set(state, action, val)
	return val
}

func (t *Trainer) runEpisode(ctx context.Context, episode int, learn bool, horizon int) (*EpisodeStats, error) {
	stats := &EpisodeStats{Episode: episode}
	if t.recordTrace {
		stats.Trace = NewTrace()
	}

	state, err := callEnv(ctx, t.stepTimeout, t.env.Reset)
	if err != nil {
		return stats, &EnvError{Op: "reset", Episode: episode, Err: err}
	}
	if err := t.table.checkState(state); err != nil {
		return stats, &EnvError{Op: "reset", Episode: episode, Err: err}
	}

	for step := 0; ; step++ {
		if horizon > 0 && step >= horizon {
			stats.Horizon = true
			break
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		var action int
		if learn {
			action, err = t.selectAction(ctx, episode, step, state)
			if err != nil {
				return stats, err
			}
		} else {
			action, _ = t.table.Max(state)
		}

		res, err := callEnv(ctx, t.stepTimeout, func(ctx context.Context) (StepResult, error) {
			return t.env.Step(ctx, action)
		})
		if err != nil {
			return stats, &EnvError{Op: "step", Episode: episode, Step: step, Err: err}
		}
		if err := t.table.checkState(res.State); err != nil {
			return stats, &EnvError{Op: "step", Episode: episode, Step: step, Err: err}
		}

		if learn {
			t.update(state, action, res.Reward, res.State)
		}

		stats.Steps += 1
		stats.Reward += res.Reward
		if t.penalty != nil && t.penalty(res.Reward) {
			stats.Penalties += 1
		}
		if stats.Trace != nil {
			stats.Trace.Append(state, action, res.Reward, res.State)
		}
		state = res.State

		if res.Done {
			stats.Done = true
			break
		}
		if res.Truncated {
			stats.Truncated = true
			break
		}
	}
	return stats, nil
}

func (t *Trainer) selectAction(ctx context.Context, episode, step, state int) (int, error) {
	explore := func() (int, error) {
		action, err := callEnv(ctx, t.stepTimeout, t.env.SampleAction)
		if err != nil {
			return 0, &EnvError{Op: "sample", Episode: episode, Step: step, Err: err}
		}
		if err := t.table.checkAction(action); err != nil {
			return 0, &EnvError{Op: "sample", Episode: episode, Step: step, Err: err}
		}
		return action, nil
	}
	action, err := t.selector.Select(t.table, state, explore)
	if err != nil {
		return 0, err
	}
	if err := t.table.checkAction(action); err != nil {
		return 0, err
	}
	return action, nil
}

// callEnv runs the environment call with a deadline when timeout is positive.
// The call keeps running in the background if it does not honour the context.
func callEnv[T any](ctx context.Context, timeout time.Duration, f func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return f(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := f(ctx)
		done <- result{val, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
