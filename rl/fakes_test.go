package rl

import (
	"context"
	"errors"
	"time"

	"golang.org/x/exp/rand"
)

// twoStateEnv: action 0 from state 0 ends the episode with +1,
// every other transition gives -1
type twoStateEnv struct {
	state   int
	rand    *rand.Rand
	samples int
}

func newTwoStateEnv(seed uint64) *twoStateEnv {
	return &twoStateEnv{rand: NewRand(seed)}
}

func (e *twoStateEnv) Reset(context.Context) (int, error) {
	e.state = 0
	return 0, nil
}

func (e *twoStateEnv) Step(_ context.Context, action int) (StepResult, error) {
	if e.state == 0 && action == 0 {
		e.state = 1
		return StepResult{State: 1, Reward: 1, Done: true}, nil
	}
	if e.state == 0 {
		e.state = 1
	} else {
		e.state = 0
	}
	return StepResult{State: e.state, Reward: -1}, nil
}

func (e *twoStateEnv) SampleAction(context.Context) (int, error) {
	e.samples += 1
	return e.rand.Intn(2), nil
}

func (e *twoStateEnv) StateCount() int  { return 2 }
func (e *twoStateEnv) ActionCount() int { return 2 }

// scriptedEnv replays fixed results and records the calls
type scriptedEnv struct {
	states  int
	actions int
	results []StepResult
	next    int

	resets  int
	steps   []int
	samples int
	sample  int

	resetErr  error
	stepErr   error
	sampleErr error
	delay     time.Duration
	initial   int
}

func (e *scriptedEnv) Reset(ctx context.Context) (int, error) {
	e.resets += 1
	if e.resetErr != nil {
		return 0, e.resetErr
	}
	return e.initial, nil
}

func (e *scriptedEnv) Step(ctx context.Context, action int) (StepResult, error) {
	e.steps = append(e.steps, action)
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return StepResult{}, ctx.Err()
		}
	}
	if e.stepErr != nil {
		return StepResult{}, e.stepErr
	}
	if len(e.results) == 0 {
		return StepResult{}, errors.New("no scripted results")
	}
	res := e.results[e.next%len(e.results)]
	e.next += 1
	return res, nil
}

func (e *scriptedEnv) SampleAction(context.Context) (int, error) {
	e.samples += 1
	if e.sampleErr != nil {
		return 0, e.sampleErr
	}
	return e.sample, nil
}

func (e *scriptedEnv) StateCount() int  { return e.states }
func (e *scriptedEnv) ActionCount() int { return e.actions }
