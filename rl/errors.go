package rl

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidHyperparameter = errors.New("invalid hyperparameter")
	ErrInvalidEnvironment    = errors.New("invalid environment")
	ErrInvalidEpisodes       = errors.New("invalid number of episodes")

	ErrStateOutOfRange  = errors.New("state out of range")
	ErrActionOutOfRange = errors.New("action out of range")
)

// EnvError is returned when an environment call fails. The training run is aborted.
type EnvError struct {
	// Op is one of "reset", "step", "sample"
	Op      string
	Episode int
	Step    int
	Err     error
}

func (e *EnvError) Error() string {
	return fmt.Sprintf("environment %s failed (episode %d, step %d): %s", e.Op, e.Episode, e.Step, e.Err)
}

func (e *EnvError) Unwrap() error {
	return e.Err
}
