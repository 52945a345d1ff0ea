package rl

import (
	"fmt"
	"math"
)

// Hyperparameters of a training run, fixed for the lifetime of a Trainer
type Hyperparameters struct {
	// step size used to blend the old estimate with the target, in (0, 1]
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate"`
	// weight of the future value, in [0, 1]
	Discount float64 `json:"discount" yaml:"discount"`
	// probability of taking a random action, in [0, 1]
	Epsilon float64 `json:"epsilon" yaml:"epsilon"`
}

// DefaultHyperparameters used for Taxi-v3
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		LearningRate: 0.1,
		Discount:     0.6,
		Epsilon:      0.1,
	}
}

func (h Hyperparameters) Validate() error {
	if math.IsNaN(h.LearningRate) || h.LearningRate <= 0 || h.LearningRate > 1 {
		return fmt.Errorf("%w: learning rate %v not in (0, 1]", ErrInvalidHyperparameter, h.LearningRate)
	}
	if math.IsNaN(h.Discount) || h.Discount < 0 || h.Discount > 1 {
		return fmt.Errorf("%w: discount %v not in [0, 1]", ErrInvalidHyperparameter, h.Discount)
	}
	if math.IsNaN(h.Epsilon) || h.Epsilon < 0 || h.Epsilon > 1 {
		return fmt.Errorf("%w: epsilon %v not in [0, 1]", ErrInvalidHyperparameter, h.Epsilon)
	}
	return nil
}

func (h Hyperparameters) String() string {
	return fmt.Sprintf("alpha=%g gamma=%g epsilon=%g", h.LearningRate, h.Discount, h.Epsilon)
}
