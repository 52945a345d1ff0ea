package types

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/zeu5/taxi-rl/rl"
	"github.com/zeu5/taxi-rl/util"
)

// EnvFactory creates the environment of one run. The returned close func may be nil.
type EnvFactory func(ctx context.Context, run int, seed uint64) (rl.Environment, func(), error)

// Static wraps an environment creation func that needs no cleanup
func Static(f func(seed uint64) rl.Environment) EnvFactory {
	return func(_ context.Context, _ int, seed uint64) (rl.Environment, func(), error) {
		return f(seed), nil, nil
	}
}

type experimentRunConfig struct {
	CurrentRun  int
	Seed        uint64
	Episodes    int
	Analyzers   []Analyzer
	ReportEvery int
	Output      io.Writer

	RecordTraces   bool
	RecordPolicy   bool
	ReportSavePath string
	EvalEpisodes   int
	EvalHorizon    int

	LongestExpNameLen int
}

// Experiment encapsulates the environment and hyperparameters of one trainer configuration
type Experiment struct {
	Name     string
	env      EnvFactory
	hp       rl.Hyperparameters
	options  []rl.Option
	selector SelectorFactory
}

// SelectorFactory creates the action selector of one run, stateful selectors must not be shared between runs
type SelectorFactory func(seed uint64) rl.Selector

// NewExperiment creates a new experiment instance
func NewExperiment(name string, env EnvFactory, hp rl.Hyperparameters, options ...rl.Option) *Experiment {
	return &Experiment{
		Name:    name,
		env:     env,
		hp:      hp,
		options: options,
	}
}

// WithSelector replaces epsilon-greedy with a fresh selector for every run
func (e *Experiment) WithSelector(f SelectorFactory) *Experiment {
	e.selector = f
	return e
}

// Result of one run of an experiment
type Result struct {
	Name       string             `json:"name"`
	Run        int                `json:"run"`
	Episodes   int                `json:"episodes"`
	Evaluation *EvaluationSummary `json:"evaluation,omitempty"`
	Policy     []int              `json:"-"`
	Table      *rl.QTable         `json:"-"`
	Stats      []*rl.EpisodeStats `json:"-"`
}

// EvaluationSummary of the greedy episodes run after training
type EvaluationSummary struct {
	Episodes      int     `json:"episodes"`
	Done          int     `json:"done"`
	MeanSteps     float64 `json:"mean_steps"`
	MeanReward    float64 `json:"mean_reward"`
	MeanPenalties float64 `json:"mean_penalties"`
}

func summarize(stats []*rl.EpisodeStats) *EvaluationSummary {
	s := &EvaluationSummary{Episodes: len(stats)}
	if len(stats) == 0 {
		return s
	}
	for _, e := range stats {
		if e.Done {
			s.Done += 1
		}
		s.MeanSteps += float64(e.Steps)
		s.MeanReward += e.Reward
		s.MeanPenalties += float64(e.Penalties)
	}
	n := float64(len(stats))
	s.MeanSteps /= n
	s.MeanReward /= n
	s.MeanPenalties /= n
	return s
}

func (e *Experiment) recordTrace(rConfig *experimentRunConfig, stats *rl.EpisodeStats) error {
	tracesFile := path.Join(rConfig.ReportSavePath, "traces", e.Name+"_"+strconv.Itoa(rConfig.CurrentRun)+".jsonl")
	bs, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return util.AppendToFile(tracesFile, string(bs))
}

func (e *Experiment) recordPolicy(rConfig *experimentRunConfig, table *rl.QTable) error {
	out := make(map[string]interface{})
	rows := make([][]float64, table.States())
	for s := range rows {
		rows[s] = table.Row(s)
	}
	out["states"] = table.States()
	out["actions"] = table.Actions()
	out["table"] = rows
	out["policy"] = table.Greedy()
	policyFile := path.Join(rConfig.ReportSavePath, "policies", e.Name+"_"+strconv.Itoa(rConfig.CurrentRun)+".json")
	return util.WriteJSON(policyFile, out)
}

// deriveSeed separates the exploration stream from the environment stream of a run.
// Both are PCG sources and would draw identical numbers from the same seed.
func deriveSeed(seed uint64) uint64 {
	if seed == 0 {
		return 0
	}
	return seed ^ 0x9e3779b97f4a7c15
}

// Run trains a fresh trainer for the configured number of episodes, one episode at a time
// so that analyzers and trace recording see every episode as it completes
func (e *Experiment) Run(ctx context.Context, rConfig *experimentRunConfig) (*Result, error) {
	env, closeEnv, err := e.env(ctx, rConfig.CurrentRun, rConfig.Seed)
	if err != nil {
		return nil, fmt.Errorf("creating environment of %s: %w", e.Name, err)
	}
	if closeEnv != nil {
		defer closeEnv()
	}

	output := rConfig.Output
	if output == nil {
		output = io.Discard
	}
	progress := func(s *rl.EpisodeStats) {
		fmt.Fprintf(output, "Exp:%*s, Run:%d, Eps:%d/%d, Steps:%d, Penalties:%d, Reward:%.1f\n",
			rConfig.LongestExpNameLen, e.Name, rConfig.CurrentRun+1, s.Episode+1, rConfig.Episodes, s.Steps, s.Penalties, s.Reward)
	}

	selectorSeed := deriveSeed(rConfig.Seed)
	options := make([]rl.Option, 0, len(e.options)+4)
	if rConfig.Seed != 0 {
		options = append(options, rl.WithSeed(selectorSeed))
	}
	options = append(options, rl.WithProgress(rConfig.ReportEvery, progress), rl.WithTrace(rConfig.RecordTraces))
	options = append(options, e.options...)
	if e.selector != nil {
		options = append(options, rl.WithSelector(e.selector(selectorSeed)))
	}

	trainer, err := rl.NewTrainer(env, e.hp, options...)
	if err != nil {
		return nil, fmt.Errorf("creating trainer of %s: %w", e.Name, err)
	}

	result := &Result{Name: e.Name, Run: rConfig.CurrentRun}
	for i := 0; i < rConfig.Episodes; i++ {
		stats, err := trainer.Train(ctx, 1)
		if err != nil {
			return nil, fmt.Errorf("experiment %s: %w", e.Name, err)
		}
		s := stats[0]
		for _, a := range rConfig.Analyzers {
			a.Analyze(rConfig.CurrentRun, e.Name, s)
		}
		if rConfig.RecordTraces {
			if err := e.recordTrace(rConfig, s); err != nil {
				return nil, err
			}
			s.Trace = nil
		}
		result.Stats = append(result.Stats, s)
	}
	result.Episodes = trainer.Episodes()
	result.Table = trainer.Table()
	result.Policy = trainer.Policy()

	if rConfig.RecordPolicy {
		if err := e.recordPolicy(rConfig, result.Table); err != nil {
			return nil, err
		}
	}

	if rConfig.EvalEpisodes > 0 {
		eval, err := trainer.Evaluate(ctx, rConfig.EvalEpisodes, rConfig.EvalHorizon)
		if err != nil {
			return nil, fmt.Errorf("evaluating %s: %w", e.Name, err)
		}
		result.Evaluation = summarize(eval)
	}
	return result, nil
}
