package types

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"

	"github.com/gosuri/uilive"
	"github.com/zeu5/taxi-rl/util"
	"k8s.io/klog/v2"
)

// ComparisonConfig contains the configuration for the comparison
type ComparisonConfig struct {
	Runs     int // number of runs
	Episodes int // training episodes per run
	// Seed of the first run, subsequent runs use Seed+run. 0 leaves runs unseeded
	Seed uint64

	RecordPath   string // path to store the results
	RecordTraces bool
	RecordPolicy bool

	// ReportEvery prints progress every n episodes, 0 disables
	ReportEvery int
	// Output of the progress lines, nil redraws them in place on stdout
	Output io.Writer

	// greedy evaluation after each run, 0 disables
	EvalEpisodes int
	EvalHorizon  int
}

// Comparison contains the different experiments to compare
// The episodes of each experiment are analyzed
// The analyzed datasets are then compared
type Comparison struct {
	Experiments []*Experiment
	analyzers   map[string]Analyzer
	comparators map[string][]Comparator
	cConfig     *ComparisonConfig
}

// NewComparison creates a comparison instance and the record folders
func NewComparison(config *ComparisonConfig) (*Comparison, error) {
	if config.Runs < 1 {
		config.Runs = 1
	}
	foldersToCreate := []string{""}
	if config.RecordTraces {
		foldersToCreate = append(foldersToCreate, "traces")
	}
	if config.RecordPolicy {
		foldersToCreate = append(foldersToCreate, "policies")
	}
	for _, s := range foldersToCreate {
		if err := os.MkdirAll(path.Join(config.RecordPath, s), 0777); err != nil {
			return nil, err
		}
	}

	return &Comparison{
		Experiments: make([]*Experiment, 0),
		analyzers:   make(map[string]Analyzer),
		comparators: make(map[string][]Comparator),
		cConfig:     config,
	}, nil
}

// AddAnalysis adds an analyzer and the comparators of its datasets
func (c *Comparison) AddAnalysis(name string, analyzer Analyzer, comparators ...Comparator) {
	c.analyzers[name] = analyzer
	c.comparators[name] = append(c.comparators[name], comparators...)
}

// Add experiments to compare
func (c *Comparison) AddExperiment(e *Experiment) {
	c.Experiments = append(c.Experiments, e)
}

func (c *Comparison) analyzerNames() []string {
	names := make([]string, 0, len(c.analyzers))
	for name := range c.analyzers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// record the configuration of the comparison
func (c *Comparison) recordConfig() error {
	cfg := c.cConfig
	out := make(map[string]interface{})
	out["runs"] = cfg.Runs
	out["episodes"] = cfg.Episodes
	out["seed"] = cfg.Seed
	out["record_traces"] = cfg.RecordTraces
	out["record_policy"] = cfg.RecordPolicy
	out["eval_episodes"] = cfg.EvalEpisodes
	out["eval_horizon"] = cfg.EvalHorizon

	experiments := make([]map[string]interface{}, 0)
	for _, e := range c.Experiments {
		experiments = append(experiments, map[string]interface{}{
			"name":            e.Name,
			"hyperparameters": e.hp,
		})
	}
	out["experiments"] = experiments
	out["analyzers"] = c.analyzerNames()

	return util.WriteJSON(path.Join(cfg.RecordPath, "comparison_config.json"), out)
}

// Run the comparison, returning the result of every run of every experiment
func (c *Comparison) Run(ctx context.Context) ([]*Result, error) {
	if err := c.recordConfig(); err != nil {
		return nil, err
	}

	longestNameLen := 0
	for _, e := range c.Experiments {
		if len(e.Name) > longestNameLen {
			longestNameLen = len(e.Name)
		}
	}

	output := c.cConfig.Output
	if output == nil {
		writer := uilive.New()
		writer.Start()
		defer writer.Stop()
		output = writer
	}

	results := make([]*Result, 0)
	for run := 0; run < c.cConfig.Runs; run++ {
		klog.InfoS("Starting run", "run", run+1, "runs", c.cConfig.Runs)
		datasets := make(map[string][]DataSet)
		for name := range c.analyzers {
			datasets[name] = make([]DataSet, len(c.Experiments))
		}

		names := make([]string, len(c.Experiments))
		for i, e := range c.Experiments {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			result, err := e.Run(ctx, c.prepareRunConfig(run, output, longestNameLen))
			if err != nil {
				return results, err
			}
			results = append(results, result)
			if result.Evaluation != nil {
				klog.InfoS("Evaluated greedy policy", "experiment", e.Name, "run", run+1,
					"done", result.Evaluation.Done, "episodes", result.Evaluation.Episodes,
					"mean_steps", result.Evaluation.MeanSteps, "mean_penalties", result.Evaluation.MeanPenalties)
			}
			for name, a := range c.analyzers {
				datasets[name][i] = a.DataSet()
				a.Reset()
			}
			names[i] = e.Name
		}
		for _, name := range c.analyzerNames() {
			for _, comp := range c.comparators[name] {
				if err := comp(run, names, datasets[name]); err != nil {
					return results, fmt.Errorf("comparing %s: %w", name, err)
				}
			}
		}
	}

	if err := util.WriteJSON(path.Join(c.cConfig.RecordPath, "results.json"), results); err != nil {
		return results, err
	}
	return results, nil
}

// prepare the run configuration for the experiment
func (c *Comparison) prepareRunConfig(run int, output io.Writer, longestExpNameLen int) *experimentRunConfig {
	rCfg := &experimentRunConfig{
		CurrentRun:     run,
		Episodes:       c.cConfig.Episodes,
		Analyzers:      make([]Analyzer, 0),
		ReportEvery:    c.cConfig.ReportEvery,
		Output:         output,
		RecordTraces:   c.cConfig.RecordTraces,
		RecordPolicy:   c.cConfig.RecordPolicy,
		ReportSavePath: c.cConfig.RecordPath,
		EvalEpisodes:   c.cConfig.EvalEpisodes,
		EvalHorizon:    c.cConfig.EvalHorizon,

		LongestExpNameLen: longestExpNameLen,
	}
	if c.cConfig.Seed != 0 {
		rCfg.Seed = c.cConfig.Seed + uint64(run)
	}
	for _, name := range c.analyzerNames() {
		rCfg.Analyzers = append(rCfg.Analyzers, c.analyzers[name])
	}
	return rCfg
}
