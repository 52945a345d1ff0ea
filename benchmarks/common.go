package benchmarks

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"

	"github.com/zeu5/taxi-rl/rl"
	"github.com/zeu5/taxi-rl/taxi"
	"github.com/zeu5/taxi-rl/types"
	"k8s.io/klog/v2"
)

// interruptContext is cancelled on the first interrupt or when the returned func is called
func interruptContext() (context.Context, func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	doneCh := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-sigCh:
			klog.Info("Interrupted, stopping")
		case <-doneCh:
		}
		cancel()
	}()
	return ctx, func() {
		close(doneCh)
		signal.Stop(sigCh)
	}
}

// runComparison trains every configured experiment on environments built by factory,
// plots the episode length, penalties and reward curves and prints the greedy evaluation
func runComparison(ctx context.Context, cfg *RunConfig, factory types.EnvFactory, out io.Writer) ([]*types.Result, error) {
	stopProfiling, err := startProfiling(cfg.Save)
	if err != nil {
		return nil, err
	}
	defer stopProfiling()

	c, err := types.NewComparison(&types.ComparisonConfig{
		Runs:         cfg.Runs,
		Episodes:     cfg.Episodes,
		Seed:         cfg.Seed,
		RecordPath:   cfg.Save,
		RecordPolicy: true,
		ReportEvery:  cfg.ReportEvery,
		EvalEpisodes: cfg.EvalEpisodes,
		EvalHorizon:  cfg.EvalHorizon,
	})
	if err != nil {
		return nil, err
	}

	penalty := rl.WithPenalty(rl.PenaltyReward(taxi.RewardPenalty))
	for _, ec := range cfg.Experiments {
		hp := ec.hyperparameters(cfg.Hyperparameters)
		e := types.NewExperiment(ec.Name, factory, hp, penalty)
		if f := ec.selector(hp); f != nil {
			e.WithSelector(f)
		}
		c.AddExperiment(e)
	}

	plots := path.Join(cfg.Save, "plots")
	charts := path.Join(cfg.Save, "charts")
	c.AddAnalysis("length", types.EpisodeLength(),
		types.PlotComparator(plots, "length", "Steps per episode", cfg.Window),
		types.EChartsComparator(charts, "length", "Steps per episode", cfg.Window),
		types.SummaryComparator(out, "steps", cfg.Window),
	)
	c.AddAnalysis("penalties", types.Penalties(),
		types.PlotComparator(plots, "penalties", "Penalties per episode", cfg.Window),
		types.EChartsComparator(charts, "penalties", "Penalties per episode", cfg.Window),
		types.SummaryComparator(out, "penalties", cfg.Window),
	)
	c.AddAnalysis("reward", types.Reward(),
		types.PlotComparator(plots, "reward", "Reward per episode", cfg.Window),
		types.EChartsComparator(charts, "reward", "Reward per episode", cfg.Window),
	)

	if cfg.Redis != "" {
		recorder := types.NewRedisRecorder(cfg.Redis, "taxi-rl")
		defer recorder.Close()
		if err := recorder.Ping(ctx); err != nil {
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis, err)
		}
		c.AddAnalysis("redis", recorder, types.NoopComparator())
		defer func() {
			if err := recorder.Err(); err != nil {
				klog.ErrorS(err, "Recording to redis failed")
			}
		}()
	}

	klog.InfoS("Starting comparison", "experiments", len(cfg.Experiments), "runs", cfg.Runs,
		"episodes", cfg.Episodes, "hyperparameters", cfg.Hyperparameters.String())
	results, err := c.Run(ctx)
	if err != nil {
		return results, err
	}
	for _, r := range results {
		if r.Evaluation == nil {
			continue
		}
		fmt.Fprintf(out, "Run %d, %s: results after %d greedy episodes\n", r.Run+1, r.Name, r.Evaluation.Episodes)
		fmt.Fprintf(out, "  delivered: %d\n", r.Evaluation.Done)
		fmt.Fprintf(out, "  average timesteps per episode: %.2f\n", r.Evaluation.MeanSteps)
		fmt.Fprintf(out, "  average penalties per episode: %.2f\n", r.Evaluation.MeanPenalties)
	}
	return results, nil
}
