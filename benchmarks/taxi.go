package benchmarks

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/zeu5/taxi-rl/rl"
	"github.com/zeu5/taxi-rl/taxi"
	"github.com/zeu5/taxi-rl/types"
)

// replay runs one greedy episode and renders every frame
func replay(ctx context.Context, w io.Writer, env *taxi.Environment, policy []int, limit int, color bool) error {
	state, err := env.Reset(ctx)
	if err != nil {
		return err
	}
	if err := taxi.Render(w, taxi.Decode(state), color); err != nil {
		return err
	}
	for step := 0; step < limit; step++ {
		action := policy[state]
		res, err := env.Step(ctx, action)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Step %d: %s, reward %.0f\n", step+1, taxi.Action(action), res.Reward)
		if err := taxi.Render(w, taxi.Decode(res.State), color); err != nil {
			return err
		}
		state = res.State
		if res.Over() {
			break
		}
	}
	return nil
}

func TaxiCommand() *cobra.Command {
	var timeLimit int
	var evalEpisodes int
	var window int
	var render bool
	var color bool

	cmd := &cobra.Command{
		Use:   "taxi",
		Short: "Train on a local Taxi-v3, evaluate the greedy policy and plot the learning curves",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRunConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("time-limit") {
				cfg.TimeLimit = timeLimit
			}
			if cmd.Flags().Changed("eval") {
				cfg.EvalEpisodes = evalEpisodes
			}
			if cmd.Flags().Changed("window") {
				cfg.Window = window
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, done := interruptContext()
			defer done()

			limit := cfg.TimeLimit
			factory := types.Static(func(seed uint64) rl.Environment {
				return taxi.NewEnvironmentWithTimeLimit(seed, limit)
			})
			results, err := runComparison(ctx, cfg, factory, os.Stdout)
			if err != nil {
				return err
			}

			if render && len(results) > 0 {
				last := results[len(results)-1]
				fmt.Printf("Greedy policy of %s, passenger at R going to G\n", last.Name)
				taxi.RenderPolicy(os.Stdout, last.Policy, 0, 1, color)
				fmt.Printf("Greedy policy of %s, passenger in the taxi going to G\n", last.Name)
				taxi.RenderPolicy(os.Stdout, last.Policy, taxi.InTaxi, 1, color)
				return replay(ctx, os.Stdout, taxi.NewEnvironment(cfg.Seed), last.Policy, cfg.EvalHorizon, color)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&timeLimit, "time-limit", 200, "Truncate episodes after this many steps, 0 for unlimited")
	cmd.Flags().IntVar(&evalEpisodes, "eval", 100, "Greedy evaluation episodes after training")
	cmd.Flags().IntVar(&window, "window", 100, "Episodes averaged per point of the learning curves")
	cmd.Flags().BoolVar(&render, "render", false, "Render the learned policy and replay one greedy episode")
	cmd.Flags().BoolVar(&color, "color", true, "Colored rendering")
	return cmd
}
