package benchmarks

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zeu5/taxi-rl/gym"
	"github.com/zeu5/taxi-rl/rl"
	"github.com/zeu5/taxi-rl/types"
	"k8s.io/klog/v2"
)

func ServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the registered environments over the gym http api",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, done := interruptContext()
			defer done()

			registry := gym.NewRegistry()
			klog.InfoS("Registered environments", "env_ids", strings.Join(registry.EnvIDs(), ","))
			err := gym.NewServer(addr, registry).Run(ctx)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:5000", "Address to listen on")
	return cmd
}

func RemoteCommand() *cobra.Command {
	var addr string
	var envID string
	var window int

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Train against an environment served over the gym http api",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRunConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("window") {
				cfg.Window = window
			}

			ctx, done := interruptContext()
			defer done()

			client := gym.NewClient(addr)
			var factory types.EnvFactory = func(ctx context.Context, run int, seed uint64) (rl.Environment, func(), error) {
				env, err := client.Make(ctx, envID, seed)
				if err != nil {
					return nil, nil, err
				}
				klog.InfoS("Created remote environment", "env_id", envID, "instance_id", env.ID, "run", run+1)
				return env, func() {
					if err := env.Close(context.Background()); err != nil {
						klog.ErrorS(err, "Closing remote environment", "instance_id", env.ID)
					}
				}, nil
			}
			_, err = runComparison(ctx, cfg, factory, os.Stdout)
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:5000", "Address of the gym server")
	cmd.Flags().StringVar(&envID, "env-id", "Taxi-v3", "Environment to create on the server")
	cmd.Flags().IntVar(&window, "window", 100, "Episodes averaged per point of the learning curves")
	return cmd
}

func SmokeCommand() *cobra.Command {
	var addr string
	var envIDs []string
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Exercise every endpoint of a gym server once per environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, done := interruptContext()
			defer done()
			return gym.SmokeTest(ctx, gym.NewClient(addr), envIDs)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:5000", "Address of the gym server")
	cmd.Flags().StringSliceVar(&envIDs, "env-id", []string{"Taxi-v3"}, "Environments to check")
	return cmd
}
