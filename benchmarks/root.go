package benchmarks

import (
	"flag"

	"github.com/spf13/cobra"
	"github.com/zeu5/taxi-rl/rl"
	"k8s.io/klog/v2"
)

var (
	episodes    int
	saveFile    string
	runs        int
	configFile  string
	seed        uint64
	alpha       float64
	gamma       float64
	epsilon     float64
	reportEvery int
	redisAddr   string
	cpuprofile  string
	memprofile  string
)

func GetRootCommand() *cobra.Command {
	defaults := rl.DefaultHyperparameters()
	rootCommand := &cobra.Command{
		Use:           "taxi-rl",
		Short:         "Tabular Q-learning experiments on Taxi-v3",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCommand.PersistentFlags().IntVarP(&episodes, "episodes", "e", 100000, "Number of training episodes")
	rootCommand.PersistentFlags().StringVarP(&saveFile, "save", "s", "results", "Save the result data in the specified folder")
	rootCommand.PersistentFlags().IntVar(&runs, "runs", 1, "Number of experiment runs")
	rootCommand.PersistentFlags().StringVar(&configFile, "config", "", "YAML run configuration, explicit flags take precedence")
	rootCommand.PersistentFlags().Uint64Var(&seed, "seed", 0, "Seed of the first run, 0 for unseeded")
	rootCommand.PersistentFlags().Float64Var(&alpha, "alpha", defaults.LearningRate, "Learning rate")
	rootCommand.PersistentFlags().Float64Var(&gamma, "gamma", defaults.Discount, "Discount factor")
	rootCommand.PersistentFlags().Float64Var(&epsilon, "epsilon", defaults.Epsilon, "Exploration probability")
	rootCommand.PersistentFlags().IntVar(&reportEvery, "report-every", rl.DefaultProgressEvery, "Print progress every n episodes, 0 disables")
	rootCommand.PersistentFlags().StringVar(&redisAddr, "redis", "", "Record every episode to the redis server at this address")
	rootCommand.PersistentFlags().StringVar(&cpuprofile, "cpuprofile", "", "Write a cpu profile to this file in the save folder")
	rootCommand.PersistentFlags().StringVar(&memprofile, "memprofile", "", "Write a heap profile to this file in the save folder")

	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	rootCommand.PersistentFlags().AddGoFlagSet(klogFlags)

	// adding the subcommands here
	rootCommand.AddCommand(TaxiCommand())
	rootCommand.AddCommand(ServeCommand())
	rootCommand.AddCommand(RemoteCommand())
	rootCommand.AddCommand(SmokeCommand())
	rootCommand.AddCommand(RedisRecordsCommand())
	return rootCommand
}
