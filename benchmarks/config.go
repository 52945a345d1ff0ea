package benchmarks

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zeu5/taxi-rl/policies"
	"github.com/zeu5/taxi-rl/rl"
	"gopkg.in/yaml.v3"
)

// ExperimentConfig describes one trainer configuration of the comparison
type ExperimentConfig struct {
	Name string `yaml:"name"`
	// epsilon-greedy (default), decaying or softmax
	Selector string `yaml:"selector"`
	// overrides the run hyperparameters when set
	Hyperparameters *rl.Hyperparameters `yaml:"hyperparameters"`

	Temperature float64 `yaml:"temperature"`
	MinEpsilon  float64 `yaml:"min_epsilon"`
	Decay       float64 `yaml:"decay"`
}

// RunConfig is read from the --config file, flags set on the command line take precedence
type RunConfig struct {
	Episodes        int                `yaml:"episodes"`
	Runs            int                `yaml:"runs"`
	Save            string             `yaml:"save"`
	Seed            uint64             `yaml:"seed"`
	Hyperparameters rl.Hyperparameters `yaml:"hyperparameters"`
	ReportEvery     int                `yaml:"report_every"`
	Redis           string             `yaml:"redis"`

	EvalEpisodes int `yaml:"eval_episodes"`
	EvalHorizon  int `yaml:"eval_horizon"`
	TimeLimit    int `yaml:"time_limit"`
	// averaging window of the plots
	Window int `yaml:"window"`

	Experiments []ExperimentConfig `yaml:"experiments"`
}

func defaultRunConfig() *RunConfig {
	return &RunConfig{
		Episodes: episodes,
		Runs:     runs,
		Save:     saveFile,
		Seed:     seed,
		Hyperparameters: rl.Hyperparameters{
			LearningRate: alpha,
			Discount:     gamma,
			Epsilon:      epsilon,
		},
		ReportEvery:  reportEvery,
		Redis:        redisAddr,
		EvalEpisodes: 100,
		EvalHorizon:  200,
		TimeLimit:    200,
		Window:       100,
	}
}

func parseRunConfig(bs []byte, cfg *RunConfig) error {
	if err := yaml.Unmarshal(bs, cfg); err != nil {
		return fmt.Errorf("parsing run configuration: %w", err)
	}
	return nil
}

// loadRunConfig merges the flag defaults, the config file and the flags changed on the command line
func loadRunConfig(cmd *cobra.Command) (*RunConfig, error) {
	cfg := defaultRunConfig()
	if configFile != "" {
		bs, err := os.ReadFile(configFile)
		if err != nil {
			return nil, err
		}
		if err := parseRunConfig(bs, cfg); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("episodes") {
		cfg.Episodes = episodes
	}
	if flags.Changed("runs") {
		cfg.Runs = runs
	}
	if flags.Changed("save") {
		cfg.Save = saveFile
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("alpha") {
		cfg.Hyperparameters.LearningRate = alpha
	}
	if flags.Changed("gamma") {
		cfg.Hyperparameters.Discount = gamma
	}
	if flags.Changed("epsilon") {
		cfg.Hyperparameters.Epsilon = epsilon
	}
	if flags.Changed("report-every") {
		cfg.ReportEvery = reportEvery
	}
	if flags.Changed("redis") {
		cfg.Redis = redisAddr
	}

	if len(cfg.Experiments) == 0 {
		cfg.Experiments = []ExperimentConfig{{Name: "q-learning"}}
	}
	return cfg, cfg.Validate()
}

func (c *RunConfig) Validate() error {
	if c.Episodes < 0 {
		return fmt.Errorf("%w: %d", rl.ErrInvalidEpisodes, c.Episodes)
	}
	if err := c.Hyperparameters.Validate(); err != nil {
		return err
	}
	// greedy episodes on an environment without a time limit may never end
	if c.EvalEpisodes > 0 && c.EvalHorizon <= 0 {
		return fmt.Errorf("eval_horizon must be positive when evaluating, got %d", c.EvalHorizon)
	}
	names := make(map[string]bool)
	for _, e := range c.Experiments {
		if e.Name == "" {
			return fmt.Errorf("experiment without a name")
		}
		if names[e.Name] {
			return fmt.Errorf("duplicate experiment name %s", e.Name)
		}
		names[e.Name] = true
		if e.Hyperparameters != nil {
			if err := e.Hyperparameters.Validate(); err != nil {
				return fmt.Errorf("experiment %s: %w", e.Name, err)
			}
		}
		switch e.Selector {
		case "", "epsilon-greedy", "decaying", "softmax":
		default:
			return fmt.Errorf("experiment %s: unknown selector %q", e.Name, e.Selector)
		}
	}
	return nil
}

func (e ExperimentConfig) hyperparameters(run rl.Hyperparameters) rl.Hyperparameters {
	if e.Hyperparameters != nil {
		return *e.Hyperparameters
	}
	return run
}

// selector returns nil for the trainer's own epsilon-greedy
func (e ExperimentConfig) selector(hp rl.Hyperparameters) func(uint64) rl.Selector {
	switch e.Selector {
	case "decaying":
		decay := e.Decay
		if decay <= 0 || decay > 1 {
			decay = 0.999
		}
		return func(seed uint64) rl.Selector {
			return policies.NewDecayingEpsilonGreedy(hp.Epsilon, e.MinEpsilon, decay, seed)
		}
	case "softmax":
		return func(seed uint64) rl.Selector {
			return policies.NewSoftMaxPolicy(e.Temperature, seed)
		}
	default:
		return nil
	}
}
