// Package config loads the YAML description of a search run.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Strategies accepted in run.strategy.
const (
	StrategyAStar       = "astar"
	StrategyBnB         = "bnb"
	StrategyMCTS        = "mcts"
	StrategyPareto      = "pareto"
	StrategyRandom      = "random"
	StrategyDepthFirst  = "dfs"
	StrategyRandomOrder = "random_order"
	StrategyAndOr       = "andor"
	StrategyRoundRobin  = "roundrobin"
)

// Problem kinds accepted in problem.kind.
const (
	ProblemQueens = "queens"
	ProblemGraph  = "graph"
)

var strategies = map[string]bool{
	StrategyAStar: true, StrategyBnB: true, StrategyMCTS: true, StrategyPareto: true,
	StrategyRandom: true, StrategyDepthFirst: true, StrategyRandomOrder: true,
	StrategyAndOr: true, StrategyRoundRobin: true,
}

type RunConfig struct {
	Version int `yaml:"version"`
	Run     struct {
		ID              string        `yaml:"id"`
		Strategy        string        `yaml:"strategy"`
		Members         []string      `yaml:"members"`
		Parallelism     int           `yaml:"parallelism"`
		Seed            uint64        `yaml:"seed"`
		Timeout         time.Duration `yaml:"timeout"`
		NodeTimeout     time.Duration `yaml:"node_timeout"`
		Duplicates      string        `yaml:"duplicates"`
		MaxSolutions    int           `yaml:"max_solutions"`
		EagerSolutions  bool          `yaml:"eager_solutions"`
		VerifyGenerator bool          `yaml:"verify_generator"`
	} `yaml:"run"`
	Search struct {
		Samples       int     `yaml:"samples"`
		MaxSamples    int     `yaml:"max_samples"`
		Exploration   float64 `yaml:"exploration"`
		MaxIterations int     `yaml:"max_iterations"`
		Threshold     float64 `yaml:"threshold"`
		MaxResamples  int     `yaml:"max_resamples"`
		ParetoMode    string  `yaml:"pareto_mode"`
		Alpha         float64 `yaml:"alpha"`
		Strict        bool    `yaml:"strict"`
		K             int     `yaml:"k"`
		Aggregate     string  `yaml:"aggregate"`
		MaxNodes      int     `yaml:"max_nodes"`
	} `yaml:"search"`
	Problem struct {
		Kind  string `yaml:"kind"`
		Size  int    `yaml:"size"`
		Graph string `yaml:"graph"`
	} `yaml:"problem"`
	Logging struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"logging"`
	Postgres struct {
		Enabled     bool   `yaml:"enabled"`
		Host        string `yaml:"host"`
		Port        int    `yaml:"port"`
		User        string `yaml:"user"`
		Database    string `yaml:"database"`
		SSLMode     string `yaml:"sslmode"`
		PasswordEnv string `yaml:"password_env"`
	} `yaml:"postgres"`
	MQTT struct {
		Enabled  bool   `yaml:"enabled"`
		URL      string `yaml:"url"`
		Prefix   string `yaml:"prefix"`
		ClientID string `yaml:"client_id"`
	} `yaml:"mqtt"`
	Monitor struct {
		Enabled      bool   `yaml:"enabled"`
		Address      string `yaml:"address"`
		EventBuffer  int    `yaml:"event_buffer"`
		AlertWebhook string `yaml:"alert_webhook"`
		TLSCert      string `yaml:"tls_cert"`
		TLSKey       string `yaml:"tls_key"`
	} `yaml:"monitor"`
}

// Strategy returns the configured strategy, defaulting to A*.
func (c *RunConfig) Strategy() string {
	if c.Run.Strategy == "" {
		return StrategyAStar
	}
	return c.Run.Strategy
}

// Members returns the strategies interleaved by the round-robin strategy.
func (c *RunConfig) Members() []string {
	if len(c.Run.Members) == 0 {
		return []string{StrategyAStar, StrategyRandom}
	}
	return c.Run.Members
}

// Parallelism returns the configured parallelism, defaulting to 1.
func (c *RunConfig) Parallelism() int {
	if c.Run.Parallelism <= 0 {
		return 1
	}
	return c.Run.Parallelism
}

// MaxSolutions returns how many solutions the run collects. Zero means all.
func (c *RunConfig) MaxSolutions() int {
	if c.Run.MaxSolutions < 0 {
		return 0
	}
	return c.Run.MaxSolutions
}

// Samples returns the random-completion sample count, defaulting to 4.
func (c *RunConfig) Samples() int {
	if c.Search.Samples <= 0 {
		return 4
	}
	return c.Search.Samples
}

// K returns the AND-OR top-k limit, defaulting to 1.
func (c *RunConfig) K() int {
	if c.Search.K <= 0 {
		return 1
	}
	return c.Search.K
}

// ProblemKind returns the problem kind, defaulting to N-Queens.
func (c *RunConfig) ProblemKind() string {
	if c.Problem.Kind == "" {
		return ProblemQueens
	}
	return c.Problem.Kind
}

// QueensSize returns the board size, defaulting to 8.
func (c *RunConfig) QueensSize() int {
	if c.Problem.Size <= 0 {
		return 8
	}
	return c.Problem.Size
}

// LogLevel returns the log level, defaulting to info.
func (c *RunConfig) LogLevel() string {
	if c.Logging.Level == "" {
		return "info"
	}
	return c.Logging.Level
}

// PasswordEnv returns the variable holding the postgres password.
func (c *RunConfig) PasswordEnv() string {
	if c.Postgres.PasswordEnv == "" {
		return "PGPASSWORD"
	}
	return c.Postgres.PasswordEnv
}

// MonitorAddress returns the monitor listen address, defaulting to :8090.
func (c *RunConfig) MonitorAddress() string {
	if c.Monitor.Address == "" {
		return ":8090"
	}
	return c.Monitor.Address
}

// EventBuffer returns how many events the monitor keeps, defaulting to 256.
func (c *RunConfig) EventBuffer() int {
	if c.Monitor.EventBuffer <= 0 {
		return 256
	}
	return c.Monitor.EventBuffer
}

// Validate checks the settings that have no usable default.
func (c *RunConfig) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported run.yaml version: %d", c.Version)
	}
	if !strategies[c.Strategy()] {
		return fmt.Errorf("unknown strategy: %s", c.Strategy())
	}
	if c.Strategy() == StrategyRoundRobin {
		for _, m := range c.Members() {
			if m == StrategyRoundRobin || m == StrategyAndOr || !strategies[m] {
				return fmt.Errorf("strategy %s cannot be a round-robin member", m)
			}
		}
	}
	switch c.Run.Duplicates {
	case "", "allow", "ignore", "reparent":
	default:
		return fmt.Errorf("unknown duplicate policy: %s", c.Run.Duplicates)
	}
	switch c.Search.ParetoMode {
	case "", "dominance", "cosine":
	default:
		return fmt.Errorf("unknown pareto mode: %s", c.Search.ParetoMode)
	}
	switch c.Search.Aggregate {
	case "", "sum", "max":
	default:
		return fmt.Errorf("unknown aggregate: %s", c.Search.Aggregate)
	}
	switch c.ProblemKind() {
	case ProblemQueens:
	case ProblemGraph:
		if c.Problem.Graph == "" {
			return fmt.Errorf("problem.graph is required for graph problems")
		}
	default:
		return fmt.Errorf("unknown problem kind: %s", c.ProblemKind())
	}
	if c.Strategy() == StrategyAndOr && c.ProblemKind() != ProblemGraph {
		return fmt.Errorf("strategy andor needs a graph problem")
	}
	if c.Run.Timeout < 0 || c.Run.NodeTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if (c.Monitor.TLSCert == "") != (c.Monitor.TLSKey == "") {
		return fmt.Errorf("monitor.tls_cert and monitor.tls_key must be set together")
	}
	return nil
}

// ParseRunConfig decodes and validates a run.yaml document.
func ParseRunConfig(b []byte) (*RunConfig, error) {
	var cfg RunConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadRunConfig reads and validates a run.yaml file.
func LoadRunConfig(path string) (*RunConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := ParseRunConfig(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
