package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cartridge/prioritized-replay/internal/checkpoint"
	"github.com/cartridge/prioritized-replay/internal/storage"
)

// EnvPrefix prefixes every environment variable override, e.g.
// REPLAY_CAPACITY=50000
const EnvPrefix = "REPLAY"

// Config holds all replay server configuration
type Config struct {
	// Service endpoints
	GRPCAddr string `mapstructure:"grpc_addr"`
	HTTPAddr string `mapstructure:"http_addr"`

	// Buffer geometry
	Capacity   int   `mapstructure:"capacity"`
	StateShape []int `mapstructure:"state_shape"`
	ActionSize int   `mapstructure:"action_size"`

	// Prioritization
	Alpha   float64 `mapstructure:"alpha"`
	Epsilon float64 `mapstructure:"epsilon"`
	Uniform bool    `mapstructure:"uniform"`

	// Importance-sampling schedule
	BetaInit  float64 `mapstructure:"beta_init"`
	BetaFinal float64 `mapstructure:"beta_final"`
	BetaSteps int64   `mapstructure:"beta_steps"`

	// N-step returns
	NStep int     `mapstructure:"nstep"`
	Gamma float64 `mapstructure:"gamma"`

	// Storage
	ClipReward bool   `mapstructure:"clip_reward"`
	Compress   bool   `mapstructure:"compress"`
	Seed       uint64 `mapstructure:"seed"`

	// Checkpointing
	CheckpointBackend  string        `mapstructure:"checkpoint_backend"`
	CheckpointPath     string        `mapstructure:"checkpoint_path"`
	CheckpointID       string        `mapstructure:"checkpoint_id"`
	CheckpointInterval time.Duration `mapstructure:"checkpoint_interval"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	opts := storage.DefaultOptions()
	return &Config{
		GRPCAddr:           ":8080",
		HTTPAddr:           ":8081",
		Capacity:           100000,
		StateShape:         []int{4, 84, 84},
		ActionSize:         1,
		Alpha:              opts.Alpha,
		Epsilon:            opts.Epsilon,
		BetaInit:           0.4,
		BetaFinal:          1.0,
		BetaSteps:          1000000,
		NStep:              3,
		Gamma:              opts.Gamma,
		ClipReward:         opts.ClipReward,
		Compress:           opts.Compress,
		CheckpointBackend:  checkpoint.KindNone,
		CheckpointPath:     "replay.db",
		CheckpointInterval: 10 * time.Minute,
		ShutdownTimeout:    30 * time.Second,
		LogLevel:           "info",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.GRPCAddr == "" {
		return fmt.Errorf("grpc_addr is required")
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive")
	}
	if len(c.StateShape) == 0 {
		return fmt.Errorf("state_shape is required")
	}
	for _, dim := range c.StateShape {
		if dim <= 0 {
			return fmt.Errorf("state_shape dimensions must be positive, got %v", c.StateShape)
		}
	}
	if c.ActionSize <= 0 {
		return fmt.Errorf("action_size must be positive")
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha must be in (0, 1]")
	}
	if c.Epsilon < 0 {
		return fmt.Errorf("epsilon must be non-negative")
	}
	if c.BetaInit < 0 || c.BetaInit > 1 || c.BetaFinal < 0 || c.BetaFinal > 1 {
		return fmt.Errorf("beta_init and beta_final must be in [0, 1]")
	}
	if c.NStep < 1 {
		return fmt.Errorf("nstep must be at least 1")
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("gamma must be in [0, 1]")
	}
	switch c.CheckpointBackend {
	case checkpoint.KindNone, checkpoint.KindMemory:
	case checkpoint.KindSQLite:
		if c.CheckpointPath == "" {
			return fmt.Errorf("checkpoint_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("checkpoint_backend must be one of none, memory, sqlite")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// BufferOptions returns the storage options this config describes
func (c *Config) BufferOptions() storage.Options {
	opts := storage.DefaultOptions()
	opts.Capacity = c.Capacity
	opts.StateShape = c.StateShape
	opts.ActionSize = c.ActionSize
	opts.Alpha = c.Alpha
	opts.Epsilon = c.Epsilon
	opts.ClipReward = c.ClipReward
	opts.Compress = c.Compress
	opts.Uniform = c.Uniform
	opts.NStep = c.NStep
	opts.Gamma = c.Gamma
	opts.Seed = c.Seed
	return opts
}

// BetaSchedule returns the importance-sampling exponent schedule
func (c *Config) BetaSchedule() storage.LinearSchedule {
	return storage.LinearSchedule{Start: c.BetaInit, End: c.BetaFinal, Steps: c.BetaSteps}
}

// RegisterFlags defines one flag per config key, defaulting to Default().
// Flag names use dashes where keys use underscores.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()

	// Service endpoints
	fs.String("grpc-addr", d.GRPCAddr, "gRPC listen address")
	fs.String("http-addr", d.HTTPAddr, "Admin HTTP listen address (empty disables it)")

	// Buffer settings
	fs.Int("capacity", d.Capacity, "Maximum number of transitions to store")
	fs.IntSlice("state-shape", d.StateShape, "Shape of every state tensor")
	fs.Int("action-size", d.ActionSize, "Length of every action vector")
	fs.Float64("alpha", d.Alpha, "Priority exponent")
	fs.Float64("epsilon", d.Epsilon, "Priority offset added to |TD-error|")
	fs.Bool("uniform", d.Uniform, "Sample uniformly instead of by priority")
	fs.Float64("beta-init", d.BetaInit, "Initial importance-sampling exponent")
	fs.Float64("beta-final", d.BetaFinal, "Final importance-sampling exponent")
	fs.Int64("beta-steps", d.BetaSteps, "Steps over which beta is annealed")
	fs.Int("nstep", d.NStep, "N-step return length")
	fs.Float64("gamma", d.Gamma, "Discount factor for n-step returns")
	fs.Bool("clip-reward", d.ClipReward, "Clip rewards to [-1, 1]")
	fs.Bool("compress", d.Compress, "Store records zstd-compressed")
	fs.Uint64("seed", d.Seed, "Sampling random seed")

	// Checkpointing
	fs.String("checkpoint-backend", d.CheckpointBackend, "Checkpoint store (none, memory, sqlite)")
	fs.String("checkpoint-path", d.CheckpointPath, "SQLite checkpoint database path")
	fs.String("checkpoint-id", d.CheckpointID, "Checkpoint ID to restore and save (random when empty)")
	fs.Duration("checkpoint-interval", d.CheckpointInterval, "Interval between periodic checkpoints (0 disables them)")

	fs.Duration("shutdown-timeout", d.ShutdownTimeout, "Graceful shutdown timeout")

	// Logging
	fs.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")
}

// BindFlags binds every flag in fs into v under its underscore key and
// enables REPLAY_* environment overrides
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		err = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
	if err != nil {
		return err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return nil
}

// Load reads the configuration from v and validates it
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
