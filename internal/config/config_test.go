package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("replay", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))

	v := viper.New()
	require.NoError(t, BindFlags(v, fs))
	return Load(v)
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Flags(t *testing.T) {
	cfg, err := load(t,
		"--capacity=512",
		"--state-shape=2,3",
		"--action-size=4",
		"--nstep=1",
		"--uniform",
		"--seed=99",
		"--checkpoint-backend=sqlite",
		"--checkpoint-path=/tmp/replay.db",
		"--checkpoint-interval=1m",
		"--log-level=debug",
	)
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.Capacity)
	assert.Equal(t, []int{2, 3}, cfg.StateShape)
	assert.Equal(t, 4, cfg.ActionSize)
	assert.Equal(t, 1, cfg.NStep)
	assert.True(t, cfg.Uniform)
	assert.Equal(t, uint64(99), cfg.Seed)
	assert.Equal(t, "sqlite", cfg.CheckpointBackend)
	assert.Equal(t, time.Minute, cfg.CheckpointInterval)
	assert.Equal(t, "debug", cfg.LogLevel)

	opts := cfg.BufferOptions()
	assert.Equal(t, 512, opts.Capacity)
	assert.Equal(t, []int{2, 3}, opts.StateShape)
	assert.True(t, opts.Uniform)
	assert.Equal(t, uint64(99), opts.Seed)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("REPLAY_CAPACITY", "2048")
	t.Setenv("REPLAY_STATE_SHAPE", "8,8")
	t.Setenv("REPLAY_COMPRESS", "false")

	cfg, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, 2048, cfg.Capacity)
	assert.Equal(t, []int{8, 8}, cfg.StateShape)
	assert.False(t, cfg.Compress)

	// Flags win over the environment
	cfg, err = load(t, "--capacity=16")
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Capacity)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing grpc addr", mutate: func(c *Config) { c.GRPCAddr = "" }},
		{name: "zero capacity", mutate: func(c *Config) { c.Capacity = 0 }},
		{name: "empty state shape", mutate: func(c *Config) { c.StateShape = nil }},
		{name: "negative dimension", mutate: func(c *Config) { c.StateShape = []int{4, -1} }},
		{name: "zero action size", mutate: func(c *Config) { c.ActionSize = 0 }},
		{name: "alpha", mutate: func(c *Config) { c.Alpha = 0 }},
		{name: "beta", mutate: func(c *Config) { c.BetaInit = 1.2 }},
		{name: "nstep", mutate: func(c *Config) { c.NStep = 0 }},
		{name: "gamma", mutate: func(c *Config) { c.Gamma = -0.1 }},
		{name: "unknown backend", mutate: func(c *Config) { c.CheckpointBackend = "s3" }},
		{name: "sqlite without path", mutate: func(c *Config) {
			c.CheckpointBackend = "sqlite"
			c.CheckpointPath = ""
		}},
		{name: "log level", mutate: func(c *Config) { c.LogLevel = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBetaSchedule(t *testing.T) {
	cfg := Default()
	cfg.BetaInit, cfg.BetaFinal, cfg.BetaSteps = 0.4, 1, 10

	schedule := cfg.BetaSchedule()
	assert.Equal(t, 0.4, schedule.Value(0))
	assert.Equal(t, 1.0, schedule.Value(10))
}
