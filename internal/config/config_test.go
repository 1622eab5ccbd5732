package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutConfigFile(t *testing.T) {
	// Point at an empty directory so no stray config.yaml is picked up.
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Loop().MaxIterations)
	assert.Equal(t, 60*time.Second, cfg.Loop().CumulativeTimeout)
	assert.Equal(t, 10*time.Second, cfg.Loop().PerActionTimeout)

	assert.InDelta(t, 1.0, cfg.Cost().IterationBase, 1e-9)
	assert.InDelta(t, 1.5, cfg.Cost().GrowthFactor, 1e-9)
	assert.InDelta(t, 0.2, cfg.Cost().BatchScale, 1e-9)
	assert.InDelta(t, 1.5, cfg.Cost().DefaultComplexity, 1e-9)

	assert.Equal(t, int64(25), cfg.Queue().MaxDepth)
	assert.Equal(t, 180*time.Second, cfg.Queue().SubmitWait)
	assert.Equal(t, 30*time.Second, cfg.Queue().HeartbeatStaleAfter)

	assert.Equal(t, 20000, cfg.Sandbox().StdoutCapBytes)
	assert.Equal(t, 300, cfg.Sandbox().StderrTailChars)
	assert.Equal(t, "256m", cfg.Sandbox().DefaultMemory)

	assert.Equal(t, 50, cfg.Feedback().MinResultChars)
	assert.Equal(t, 2000, cfg.Feedback().TruncateChars)

	assert.InDelta(t, 0.75, cfg.Dispatch().CriticConfidenceThreshold, 1e-9)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
loop:
  max_iterations: 5
queue:
  max_depth: 7
logger:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Loop().MaxIterations)
	assert.Equal(t, int64(7), cfg.Queue().MaxDepth)
	assert.Equal(t, "debug", cfg.Logger().Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.Loop().PerActionTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PRAXIS_LOOP_MAX_ITERATIONS", "4")
	t.Setenv("PRAXIS_REDIS_ADDR", "redis.internal:6380")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Loop().MaxIterations)
	assert.Equal(t, "redis.internal:6380", cfg.Redis().Addr)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	t.Chdir(t.TempDir())

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero iterations", func(c *Config) { c.LoopSection.MaxIterations = 0 }},
		{"negative cumulative timeout", func(c *Config) { c.LoopSection.CumulativeTimeout = -time.Second }},
		{"zero per-action timeout", func(c *Config) { c.LoopSection.PerActionTimeout = 0 }},
		{"non-positive growth", func(c *Config) { c.CostSection.GrowthFactor = 0 }},
		{"zero queue depth", func(c *Config) { c.QueueSection.MaxDepth = 0 }},
		{"threshold above one", func(c *Config) { c.DispatchSection.CriticConfidenceThreshold = 1.1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := *base
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
