package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_ContainsAllSections(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, AgentConfig{}, cfg.Agent)
	assert.NotEqual(t, SharedConfig{}, cfg.Shared)
	assert.NotEqual(t, BusConfig{}, cfg.Bus)
	assert.NotEqual(t, TaskPoolConfig{}, cfg.TaskPool)
	assert.NotEqual(t, LoopConfig{}, cfg.Loop)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, MetricsConfig{}, cfg.Metrics)
}

func TestDefaultSharedConfig(t *testing.T) {
	cfg := DefaultSharedConfig()
	assert.Equal(t, "./shared", cfg.Dir)
	assert.Equal(t, "default", cfg.ProjectID)
	assert.Equal(t, 3000, cfg.PortRangeStart)
	assert.Equal(t, 4000, cfg.PortRangeEnd)
}

func TestDefaultLoopConfig(t *testing.T) {
	cfg := DefaultLoopConfig()
	assert.Equal(t, 100, cfg.MaxIterations)
	assert.Equal(t, 2, cfg.ToolRepeatThreshold)
	assert.Equal(t, 5, cfg.CommandWindow)
	assert.Equal(t, 3, cfg.CommandRepeatThreshold)
	assert.Equal(t, 4, cfg.TextRepeatThreshold)
	assert.Equal(t, 2, cfg.ReadOnlyAutoContinueMax)
	assert.Equal(t, 10, cfg.WatchdogEvery)
	assert.Equal(t, 5*time.Minute, cfg.StallTimeout)
}

func TestDefaultTaskPoolConfig(t *testing.T) {
	assert.Equal(t, 5*time.Minute, DefaultTaskPoolConfig().StaleAfter)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Encoding)
}

func TestLoopConfigToLoopConfigPreservesThresholds(t *testing.T) {
	lc := DefaultLoopConfig()
	out := lc.ToLoopConfig()
	assert.Equal(t, lc.MaxIterations, out.MaxIterations)
	assert.Equal(t, lc.ToolRepeatThreshold, out.ToolRepeatThreshold)
	assert.Equal(t, lc.StallTimeout, out.StallTimeout)
}
