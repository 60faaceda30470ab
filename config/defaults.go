package config

import "time"

// DefaultConfig returns the configuration a single-agent process starts
// from before any YAML file or environment override is applied.
func DefaultConfig() *Config {
	return &Config{
		Agent:    DefaultAgentConfig(),
		Shared:   DefaultSharedConfig(),
		Bus:      DefaultBusConfig(),
		TaskPool: DefaultTaskPoolConfig(),
		Loop:     DefaultLoopConfig(),
		Log:      DefaultLogConfig(),
		Metrics:  DefaultMetricsConfig(),
	}
}

// DefaultAgentConfig returns a placeholder identity; Agent.ID is always
// expected to be overridden (Validate rejects an empty one).
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Role:         "custom",
		Provider:     "openai",
		Model:        "gpt-4",
		SystemPrompt: "You are a helpful collaborative agent.",
	}
}

// DefaultSharedConfig matches peerserver's own default port scan window.
func DefaultSharedConfig() SharedConfig {
	return SharedConfig{
		Dir:            "./shared",
		ProjectID:      "default",
		PortRangeStart: 3000,
		PortRangeEnd:   4000,
	}
}

// DefaultBusConfig leaves the poll intervals at zero so bus.New falls
// back to its own package defaults; HTTPTimeout matches the bus's
// internal messageSendTimeout.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		HTTPTimeout: 5 * time.Second,
	}
}

// DefaultTaskPoolConfig matches taskpool.DefaultStaleAfter.
func DefaultTaskPoolConfig() TaskPoolConfig {
	return TaskPoolConfig{
		StaleAfter: 5 * time.Minute,
	}
}

// DefaultLoopConfig matches loop.DefaultConfig's thresholds (spec
// section 4.7).
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxIterations:           100,
		ToolRepeatThreshold:     2,
		CommandWindow:           5,
		CommandRepeatThreshold:  3,
		TextRepeatThreshold:     4,
		ReadOnlyAutoContinueMax: 2,
		WatchdogEvery:           10,
		StallTimeout:            5 * time.Minute,
	}
}

// DefaultLogConfig matches zap's production defaults in spirit: info
// level, JSON encoding.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:    "info",
		Encoding: "json",
	}
}

// DefaultMetricsConfig leaves ListenAddr empty (metrics endpoint
// disabled) until explicitly configured.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "agentsociety",
	}
}
