/*
Package config loads the layered runtime configuration for a single
agent process (spec section 6): built-in defaults, optionally
overridden by a YAML file, optionally overridden by environment
variables prefixed AGENTSOCIETY_.

# Sections

  - Agent: this process's identity (id, role, capabilities, home folder, model)
  - Shared: the shared directory root and peer-server port range
  - Bus: inbox/log poll cadence, plus an HTTP timeout that is loaded but not applied
  - TaskPool: a stale-claim threshold that is loaded but not applied
  - Loop: the agentic loop's iteration cap and repetition thresholds
  - Log: zap logger level and encoding
  - Metrics: prometheus namespace and listen address

# Usage

	cfg, err := config.NewLoader().
		WithConfigPath("config.yaml").
		WithEnvPrefix("AGENTSOCIETY").
		Load()
*/
package config
