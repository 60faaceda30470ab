package config

import (
	"github.com/chrysochos/society-agent-sub001/loop"
)

// ToLoopConfig converts the YAML/env-loaded LoopConfig into loop.Config.
// Fields LoopConfig doesn't expose (stream-repetition and stop-poll
// tuning) are left at loop's own defaults via normalize.
func (l LoopConfig) ToLoopConfig() loop.Config {
	return loop.Config{
		MaxIterations:           l.MaxIterations,
		ToolRepeatThreshold:     l.ToolRepeatThreshold,
		CommandWindow:           l.CommandWindow,
		CommandRepeatThreshold:  l.CommandRepeatThreshold,
		TextRepeatThreshold:     l.TextRepeatThreshold,
		ReadOnlyAutoContinueMax: l.ReadOnlyAutoContinueMax,
		WatchdogEvery:           l.WatchdogEvery,
		StallTimeout:            l.StallTimeout,
	}
}
