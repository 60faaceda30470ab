package loop

import "time"

// Config tunes the agentic loop's auto-continue behavior and safety
// controls (spec section 4.7). Zero-value fields are filled in by
// DefaultConfig.
type Config struct {
	// MaxIterations hard-caps the number of model/tool round-trips in
	// a single turn.
	MaxIterations int

	// ToolRepeatThreshold stops the loop once this many consecutive
	// turns emit the identical tool-call signature.
	ToolRepeatThreshold int

	// CommandWindow is how many recent run_command invocations are
	// tracked for the command-repetition guard.
	CommandWindow int
	// CommandRepeatThreshold stops the loop once a single normalized
	// command appears this many times inside CommandWindow.
	CommandRepeatThreshold int
	// CommandNormalizeLen truncates commands before comparison.
	CommandNormalizeLen int

	// TextRepeatThreshold stops the loop once this many consecutive
	// turns produce an identical normalized text prefix.
	TextRepeatThreshold int
	// TextNormalizeLen is the prefix length compared across turns.
	TextNormalizeLen int

	// StreamChunkRepeatThreshold and StreamChunkMinLen detect a model
	// stuck emitting the same streaming chunk.
	StreamChunkRepeatThreshold int
	StreamChunkMinLen          int
	// StreamSuffixRepeatThreshold and StreamSuffixLen detect a model
	// stuck re-emitting the same trailing substring of accumulated text.
	StreamSuffixRepeatThreshold int
	StreamSuffixLen             int

	// ReadOnlyAutoContinueMax bounds how many times the loop will
	// auto-continue after a turn that used only read-only tools.
	ReadOnlyAutoContinueMax int

	// WatchdogEvery emits a progress summary every N iterations.
	WatchdogEvery int
	// StallTimeout is how long without a meaningful action before the
	// watchdog surfaces a stalled warning.
	StallTimeout time.Duration

	// StopPollInterval is how often the stop signal is polled while a
	// stream is in flight.
	StopPollInterval time.Duration
}

// normalize fills any zero-valued field with DefaultConfig's value, so
// a caller building a partially-specified Config (e.g. just overriding
// MaxIterations) doesn't trip a division-by-zero or disable a guard
// by accident.
func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.ToolRepeatThreshold <= 0 {
		c.ToolRepeatThreshold = d.ToolRepeatThreshold
	}
	if c.CommandWindow <= 0 {
		c.CommandWindow = d.CommandWindow
	}
	if c.CommandRepeatThreshold <= 0 {
		c.CommandRepeatThreshold = d.CommandRepeatThreshold
	}
	if c.CommandNormalizeLen <= 0 {
		c.CommandNormalizeLen = d.CommandNormalizeLen
	}
	if c.TextRepeatThreshold <= 0 {
		c.TextRepeatThreshold = d.TextRepeatThreshold
	}
	if c.TextNormalizeLen <= 0 {
		c.TextNormalizeLen = d.TextNormalizeLen
	}
	if c.StreamChunkRepeatThreshold <= 0 {
		c.StreamChunkRepeatThreshold = d.StreamChunkRepeatThreshold
	}
	if c.StreamChunkMinLen <= 0 {
		c.StreamChunkMinLen = d.StreamChunkMinLen
	}
	if c.StreamSuffixRepeatThreshold <= 0 {
		c.StreamSuffixRepeatThreshold = d.StreamSuffixRepeatThreshold
	}
	if c.StreamSuffixLen <= 0 {
		c.StreamSuffixLen = d.StreamSuffixLen
	}
	if c.ReadOnlyAutoContinueMax <= 0 {
		c.ReadOnlyAutoContinueMax = d.ReadOnlyAutoContinueMax
	}
	if c.WatchdogEvery <= 0 {
		c.WatchdogEvery = d.WatchdogEvery
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = d.StallTimeout
	}
	if c.StopPollInterval <= 0 {
		c.StopPollInterval = d.StopPollInterval
	}
	return c
}

// DefaultConfig returns the thresholds named in spec section 4.7.
func DefaultConfig() Config {
	return Config{
		MaxIterations:               100,
		ToolRepeatThreshold:         2,
		CommandWindow:               5,
		CommandRepeatThreshold:      3,
		CommandNormalizeLen:         100,
		TextRepeatThreshold:         4,
		TextNormalizeLen:            100,
		StreamChunkRepeatThreshold:  3,
		StreamChunkMinLen:           5,
		StreamSuffixRepeatThreshold: 3,
		StreamSuffixLen:             30,
		ReadOnlyAutoContinueMax:     2,
		WatchdogEvery:               10,
		StallTimeout:                5 * time.Minute,
		StopPollInterval:            100 * time.Millisecond,
	}
}
