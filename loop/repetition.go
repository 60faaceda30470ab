package loop

import (
	"strings"

	"github.com/chrysochos/society-agent-sub001/types"
)

// normalizePrefix trims whitespace and truncates s to n runes, for
// comparing text across turns independent of leading or trailing
// whitespace.
func normalizePrefix(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

// toolCallSignature builds a comparable signature for one turn's tool
// calls: name + serialized arguments, in emission order.
func toolCallSignature(calls []types.ToolCall) string {
	parts := make([]string, len(calls))
	for i, c := range calls {
		parts[i] = c.Name + ":" + string(c.Arguments)
	}
	return strings.Join(parts, "|")
}

// toolRepetitionGuard trips when the current turn's tool-call signature
// exactly matches the previous turn's, ToolRepeatThreshold times running.
type toolRepetitionGuard struct {
	threshold int
	lastSig   string
	streak    int
}

func newToolRepetitionGuard(threshold int) *toolRepetitionGuard {
	return &toolRepetitionGuard{threshold: threshold}
}

// observe records this turn's tool calls and reports whether the guard
// has tripped.
func (g *toolRepetitionGuard) observe(calls []types.ToolCall) bool {
	if len(calls) == 0 {
		g.lastSig = ""
		g.streak = 0
		return false
	}
	sig := toolCallSignature(calls)
	if sig == g.lastSig {
		g.streak++
	} else {
		g.lastSig = sig
		g.streak = 1
	}
	return g.streak >= g.threshold
}

// commandRepetitionGuard tracks the last N run_command invocations and
// trips if any single normalized command recurs CommandRepeatThreshold
// times within that window.
type commandRepetitionGuard struct {
	window       int
	threshold    int
	normalizeLen int
	recent       []string
}

func newCommandRepetitionGuard(window, threshold, normalizeLen int) *commandRepetitionGuard {
	return &commandRepetitionGuard{window: window, threshold: threshold, normalizeLen: normalizeLen}
}

// observe records one run_command invocation and reports whether the
// guard has tripped.
func (g *commandRepetitionGuard) observe(command string) bool {
	norm := normalizePrefix(command, g.normalizeLen)
	g.recent = append(g.recent, norm)
	if len(g.recent) > g.window {
		g.recent = g.recent[len(g.recent)-g.window:]
	}
	counts := make(map[string]int, len(g.recent))
	for _, c := range g.recent {
		counts[c]++
		if counts[c] >= g.threshold {
			return true
		}
	}
	return false
}

// textRepetitionGuard trips once the same normalized text prefix has
// been produced TextRepeatThreshold turns running.
type textRepetitionGuard struct {
	threshold    int
	normalizeLen int
	lastPrefix   string
	streak       int
}

func newTextRepetitionGuard(threshold, normalizeLen int) *textRepetitionGuard {
	return &textRepetitionGuard{threshold: threshold, normalizeLen: normalizeLen}
}

func (g *textRepetitionGuard) observe(text string) bool {
	if strings.TrimSpace(text) == "" {
		g.lastPrefix = ""
		g.streak = 0
		return false
	}
	prefix := normalizePrefix(text, g.normalizeLen)
	if prefix == g.lastPrefix {
		g.streak++
	} else {
		g.lastPrefix = prefix
		g.streak = 1
	}
	return g.streak >= g.threshold
}

// streamGuard detects a model stuck re-emitting identical streaming
// chunks, or identical trailing substrings of the accumulated text.
type streamGuard struct {
	chunkThreshold  int
	chunkMinLen     int
	suffixThreshold int
	suffixLen       int

	lastChunk   string
	chunkStreak int

	lastSuffix   string
	suffixStreak int
}

func newStreamGuard(cfg Config) *streamGuard {
	return &streamGuard{
		chunkThreshold:  cfg.StreamChunkRepeatThreshold,
		chunkMinLen:     cfg.StreamChunkMinLen,
		suffixThreshold: cfg.StreamSuffixRepeatThreshold,
		suffixLen:       cfg.StreamSuffixLen,
	}
}

// observeChunk records one streaming delta and reports whether the
// chunk-repetition guard has tripped.
func (g *streamGuard) observeChunk(chunk string) bool {
	if len(chunk) < g.chunkMinLen {
		g.lastChunk = ""
		g.chunkStreak = 0
		return false
	}
	if chunk == g.lastChunk {
		g.chunkStreak++
	} else {
		g.lastChunk = chunk
		g.chunkStreak = 1
	}
	return g.chunkStreak >= g.chunkThreshold
}

// observeAccumulated records the accumulated streamed text so far and
// reports whether the suffix-repetition guard has tripped.
func (g *streamGuard) observeAccumulated(text string) bool {
	r := []rune(text)
	if len(r) < g.suffixLen {
		return false
	}
	suffix := string(r[len(r)-g.suffixLen:])
	if suffix == g.lastSuffix {
		g.suffixStreak++
	} else {
		g.lastSuffix = suffix
		g.suffixStreak = 1
	}
	return g.suffixStreak >= g.suffixThreshold
}
