// Package loop drives the agentic request/response cycle described in
// spec section 4.7: stream a model turn, dispatch any tool calls
// through the tool catalog, auto-continue on truncation or read-only
// turns, and enforce the repetition, iteration-cap, and stall safety
// controls.
package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/chrysochos/society-agent-sub001/event"
	"github.com/chrysochos/society-agent-sub001/llm"
	"github.com/chrysochos/society-agent-sub001/tooling"
	"github.com/chrysochos/society-agent-sub001/types"
	"github.com/chrysochos/society-agent-sub001/usage"
)

// StopReason names why Run returned.
type StopReason string

const (
	StopEndOfTurn         StopReason = "end_of_turn"
	StopIterationCap      StopReason = "iteration_cap"
	StopToolRepetition    StopReason = "tool_repetition"
	StopCommandRepetition StopReason = "command_repetition"
	StopTextRepetition    StopReason = "text_repetition"
	StopStreamRepetition  StopReason = "stream_repetition"
	StopExternalSignal    StopReason = "external_stop"
)

// Result is the outcome of one Run call.
type Result struct {
	Reason     StopReason
	Messages   []types.Message
	Iterations int
	// Warning carries the surfaced message for a safety-control stop or
	// the checkpoint message for the iteration cap; empty on a clean
	// end-of-turn stop.
	Warning string
}

// Runner executes the agentic loop for any number of agents and
// catalogs; it holds no per-agent state itself (that lives in the
// message history the caller passes to Run).
type Runner struct {
	provider llm.Provider
	sink     event.Sink
	tracker  *usage.Tracker
	cfg      Config
	stop     *StopSignal
}

// NewRunner builds a Runner. sink and tracker may be nil (events and
// usage accounting become no-ops).
func NewRunner(provider llm.Provider, sink event.Sink, tracker *usage.Tracker, stop *StopSignal, cfg Config) *Runner {
	if sink == nil {
		sink = event.NopSink{}
	}
	if stop == nil {
		stop = NewStopSignal()
	}
	return &Runner{provider: provider, sink: sink, tracker: tracker, cfg: cfg.normalize(), stop: stop}
}

// Run drives the loop for one turn: systemPrompt + history + userMessage
// form the initial request; the loop iterates per spec section 4.7
// until a terminal condition or safety control fires.
func (r *Runner) Run(ctx context.Context, agentID, model string, catalog *tooling.Catalog, systemPrompt string, history []types.Message, userMessage types.Message) (*Result, error) {
	messages := make([]types.Message, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, types.NewSystemMessage(systemPrompt))
	}
	messages = append(messages, history...)
	messages = append(messages, userMessage)

	toolGuard := newToolRepetitionGuard(r.cfg.ToolRepeatThreshold)
	cmdGuard := newCommandRepetitionGuard(r.cfg.CommandWindow, r.cfg.CommandRepeatThreshold, r.cfg.CommandNormalizeLen)
	textGuard := newTextRepetitionGuard(r.cfg.TextRepeatThreshold, r.cfg.TextNormalizeLen)

	readOnlyContinues := 0
	lastMeaningfulAction := time.Now()
	maxIterations := r.cfg.MaxIterations

	for iteration := 1; iteration <= maxIterations; iteration++ {
		if r.stop.ShouldStop(agentID) {
			r.stop.Clear(agentID)
			return &Result{Reason: StopExternalSignal, Messages: messages, Iterations: iteration - 1, Warning: "stopped by external signal"}, nil
		}

		if iteration%r.cfg.WatchdogEvery == 0 {
			r.sink.Publish(event.New(event.KindLoopProgress, agentID, map[string]any{"iteration": iteration}))
			if time.Since(lastMeaningfulAction) > r.cfg.StallTimeout {
				r.sink.Publish(event.New(event.KindLoopStalled, agentID, map[string]any{
					"iteration":       iteration,
					"sinceLastAction": time.Since(lastMeaningfulAction).String(),
				}))
			}
		}

		streamCtx, cancel := context.WithCancel(ctx)
		guard := newStreamGuard(r.cfg)
		streamCh, err := r.provider.Stream(streamCtx, &llm.ChatRequest{Model: model, Messages: messages, Tools: schemasToToolSchemas(catalog)})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("loop: start stream at iteration %d: %w", iteration, err)
		}

		msg, resp, aborted, err := assembleStream(streamCtx, cancel, r.cfg.StopPollInterval, func() bool {
			return r.stop.ShouldStop(agentID)
		}, streamCh, func(accumulated, delta string) bool {
			if guard.observeChunk(delta) {
				return true
			}
			return guard.observeAccumulated(accumulated)
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("loop: stream failed at iteration %d: %w", iteration, err)
		}
		if aborted {
			if r.stop.ShouldStop(agentID) {
				r.stop.Clear(agentID)
				return &Result{Reason: StopExternalSignal, Messages: messages, Iterations: iteration, Warning: "stopped by external signal"}, nil
			}
			return &Result{Reason: StopStreamRepetition, Messages: messages, Iterations: iteration, Warning: "stopped: repeated streaming output detected"}, nil
		}

		r.recordUsage(agentID, model, resp)
		messages = append(messages, msg)

		if len(msg.ToolCalls) == 0 {
			if textGuard.observe(msg.Content) {
				return &Result{Reason: StopTextRepetition, Messages: messages, Iterations: iteration, Warning: "stopped: repeated response text detected"}, nil
			}

			finish := resp.Choices[0].FinishReason
			switch {
			case finish == "length":
				messages = append(messages, types.NewUserMessage("Continue from where you left off."))
				continue
			case readOnlyWasLastTurn(messages[:len(messages)-1]) && readOnlyContinues < r.cfg.ReadOnlyAutoContinueMax:
				readOnlyContinues++
				messages = append(messages, types.NewUserMessage("Please continue and implement the necessary changes."))
				continue
			default:
				return &Result{Reason: StopEndOfTurn, Messages: messages, Iterations: iteration}, nil
			}
		}

		readOnlyContinues = 0
		if toolGuard.observe(msg.ToolCalls) {
			return &Result{Reason: StopToolRepetition, Messages: messages, Iterations: iteration, Warning: "stopped: identical tool call repeated"}, nil
		}

		if hasMeaningfulAction(msg.ToolCalls) {
			lastMeaningfulAction = time.Now()
		}

		tripped, results := r.dispatchToolCalls(ctx, catalog, msg.ToolCalls, cmdGuard)
		messages = append(messages, results...)
		if tripped {
			return &Result{Reason: StopCommandRepetition, Messages: messages, Iterations: iteration, Warning: "stopped: repeated command detected"}, nil
		}
	}

	checkpoint := fmt.Sprintf("Reached the %d-iteration checkpoint; send \"continue\" to keep going.", maxIterations)
	r.sink.Publish(event.New(event.KindLoopCheckpoint, agentID, map[string]any{"iteration": maxIterations}))
	return &Result{Reason: StopIterationCap, Messages: messages, Iterations: maxIterations, Warning: checkpoint}, nil
}

// recordUsage feeds the turn's token usage into the tracker, preferring
// the provider-reported figures and falling back to nothing (estimation
// from a registered tokenizer belongs to the caller composing the
// request, which knows the model's tokenizer; Runner only forwards what
// the provider reports).
func (r *Runner) recordUsage(agentID, model string, resp llm.ChatResponse) {
	if r.tracker == nil {
		return
	}
	if resp.Usage.PromptTokens == 0 && resp.Usage.CompletionTokens == 0 {
		return
	}
	r.tracker.Record(agentID, model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
}

// readOnlyWasLastTurn inspects the most recent assistant message with
// tool calls in messages and reports whether every call it made was
// read-only (spec section 4.7, rule 6).
func readOnlyWasLastTurn(messages []types.Message) bool {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != types.RoleAssistant {
			continue
		}
		if len(messages[i].ToolCalls) == 0 {
			return false
		}
		return allReadOnly(messages[i].ToolCalls)
	}
	return false
}

func schemasToToolSchemas(catalog *tooling.Catalog) []types.ToolSchema {
	if catalog == nil {
		return nil
	}
	schemas := catalog.Schemas()
	out := make([]types.ToolSchema, len(schemas))
	for i, s := range schemas {
		out[i] = types.ToolSchema{Name: s.Name, Description: s.Description, Parameters: s.InputSchema}
	}
	return out
}
