package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrysochos/society-agent-sub001/event"
	"github.com/chrysochos/society-agent-sub001/llm"
	"github.com/chrysochos/society-agent-sub001/tooling"
	"github.com/chrysochos/society-agent-sub001/types"
)

// scriptedProvider replays a fixed queue of stream channels, one per
// call to Stream, mirroring the teacher's ReAct stream test fixture.
type scriptedProvider struct {
	responses []<-chan llm.StreamChunk
}

func chunkChan(chunks ...llm.StreamChunk) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func (p *scriptedProvider) Completion(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, fmt.Errorf("not implemented")
}

func (p *scriptedProvider) Stream(context.Context, *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if len(p.responses) == 0 {
		return chunkChan(), nil
	}
	out := p.responses[0]
	p.responses = p.responses[1:]
	return out, nil
}

func (p *scriptedProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (p *scriptedProvider) Name() string                          { return "scripted" }
func (p *scriptedProvider) SupportsNativeFunctionCalling() bool    { return true }
func (p *scriptedProvider) ListModels(context.Context) ([]llm.Model, error) { return nil, nil }

func textChunk(content, finishReason string) llm.StreamChunk {
	return llm.StreamChunk{
		Delta:        llm.Message{Role: llm.RoleAssistant, Content: content},
		FinishReason: finishReason,
		Usage:        &llm.ChatUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func toolCallChunk(id, name, args string) llm.StreamChunk {
	return llm.StreamChunk{
		Delta: llm.Message{
			Role:      llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{ID: id, Name: name, Arguments: json.RawMessage(args)}},
		},
		FinishReason: "tool_calls",
	}
}

type recordingSink struct {
	events []event.Event
}

func (s *recordingSink) Publish(e event.Event) { s.events = append(s.events, e) }

func newTestCatalogWithEcho(t *testing.T) *tooling.Catalog {
	t.Helper()
	dir := t.TempDir()
	fs := tooling.NewFilesystem(dir)
	sh := tooling.NewShell(dir, nil, nil, "agent-a", nil)
	return tooling.BuildCatalog(fs, nil, sh, nil, nil, nil, nil, nil, "agent-a", nil)
}

func TestRunEndsOnEndOfTurnWithNoToolCalls(t *testing.T) {
	provider := &scriptedProvider{responses: []<-chan llm.StreamChunk{
		chunkChan(textChunk("all done", "stop")),
	}}
	r := NewRunner(provider, nil, nil, nil, DefaultConfig())
	catalog := newTestCatalogWithEcho(t)

	result, err := r.Run(context.Background(), "agent-a", "gpt-4", catalog, "be helpful", nil, types.NewUserMessage("hello"))
	require.NoError(t, err)
	assert.Equal(t, StopEndOfTurn, result.Reason)
	assert.Equal(t, 1, result.Iterations)
}

func TestRunDispatchesToolCallThenEnds(t *testing.T) {
	provider := &scriptedProvider{responses: []<-chan llm.StreamChunk{
		chunkChan(toolCallChunk("call_1", "write_file", `{"path":"out.txt","content":"x"}`)),
		chunkChan(textChunk("file written", "stop")),
	}}
	r := NewRunner(provider, nil, nil, nil, DefaultConfig())
	catalog := newTestCatalogWithEcho(t)

	result, err := r.Run(context.Background(), "agent-a", "gpt-4", catalog, "", nil, types.NewUserMessage("write it"))
	require.NoError(t, err)
	assert.Equal(t, StopEndOfTurn, result.Reason)
	assert.Equal(t, 2, result.Iterations)

	var sawToolResult bool
	for _, m := range result.Messages {
		if m.Role == "tool" && m.ToolCallID == "call_1" {
			sawToolResult = true
		}
	}
	assert.True(t, sawToolResult, "expected a tool-result message for call_1")
}

func TestRunAutoContinuesOnLengthFinishReason(t *testing.T) {
	provider := &scriptedProvider{responses: []<-chan llm.StreamChunk{
		chunkChan(textChunk("partial output...", "length")),
		chunkChan(textChunk("...and the rest", "stop")),
	}}
	r := NewRunner(provider, nil, nil, nil, DefaultConfig())
	catalog := newTestCatalogWithEcho(t)

	result, err := r.Run(context.Background(), "agent-a", "gpt-4", catalog, "", nil, types.NewUserMessage("write something long"))
	require.NoError(t, err)
	assert.Equal(t, StopEndOfTurn, result.Reason)
	assert.Equal(t, 2, result.Iterations)
}

func TestRunAutoContinuesAfterReadOnlyOnlyTurn(t *testing.T) {
	provider := &scriptedProvider{responses: []<-chan llm.StreamChunk{
		chunkChan(toolCallChunk("call_1", "read_file", `{"path":"notes.txt"}`)),
		chunkChan(textChunk("looks fine, nothing to change", "stop")),
		chunkChan(textChunk("confirmed, stopping for real", "stop")),
	}}
	r := NewRunner(provider, nil, nil, nil, DefaultConfig())
	catalog := newTestCatalogWithEcho(t)

	result, err := r.Run(context.Background(), "agent-a", "gpt-4", catalog, "", nil, types.NewUserMessage("check the file"))
	require.NoError(t, err)
	// Turn 1 reads a file (read-only), turn 2 stops without acting so the
	// loop nudges it to make changes, turn 3 gives a genuinely distinct
	// answer and the loop ends normally.
	assert.Equal(t, StopEndOfTurn, result.Reason)
	assert.Equal(t, 3, result.Iterations)
}

func TestRunStopsOnToolRepetition(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ToolRepeatThreshold = 2
	provider := &scriptedProvider{responses: []<-chan llm.StreamChunk{
		chunkChan(toolCallChunk("call_1", "read_file", `{"path":"x.txt"}`)),
		chunkChan(toolCallChunk("call_2", "read_file", `{"path":"x.txt"}`)),
	}}
	r := NewRunner(provider, nil, nil, nil, cfg)
	catalog := newTestCatalogWithEcho(t)

	result, err := r.Run(context.Background(), "agent-a", "gpt-4", catalog, "", nil, types.NewUserMessage("loop forever"))
	require.NoError(t, err)
	assert.Equal(t, StopToolRepetition, result.Reason)
}

func TestRunStopsOnCommandRepetition(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CommandWindow = 5
	cfg.CommandRepeatThreshold = 3
	cfg.ToolRepeatThreshold = 1000 // disable so the command guard is what fires
	var responses []<-chan llm.StreamChunk
	for i := 0; i < 3; i++ {
		responses = append(responses, chunkChan(toolCallChunk(fmt.Sprintf("call_%d", i), "run_command", `{"command":"ls -la"}`)))
	}
	provider := &scriptedProvider{responses: responses}
	r := NewRunner(provider, nil, nil, nil, cfg)
	catalog := newTestCatalogWithEcho(t)

	result, err := r.Run(context.Background(), "agent-a", "gpt-4", catalog, "", nil, types.NewUserMessage("run it again"))
	require.NoError(t, err)
	assert.Equal(t, StopCommandRepetition, result.Reason)
}

func TestRunStopsOnTextRepetition(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TextRepeatThreshold = 3
	var responses []<-chan llm.StreamChunk
	for i := 0; i < 3; i++ {
		responses = append(responses, chunkChan(textChunk("I am stuck repeating myself", "length")))
	}
	provider := &scriptedProvider{responses: responses}
	r := NewRunner(provider, nil, nil, nil, cfg)
	catalog := newTestCatalogWithEcho(t)

	result, err := r.Run(context.Background(), "agent-a", "gpt-4", catalog, "", nil, types.NewUserMessage("say it"))
	require.NoError(t, err)
	assert.Equal(t, StopTextRepetition, result.Reason)
	assert.Equal(t, 3, result.Iterations)
}

func TestRunStopsAtIterationCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 2
	cfg.ToolRepeatThreshold = 1000 // disable so the cap is what fires
	var responses []<-chan llm.StreamChunk
	for i := 0; i < 2; i++ {
		responses = append(responses, chunkChan(toolCallChunk(fmt.Sprintf("call_%d", i), "read_file", fmt.Sprintf(`{"path":"f%d.txt"}`, i))))
	}
	provider := &scriptedProvider{responses: responses}
	r := NewRunner(provider, nil, nil, nil, cfg)
	catalog := newTestCatalogWithEcho(t)

	result, err := r.Run(context.Background(), "agent-a", "gpt-4", catalog, "", nil, types.NewUserMessage("keep reading"))
	require.NoError(t, err)
	assert.Equal(t, StopIterationCap, result.Reason)
	assert.Contains(t, result.Warning, "checkpoint")
}

func TestRunHonorsExternalStopSignal(t *testing.T) {
	stop := NewStopSignal()
	stop.Request("agent-a")
	provider := &scriptedProvider{responses: []<-chan llm.StreamChunk{
		chunkChan(textChunk("should not get here", "stop")),
	}}
	r := NewRunner(provider, nil, nil, stop, DefaultConfig())
	catalog := newTestCatalogWithEcho(t)

	result, err := r.Run(context.Background(), "agent-a", "gpt-4", catalog, "", nil, types.NewUserMessage("hi"))
	require.NoError(t, err)
	assert.Equal(t, StopExternalSignal, result.Reason)
}

func TestRunPublishesWatchdogProgressEvents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WatchdogEvery = 1
	cfg.ToolRepeatThreshold = 1000
	var responses []<-chan llm.StreamChunk
	for i := 0; i < 2; i++ {
		responses = append(responses, chunkChan(toolCallChunk(fmt.Sprintf("call_%d", i), "read_file", fmt.Sprintf(`{"path":"f%d.txt"}`, i))))
	}
	responses = append(responses, chunkChan(textChunk("done", "stop")))
	provider := &scriptedProvider{responses: responses}
	sink := &recordingSink{}
	r := NewRunner(provider, sink, nil, nil, cfg)
	catalog := newTestCatalogWithEcho(t)

	_, err := r.Run(context.Background(), "agent-a", "gpt-4", catalog, "", nil, types.NewUserMessage("go"))
	require.NoError(t, err)

	var sawProgress bool
	for _, e := range sink.events {
		if e.Kind == event.KindLoopProgress {
			sawProgress = true
		}
	}
	assert.True(t, sawProgress)
}

func TestStopSignalExpiresAfterTTL(t *testing.T) {
	s := NewStopSignal()
	s.expires["agent-a"] = time.Now().Add(-time.Second)
	assert.False(t, s.ShouldStop("agent-a"))
}
