package loop

import (
	"context"
	"encoding/json"
	"time"

	"github.com/chrysochos/society-agent-sub001/event"
	"github.com/chrysochos/society-agent-sub001/tooling"
	"github.com/chrysochos/society-agent-sub001/types"
)

// dispatchToolCalls runs each tool call in calls sequentially, in
// emission order, and returns the resulting tool-result messages plus
// whether the command-repetition guard tripped while doing so.
func (r *Runner) dispatchToolCalls(ctx context.Context, catalog *tooling.Catalog, calls []types.ToolCall, cmdGuard *commandRepetitionGuard) (tripped bool, messages []types.Message) {
	for _, call := range calls {
		if call.Name == "run_command" {
			if cmd, ok := runCommandArg(call.Arguments); ok && cmdGuard.observe(cmd) {
				tripped = true
			}
		}

		start := time.Now()
		result := r.runOne(ctx, catalog, call)
		duration := time.Since(start)

		r.sink.Publish(event.New(event.KindToolExecution, "", map[string]any{
			"tool":       call.Name,
			"durationMs": duration.Milliseconds(),
			"error":      result.Error,
		}))

		messages = append(messages, result.ToMessage())
	}
	return tripped, messages
}

func (r *Runner) runOne(ctx context.Context, catalog *tooling.Catalog, call types.ToolCall) types.ToolResult {
	tool, ok := catalog.Lookup(call.Name)
	if !ok {
		return types.ToolResult{ToolCallID: call.ID, Name: call.Name, Error: "unknown tool: " + call.Name}
	}
	out, err := tool.Run(ctx, call.Arguments)
	if err != nil {
		return types.ToolResult{ToolCallID: call.ID, Name: call.Name, Error: err.Error()}
	}
	return types.ToolResult{ToolCallID: call.ID, Name: call.Name, Result: json.RawMessage(mustQuoteJSON(out))}
}

// mustQuoteJSON wraps a tool's plain-text result as a JSON string value,
// since the tool catalog's Func returns human-readable text rather than
// pre-formed JSON.
func mustQuoteJSON(s string) []byte {
	b, err := json.Marshal(s)
	if err != nil {
		return []byte(`""`)
	}
	return b
}

// runCommandArgs mirrors tooling's run_command argument shape just
// enough to extract the command string for the repetition guard.
type runCommandArgs struct {
	Command string `json:"command"`
}

func runCommandArg(raw json.RawMessage) (string, bool) {
	var args runCommandArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", false
	}
	return args.Command, args.Command != ""
}
