package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chrysochos/society-agent-sub001/llm"
	"github.com/chrysochos/society-agent-sub001/types"
)

// toolCallAccumulator assembles one tool call's arguments across
// streaming deltas that may arrive as string fragments rather than a
// single complete JSON value.
type toolCallAccumulator struct {
	id           string
	name         string
	argsFinal    json.RawMessage
	argsBuilding strings.Builder
}

// assembleStream consumes a provider's stream channel, invoking onChunk
// for every content delta, and returns the fully assembled assistant
// message and response metadata. It polls shouldAbort at pollInterval
// cadence and calls cancel (unblocking a well-behaved provider's
// goroutine) if either shouldAbort or onChunk report a trip.
func assembleStream(
	ctx context.Context,
	cancel context.CancelFunc,
	pollInterval time.Duration,
	shouldAbort func() bool,
	streamCh <-chan llm.StreamChunk,
	onChunk func(accumulated, delta string) (trip bool),
) (types.Message, llm.ChatResponse, bool, error) {
	var (
		assembled                          types.Message
		order                               []string
		byID                                map[string]*toolCallAccumulator
		id, provider, model, finishReason   string
		chatUsage                           *llm.ChatUsage
	)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for done := false; !done; {
		select {
		case <-ctx.Done():
			return assembled, llm.ChatResponse{}, true, ctx.Err()
		case <-ticker.C:
			if shouldAbort != nil && shouldAbort() {
				cancel()
				return assembled, llm.ChatResponse{}, true, nil
			}
		case chunk, ok := <-streamCh:
			if !ok {
				done = true
				continue
			}
			if chunk.Err != nil {
				return assembled, llm.ChatResponse{}, true, chunk.Err
			}
			if chunk.ID != "" {
				id = chunk.ID
			}
			if chunk.Provider != "" {
				provider = chunk.Provider
			}
			if chunk.Model != "" {
				model = chunk.Model
			}
			if chunk.Usage != nil {
				chatUsage = chunk.Usage
			}
			if chunk.FinishReason != "" {
				finishReason = chunk.FinishReason
			}
			if chunk.Delta.Content != "" {
				assembled.Content += chunk.Delta.Content
				if onChunk != nil && onChunk(assembled.Content, chunk.Delta.Content) {
					cancel()
					return assembled, llm.ChatResponse{}, true, nil
				}
			}
			if len(chunk.Delta.ToolCalls) > 0 {
				if byID == nil {
					byID = make(map[string]*toolCallAccumulator)
				}
				accumulateToolCallDeltas(chunk.Delta.ToolCalls, &order, byID)
			}
		}
	}

	assembled.Role = types.RoleAssistant
	calls, err := finalizeToolCalls(order, byID)
	if err != nil {
		return assembled, llm.ChatResponse{}, false, err
	}
	assembled.ToolCalls = calls

	resp := llm.ChatResponse{
		ID: id, Provider: provider, Model: model,
		Choices: []llm.ChatChoice{{Index: 0, FinishReason: finishReason, Message: assembled}},
	}
	if chatUsage != nil {
		resp.Usage = *chatUsage
	}
	return assembled, resp, false, nil
}

func accumulateToolCallDeltas(deltas []types.ToolCall, order *[]string, byID map[string]*toolCallAccumulator) {
	for _, tc := range deltas {
		tid := strings.TrimSpace(tc.ID)
		if tid == "" {
			tid = fmt.Sprintf("call_%d", len(*order)+1)
		}
		acc := byID[tid]
		if acc == nil {
			acc = &toolCallAccumulator{id: tid}
			byID[tid] = acc
			*order = append(*order, tid)
		}
		if strings.TrimSpace(tc.Name) != "" {
			acc.name = strings.TrimSpace(tc.Name)
		}
		if len(tc.Arguments) == 0 || len(acc.argsFinal) > 0 {
			continue
		}
		var argSegStr string
		if err := json.Unmarshal(tc.Arguments, &argSegStr); err == nil {
			acc.argsBuilding.WriteString(argSegStr)
			continue
		}
		if json.Valid(tc.Arguments) {
			acc.argsFinal = append([]byte(nil), tc.Arguments...)
			continue
		}
		acc.argsBuilding.WriteString(string(tc.Arguments))
	}
}

func finalizeToolCalls(order []string, byID map[string]*toolCallAccumulator) ([]types.ToolCall, error) {
	calls := make([]types.ToolCall, 0, len(order))
	for _, tid := range order {
		acc := byID[tid]
		if acc == nil {
			continue
		}
		args := json.RawMessage(nil)
		if len(acc.argsFinal) > 0 {
			args = acc.argsFinal
		} else if raw := strings.TrimSpace(acc.argsBuilding.String()); raw != "" {
			if !json.Valid([]byte(raw)) {
				return nil, fmt.Errorf("invalid tool call arguments (id=%s tool=%s): %s", acc.id, acc.name, raw)
			}
			args = json.RawMessage(raw)
		}
		calls = append(calls, types.ToolCall{ID: acc.id, Name: acc.name, Arguments: args})
	}
	return calls, nil
}
