package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/chrysochos/society-agent-sub001/loop"
	"github.com/chrysochos/society-agent-sub001/registry"
	"github.com/chrysochos/society-agent-sub001/tooling"
	"github.com/chrysochos/society-agent-sub001/types"
)

// Host implements tooling.LoopInvoker for one agent process. A call
// naming this process's own agent id runs its Runner in-process; a call
// naming any other agent id is bridged over HTTP to that agent's peer
// server (the synchronous /api/invoke route), since the shared-directory
// inbox/log delivery path is fire-and-forget by design and ask_agent,
// send_message(wait_for_response=true), and delegate_task all need a
// reply from the target.
//
// Each invocation runs the target's loop fresh: system prompt plus the
// single incoming message, no persisted conversation history threaded
// through. Runner itself holds no per-agent state, and none of the
// three tool call sites that reach LoopInvoker pass a history through
// this path, so this is the natural behavior rather than an arbitrary
// restriction.
type Host struct {
	selfID     string
	reg        *registry.Registry
	httpClient *http.Client

	mu           sync.Mutex
	runner       *loop.Runner
	catalog      *tooling.Catalog
	model        string
	systemPrompt string
}

// NewHost builds a Host for the agent identified by selfID, driving
// runner/catalog/model/systemPrompt for any invocation that targets
// selfID itself.
func NewHost(selfID string, reg *registry.Registry, runner *loop.Runner, catalog *tooling.Catalog, model, systemPrompt string) *Host {
	return &Host{
		selfID:       selfID,
		reg:          reg,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		runner:       runner,
		catalog:      catalog,
		model:        model,
		systemPrompt: systemPrompt,
	}
}

// Invoke implements tooling.LoopInvoker.
func (h *Host) Invoke(ctx context.Context, agentID, message string) (string, error) {
	if agentID == h.selfID {
		return h.invokeSelf(ctx, message)
	}
	return h.invokeRemote(ctx, agentID, message)
}

// invokeSelf serializes re-entrant calls into this process's own loop:
// two agents asking this agent a question concurrently run one after
// the other rather than racing on the shared catalog.
func (h *Host) invokeSelf(ctx context.Context, message string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	result, err := h.runner.Run(ctx, h.selfID, h.model, h.catalog, h.systemPrompt, nil, types.NewUserMessage(message))
	if err != nil {
		return "", err
	}
	return lastAssistantText(result.Messages), nil
}

func (h *Host) invokeRemote(ctx context.Context, agentID, message string) (string, error) {
	target, err := h.reg.Get(agentID)
	if err != nil {
		return "", fmt.Errorf("invoke %s: %w", agentID, err)
	}
	if target == nil || target.URL == "" {
		return "", fmt.Errorf("invoke %s: no reachable peer server registered", agentID)
	}

	payload, err := json.Marshal(struct {
		From    string `json:"from"`
		Message string `json:"message"`
	}{From: h.selfID, Message: message})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL+"/api/invoke", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("invoke %s: %w", agentID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("invoke %s: read response: %w", agentID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("invoke %s: status %d: %s", agentID, resp.StatusCode, string(data))
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("invoke %s: decode response: %w", agentID, err)
	}
	return out.Response, nil
}

func lastAssistantText(messages []types.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleAssistant && messages[i].Content != "" {
			return messages[i].Content
		}
	}
	return ""
}
