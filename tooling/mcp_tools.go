package tooling

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chrysochos/society-agent-sub001/apperr"
	"github.com/chrysochos/society-agent-sub001/agent/protocol/mcp"
)

const (
	defaultMCPRateLimit       = 10
	defaultMCPRateWindow      = 60 * time.Second
	defaultMCPMaxConsecErrors = 3
)

// mcpWindow is a minimal sliding-window request counter: it trims
// expired timestamps on every check rather than running a background
// sweep.
type mcpWindow struct {
	maxRequests int
	window      time.Duration
	requests    []time.Time
}

func newMCPWindow(maxRequests int, window time.Duration) *mcpWindow {
	return &mcpWindow{maxRequests: maxRequests, window: window}
}

func (w *mcpWindow) allow(now time.Time) (bool, time.Time) {
	cutoff := now.Add(-w.window)
	kept := w.requests[:0]
	for _, t := range w.requests {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.requests = kept
	if len(w.requests) >= w.maxRequests {
		resetAt := w.requests[0].Add(w.window)
		return false, resetAt
	}
	w.requests = append(w.requests, now)
	return true, time.Time{}
}

type mcpCallerState struct {
	window          *mcpWindow
	consecutiveErrs int
}

// MCP exposes list_mcps, list_mcp_tools, and use_mcp (spec section 4.6).
// Each configured server is reached through an agent/protocol/mcp.MCPClient
// that must already be connected. Calls are throttled per (agent, server)
// by a sliding window, and a server is blocked for a caller after too many
// consecutive failures from that caller; the block does not lift.
type MCP struct {
	clients    map[string]mcp.MCPClient
	maxErrors  int
	rateLimit  int
	rateWindow time.Duration

	mu    sync.Mutex
	state map[string]*mcpCallerState
}

// NewMCP builds the MCP tool surface over a fixed set of named,
// pre-connected clients.
func NewMCP(clients map[string]mcp.MCPClient) *MCP {
	return &MCP{
		clients:    clients,
		maxErrors:  defaultMCPMaxConsecErrors,
		rateLimit:  defaultMCPRateLimit,
		rateWindow: defaultMCPRateWindow,
		state:      make(map[string]*mcpCallerState),
	}
}

func (m *MCP) callerKey(agentID, server string) string {
	return agentID + "\x00" + server
}

func (m *MCP) callerState(agentID, server string) *mcpCallerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.callerKey(agentID, server)
	st, ok := m.state[key]
	if !ok {
		st = &mcpCallerState{window: newMCPWindow(m.rateLimit, m.rateWindow)}
		m.state[key] = st
	}
	return st
}

// ListMCPs implements list_mcps.
func (m *MCP) ListMCPs(json.RawMessage) (string, error) {
	if len(m.clients) == 0 {
		return "(no MCP servers configured)", nil
	}
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}

type listMCPToolsArgs struct {
	Server string `json:"server"`
}

// ListMCPTools implements list_mcp_tools(server).
func (m *MCP) ListMCPTools(ctx context.Context, argsJSON json.RawMessage) (string, error) {
	var args listMCPToolsArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "list_mcp_tools arguments", err)
	}
	client, err := m.lookup(args.Server)
	if err != nil {
		return "", err
	}
	defs, err := client.ListTools(ctx)
	if err != nil {
		return "", apperr.Wrap(apperr.KindIO, "list tools on "+args.Server, err)
	}
	if len(defs) == 0 {
		return "(no tools)", nil
	}
	var b strings.Builder
	for _, d := range defs {
		fmt.Fprintf(&b, "%s: %s\n", d.Name, d.Description)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

type useMCPArgs struct {
	Server string         `json:"server"`
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params,omitempty"`
}

// UseMCP implements use_mcp(server, tool, params?). Requests are
// rate-limited per (agentID, server); a server is blocked once the
// caller has accumulated maxErrors consecutive failures against it. A
// success resets the count only before that point: a blocked caller's
// requests never reach the server, so the block stays for the life of m.
func (m *MCP) UseMCP(ctx context.Context, agentID string, argsJSON json.RawMessage) (string, error) {
	var args useMCPArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "use_mcp arguments", err)
	}
	client, err := m.lookup(args.Server)
	if err != nil {
		return "", err
	}

	st := m.callerState(agentID, args.Server)

	m.mu.Lock()
	if st.consecutiveErrs >= m.maxErrors {
		m.mu.Unlock()
		return "", apperr.New(apperr.KindBlocked, fmt.Sprintf("%s blocked after %d consecutive errors", args.Server, st.consecutiveErrs))
	}
	ok, resetAt := st.window.allow(time.Now())
	m.mu.Unlock()
	if !ok {
		return "", apperr.New(apperr.KindRateLimited, fmt.Sprintf("rate limit exceeded for %s, resets at %s", args.Server, resetAt.Format(time.RFC3339)))
	}

	result, err := client.CallTool(ctx, args.Tool, args.Params)

	m.mu.Lock()
	if err != nil {
		st.consecutiveErrs++
	} else {
		st.consecutiveErrs = 0
	}
	m.mu.Unlock()

	if err != nil {
		return "", apperr.Wrap(apperr.KindIO, fmt.Sprintf("call %s on %s", args.Tool, args.Server), err)
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result), nil
	}
	return string(encoded), nil
}

func (m *MCP) lookup(server string) (mcp.MCPClient, error) {
	client, ok := m.clients[server]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "unknown MCP server: "+server)
	}
	return client, nil
}
