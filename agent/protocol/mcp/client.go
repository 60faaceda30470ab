package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultMCPClient is the stdio transport backing tooling.MCP: it frames
// JSON-RPC 2.0 messages with Content-Length headers over a reader/writer
// pair (typically a subprocess's stdin/stdout) and correlates requests to
// responses by ID.
type DefaultMCPClient struct {
	serverURL  string
	serverInfo *ServerInfo

	reader io.Reader
	writer io.Writer

	nextID    int64
	pending   map[int64]chan *MCPMessage
	pendingMu sync.RWMutex

	subscriptions map[string]chan Resource
	subsMu        sync.RWMutex

	connected bool
	mu        sync.RWMutex

	logger *zap.Logger
}

// NewMCPClient builds a client around an already-open transport; Connect
// must still be called before any other method is usable.
func NewMCPClient(reader io.Reader, writer io.Writer, logger *zap.Logger) *DefaultMCPClient {
	return &DefaultMCPClient{
		reader:        reader,
		writer:        writer,
		pending:       make(map[int64]chan *MCPMessage),
		subscriptions: make(map[string]chan Resource),
		logger:        logger,
	}
}

// Connect fetches the server's identity over the transport and marks the
// client usable. The transport itself (dialing, spawning a subprocess) is
// the caller's responsibility.
func (c *DefaultMCPClient) Connect(ctx context.Context, serverURL string) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	c.serverURL = serverURL
	// Mark connected before the handshake request: sendRequest gates on
	// IsConnected, and GetServerInfo below is itself a request over this
	// transport. Roll back on failure.
	c.connected = true
	c.mu.Unlock()

	info, err := c.GetServerInfo(ctx)
	if err != nil {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		return fmt.Errorf("failed to get server info: %w", err)
	}

	c.mu.Lock()
	c.serverInfo = info
	c.mu.Unlock()

	c.logger.Info("connected to MCP server",
		zap.String("server", info.Name),
		zap.String("version", info.Version))

	return nil
}

// Disconnect closes every open resource subscription and marks the client
// unusable until Connect is called again.
func (c *DefaultMCPClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	c.subsMu.Lock()
	for _, ch := range c.subscriptions {
		close(ch)
	}
	c.subscriptions = make(map[string]chan Resource)
	c.subsMu.Unlock()

	c.connected = false
	c.logger.Info("disconnected from MCP server")

	return nil
}

// IsConnected reports whether Connect has succeeded and Disconnect has not
// since been called.
func (c *DefaultMCPClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// GetServerInfo issues the server/info request.
func (c *DefaultMCPClient) GetServerInfo(ctx context.Context) (*ServerInfo, error) {
	result, err := c.sendRequest(ctx, "server/info", nil)
	if err != nil {
		return nil, err
	}

	var info ServerInfo
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, fmt.Errorf("failed to parse server info: %w", err)
	}

	return &info, nil
}

// ListResources issues the resources/list request.
func (c *DefaultMCPClient) ListResources(ctx context.Context) ([]Resource, error) {
	result, err := c.sendRequest(ctx, "resources/list", nil)
	if err != nil {
		return nil, err
	}

	var resources []Resource
	if err := json.Unmarshal(result, &resources); err != nil {
		return nil, fmt.Errorf("failed to parse resources: %w", err)
	}

	return resources, nil
}

// ReadResource issues the resources/read request for a single URI.
func (c *DefaultMCPClient) ReadResource(ctx context.Context, uri string) (*Resource, error) {
	params := map[string]any{
		"uri": uri,
	}

	result, err := c.sendRequest(ctx, "resources/read", params)
	if err != nil {
		return nil, err
	}

	var resource Resource
	if err := json.Unmarshal(result, &resource); err != nil {
		return nil, fmt.Errorf("failed to parse resource: %w", err)
	}

	return &resource, nil
}

// ListTools issues the tools/list request. This is the method
// tooling.MCP's list_mcp_tools handler calls.
func (c *DefaultMCPClient) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	result, err := c.sendRequest(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var tools []ToolDefinition
	if err := json.Unmarshal(result, &tools); err != nil {
		return nil, fmt.Errorf("failed to parse tools: %w", err)
	}

	return tools, nil
}

// CallTool issues the tools/call request. This is the method
// tooling.MCP's use_mcp handler calls.
func (c *DefaultMCPClient) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	params := map[string]any{
		"name":      name,
		"arguments": args,
	}

	result, err := c.sendRequest(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	var toolResult any
	if err := json.Unmarshal(result, &toolResult); err != nil {
		return nil, fmt.Errorf("failed to parse tool result: %w", err)
	}

	return toolResult, nil
}

// ListPrompts issues the prompts/list request.
func (c *DefaultMCPClient) ListPrompts(ctx context.Context) ([]PromptTemplate, error) {
	result, err := c.sendRequest(ctx, "prompts/list", nil)
	if err != nil {
		return nil, err
	}

	var prompts []PromptTemplate
	if err := json.Unmarshal(result, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}

	return prompts, nil
}

// GetPrompt issues the prompts/get request, rendering the named template
// server-side with the given variables.
func (c *DefaultMCPClient) GetPrompt(ctx context.Context, name string, vars map[string]string) (string, error) {
	params := map[string]any{
		"name":      name,
		"variables": vars,
	}

	result, err := c.sendRequest(ctx, "prompts/get", params)
	if err != nil {
		return "", err
	}

	var prompt string
	if err := json.Unmarshal(result, &prompt); err != nil {
		return "", fmt.Errorf("failed to parse prompt: %w", err)
	}

	return prompt, nil
}

// SubscribeResource requests update notifications for a URI and returns
// the channel they'll arrive on. Calling it again for the same URI
// returns the existing channel rather than subscribing twice.
func (c *DefaultMCPClient) SubscribeResource(ctx context.Context, uri string) (<-chan Resource, error) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	if ch, exists := c.subscriptions[uri]; exists {
		return ch, nil
	}

	params := map[string]any{
		"uri": uri,
	}

	if _, err := c.sendRequest(ctx, "resources/subscribe", params); err != nil {
		return nil, err
	}

	ch := make(chan Resource, 10)
	c.subscriptions[uri] = ch

	c.logger.Info("subscribed to resource", zap.String("uri", uri))

	return ch, nil
}

// UnsubscribeResource cancels a prior SubscribeResource and closes its
// channel. It is a no-op if the URI isn't currently subscribed.
func (c *DefaultMCPClient) UnsubscribeResource(ctx context.Context, uri string) error {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	ch, exists := c.subscriptions[uri]
	if !exists {
		return nil
	}

	params := map[string]any{
		"uri": uri,
	}

	if _, err := c.sendRequest(ctx, "resources/unsubscribe", params); err != nil {
		return err
	}

	close(ch)
	delete(c.subscriptions, uri)

	c.logger.Info("unsubscribed from resource", zap.String("uri", uri))

	return nil
}

// Start runs the client's read loop, dispatching each incoming message to
// a pending request or a resource-update subscriber until ctx is
// cancelled or the transport reaches EOF.
func (c *DefaultMCPClient) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := c.readMessage()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				c.logger.Error("failed to read message", zap.Error(err))
				continue
			}

			c.handleMessage(msg)
		}
	}
}

// sendRequest writes a request and blocks until Start's read loop
// delivers the matching response, ctx is cancelled, or the transport
// fails.
func (c *DefaultMCPClient) sendRequest(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("not connected")
	}

	id := atomic.AddInt64(&c.nextID, 1)

	respChan := make(chan *MCPMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	msg := NewMCPRequest(id, method, params)

	if err := c.writeMessage(msg); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-respChan:
		if resp.Error != nil {
			return nil, fmt.Errorf("MCP error %d: %s", resp.Error.Code, resp.Error.Message)
		}

		resultJSON, err := json.Marshal(resp.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}

		return resultJSON, nil
	}
}

// readMessage blocks for one Content-Length-framed JSON-RPC message.
func (c *DefaultMCPClient) readMessage() (*MCPMessage, error) {
	var contentLength int
	for {
		var raw []byte
		b := make([]byte, 1)
		for {
			if _, err := io.ReadFull(c.reader, b); err != nil {
				return nil, err
			}
			if b[0] == '\n' {
				break
			}
			raw = append(raw, b[0])
		}
		line := strings.TrimRight(string(raw), "\r")

		if line == "" {
			break
		}

		if _, err := fmt.Sscanf(line, "Content-Length: %d", &contentLength); err == nil {
			continue
		}
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return nil, err
	}

	var msg MCPMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, err
	}

	return &msg, nil
}

// writeMessage frames and writes a single JSON-RPC message.
func (c *DefaultMCPClient) writeMessage(msg *MCPMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	if _, err := c.writer.Write([]byte(header)); err != nil {
		return err
	}

	if _, err := c.writer.Write(body); err != nil {
		return err
	}

	return nil
}

// handleMessage routes an inbound message to a pending request (by ID) or
// to the resources/updated notification handler.
func (c *DefaultMCPClient) handleMessage(msg *MCPMessage) {
	if msg.ID != nil {
		if id, ok := msg.ID.(float64); ok {
			c.pendingMu.RLock()
			respChan, exists := c.pending[int64(id)]
			c.pendingMu.RUnlock()

			if exists {
				respChan <- msg
			}
		}
		return
	}

	if msg.Method == "resources/updated" {
		c.handleResourceUpdate(msg.Params)
	}
}

// handleResourceUpdate delivers a resources/updated notification to its
// subscriber channel, dropping it if the channel's buffer is full.
func (c *DefaultMCPClient) handleResourceUpdate(params map[string]any) {
	uriVal, ok := params["uri"]
	if !ok {
		return
	}

	uri, ok := uriVal.(string)
	if !ok {
		return
	}

	c.subsMu.RLock()
	ch, exists := c.subscriptions[uri]
	c.subsMu.RUnlock()

	if !exists {
		return
	}

	resourceJSON, err := json.Marshal(params["resource"])
	if err != nil {
		c.logger.Error("failed to marshal resource", zap.Error(err))
		return
	}

	var resource Resource
	if err := json.Unmarshal(resourceJSON, &resource); err != nil {
		c.logger.Error("failed to parse resource", zap.Error(err))
		return
	}

	select {
	case ch <- resource:
	default:
		c.logger.Warn("resource update channel full", zap.String("uri", uri))
	}
}

// BatchCallTools runs several tool calls concurrently, returning the
// first error encountered (if any) alongside whatever results completed.
func (c *DefaultMCPClient) BatchCallTools(ctx context.Context, calls []ToolCall) ([]any, error) {
	results := make([]any, len(calls))
	errs := make([]error, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc ToolCall) {
			defer wg.Done()

			var args map[string]any
			if err := json.Unmarshal(tc.Arguments, &args); err != nil {
				errs[idx] = fmt.Errorf("failed to parse arguments: %w", err)
				return
			}

			result, err := c.CallTool(ctx, tc.Name, args)
			if err != nil {
				errs[idx] = err
				return
			}

			results[idx] = result
		}(i, call)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}

	return results, nil
}

// ToolCall is a single tool invocation as carried by BatchCallTools.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}
