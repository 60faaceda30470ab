// Package tooling implements the sandboxed tool catalog dispatched by the
// agentic loop: filesystem, shell, inter-agent messaging, task-pool, and
// skills/MCP tools (spec section 4.6).
package tooling

import (
	"context"
	"encoding/json"
)

// Schema describes one callable tool to the model.
type Schema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Func is the executable behind a Schema.
type Func func(ctx context.Context, args json.RawMessage) (string, error)

// Tool pairs a schema with its implementation.
type Tool struct {
	Schema Schema
	Run    Func
}

// ephemeralExcluded lists tool names withheld from the ephemeral catalog
// (spawn_worker, create_task, propose_new_agent require a persistent,
// supervising agent; delegate_task requires a stable home to delegate
// from).
var ephemeralExcluded = map[string]bool{
	"delegate_task":     true,
	"spawn_worker":      true,
	"create_task":       true,
	"propose_new_agent": true,
}

// Catalog is an ordered, named set of tools handed to the model.
type Catalog struct {
	tools []Tool
	index map[string]int
}

// NewCatalog builds a catalog from tools, preserving order.
func NewCatalog(tools ...Tool) *Catalog {
	c := &Catalog{index: make(map[string]int, len(tools))}
	for _, t := range tools {
		c.index[t.Schema.Name] = len(c.tools)
		c.tools = append(c.tools, t)
	}
	return c
}

// Ephemeral returns the subset of c usable by ephemeral workers: the
// full catalog minus delegate_task, spawn_worker, create_task, and
// propose_new_agent.
func (c *Catalog) Ephemeral() *Catalog {
	var kept []Tool
	for _, t := range c.tools {
		if ephemeralExcluded[t.Schema.Name] {
			continue
		}
		kept = append(kept, t)
	}
	return NewCatalog(kept...)
}

// Schemas returns the schema list handed to the model.
func (c *Catalog) Schemas() []Schema {
	out := make([]Schema, len(c.tools))
	for i, t := range c.tools {
		out[i] = t.Schema
	}
	return out
}

// Lookup returns the tool named name, if present.
func (c *Catalog) Lookup(name string) (Tool, bool) {
	i, ok := c.index[name]
	if !ok {
		return Tool{}, false
	}
	return c.tools[i], true
}

// Len reports how many tools the catalog holds.
func (c *Catalog) Len() int { return len(c.tools) }
