/*
Package llm defines the abstract chat-completion contract this module
runs its agentic loop against.

# Overview

llm.Provider is the only seam between loop.Runner and a concrete model
backend. The module never imports a vendor SDK directly (spec.md's
Non-goals exclude arbitrary LLM provider integrations); a deployment
supplies a Provider implementation out-of-module and registers it with
cmd/agentsociety's ProviderFactory/RegisterProvider, the same
database/sql-driver pattern that keeps this package ignorant of which
vendor is behind it.

# Provider interface

	type Provider interface {
	    Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	    Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)
	    HealthCheck(ctx context.Context) (*HealthStatus, error)
	    Name() string
	    SupportsNativeFunctionCalling() bool
	    ListModels(ctx context.Context) ([]Model, error)
	}

Completion is the synchronous path; Stream is what loop.Runner actually
drives a turn with, assembling Delta fragments (including partial tool
calls, keyed by call ID) until the stream channel closes.

# Usage

	resp, err := provider.Completion(ctx, &llm.ChatRequest{
	    Model: "gpt-4o",
	    Messages: []llm.Message{
	        {Role: llm.RoleUser, Content: "hello"},
	    },
	})

Streaming drives the agentic loop:

	stream, err := provider.Stream(ctx, &llm.ChatRequest{Model: model, Messages: messages})
	for chunk := range stream {
	    if chunk.Err != nil {
	        break
	    }
	    fmt.Print(chunk.Delta.Content)
	}

# Tool calling

ChatRequest.Tools carries the agent's current tool catalog as
ToolSchema values; a response's ChatChoice.Message.ToolCalls reports
which tools the model invoked. Neither loop nor tooling consults
SupportsNativeFunctionCalling; tool calls are taken only from the
ToolCalls a provider reports, never parsed out of assistant text.

# Usage accounting

ChatResponse.Usage and StreamChunk.Usage report token counts when the
provider supplies them; loop.Runner forwards whatever it is given and
makes no assumption about a specific vendor's usage reporting.
cmd/agentsociety wraps the configured Provider in a token-estimating
decorator (backed by llm/tokenizer) for providers whose responses omit
usage.

# Retryability

IsRetryable classifies a returned error by apperr.Kind, reporting true
for rate-limiting and timeout errors so a caller can decide whether to
retry a request.
*/
package llm
