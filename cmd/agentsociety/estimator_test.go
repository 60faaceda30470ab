package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrysochos/society-agent-sub001/llm"
)

// zeroUsageProvider always reports zero usage, as some vendor APIs do.
type zeroUsageProvider struct{}

func (zeroUsageProvider) Completion(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{
		Model: "gpt-4o",
		Choices: []llm.ChatChoice{
			{Message: llm.Message{Role: llm.RoleAssistant, Content: "hello there"}},
		},
	}, nil
}

func (zeroUsageProvider) Stream(context.Context, *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 1)
	ch <- llm.StreamChunk{
		Delta:        llm.Message{Role: llm.RoleAssistant, Content: "hello there"},
		FinishReason: "stop",
	}
	close(ch)
	return ch, nil
}

func (zeroUsageProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}
func (zeroUsageProvider) Name() string                       { return "zero-usage" }
func (zeroUsageProvider) SupportsNativeFunctionCalling() bool { return true }
func (zeroUsageProvider) ListModels(context.Context) ([]llm.Model, error) {
	return nil, nil
}

func TestTokenEstimatingProviderFillsInCompletionUsage(t *testing.T) {
	provider := withTokenEstimation(zeroUsageProvider{})
	req := &llm.ChatRequest{
		Model:    "gpt-4o",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "what is the weather like today"}},
	}

	resp, err := provider.Completion(context.Background(), req)
	require.NoError(t, err)
	assert.Greater(t, resp.Usage.PromptTokens, 0)
	assert.Greater(t, resp.Usage.CompletionTokens, 0)
	assert.Equal(t, resp.Usage.PromptTokens+resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
}

func TestTokenEstimatingProviderFillsInStreamUsage(t *testing.T) {
	provider := withTokenEstimation(zeroUsageProvider{})
	req := &llm.ChatRequest{
		Model:    "gpt-4o",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "what is the weather like today"}},
	}

	ch, err := provider.Stream(context.Background(), req)
	require.NoError(t, err)

	var last llm.StreamChunk
	for chunk := range ch {
		last = chunk
	}
	require.NotNil(t, last.Usage)
	assert.Greater(t, last.Usage.PromptTokens, 0)
	assert.Greater(t, last.Usage.CompletionTokens, 0)
}

func TestTokenEstimatingProviderPreservesReportedUsage(t *testing.T) {
	provider := withTokenEstimation(&stubUsageProvider{})
	resp, err := provider.Completion(context.Background(), &llm.ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, 10, resp.Usage.PromptTokens)
	assert.Equal(t, 5, resp.Usage.CompletionTokens)
}

type stubUsageProvider struct{ zeroUsageProvider }

func (stubUsageProvider) Completion(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Usage: llm.ChatUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}, nil
}
