package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrysochos/society-agent-sub001/config"
	"github.com/chrysochos/society-agent-sub001/llm"
)

type stubProvider struct{ name string }

func (p *stubProvider) Completion(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, fmt.Errorf("not implemented")
}
func (p *stubProvider) Stream(context.Context, *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	return nil, fmt.Errorf("not implemented")
}
func (p *stubProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}
func (p *stubProvider) Name() string                       { return p.name }
func (p *stubProvider) SupportsNativeFunctionCalling() bool { return true }
func (p *stubProvider) ListModels(context.Context) ([]llm.Model, error) {
	return nil, nil
}

func TestBuildProviderReturnsRegisteredFactory(t *testing.T) {
	RegisterProvider("test-stub", func(cfg config.AgentConfig) (llm.Provider, error) {
		return &stubProvider{name: cfg.Model}, nil
	})

	provider, err := buildProvider(config.AgentConfig{Provider: "test-stub", Model: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "m1", provider.Name())
}

func TestBuildProviderFailsLoudlyWhenUnregistered(t *testing.T) {
	_, err := buildProvider(config.AgentConfig{Provider: "never-registered"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never-registered")
}
