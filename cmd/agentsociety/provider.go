package main

import (
	"fmt"
	"sync"

	"github.com/chrysochos/society-agent-sub001/config"
	"github.com/chrysochos/society-agent-sub001/llm"
)

// ProviderFactory builds an llm.Provider from this process's agent
// configuration. The core module depends only on the abstract
// llm.Provider interface (spec section 2's non-goals exclude concrete
// vendor SDK integrations); a deployment wires in a real provider by
// registering a factory under the name configured at agent.provider,
// the same pattern database/sql uses for drivers.
type ProviderFactory func(cfg config.AgentConfig) (llm.Provider, error)

var (
	providerMu        sync.Mutex
	providerFactories = make(map[string]ProviderFactory)
)

// RegisterProvider makes a ProviderFactory available under name. Call
// from an init() in whatever package implements the factory; name
// matches an agent.provider configuration value.
func RegisterProvider(name string, factory ProviderFactory) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerFactories[name] = factory
}

// buildProvider resolves cfg.Agent.Provider through the registry. It
// fails loudly rather than silently falling back, since a process
// cannot run its agentic loop without a model provider.
func buildProvider(cfg config.AgentConfig) (llm.Provider, error) {
	providerMu.Lock()
	factory, ok := providerFactories[cfg.Provider]
	providerMu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no provider registered under name %q; register one with RegisterProvider before serve starts", cfg.Provider)
	}
	provider, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	return withTokenEstimation(provider), nil
}
