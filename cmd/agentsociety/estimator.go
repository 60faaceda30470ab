package main

import (
	"context"

	"github.com/chrysochos/society-agent-sub001/llm"
	"github.com/chrysochos/society-agent-sub001/llm/tokenizer"
)

func init() {
	tokenizer.RegisterOpenAITokenizers()
}

// tokenEstimatingProvider wraps a Provider and fills in usage figures
// when the upstream response reports none. Runner deliberately stops at
// whatever the provider tells it (see loop.Runner.recordUsage); a vendor
// whose API omits usage accounting would otherwise leave usage.Tracker
// blind for every turn it serves.
type tokenEstimatingProvider struct {
	llm.Provider
}

// withTokenEstimation wraps provider so that Completion and Stream
// responses always carry a usage figure, estimating with the model's
// registered tokenizer (falling back to a generic estimator) whenever
// the upstream response's usage is zero.
func withTokenEstimation(provider llm.Provider) llm.Provider {
	return &tokenEstimatingProvider{Provider: provider}
}

func (p *tokenEstimatingProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := p.Provider.Completion(ctx, req)
	if err != nil || resp == nil {
		return resp, err
	}
	if resp.Usage.PromptTokens != 0 || resp.Usage.CompletionTokens != 0 {
		return resp, nil
	}

	tok := tokenizer.GetTokenizerOrEstimator(req.Model)
	prompt, _ := tok.CountMessages(toTokenizerMessages(req.Messages))
	completion := 0
	for _, choice := range resp.Choices {
		n, _ := tok.CountTokens(choice.Message.Content)
		completion += n
	}
	resp.Usage = llm.ChatUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
	return resp, nil
}

func (p *tokenEstimatingProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	upstream, err := p.Provider.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		tok := tokenizer.GetTokenizerOrEstimator(req.Model)
		var content string
		var reportedUsage bool

		for chunk := range upstream {
			content += chunk.Delta.Content
			if chunk.Usage != nil && (chunk.Usage.PromptTokens != 0 || chunk.Usage.CompletionTokens != 0) {
				reportedUsage = true
			}
			if chunk.FinishReason != "" && !reportedUsage {
				prompt, _ := tok.CountMessages(toTokenizerMessages(req.Messages))
				completion, _ := tok.CountTokens(content)
				chunk.Usage = &llm.ChatUsage{
					PromptTokens:     prompt,
					CompletionTokens: completion,
					TotalTokens:      prompt + completion,
				}
			}
			out <- chunk
		}
	}()
	return out, nil
}

func toTokenizerMessages(messages []llm.Message) []tokenizer.Message {
	out := make([]tokenizer.Message, len(messages))
	for i, m := range messages {
		out[i] = tokenizer.Message{Role: string(m.Role), Content: m.Content}
	}
	return out
}
