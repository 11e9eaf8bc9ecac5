package providers

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/iffystrayer/greenlight/internal/llm"
)

// toMessages converts a completion request to langchaingo message content.
func toMessages(req llm.CompletionRequest) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		messages = append(messages, llms.MessageContent{
			Role:  schema.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(req.System)},
		})
	}
	messages = append(messages, llms.MessageContent{
		Role:  schema.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(req.Prompt)},
	})
	return messages
}

// callOptions converts request knobs to langchaingo call options.
func callOptions(req llm.CompletionRequest) []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithTemperature(req.Temperature),
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	return opts
}

// generate runs one completion through a langchaingo model and extracts the
// first choice's content.
func generate(ctx context.Context, provider string, model llms.Model, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := model.GenerateContent(ctx, toMessages(req), callOptions(req)...)
	if err != nil {
		return nil, llm.TranslateError(provider, err)
	}
	if len(resp.Choices) == 0 {
		return nil, llm.TranslateError(provider, fmt.Errorf("empty response: no choices returned"))
	}
	return &llm.CompletionResponse{Content: resp.Choices[0].Content}, nil
}
