package ai

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/v0xg/studiopilot/internal/browser"
	"github.com/v0xg/studiopilot/internal/locator"
)

// OpenAIProvider implements Provider using OpenAI
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(model, apiKey string) (*OpenAIProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("STUDIOPILOT_OPENAI_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("STUDIOPILOT_OPENAI_KEY or OPENAI_API_KEY environment variable required")
	}

	if model == "" {
		model = "gpt-4o"
	}

	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Suggest asks OpenAI for a selector for entry
func (p *OpenAIProvider) Suggest(ctx context.Context, entry locator.Entry, inv browser.Inventory) (locator.Strategy, error) {
	userPrompt, err := buildUserPrompt(entry, inv)
	if err != nil {
		return locator.Strategy{}, err
	}

	resp, err := p.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: p.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: systemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: userPrompt,
				},
			},
			MaxTokens: 256,
		},
	)
	if err != nil {
		return locator.Strategy{}, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return locator.Strategy{}, fmt.Errorf("empty response from OpenAI")
	}

	responseText := resp.Choices[0].Message.Content
	s, err := parseSuggestion(responseText)
	if err != nil {
		return locator.Strategy{}, fmt.Errorf("failed to parse OpenAI response: %w\nResponse: %s", err, responseText)
	}
	return s, nil
}
