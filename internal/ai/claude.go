package ai

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/v0xg/studiopilot/internal/browser"
	"github.com/v0xg/studiopilot/internal/locator"
)

// ClaudeProvider implements Provider using Anthropic's Claude
type ClaudeProvider struct {
	client *anthropic.Client
	model  string
}

// NewClaudeProvider creates a new Claude provider
func NewClaudeProvider(model, apiKey string) (*ClaudeProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("STUDIOPILOT_ANTHROPIC_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("STUDIOPILOT_ANTHROPIC_KEY or ANTHROPIC_API_KEY environment variable required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_20250514)
	}

	return &ClaudeProvider{
		client: &client,
		model:  model,
	}, nil
}

// Suggest asks Claude for a selector for entry
func (p *ClaudeProvider) Suggest(ctx context.Context, entry locator.Entry, inv browser.Inventory) (locator.Strategy, error) {
	userPrompt, err := buildUserPrompt(entry, inv)
	if err != nil {
		return locator.Strategy{}, err
	}

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 256,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return locator.Strategy{}, fmt.Errorf("Claude API error: %w", err)
	}

	var responseText string
	for _, block := range resp.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}
	if responseText == "" {
		return locator.Strategy{}, fmt.Errorf("empty response from Claude")
	}

	s, err := parseSuggestion(responseText)
	if err != nil {
		return locator.Strategy{}, fmt.Errorf("failed to parse Claude response: %w\nResponse: %s", err, responseText)
	}
	return s, nil
}
