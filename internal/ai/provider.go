// Package ai asks a language model for a replacement selector when every
// catalog strategy for an entry has failed.
package ai

import (
	"context"
	"fmt"

	"github.com/v0xg/studiopilot/internal/browser"
	"github.com/v0xg/studiopilot/internal/locator"
)

// Provider suggests one strategy for an entry from the page's inventory of
// interactive elements.
type Provider interface {
	Suggest(ctx context.Context, entry locator.Entry, inv browser.Inventory) (locator.Strategy, error)
}

// NewProvider creates a provider by name. An empty apiKey falls back to the
// provider's environment variables.
func NewProvider(name, model, apiKey string) (Provider, error) {
	switch name {
	case "claude", "anthropic":
		return NewClaudeProvider(model, apiKey)
	case "openai", "gpt":
		return NewOpenAIProvider(model, apiKey)
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: claude, openai)", name)
	}
}
