package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/v0xg/studiopilot/internal/browser"
	"github.com/v0xg/studiopilot/internal/locator"
)

const systemPrompt = `You repair element locators for a browser automation tool.

You will receive:
1. The logical element that could not be found, with a description and the strategies that no longer match
2. An inventory of the page's visible interactive elements (buttons, inputs, editable regions) with their tag, text, aria-label, role, placeholder and a CSS selector

Pick the single element from the inventory that best matches the logical element and answer with ONE JSON object, either:
  {"css": "<CSS selector>"}
or, when no stable selector exists:
  {"text": "<visible text>", "tag": "<tag name>"}

Guidelines:
- Only use elements present in the inventory
- Prefer attributes that survive redesigns: aria-label, role, data-* attributes, name, placeholder
- Avoid generated class names and positional selectors such as :nth-child
- If nothing in the inventory matches, answer {}

Respond ONLY with the JSON object, no explanation or markdown.`

func buildUserPrompt(entry locator.Entry, inv browser.Inventory) (string, error) {
	invJSON, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal inventory: %w", err)
	}
	var tried []string
	for _, s := range entry.Strategies {
		tried = append(tried, "- "+s.String())
	}
	return "Element: " + entry.Name +
		"\nDescription: " + entry.Description +
		"\nStrategies that failed:\n" + strings.Join(tried, "\n") +
		"\n\nPage inventory:\n" + string(invJSON), nil
}

type suggestion struct {
	CSS  string `json:"css"`
	Text string `json:"text"`
	Tag  string `json:"tag"`
}

// parseSuggestion extracts and parses a JSON object from a response that may
// contain surrounding text
func parseSuggestion(response string) (locator.Strategy, error) {
	var sg suggestion
	if err := json.Unmarshal([]byte(strings.TrimSpace(response)), &sg); err != nil {
		obj, ferr := findObject(response)
		if ferr != nil {
			return locator.Strategy{}, ferr
		}
		if err := json.Unmarshal([]byte(obj), &sg); err != nil {
			return locator.Strategy{}, fmt.Errorf("failed to parse extracted JSON: %w", err)
		}
	}

	var s locator.Strategy
	switch {
	case strings.TrimSpace(sg.CSS) != "":
		s = locator.CSS(strings.TrimSpace(sg.CSS))
	case strings.TrimSpace(sg.Text) != "":
		s = locator.Text(strings.TrimSpace(sg.Tag), strings.TrimSpace(sg.Text))
	default:
		return locator.Strategy{}, fmt.Errorf("no selector suggested")
	}
	if err := s.Validate(); err != nil {
		return locator.Strategy{}, err
	}
	return s, nil
}

// findObject returns the first balanced {...} in s, skipping braces inside
// JSON strings.
func findObject(s string) (string, error) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("no matching closing brace found")
}
