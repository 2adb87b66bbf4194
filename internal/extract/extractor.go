// Package extract finds the most recent AI answer in the chat panel.
package extract

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/v0xg/studiopilot/internal/browser"
	"github.com/v0xg/studiopilot/internal/locator"
)

// Config holds the answer filters. The values were tuned against one
// snapshot of the target UI and are expected to change with it.
type Config struct {
	MinLength int
	MaxLength int
	// EchoPrefix is how many leading runes of the sent text identify an echo.
	EchoPrefix int
	// DenyWindow is how many leading runes of a candidate are searched for DenyList phrases.
	DenyWindow int
	DenyList   []string
}

// DefaultConfig returns the thresholds without a deny-list; the list comes
// from configuration.
func DefaultConfig() Config {
	return Config{MinLength: 50, MaxLength: 10000, EchoPrefix: 50, DenyWindow: 200}
}

// Extractor reads answers out of the page. It never waits; callers poll.
type Extractor struct {
	page    browser.Page
	catalog *locator.Catalog
	cfg     Config
	deny    []string
	log     *zap.Logger
}

// New returns an extractor.
func New(page browser.Page, catalog *locator.Catalog, cfg Config, log *zap.Logger) *Extractor {
	deny := make([]string, 0, len(cfg.DenyList))
	for _, p := range cfg.DenyList {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			deny = append(deny, p)
		}
	}
	return &Extractor{page: page, catalog: catalog, cfg: cfg, deny: deny, log: log.Named("extract")}
}

type finder interface {
	Find(ctx context.Context, s locator.Strategy) ([]browser.Element, error)
}

// Answer is an accepted candidate and where it sits in the chat.
type Answer struct {
	Text string
	// Strategy is the index of the catalog strategy that found the
	// candidate and Position its index among that strategy's matches.
	Strategy int
	Position int
}

// After reports whether a was rendered after prev. A later position, a
// different strategy or different text all mean a different node, so an
// answer that repeats the previous one word for word is still new.
func (a Answer) After(prev Answer) bool {
	return a.Strategy != prev.Strategy || a.Position > prev.Position || a.Text != prev.Text
}

// LatestAnswer returns the text of Latest.
func (x *Extractor) LatestAnswer(ctx context.Context, sent string) (string, bool) {
	a, ok := x.Latest(ctx, sent)
	return a.Text, ok
}

// Latest returns the most recently rendered candidate that passes every
// filter. ok is false when nothing qualifies, which means the answer is not
// there yet or the UI changed shape.
func (x *Extractor) Latest(ctx context.Context, sent string) (Answer, bool) {
	root := x.root(ctx)
	entry, ok := x.catalog.Entry(locator.AnswerCandidate)
	if !ok {
		x.log.Warn("catalog has no answer candidates entry")
		return Answer{}, false
	}

	echo := strings.ToLower(firstRunes(strings.TrimSpace(sent), x.cfg.EchoPrefix))
	for si, s := range entry.Strategies {
		els, err := root.Find(ctx, s)
		if err != nil {
			x.log.Debug("candidate query failed", zap.Stringer("by", s), zap.Error(err))
			continue
		}
		for i := len(els) - 1; i >= 0; i-- {
			text, reason := x.check(ctx, els[i], echo)
			if reason == "" {
				x.log.Debug("answer found", zap.Stringer("by", s), zap.Int("index", i), zap.Int("runes", utf8.RuneCountInString(text)))
				return Answer{Text: text, Strategy: si, Position: i}, true
			}
			x.log.Debug("candidate rejected", zap.Stringer("by", s), zap.Int("index", i), zap.String("reason", reason))
		}
	}
	return Answer{}, false
}

// root narrows the search to the chat panel when one is rendered.
func (x *Extractor) root(ctx context.Context) finder {
	entry, ok := x.catalog.Entry(locator.ChatPanel)
	if !ok {
		return x.page
	}
	for _, s := range entry.Strategies {
		els, err := x.page.Find(ctx, s)
		if err != nil {
			continue
		}
		for _, el := range els {
			if vis, err := el.Visible(ctx); err == nil && vis {
				return el
			}
		}
	}
	return x.page
}

// check returns the candidate text and an empty reason if it qualifies.
func (x *Extractor) check(ctx context.Context, el browser.Element, echo string) (string, string) {
	vis, err := el.Visible(ctx)
	if err != nil || !vis {
		return "", "invisible"
	}
	text, err := el.Text(ctx)
	if err != nil {
		return "", "unreadable"
	}
	text = strings.TrimSpace(text)

	n := utf8.RuneCountInString(text)
	if n < x.cfg.MinLength {
		return "", "too short"
	}
	if x.cfg.MaxLength > 0 && n > x.cfg.MaxLength {
		return "", "too long"
	}
	lower := strings.ToLower(text)
	if echo != "" && strings.HasPrefix(lower, echo) {
		return "", "echo of sent text"
	}
	window := strings.ToLower(firstRunes(text, x.cfg.DenyWindow))
	for _, p := range x.deny {
		if strings.Contains(window, p) {
			return "", "deny-listed: " + p
		}
	}
	return text, ""
}

func firstRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
