package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/v0xg/studiopilot/internal/browser"
	"github.com/v0xg/studiopilot/internal/browser/fakedom"
	"github.com/v0xg/studiopilot/internal/diagnostics"
	"github.com/v0xg/studiopilot/internal/locator"
)

const testCatalog = `
version: test
entries:
  button:
    description: the primary action button
    strategies:
      - css: "#primary"
      - css: ".fallback"
      - text: "Go"
        tag: button
  overlay:
    strategies:
      - css: ".backdrop"
      - css: "[aria-modal='true']"
  file_input:
    strategies:
      - css: "input[type='file']"
  field:
    strategies:
      - css: "textarea"
`

var (
	byPrimary  = locator.CSS("#primary")
	byFallback = locator.CSS(".fallback")
	byGoText   = locator.Text("button", "Go")
	byBackdrop = locator.CSS(".backdrop")
	byFile     = locator.CSS("input[type='file']")
	byField    = locator.CSS("textarea")
)

func testTiming() Timing {
	return Timing{
		Budget:         60 * time.Millisecond,
		MinSlice:       5 * time.Millisecond,
		Interval:       2 * time.Millisecond,
		StaleRetries:   2,
		ChunkSize:      5,
		AdvisorTimeout: 20 * time.Millisecond,
	}
}

func testCatalogT(t *testing.T) *locator.Catalog {
	t.Helper()
	c, err := locator.Parse([]byte(testCatalog))
	require.NoError(t, err)
	return c
}

type captureSpy struct {
	mu      sync.Mutex
	actions []string
}

func (c *captureSpy) Capture(ctx context.Context, action string, err error) *diagnostics.ErrorReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, action)
	return &diagnostics.ErrorReport{ID: "spy", Action: action}
}

func (c *captureSpy) Actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.actions...)
}

type fixture struct {
	page     *fakedom.Page
	resolver *Resolver
	executor *Executor
	spy      *captureSpy
}

func newFixture(t *testing.T, log *zap.Logger, opts ...Option) *fixture {
	t.Helper()
	if log == nil {
		log = zaptest.NewLogger(t)
	}
	page := fakedom.New()
	spy := &captureSpy{}
	r := NewResolver(testCatalogT(t), page, testTiming(), log, opts...)
	return &fixture{
		page:     page,
		resolver: r,
		executor: NewExecutor(r, spy, log),
		spy:      spy,
	}
}

type stubAdvisor struct {
	s     locator.Strategy
	err   error
	calls int
	// hang blocks Suggest until ctx ends.
	hang bool
}

func (a *stubAdvisor) Suggest(ctx context.Context, e locator.Entry, inv browser.Inventory) (locator.Strategy, error) {
	a.calls++
	if a.hang {
		<-ctx.Done()
		return locator.Strategy{}, ctx.Err()
	}
	return a.s, a.err
}

type clickLog struct {
	labels []string
}

func (c *clickLog) Clicked(ctx context.Context, label string, el browser.Element) {
	c.labels = append(c.labels, label)
}
