// Package engine turns catalog entries into live elements and performs
// interactions on them with bounded retries.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/studiopilot/internal/browser"
	"github.com/v0xg/studiopilot/internal/diagnostics"
	"github.com/v0xg/studiopilot/internal/locator"
	"github.com/v0xg/studiopilot/internal/poll"
)

// Finder is anything strategies can be evaluated against: a page or an element.
type Finder interface {
	Find(ctx context.Context, s locator.Strategy) ([]browser.Element, error)
}

// Reporter captures diagnostics for a failure.
type Reporter interface {
	Capture(ctx context.Context, action string, err error) *diagnostics.ErrorReport
}

// Advisor proposes one extra strategy for an entry the catalog could not resolve.
type Advisor interface {
	Suggest(ctx context.Context, entry locator.Entry, inv browser.Inventory) (locator.Strategy, error)
}

// Resolver maps catalog entries to visible elements.
type Resolver struct {
	catalog  *locator.Catalog
	page     browser.Page
	timing   Timing
	log      *zap.Logger
	reporter Reporter
	advisor  Advisor
}

// Option configures optional collaborators.
type Option func(*Resolver)

// WithReporter enables diagnostic captures for misses when debug logging is on.
func WithReporter(r Reporter) Option {
	return func(res *Resolver) { res.reporter = r }
}

// WithAdvisor enables the last-resort selector advisor.
func WithAdvisor(a Advisor) Option {
	return func(res *Resolver) { res.advisor = a }
}

// NewResolver returns a resolver over page.
func NewResolver(catalog *locator.Catalog, page browser.Page, timing Timing, log *zap.Logger, opts ...Option) *Resolver {
	r := &Resolver{catalog: catalog, page: page, timing: timing, log: log.Named("resolver")}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Catalog returns the catalog entries are looked up in.
func (r *Resolver) Catalog() *locator.Catalog { return r.catalog }

// Page returns the page being resolved against.
func (r *Resolver) Page() browser.Page { return r.page }

// Timing returns the resolver's timing configuration.
func (r *Resolver) Timing() Timing { return r.timing }

// Entry looks up a catalog entry, failing for unknown names.
func (r *Resolver) Entry(name string) (locator.Entry, error) {
	e, ok := r.catalog.Entry(name)
	if !ok {
		return locator.Entry{}, fmt.Errorf("unknown catalog entry %q", name)
	}
	return e, nil
}

// Resolve returns the first visible element produced by the named entry's
// strategies, tried in order. A zero budget uses the configured default.
func (r *Resolver) Resolve(ctx context.Context, name string, budget time.Duration) (browser.Element, error) {
	e, err := r.Entry(name)
	if err != nil {
		return nil, err
	}
	return r.ResolveEntry(ctx, e, budget)
}

// ResolveEntry is Resolve for an entry that is not in the catalog.
func (r *Resolver) ResolveEntry(ctx context.Context, e locator.Entry, budget time.Duration) (browser.Element, error) {
	return r.ResolveIn(ctx, r.page, e, budget)
}

// ResolveIn resolves e among root's descendants.
func (r *Resolver) ResolveIn(ctx context.Context, root Finder, e locator.Entry, budget time.Duration) (browser.Element, error) {
	els, err := r.search(ctx, root, e, budget, true, false)
	if err != nil {
		return nil, err
	}
	return els[0], nil
}

// Locate is Resolve without the visibility requirement. File inputs are
// usually hidden and still accept files.
func (r *Resolver) Locate(ctx context.Context, name string, budget time.Duration) (browser.Element, error) {
	e, err := r.Entry(name)
	if err != nil {
		return nil, err
	}
	els, err := r.search(ctx, r.page, e, budget, false, false)
	if err != nil {
		return nil, err
	}
	return els[0], nil
}

// ResolveAll returns every visible match of the first strategy that has any.
func (r *Resolver) ResolveAll(ctx context.Context, name string, budget time.Duration) ([]browser.Element, error) {
	e, err := r.Entry(name)
	if err != nil {
		return nil, err
	}
	return r.ResolveAllIn(ctx, r.page, e, budget)
}

// ResolveAllIn is ResolveAll scoped to root.
func (r *Resolver) ResolveAllIn(ctx context.Context, root Finder, e locator.Entry, budget time.Duration) ([]browser.Element, error) {
	return r.search(ctx, root, e, budget, true, true)
}

// Peek evaluates e once against root. It never waits, captures or asks
// the advisor, so it suits polling loops that decide on absence themselves.
func (r *Resolver) Peek(ctx context.Context, root Finder, e locator.Entry) browser.Element {
	for _, s := range e.Strategies {
		if found, _ := r.matches(ctx, root, s, true, false); len(found) > 0 {
			return found[0]
		}
	}
	return nil
}

// search walks e's strategies. Each strategy gets an equal share of the
// budget, never less than Timing.MinSlice, and is polled within that share.
func (r *Resolver) search(ctx context.Context, root Finder, e locator.Entry, budget time.Duration, visible, all bool) ([]browser.Element, error) {
	if len(e.Strategies) == 0 {
		return nil, fmt.Errorf("entry %q has no strategies", e.Name)
	}
	if budget <= 0 {
		budget = r.timing.Budget
	}
	slice := budget / time.Duration(len(e.Strategies))
	if slice < r.timing.MinSlice {
		slice = r.timing.MinSlice
	}

	start := time.Now()
	for i, s := range e.Strategies {
		var (
			found []browser.Element
			stale bool
		)
		ok, err := poll.Until(ctx, r.timing.Interval, slice, func() bool {
			found, stale = r.matches(ctx, root, s, visible, all)
			return len(found) > 0 || stale
		})
		if err != nil {
			return nil, err
		}
		if ok && len(found) > 0 {
			r.log.Debug("resolved",
				zap.String("entry", e.Name),
				zap.Int("strategy", i),
				zap.Stringer("by", s),
				zap.Duration("elapsed", time.Since(start)))
			return found, nil
		}
		r.log.Debug("strategy missed",
			zap.String("entry", e.Name),
			zap.Int("strategy", i),
			zap.Stringer("by", s),
			zap.Bool("stale", stale))
	}

	if el := r.advise(ctx, root, e, visible); el != nil {
		return []browser.Element{el}, nil
	}

	nf := &NotFoundError{Entry: e.Name, Strategies: len(e.Strategies), Waited: time.Since(start)}
	r.log.Debug("entry exhausted", zap.String("entry", e.Name), zap.Duration("waited", nf.Waited))
	if r.reporter != nil && r.log.Core().Enabled(zap.DebugLevel) {
		nf.Report = r.reporter.Capture(ctx, "resolve_"+e.Name, nf)
	}
	return nil, nf
}

// matches evaluates one strategy once. A stale candidate abandons the
// strategy for this resolve.
func (r *Resolver) matches(ctx context.Context, root Finder, s locator.Strategy, visible, all bool) ([]browser.Element, bool) {
	els, err := root.Find(ctx, s)
	if err != nil {
		if errors.Is(err, browser.ErrStale) {
			return nil, true
		}
		r.log.Debug("query failed", zap.Stringer("by", s), zap.Error(err))
		return nil, false
	}
	if !visible {
		if len(els) > 0 && !all {
			return els[:1], false
		}
		return els, false
	}

	var out []browser.Element
	for _, el := range els {
		ok, err := el.Visible(ctx)
		if err != nil {
			if errors.Is(err, browser.ErrStale) {
				return nil, true
			}
			continue
		}
		if !ok {
			continue
		}
		out = append(out, el)
		if !all {
			break
		}
	}
	return out, false
}

// advise asks the advisor for one more strategy and tries it once.
func (r *Resolver) advise(ctx context.Context, root Finder, e locator.Entry, visible bool) browser.Element {
	if r.advisor == nil || ctx.Err() != nil {
		return nil
	}
	inv, err := r.page.Inventory(ctx)
	if err != nil {
		r.log.Debug("inventory for advisor failed", zap.Error(err))
		return nil
	}
	actx, cancel := context.WithTimeout(ctx, r.timing.advisorTimeout())
	s, err := r.advisor.Suggest(actx, e, inv)
	cancel()
	if err != nil {
		r.log.Warn("advisor gave no selector", zap.String("entry", e.Name), zap.Error(err))
		return nil
	}
	if err := s.Validate(); err != nil {
		r.log.Warn("advisor selector rejected", zap.String("entry", e.Name), zap.Error(err))
		return nil
	}
	found, _ := r.matches(ctx, root, s, visible, false)
	if len(found) == 0 {
		r.log.Warn("advisor selector matched nothing", zap.String("entry", e.Name), zap.Stringer("by", s))
		return nil
	}
	r.log.Info("resolved via advisor; consider adding it to the catalog",
		zap.String("entry", e.Name), zap.Stringer("by", s))
	return found[0]
}
