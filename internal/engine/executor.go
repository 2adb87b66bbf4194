package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/v0xg/studiopilot/internal/browser"
	"github.com/v0xg/studiopilot/internal/locator"
	"github.com/v0xg/studiopilot/internal/poll"
)

// Observer is told about every successful click.
type Observer interface {
	Clicked(ctx context.Context, label string, el browser.Element)
}

// LocateFunc produces the element to act on. It is called again after a
// stale failure.
type LocateFunc func(ctx context.Context) (browser.Element, error)

// Executor performs clicks, typing and uploads with overlay and staleness recovery.
type Executor struct {
	resolver *Resolver
	page     browser.Page
	timing   Timing
	log      *zap.Logger
	reporter Reporter
	observer Observer
}

// NewExecutor returns an executor resolving through r. reporter may be nil.
func NewExecutor(r *Resolver, reporter Reporter, log *zap.Logger) *Executor {
	return &Executor{
		resolver: r,
		page:     r.page,
		timing:   r.timing,
		log:      log.Named("executor"),
		reporter: reporter,
	}
}

// SetObserver installs o; nil removes it.
func (e *Executor) SetObserver(o Observer) { e.observer = o }

// Resolver returns the executor's resolver.
func (e *Executor) Resolver() *Resolver { return e.resolver }

// Click resolves the named entry and clicks it.
func (e *Executor) Click(ctx context.Context, name string) error {
	return e.ClickWith(ctx, name, func(ctx context.Context) (browser.Element, error) {
		return e.resolver.Resolve(ctx, name, 0)
	})
}

// ClickElement clicks an already resolved element. It cannot re-resolve, so
// a stale element fails at once.
func (e *Executor) ClickElement(ctx context.Context, label string, el browser.Element) error {
	used := false
	return e.ClickWith(ctx, label, func(ctx context.Context) (browser.Element, error) {
		if used {
			return nil, fmt.Errorf("%w: %s cannot be re-resolved", browser.ErrStale, label)
		}
		used = true
		return el, nil
	})
}

// ClickWith clicks whatever locate returns. Each attempt scrolls the element
// to the viewport center and clicks natively; an intercepted click dismisses
// overlays and falls back to a forced click. Stale or intercepted attempts
// are retried up to Timing.StaleRetries times.
func (e *Executor) ClickWith(ctx context.Context, label string, locate LocateFunc) error {
	attempts := 1 + e.timing.StaleRetries
	var last error
	n := 0
	for n < attempts {
		n++
		el, err := locate(ctx)
		if err != nil {
			last = err
			break
		}
		err = e.click(ctx, label, el)
		if err == nil {
			e.log.Debug("clicked", zap.String("target", label), zap.Int("attempt", n))
			if e.observer != nil {
				e.observer.Clicked(ctx, label, el)
			}
			return nil
		}
		last = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, browser.ErrStale) && !errors.Is(err, browser.ErrIntercepted) {
			break
		}
		e.log.Debug("click retry", zap.String("target", label), zap.Int("attempt", n), zap.Error(err))
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return e.fail(ctx, &InteractionError{Action: "click", Entry: label, Attempts: n, Err: last})
}

func (e *Executor) click(ctx context.Context, label string, el browser.Element) error {
	if err := el.ScrollIntoView(ctx); err != nil {
		if errors.Is(err, browser.ErrStale) {
			return err
		}
		e.log.Debug("scroll into view failed", zap.String("target", label), zap.Error(err))
	}
	if err := poll.Settle(ctx, e.timing.Settle); err != nil {
		return err
	}

	err := el.Click(ctx)
	if err == nil || !errors.Is(err, browser.ErrIntercepted) {
		return err
	}

	e.log.Info("click intercepted, dismissing overlays", zap.String("target", label))
	e.DismissOverlays(ctx)
	if err := el.ForceClick(ctx); err != nil {
		return fmt.Errorf("forced click: %w", err)
	}
	return nil
}

// DismissOverlays presses Escape and hides every visible element matched by
// the catalog's overlay entry.
func (e *Executor) DismissOverlays(ctx context.Context) {
	if err := e.page.PressKey(ctx, browser.KeyEscape); err != nil {
		e.log.Debug("escape failed", zap.Error(err))
	}
	_ = poll.Settle(ctx, e.timing.Settle)

	entry, ok := e.resolver.catalog.Entry(locator.Overlay)
	if !ok {
		return
	}
	hidden := 0
	for _, s := range entry.Strategies {
		if s.Method != locator.Structural {
			continue
		}
		n, err := e.page.HideMatching(ctx, s.Expr)
		if err != nil {
			e.log.Debug("hide overlay failed", zap.Stringer("by", s), zap.Error(err))
			continue
		}
		hidden += n
	}
	if hidden > 0 {
		e.log.Debug("overlays hidden", zap.Int("count", hidden))
	}
}

// Type replaces the content of the named input with text. Payloads longer
// than Timing.ChunkSize runes are entered in chunks with a pause between.
func (e *Executor) Type(ctx context.Context, name, text string) error {
	chunks := splitRunes(text, e.timing.ChunkSize)
	attempts := 1 + e.timing.StaleRetries
	var last error
	n := 0
	for n < attempts {
		n++
		el, err := e.resolver.Resolve(ctx, name, 0)
		if err != nil {
			last = err
			break
		}
		err = e.typeInto(ctx, el, chunks)
		if err == nil {
			e.log.Debug("typed", zap.String("target", name), zap.Int("chunks", len(chunks)))
			return nil
		}
		last = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, browser.ErrStale) {
			break
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return e.fail(ctx, &InteractionError{Action: "type", Entry: name, Attempts: n, Err: last})
}

func (e *Executor) typeInto(ctx context.Context, el browser.Element, chunks []string) error {
	if err := el.Clear(ctx); err != nil {
		return err
	}
	for i, c := range chunks {
		if i > 0 {
			if err := poll.Settle(ctx, e.timing.ChunkPause); err != nil {
				return err
			}
		}
		if err := el.Input(ctx, c); err != nil {
			return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

// UploadFile puts absPath into the named file input. The input may be
// hidden, so it is located by presence and forced visible first.
func (e *Executor) UploadFile(ctx context.Context, name, absPath string) error {
	if !filepath.IsAbs(absPath) {
		return fmt.Errorf("upload path must be absolute: %s", absPath)
	}
	el, err := e.resolver.Locate(ctx, name, 0)
	if err != nil {
		return e.fail(ctx, &InteractionError{Action: "upload", Entry: name, Attempts: 1, Err: err})
	}
	if err := el.Reveal(ctx); err != nil {
		e.log.Debug("reveal file input failed", zap.Error(err))
	}
	if err := el.SetFiles(ctx, absPath); err != nil {
		return e.fail(ctx, &InteractionError{Action: "upload", Entry: name, Attempts: 1, Err: err})
	}
	e.log.Info("file handed to input", zap.String("path", absPath))
	return nil
}

func (e *Executor) fail(ctx context.Context, err *InteractionError) error {
	e.log.Warn("interaction failed",
		zap.String("action", err.Action),
		zap.String("target", err.Entry),
		zap.Int("attempts", err.Attempts),
		zap.Error(err.Err))
	if e.reporter != nil {
		e.reporter.Capture(ctx, err.Action+"_"+err.Entry, err)
	}
	return err
}

// splitRunes cuts s into pieces of at most size runes. A non-positive size
// returns s whole.
func splitRunes(s string, size int) []string {
	r := []rune(s)
	if size <= 0 || len(r) <= size {
		return []string{s}
	}
	out := make([]string, 0, len(r)/size+1)
	for len(r) > 0 {
		n := size
		if n > len(r) {
			n = len(r)
		}
		out = append(out, string(r[:n]))
		r = r[n:]
	}
	return out
}
