package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/studiopilot/internal/browser"
	"github.com/v0xg/studiopilot/internal/engine"
	"github.com/v0xg/studiopilot/internal/locator"
	"github.com/v0xg/studiopilot/internal/poll"
)

// Config tunes the orchestrator.
type Config struct {
	// Language is picked in customization dialogs.
	Language         string
	LanguageRequired []MaterialType
	// SelectAllLabels mark the select-all row in the source list; matched as
	// case-insensitive substrings of the checkbox label.
	SelectAllLabels []string

	// StepBudget is the resolve budget for required controls. Zero uses the
	// resolver default.
	StepBudget time.Duration
	// OptionalBudget is the resolve budget for steps that may be absent.
	OptionalBudget time.Duration

	// ListboxScrolls bounds how often the language list is scrolled while
	// looking for the option.
	ListboxScrolls int
	ScrollStep     float64

	SelectDelay   time.Duration
	DialogDelay   time.Duration
	MaterialDelay time.Duration

	// GeneratingMarkers identify studio rows that are still being produced.
	GeneratingMarkers []string
	DownloadTimeout   time.Duration
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Language:          "English",
		LanguageRequired:  DefaultLanguageRequired(),
		SelectAllLabels:   []string{"alle quellen", "select all", "all sources"},
		OptionalBudget:    3 * time.Second,
		ListboxScrolls:    8,
		ScrollStep:        200,
		SelectDelay:       time.Second,
		DialogDelay:       2 * time.Second,
		MaterialDelay:     2 * time.Second,
		GeneratingMarkers: []string{"wird erstellt", "kommen sie in", "generating", "come back in"},
		DownloadTimeout:   2 * time.Minute,
	}
}

// Orchestrator runs material generation over the sources of one notebook.
type Orchestrator struct {
	exec     *engine.Executor
	res      *engine.Resolver
	page     browser.Page
	reporter engine.Reporter
	cfg      Config
	log      *zap.Logger

	language map[MaterialType]bool
	now      func() time.Time

	mu       sync.Mutex
	statuses []MaterialStatus
}

// New returns an orchestrator. reporter may be nil.
func New(exec *engine.Executor, reporter engine.Reporter, cfg Config, log *zap.Logger) *Orchestrator {
	lang := make(map[MaterialType]bool, len(cfg.LanguageRequired))
	for _, t := range cfg.LanguageRequired {
		lang[t] = true
	}
	return &Orchestrator{
		exec:     exec,
		res:      exec.Resolver(),
		page:     exec.Resolver().Page(),
		reporter: reporter,
		cfg:      cfg,
		log:      log.Named("studio"),
		language: lang,
		now:      time.Now,
	}
}

// RequiresLanguage reports whether t goes through the customization dialog.
func (o *Orchestrator) RequiresLanguage(t MaterialType) bool { return o.language[t] }

// ListSources returns the notebook's sources in panel order, without the
// select-all row.
func (o *Orchestrator) ListSources(ctx context.Context) ([]DataSource, error) {
	o.tryClick(ctx, locator.SourcesTab)

	els, err := o.res.ResolveAll(ctx, locator.SourceCheckbox, o.cfg.StepBudget)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	var sources []DataSource
	seen := make(map[string]int)
	for i, el := range els {
		label, ok, err := el.Attribute(ctx, "aria-label")
		if err != nil || !ok || strings.TrimSpace(label) == "" {
			continue
		}
		if o.isSelectAll(label) {
			continue
		}
		name := strings.TrimSpace(label)
		sources = append(sources, newDataSource(name, i, seen[name], el))
		seen[name]++
	}
	o.log.Info("sources listed", zap.Int("count", len(sources)))
	return sources, nil
}

func (o *Orchestrator) isSelectAll(label string) bool {
	l := strings.ToLower(label)
	for _, m := range o.cfg.SelectAllLabels {
		if m != "" && strings.Contains(l, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// DeselectAll leaves every source unchecked. The select-all control only
// clears when it is checked, so an unchecked one is clicked twice.
func (o *Orchestrator) DeselectAll(ctx context.Context) error {
	el, err := o.res.Resolve(ctx, locator.SelectAllSources, o.cfg.StepBudget)
	if err != nil {
		return fmt.Errorf("deselect all: %w", err)
	}
	checked, err := el.Checked(ctx)
	if err != nil {
		return fmt.Errorf("deselect all: %w", err)
	}
	clicks := 2
	if checked {
		clicks = 1
	}
	for i := 0; i < clicks; i++ {
		if err := o.exec.Click(ctx, locator.SelectAllSources); err != nil {
			return fmt.Errorf("deselect all: %w", err)
		}
		if err := poll.Settle(ctx, o.cfg.SelectDelay/2); err != nil {
			return err
		}
	}
	return poll.Settle(ctx, o.cfg.SelectDelay/2)
}

// Select checks src's checkbox and verifies it ended up checked. A stale
// handle is looked up again by label and occurrence.
func (o *Orchestrator) Select(ctx context.Context, src DataSource) error {
	used := src.handle == nil
	locate := func(ctx context.Context) (browser.Element, error) {
		if !used {
			used = true
			return src.handle, nil
		}
		return o.findSource(ctx, src)
	}
	if err := o.exec.ClickWith(ctx, "source "+src.Label(), locate); err != nil {
		return fmt.Errorf("select %s: %w", src.Label(), err)
	}
	if err := poll.Settle(ctx, o.cfg.SelectDelay); err != nil {
		return err
	}

	el, err := o.findSource(ctx, src)
	if err != nil {
		return fmt.Errorf("select %s: %w", src.Label(), err)
	}
	checked, err := el.Checked(ctx)
	if err != nil {
		return fmt.Errorf("select %s: %w", src.Label(), err)
	}
	if !checked {
		err := fmt.Errorf("select %s: checkbox stayed unchecked", src.Label())
		o.capture(ctx, "select_source", err)
		return err
	}
	return nil
}

// findSource returns the checkbox of src: the Occurrence-th one labelled
// src.Name.
func (o *Orchestrator) findSource(ctx context.Context, src DataSource) (browser.Element, error) {
	els, err := o.res.ResolveAll(ctx, locator.SourceCheckbox, o.cfg.StepBudget)
	if err != nil {
		return nil, err
	}
	n := 0
	for _, el := range els {
		label, ok, err := el.Attribute(ctx, "aria-label")
		if err != nil || !ok || strings.TrimSpace(label) != src.Name {
			continue
		}
		if n == src.Occurrence {
			return el, nil
		}
		n++
	}
	return nil, fmt.Errorf("%w: no source checkbox %s", engine.ErrNotFound, src.Key())
}

// Generate starts one material for the currently selected source. It always
// records exactly one status. The error is reserved for conditions that
// should stop the whole run: cancellation or a dead session.
func (o *Orchestrator) Generate(ctx context.Context, src DataSource, t MaterialType) (MaterialStatus, error) {
	st := MaterialStatus{Type: t, Source: src.Label(), Timestamp: o.now()}
	log := o.log.With(zap.String("source", src.Label()), zap.Stringer("type", t))
	log.Info("generating")

	fail := func(step string, err error) (MaterialStatus, error) {
		st.Error = fmt.Sprintf("%s: %v", step, err)
		o.record(st)
		log.Warn("generation failed", zap.String("step", step), zap.Error(err))
		return st, abortCause(ctx, err)
	}

	if err := o.exec.Click(ctx, t.Entry()); err != nil {
		return fail("open", err)
	}
	o.state(log, "control-clicked")

	if o.RequiresLanguage(t) {
		if err := poll.Settle(ctx, o.cfg.DialogDelay); err != nil {
			return fail("dialog", err)
		}
		if err := o.selectLanguage(ctx); err != nil {
			if cause := abortCause(ctx, err); cause != nil {
				return fail("language", err)
			}
			log.Warn("language not selected, keeping the dialog default", zap.Error(err))
		} else {
			o.state(log, "language-set")
		}
		if err := o.exec.Click(ctx, locator.CreateButton); err != nil {
			return fail("confirm", err)
		}
		o.state(log, "confirmed")
	}

	st.Started = true
	o.record(st)
	log.Info("generation started")
	if err := poll.Settle(ctx, o.cfg.MaterialDelay); err != nil {
		return st, err
	}
	return st, nil
}

// selectLanguage opens the language dropdown and picks cfg.Language,
// scrolling the list until the option is rendered.
func (o *Orchestrator) selectLanguage(ctx context.Context) error {
	dd, err := o.res.Resolve(ctx, locator.LanguageDropdown, o.cfg.OptionalBudget)
	if err != nil {
		return err
	}
	if current, err := dd.Text(ctx); err == nil && strings.Contains(strings.ToLower(current), strings.ToLower(o.cfg.Language)) {
		o.log.Debug("language already selected", zap.String("language", o.cfg.Language))
		return nil
	}
	if err := o.exec.ClickElement(ctx, locator.LanguageDropdown, dd); err != nil {
		return err
	}

	option := LanguageOption(o.cfg.Language)
	listbox, _ := o.res.Entry(locator.LanguageListbox)
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if el := o.res.Peek(ctx, o.page, option); el != nil {
			return o.exec.ClickElement(ctx, option.Name, el)
		}
		if i >= o.cfg.ListboxScrolls {
			break
		}
		target := o.res.Peek(ctx, o.page, listbox)
		if target == nil {
			target = dd
		}
		if err := target.ScrollBy(ctx, o.cfg.ScrollStep); err != nil {
			o.log.Debug("listbox scroll failed", zap.Error(err))
		}
		if err := poll.Settle(ctx, o.res.Timing().Settle); err != nil {
			return err
		}
	}
	if err := o.page.PressKey(ctx, browser.KeyEscape); err != nil {
		o.log.Debug("closing language list failed", zap.Error(err))
	}
	return fmt.Errorf("language option %q not found", o.cfg.Language)
}

// ProcessSources generates types for every source whose name matches one of
// patterns, one source selected at a time. The result maps DataSource.Key to
// one status per attempted type. A source that cannot be selected gets a
// failed status for every type and the run moves on. Only cancellation or a
// dead session end the run early; the partial result is returned with it.
func (o *Orchestrator) ProcessSources(ctx context.Context, patterns []string, types []MaterialType) (map[string][]MaterialStatus, error) {
	r := newRun(patterns, types)
	err := o.process(ctx, r)
	return r.results, err
}

// process runs the sources of r that are not finished yet. Types already
// started for a source in an earlier, interrupted attempt are not repeated.
func (o *Orchestrator) process(ctx context.Context, r *Run) error {
	if !o.page.Alive(ctx) {
		return fmt.Errorf("%w: listing sources", browser.ErrSessionDead)
	}
	all, err := o.ListSources(ctx)
	if err != nil {
		return err
	}
	var sources []DataSource
	for _, s := range all {
		if s.Match(r.patterns) {
			sources = append(sources, s)
		}
	}
	if len(sources) == 0 {
		return fmt.Errorf("no source matches %q among %d sources", r.patterns, len(all))
	}

	for i, src := range sources {
		key := src.Key()
		if r.done[key] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !o.page.Alive(ctx) {
			return fmt.Errorf("%w: before source %s", browser.ErrSessionDead, src.Label())
		}
		todo := r.begin(key)
		if len(todo) == 0 {
			r.finish(key)
			continue
		}
		log := o.log.With(zap.String("source", src.Label()))
		log.Info("processing source", zap.Int("n", i+1), zap.Int("of", len(sources)))

		if err := o.DeselectAll(ctx); err != nil {
			if cause := abortCause(ctx, err); cause != nil {
				return cause
			}
			log.Warn("deselect failed", zap.Error(err))
		}
		if err := o.Select(ctx, src); err != nil {
			if cause := abortCause(ctx, err); cause != nil {
				return cause
			}
			log.Warn("source not selected, marking its materials failed", zap.Error(err))
			for _, t := range todo {
				st := MaterialStatus{Type: t, Source: src.Label(), Error: "select source: " + err.Error(), Timestamp: o.now()}
				o.record(st)
				r.add(key, st)
			}
			r.finish(key)
			continue
		}

		o.tryClick(ctx, locator.StudioTab)
		started := 0
		for _, t := range todo {
			st, err := o.Generate(ctx, src, t)
			r.add(key, st)
			if st.Started {
				started++
			}
			if err != nil {
				return err
			}
		}
		if err := o.DeselectAll(ctx); err != nil {
			if cause := abortCause(ctx, err); cause != nil {
				r.finish(key)
				return cause
			}
			log.Debug("cleanup deselect failed", zap.Error(err))
		}
		r.finish(key)
		log.Info("source done", zap.Int("started", started), zap.Int("of", len(todo)))
	}
	return nil
}

// abortCause returns the error that should end a run, or nil.
func abortCause(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, browser.ErrSessionDead) {
		return err
	}
	return nil
}

// Statuses returns every status recorded so far, in order.
func (o *Orchestrator) Statuses() []MaterialStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]MaterialStatus(nil), o.statuses...)
}

func (o *Orchestrator) record(st MaterialStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, st)
}

func (o *Orchestrator) state(log *zap.Logger, s string) {
	log.Debug("state", zap.String("state", s))
}

func (o *Orchestrator) tryClick(ctx context.Context, name string) bool {
	el, err := o.res.Resolve(ctx, name, o.cfg.OptionalBudget)
	if err != nil {
		o.log.Debug("optional step skipped", zap.String("target", name), zap.Error(err))
		return false
	}
	return o.exec.ClickElement(ctx, name, el) == nil
}

func (o *Orchestrator) capture(ctx context.Context, action string, err error) {
	if o.reporter != nil {
		o.reporter.Capture(ctx, action, err)
	}
}
