package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/v0xg/studiopilot/internal/ai"
	"github.com/v0xg/studiopilot/internal/browser"
	"github.com/v0xg/studiopilot/internal/config"
	"github.com/v0xg/studiopilot/internal/diagnostics"
	"github.com/v0xg/studiopilot/internal/engine"
	"github.com/v0xg/studiopilot/internal/extract"
	"github.com/v0xg/studiopilot/internal/locator"
	"github.com/v0xg/studiopilot/internal/notebook"
	"github.com/v0xg/studiopilot/internal/record"
	"github.com/v0xg/studiopilot/internal/studio"
	"github.com/v0xg/studiopilot/internal/workflow"
)

// app owns the process-wide pieces. The browser stack is built lazily on
// the first command that needs a page.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	catalog *locator.Catalog
	keeper  *browser.Keeper
	// target is where a freshly opened page is sent before use.
	target string

	stack *stack
}

// stack is everything bound to one live page.
type stack struct {
	page     browser.Session
	reporter *diagnostics.Reporter
	exec     *engine.Executor
	recorder *record.Recorder
	notebook *notebook.Client
	studio   *studio.Orchestrator
}

func (a *app) setup(cfg *config.Config, log *zap.Logger, catalog *locator.Catalog) {
	a.cfg, a.log, a.catalog = cfg, log, catalog
	a.target = cfg.Browser.URL
	opts := cfg.BrowserOptions()
	a.keeper = browser.NewKeeper(func(ctx context.Context) (browser.Session, error) {
		return browser.Launch(ctx, opts, log)
	}, log)
}

// session returns the stack for the live page, rebuilding it when the
// keeper had to replace the session. A new page is sent to a.target first.
func (a *app) session(ctx context.Context) (*stack, error) {
	page, err := a.keeper.Live(ctx)
	if err != nil {
		return nil, err
	}
	if a.stack != nil && a.stack.page == page {
		return a.stack, nil
	}
	if err := browser.EnsureAt(ctx, page, a.target); err != nil {
		return nil, err
	}

	cfg, log := a.cfg, a.log
	reporter := diagnostics.New(page, cfg.Diagnostics.Dir, uint(cfg.Diagnostics.ThumbnailWidth), log)

	opts := []engine.Option{engine.WithReporter(reporter)}
	if cfg.Advisor.Enabled {
		adv, err := ai.NewProvider(cfg.Advisor.Provider, cfg.Advisor.Model, cfg.Advisor.APIKey)
		if err != nil {
			return nil, fmt.Errorf("selector advisor: %w", err)
		}
		opts = append(opts, engine.WithAdvisor(adv))
		log.Info("selector advisor enabled", zap.String("provider", cfg.Advisor.Provider))
	}

	res := engine.NewResolver(a.catalog, page, cfg.EngineTiming(), log, opts...)
	exec := engine.NewExecutor(res, reporter, log)

	s := &stack{page: page, reporter: reporter, exec: exec}
	switch {
	case a.stack != nil && a.stack.recorder != nil:
		log.Warn("browser page replaced, recording continues on the new page")
		s.recorder = a.stack.recorder
		s.recorder.Follow(page)
		exec.SetObserver(s.recorder)
	case cfg.Record.Output != "":
		s.recorder = record.New(page, cfg.RecordOptions(), log)
		exec.SetObserver(s.recorder)
		s.recorder.Snapshot(ctx, "start")
	}
	ext := extract.New(page, a.catalog, cfg.ExtractorConfig(), log)
	s.notebook = notebook.New(exec, ext, reporter, cfg.NotebookConfig(), log)
	s.studio = studio.New(exec, reporter, cfg.StudioConfig(), log)

	a.stack = s
	return s, nil
}

// studioOpener adapts session for studio.RunSources.
func (a *app) studioOpener() studio.Opener {
	return func(ctx context.Context) (*studio.Orchestrator, error) {
		s, err := a.session(ctx)
		if err != nil {
			return nil, err
		}
		return s.studio, nil
	}
}

// workflowOpener adapts session for workflow.Execute. A non-empty target
// becomes where recreated pages are sent.
func (a *app) workflowOpener() workflow.Opener {
	return func(ctx context.Context, target string) (*workflow.Session, error) {
		if target != "" {
			a.target = target
		}
		s, err := a.session(ctx)
		if err != nil {
			return nil, err
		}
		return &workflow.Session{Notebook: s.notebook, Studio: s.studio}, nil
	}
}

// saveRecording writes the current recorder's GIF, if any clicks were seen.
func (a *app) saveRecording() {
	if a.stack == nil || a.stack.recorder == nil || len(a.stack.recorder.Shots()) == 0 {
		return
	}
	size, err := a.stack.recorder.Save(a.cfg.Record.Output)
	if err != nil {
		a.log.Error("saving recording failed", zap.Error(err))
		return
	}
	a.log.Info("recording saved",
		zap.String("path", a.cfg.Record.Output),
		zap.Int("frames", len(a.stack.recorder.Shots())),
		zap.Int64("bytes", size))
}

// close saves the recording and shuts the browser down. It is safe to call
// when initialization never ran.
func (a *app) close() {
	if a.log == nil {
		return
	}
	defer syncLogger(a.log)
	a.saveRecording()
	if err := a.keeper.Close(); err != nil {
		a.log.Debug("closing browser", zap.Error(err))
	}
}
