// Package workflow runs a notebook end to end: create it, add its sources,
// generate studio materials for each source and download what finished.
package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/studiopilot/internal/notebook"
	"github.com/v0xg/studiopilot/internal/studio"
)

// TextSource is pasted text with an optional title line.
type TextSource struct {
	Title string
	Text  string
}

// Plan describes one run.
type Plan struct {
	// Create makes a new notebook from Home. Without it the run works on the
	// notebook the page already shows.
	Create bool
	Home   string
	Name   string

	Files    []string
	Texts    []TextSource
	Websites []string

	// Patterns restricts generation to matching sources. Empty means all.
	Patterns  []string
	Materials []studio.MaterialType

	// DownloadDir, when set, downloads finished materials after Wait.
	DownloadDir string
	Wait        time.Duration
}

// SourceResult is the outcome of adding one source.
type SourceResult struct {
	Kind   string `json:"kind"`
	Source string `json:"source"`
	Added  bool   `json:"added"`
	Error  string `json:"error,omitempty"`
}

// Result collects what a run did. Fields stay nil for stages that never ran.
type Result struct {
	NotebookURL string
	Sources     []SourceResult
	Run         *studio.Run
	Downloads   *studio.DownloadReport
}

// FailedSources counts sources that were not added.
func (r *Result) FailedSources() int {
	n := 0
	for _, s := range r.Sources {
		if !s.Added {
			n++
		}
	}
	return n
}

// Session is the pair of clients bound to one live page.
type Session struct {
	Notebook *notebook.Client
	Studio   *studio.Orchestrator
}

// Opener returns a session on a live page. When the page had to be
// recreated it is first navigated to target, unless target is empty.
type Opener func(ctx context.Context, target string) (*Session, error)

// Execute runs plan. A source that cannot be added is recorded and the run
// goes on; failing to create the notebook or to generate ends it.
func Execute(ctx context.Context, open Opener, plan Plan, log *zap.Logger) (*Result, error) {
	log = log.Named("workflow")
	res := &Result{}

	s, err := open(ctx, "")
	if err != nil {
		return res, err
	}
	if plan.Create {
		url, err := s.Notebook.CreateNotebook(ctx, plan.Home, plan.Name)
		if err != nil {
			return res, err
		}
		res.NotebookURL = url
	}

	add := func(kind, what string, fn func(*notebook.Client) (bool, error)) error {
		s, err := open(ctx, res.NotebookURL)
		if err != nil {
			return err
		}
		ok, err := fn(s.Notebook)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r := SourceResult{Kind: kind, Source: what, Added: ok && err == nil}
		switch {
		case err != nil:
			r.Error = err.Error()
		case !ok:
			r.Error = "source count did not change"
		}
		if r.Error != "" {
			log.Warn("source not added", zap.String("kind", kind), zap.String("source", what), zap.String("reason", r.Error))
		}
		res.Sources = append(res.Sources, r)
		return nil
	}
	for _, path := range plan.Files {
		if err := add("file", path, func(c *notebook.Client) (bool, error) {
			return c.UploadFile(ctx, path)
		}); err != nil {
			return res, err
		}
	}
	for _, t := range plan.Texts {
		if err := add("text", t.Title, func(c *notebook.Client) (bool, error) {
			return c.AddTextSource(ctx, t.Title, t.Text)
		}); err != nil {
			return res, err
		}
	}
	for _, site := range plan.Websites {
		if err := add("website", site, func(c *notebook.Client) (bool, error) {
			return c.AddWebsiteSource(ctx, site)
		}); err != nil {
			return res, err
		}
	}
	if n := len(res.Sources); n > 0 {
		log.Info("sources processed", zap.Int("added", n-res.FailedSources()), zap.Int("failed", res.FailedSources()))
	}

	studioOpen := func(ctx context.Context) (*studio.Orchestrator, error) {
		s, err := open(ctx, res.NotebookURL)
		if err != nil {
			return nil, err
		}
		return s.Studio, nil
	}
	res.Run, err = studio.RunSources(ctx, studioOpen, plan.Patterns, plan.Materials, log)
	if err != nil {
		return res, fmt.Errorf("generate: %w", err)
	}

	if plan.DownloadDir == "" {
		return res, nil
	}
	if plan.Wait > 0 {
		log.Info("waiting for materials to finish", zap.Duration("wait", plan.Wait))
		t := time.NewTimer(plan.Wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return res, ctx.Err()
		case <-t.C:
		}
	}
	o, err := studioOpen(ctx)
	if err != nil {
		return res, err
	}
	res.Downloads, err = o.DownloadCompleted(ctx, plan.DownloadDir)
	if err != nil {
		return res, fmt.Errorf("download: %w", err)
	}
	return res, nil
}
