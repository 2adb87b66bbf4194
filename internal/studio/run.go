package studio

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/v0xg/studiopilot/internal/browser"
)

// Run is the state of one generation run. It outlives the orchestrators
// that work on it, so a run can continue on a recreated session.
type Run struct {
	patterns []string
	types    []MaterialType

	order   []string
	results map[string][]MaterialStatus
	done    map[string]bool

	// Recoveries counts sessions recreated during the run.
	Recoveries int
}

func newRun(patterns []string, types []MaterialType) *Run {
	if len(types) == 0 {
		types = AllMaterials()
	}
	return &Run{
		patterns: patterns,
		types:    types,
		results:  make(map[string][]MaterialStatus),
		done:     make(map[string]bool),
	}
}

// begin drops the failures an interrupted attempt left for key and returns
// the types still to generate.
func (r *Run) begin(key string) []MaterialType {
	started := make(map[MaterialType]bool)
	var kept []MaterialStatus
	for _, st := range r.results[key] {
		if st.Started {
			kept = append(kept, st)
			started[st.Type] = true
		}
	}
	if _, ok := r.results[key]; ok {
		r.results[key] = kept
	}
	var todo []MaterialType
	for _, t := range r.types {
		if !started[t] {
			todo = append(todo, t)
		}
	}
	return todo
}

func (r *Run) add(key string, st MaterialStatus) {
	if _, ok := r.results[key]; !ok {
		r.order = append(r.order, key)
	}
	r.results[key] = append(r.results[key], st)
}

func (r *Run) finish(key string) { r.done[key] = true }

func (r *Run) progress() int {
	n := len(r.done)
	for _, sts := range r.results {
		for _, st := range sts {
			if st.Started {
				n++
			}
		}
	}
	return n
}

// Results maps DataSource.Key to the statuses of that source.
func (r *Run) Results() map[string][]MaterialStatus { return r.results }

// Statuses returns the final statuses in the order sources were processed.
func (r *Run) Statuses() []MaterialStatus {
	var out []MaterialStatus
	for _, key := range r.order {
		out = append(out, r.results[key]...)
	}
	return out
}

// Summary renders the run like Summarize.
func (r *Run) Summary() string { return Summarize(r.Statuses()) }

// Opener returns an orchestrator on a live session. Called after a session
// died, it must hand out one on a recreated session.
type Opener func(ctx context.Context) (*Orchestrator, error)

// RunSources is ProcessSources that survives a dead session: the session is
// recreated through open and the run resumes with the unfinished sources.
// It gives up when recreation fails or when a recreated session dies before
// anything more was done.
func RunSources(ctx context.Context, open Opener, patterns []string, types []MaterialType, log *zap.Logger) (*Run, error) {
	log = log.Named("studio")
	r := newRun(patterns, types)
	last := -1
	for {
		o, err := open(ctx)
		if err != nil {
			if r.Recoveries > 0 {
				return r, fmt.Errorf("recreate session: %w", err)
			}
			return r, err
		}
		err = o.process(ctx, r)
		if err == nil || ctx.Err() != nil || !errors.Is(err, browser.ErrSessionDead) {
			return r, err
		}
		p := r.progress()
		if p == last {
			return r, fmt.Errorf("recreated session died before any progress: %w", err)
		}
		last = p
		r.Recoveries++
		log.Warn("session died, recreating it and resuming",
			zap.Error(err),
			zap.Int("finished_sources", len(r.done)),
			zap.Int("recovery", r.Recoveries))
	}
}
