// Package record keeps a visual trail of a run: a screenshot at every click,
// rendered into an animated GIF with the cursor moving between click points.
package record

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"sync"

	"go.uber.org/zap"

	"github.com/v0xg/studiopilot/internal/browser"
)

// Options configures recording and GIF output.
type Options struct {
	FPS      int
	MaxWidth uint
	// MaxFrames bounds how many screenshots are kept; older ones are dropped.
	MaxFrames int
	// Tween is the number of frames spent moving the cursor to a click.
	Tween int
}

// DefaultOptions returns sensible output settings.
func DefaultOptions() Options {
	return Options{FPS: 10, MaxWidth: 800, MaxFrames: 200, Tween: 6}
}

// Shot is one captured screenshot and the click that triggered it.
type Shot struct {
	Image image.Image
	Label string
	// Click is where the click landed in image coordinates; zero when unknown.
	Click image.Point
}

// Recorder captures a screenshot after every click. It satisfies
// engine.Observer.
type Recorder struct {
	opts Options
	log  *zap.Logger

	mu    sync.Mutex
	page  browser.Page
	shots []Shot
}

// New returns a recorder on page.
func New(page browser.Page, opts Options, log *zap.Logger) *Recorder {
	def := DefaultOptions()
	if opts.FPS <= 0 {
		opts.FPS = def.FPS
	}
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = def.MaxFrames
	}
	if opts.Tween < 0 {
		opts.Tween = 0
	}
	return &Recorder{page: page, opts: opts, log: log.Named("record")}
}

// Clicked records the page right after a click on el.
func (r *Recorder) Clicked(ctx context.Context, label string, el browser.Element) {
	var at image.Point
	if box, err := el.Box(ctx); err == nil {
		x, y := box.Center()
		at = image.Pt(int(x), int(y))
	}
	r.capture(ctx, label, at)
}

// Snapshot records the page without a click, e.g. at the end of a run.
func (r *Recorder) Snapshot(ctx context.Context, label string) {
	r.capture(ctx, label, image.Point{})
}

// Follow moves the recorder to a replacement page. Shots taken so far stay.
func (r *Recorder) Follow(page browser.Page) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.page = page
}

func (r *Recorder) capture(ctx context.Context, label string, at image.Point) {
	r.mu.Lock()
	page := r.page
	r.mu.Unlock()
	data, err := page.Screenshot(ctx)
	if err != nil {
		r.log.Debug("screenshot failed", zap.String("label", label), zap.Error(err))
		return
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		r.log.Debug("screenshot not decodable", zap.String("label", label), zap.Error(err))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.shots = append(r.shots, Shot{Image: img, Label: label, Click: at})
	if over := len(r.shots) - r.opts.MaxFrames; over > 0 {
		r.shots = append([]Shot(nil), r.shots[over:]...)
	}
}

// Shots returns the captured screenshots in order.
func (r *Recorder) Shots() []Shot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Shot(nil), r.shots...)
}

// Save renders the recording to a GIF at path and returns its size in
// bytes. An empty recording writes nothing.
func (r *Recorder) Save(path string) (int64, error) {
	shots := r.Shots()
	if len(shots) == 0 {
		return 0, nil
	}
	frames := Animate(shots, r.opts.Tween)
	size, err := Generate(frames, path, r.opts)
	if err != nil {
		return 0, err
	}
	r.log.Info("recording saved", zap.String("path", path), zap.Int("shots", len(shots)), zap.Int64("bytes", size))
	return size, nil
}
