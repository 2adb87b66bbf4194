// Package diagnostics captures the state of the page when an interaction
// fails: a JSON report, a screenshot with thumbnail, and the DOM.
package diagnostics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/nfnt/resize"
	"go.uber.org/zap"

	"github.com/v0xg/studiopilot/internal/browser"
)

// ErrorReport describes one captured failure. It is written once and never updated.
type ErrorReport struct {
	ID             string                `json:"id"`
	Action         string                `json:"action"`
	Error          string                `json:"error"`
	Timestamp      time.Time             `json:"timestamp"`
	URL            string                `json:"url,omitempty"`
	Title          string                `json:"title,omitempty"`
	Buttons        []browser.ElementInfo `json:"buttons,omitempty"`
	Inputs         []browser.ElementInfo `json:"inputs,omitempty"`
	Editables      []browser.ElementInfo `json:"editables,omitempty"`
	ScreenshotPath string                `json:"screenshotPath,omitempty"`
	ThumbnailPath  string                `json:"thumbnailPath,omitempty"`
	DOMPath        string                `json:"domPath,omitempty"`
	ReportPath     string                `json:"reportPath,omitempty"`
	CaptureErrors  []string              `json:"captureErrors,omitempty"`
}

// Reporter writes ErrorReports below a base directory.
type Reporter struct {
	page       browser.Page
	dir        string
	thumbWidth uint
	timeout    time.Duration
	log        *zap.Logger
	now        func() time.Time
}

// New returns a reporter writing into dir. thumbWidth of zero means 320px.
func New(page browser.Page, dir string, thumbWidth uint, log *zap.Logger) *Reporter {
	if thumbWidth == 0 {
		thumbWidth = 320
	}
	return &Reporter{
		page:       page,
		dir:        dir,
		thumbWidth: thumbWidth,
		timeout:    15 * time.Second,
		log:        log.Named("diagnostics"),
		now:        time.Now,
	}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Capture records what it can about the current page. Every step is
// independent; a failing step is noted in CaptureErrors and the rest still
// run. Capture never fails and works even after ctx is cancelled.
func (r *Reporter) Capture(ctx context.Context, action string, cause error) *ErrorReport {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	rep := &ErrorReport{
		ID:        uuid.NewString(),
		Action:    action,
		Timestamp: r.now().UTC(),
	}
	if cause != nil {
		rep.Error = cause.Error()
	}
	note := func(step string, err error) {
		rep.CaptureErrors = append(rep.CaptureErrors, fmt.Sprintf("%s: %v", step, err))
	}

	// Page state goes into the returned report even when nothing can be written.
	if info, err := r.page.Info(ctx); err != nil {
		note("page info", err)
	} else {
		rep.URL, rep.Title = info.URL, info.Title
	}

	if inv, err := r.page.Inventory(ctx); err != nil {
		note("inventory", err)
	} else {
		rep.Buttons, rep.Inputs, rep.Editables = inv.Buttons, inv.Inputs, inv.Editables
	}

	name := fmt.Sprintf("%s_%s_%s", rep.Timestamp.Format("20060102T150405Z"), unsafeChars.ReplaceAllString(action, "_"), rep.ID[:8])
	dir := filepath.Join(r.dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		note("mkdir", err)
		r.log.Error("cannot create diagnostics directory", zap.String("dir", dir), zap.Error(err))
		return rep
	}

	if shot, err := r.page.Screenshot(ctx); err != nil {
		note("screenshot", err)
	} else {
		path := filepath.Join(dir, "screenshot.png")
		if err := os.WriteFile(path, shot, 0o644); err != nil {
			note("write screenshot", err)
		} else {
			rep.ScreenshotPath = path
			thumb := filepath.Join(dir, "thumbnail.png")
			if err := writeThumbnail(shot, thumb, r.thumbWidth); err != nil {
				note("thumbnail", err)
			} else {
				rep.ThumbnailPath = thumb
			}
		}
	}

	if html, err := r.page.HTML(ctx); err != nil {
		note("dom", err)
	} else {
		path := filepath.Join(dir, "page.html")
		if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
			note("write dom", err)
		} else {
			rep.DOMPath = path
		}
	}

	rep.ReportPath = filepath.Join(dir, "report.json")
	data, err := json.MarshalIndent(rep, "", "  ")
	if err == nil {
		err = os.WriteFile(rep.ReportPath, data, 0o644)
	}
	if err != nil {
		rep.ReportPath = ""
		note("write report", err)
	}

	r.log.Warn("diagnostics captured",
		zap.String("action", action),
		zap.String("id", rep.ID),
		zap.String("dir", dir),
		zap.Int("capture_errors", len(rep.CaptureErrors)))
	return rep
}

func writeThumbnail(shot []byte, path string, width uint) error {
	img, _, err := image.Decode(bytes.NewReader(shot))
	if err != nil {
		return fmt.Errorf("decode screenshot: %w", err)
	}
	if uint(img.Bounds().Dx()) > width {
		img = resize.Resize(width, 0, img, resize.Lanczos3)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
