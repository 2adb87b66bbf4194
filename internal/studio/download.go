package studio

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/v0xg/studiopilot/internal/browser"
	"github.com/v0xg/studiopilot/internal/locator"
)

// Item statuses and download results.
const (
	StatusReady      = "ready"
	StatusGenerating = "generating"

	ResultDownloaded = "downloaded"
	ResultSkipped    = "skipped"
	ResultFailed     = "failed"
)

type kindRule struct {
	keyword string
	kind    string
}

// Checked in order; the first keyword found in a row line decides its kind.
var (
	downloadableKinds = []kindRule{
		{"erklärvideo", "video"},
		{"video", "video"},
		{"audio-zusammenfassung", "audio"},
		{"audio", "audio"},
		{"zusammenfassung", "audio"},
		{"mindmap", "mindmap"},
		{"mind map", "mindmap"},
	}
	shareOnlyKinds = []kindRule{
		{"quiz", "quiz"},
		{"karteikarten", "flashcards"},
		{"lernkarten", "flashcards"},
		{"flashcards", "flashcards"},
		{"detaillierte analyse", "report"},
		{"bericht", "report"},
		{"report", "report"},
		{"präsentation", "presentation"},
	}
)

// StudioItem is one generated artifact listed in the studio panel.
type StudioItem struct {
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	Label        string `json:"label"`
	Status       string `json:"status"`
	Downloadable bool   `json:"downloadable"`

	handle browser.Element
}

// DownloadItem is the outcome for one studio item.
type DownloadItem struct {
	StudioItem
	Result string `json:"result"`
	Path   string `json:"path,omitempty"`
	Error  string `json:"error,omitempty"`
}

// DownloadReport aggregates a download run.
type DownloadReport struct {
	Total      int            `json:"total"`
	Downloaded int            `json:"downloaded"`
	Skipped    int            `json:"skipped"`
	Failed     int            `json:"failed"`
	Items      []DownloadItem `json:"items"`
}

func (r *DownloadReport) add(it DownloadItem) {
	r.Total++
	switch it.Result {
	case ResultDownloaded:
		r.Downloaded++
	case ResultSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
	r.Items = append(r.Items, it)
}

// classifyItem reads a studio row's text. The line carrying a type keyword
// is the label and the first other non-empty line is the name. ok is false
// for rows of no known kind.
func classifyItem(text string, markers []string) (StudioItem, bool) {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}

	it := StudioItem{Status: StatusReady}
	labelAt := -1
	for i, l := range lines {
		lower := strings.ToLower(l)
		if kind, ok := matchKind(lower, shareOnlyKinds); ok {
			it.Kind, it.Downloadable, labelAt = kind, false, i
			break
		}
		if kind, ok := matchKind(lower, downloadableKinds); ok {
			it.Kind, it.Downloadable, labelAt = kind, true, i
			break
		}
	}
	if labelAt < 0 {
		return StudioItem{}, false
	}
	it.Label = lines[labelAt]
	it.Name = it.Label
	for i, l := range lines {
		if i != labelAt {
			it.Name = l
			break
		}
	}

	lower := strings.ToLower(text)
	for _, m := range markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			it.Status = StatusGenerating
			break
		}
	}
	return it, true
}

func matchKind(line string, rules []kindRule) (string, bool) {
	for _, r := range rules {
		if strings.Contains(line, r.keyword) {
			return r.kind, true
		}
	}
	return "", false
}

// ListMaterials returns the recognised artifacts of the studio panel.
func (o *Orchestrator) ListMaterials(ctx context.Context) ([]StudioItem, error) {
	o.tryClick(ctx, locator.StudioTab)
	rows, err := o.res.ResolveAll(ctx, locator.StudioItem, o.cfg.StepBudget)
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	var items []StudioItem
	for i, row := range rows {
		text, err := row.Text(ctx)
		if err != nil {
			o.log.Debug("studio row unreadable", zap.Int("row", i), zap.Error(err))
			continue
		}
		it, ok := classifyItem(text, o.cfg.GeneratingMarkers)
		if !ok {
			o.log.Debug("studio row of unknown kind", zap.Int("row", i))
			continue
		}
		it.handle = row
		items = append(items, it)
	}
	o.log.Info("materials listed", zap.Int("count", len(items)))
	return items, nil
}

// DownloadCompleted downloads every finished, downloadable artifact into
// dir. Rows still generating and share-only kinds are skipped.
func (o *Orchestrator) DownloadCompleted(ctx context.Context, dir string) (*DownloadReport, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("download dir: %w", err)
	}
	items, err := o.ListMaterials(ctx)
	if err != nil {
		return nil, err
	}

	report := &DownloadReport{}
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		d := DownloadItem{StudioItem: it}
		switch {
		case !it.Downloadable:
			d.Result, d.Error = ResultSkipped, "share only"
		case it.Status == StatusGenerating:
			d.Result, d.Error = ResultSkipped, "still generating"
		default:
			path, err := o.download(ctx, it, dir)
			if err != nil {
				d.Result, d.Error = ResultFailed, err.Error()
				o.log.Warn("download failed", zap.String("item", it.Name), zap.Error(err))
			} else {
				d.Result, d.Path = ResultDownloaded, path
				o.log.Info("downloaded", zap.String("item", it.Name), zap.String("path", path))
			}
		}
		report.add(d)
	}
	o.log.Info("downloads done",
		zap.Int("total", report.Total),
		zap.Int("downloaded", report.Downloaded),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))
	return report, nil
}

// download opens the row's overflow menu and picks the download entry. A
// dialog in place of the menu means the item only offers sharing, or a
// delete confirmation was hit; either way it is closed unconfirmed.
func (o *Orchestrator) download(ctx context.Context, it StudioItem, dir string) (string, error) {
	moreEntry, err := o.res.Entry(locator.MoreButton)
	if err != nil {
		return "", err
	}
	more, err := o.res.ResolveIn(ctx, it.handle, moreEntry, o.cfg.OptionalBudget)
	if err != nil {
		return "", fmt.Errorf("more button: %w", err)
	}

	dctx, cancel := context.WithTimeout(ctx, o.cfg.DownloadTimeout)
	defer cancel()
	wait := o.page.ExpectDownload(dctx, dir)

	if err := o.exec.ClickElement(ctx, locator.MoreButton, more); err != nil {
		return "", err
	}
	menu, err := o.res.Resolve(ctx, locator.MenuDownload, o.cfg.OptionalBudget)
	if err != nil {
		if dialogEntry, derr := o.res.Entry(locator.Dialog); derr == nil && o.res.Peek(ctx, o.page, dialogEntry) != nil {
			o.closeDialog(ctx)
			return "", fmt.Errorf("no download option (share only)")
		}
		if kerr := o.page.PressKey(ctx, browser.KeyEscape); kerr != nil {
			o.log.Debug("closing menu failed", zap.Error(kerr))
		}
		return "", fmt.Errorf("download option not found in menu")
	}
	if err := o.exec.ClickElement(ctx, locator.MenuDownload, menu); err != nil {
		return "", err
	}
	return wait()
}

func (o *Orchestrator) closeDialog(ctx context.Context) {
	if o.tryClick(ctx, locator.CloseDialog) {
		return
	}
	if err := o.page.PressKey(ctx, browser.KeyEscape); err != nil {
		o.log.Debug("closing dialog failed", zap.Error(err))
	}
}
