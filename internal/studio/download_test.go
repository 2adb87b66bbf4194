package studio

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/studiopilot/internal/browser/fakedom"
)

func TestClassifyItem(t *testing.T) {
	markers := DefaultConfig().GeneratingMarkers
	tests := []struct {
		text         string
		ok           bool
		name, kind   string
		status       string
		downloadable bool
	}{
		{"Thermodynamik\nAudio-Zusammenfassung · 12 Min.", true, "Thermodynamik", "audio", StatusReady, true},
		{"Lecture 2\nErklärvideo\nWird erstellt … kommen Sie in ein paar Minuten wieder", true, "Lecture 2", "video", StatusGenerating, true},
		{"Video-Zusammenfassung\nLecture 3", true, "Lecture 3", "video", StatusReady, true},
		{"Entropy\nMindmap", true, "Entropy", "mindmap", StatusReady, true},
		{"Entropy\nQuiz · 10 Fragen", true, "Entropy", "quiz", StatusReady, false},
		{"Karteikarten\nEntropy", true, "Entropy", "flashcards", StatusReady, false},
		{"Bericht", true, "Bericht", "report", StatusReady, false},
		{"Notizen\nirgendwas", false, "", "", "", false},
		{"", false, "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			it, ok := classifyItem(tt.text, markers)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.name, it.Name)
			assert.Equal(t, tt.kind, it.Kind)
			assert.Equal(t, tt.status, it.Status)
			assert.Equal(t, tt.downloadable, it.Downloadable)
		})
	}
}

// row returns a studio row whose overflow button runs onMore.
func (f *fixture) row(name, text string, onMore func()) *fakedom.Node {
	more := fakedom.NewNode("more-"+name, "more_vert")
	more.OnClick = onMore
	return fakedom.NewNode(name, text).Add(byMore, more)
}

func TestDownloadCompleted(t *testing.T) {
	f := newFixture(t)
	dir := filepath.Join(t.TempDir(), "out")
	f.page.Downloads = []string{filepath.Join(dir, "thermo.m4a")}

	menu := fakedom.NewNode("menu-download", "Herunterladen")
	menu.OnClick = func() { f.page.Set(byMenu) }
	audio := f.row("audio-row", "Thermo\nAudio-Zusammenfassung", func() { f.page.Set(byMenu, menu) })

	video := f.row("video-row", "Lecture 2\nErklärvideo\nwird erstellt", func() { t.Error("generating row opened") })
	quiz := f.row("quiz-row", "Lecture 1\nQuiz", func() { t.Error("share-only row opened") })

	dialog := fakedom.NewNode("share-dialog", "Teilen")
	closeBtn := fakedom.NewNode("close", "")
	closeBtn.OnClick = func() {
		f.page.Set(byDialog)
		f.page.Set(byClose)
	}
	mind := f.row("mind-row", "Lecture 3\nMindmap", func() {
		f.page.Set(byDialog, dialog)
		f.page.Set(byClose, closeBtn)
	})
	other := fakedom.NewNode("note-row", "Notiz\nfrei")

	f.page.Set(byItem, audio, video, quiz, mind, other)

	report, err := f.orch.DownloadCompleted(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 1, report.Downloaded)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Items, 4)

	assert.Equal(t, ResultDownloaded, report.Items[0].Result)
	assert.Equal(t, filepath.Join(dir, "thermo.m4a"), report.Items[0].Path)
	assert.Equal(t, "still generating", report.Items[1].Error)
	assert.Equal(t, "share only", report.Items[2].Error)
	assert.Equal(t, ResultFailed, report.Items[3].Result)
	assert.Contains(t, report.Items[3].Error, "share only")
	assert.Equal(t, 1, f.page.Count("click:close"))
	assert.Equal(t, 1, f.page.Count("click:menu-download"))
	assert.DirExists(t, dir)
}

func TestDownloadCompleted_MenuWithoutDownload(t *testing.T) {
	f := newFixture(t)
	f.page.Set(byItem, f.row("audio-row", "Thermo\nAudio", nil))

	report, err := f.orch.DownloadCompleted(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, ResultFailed, report.Items[0].Result)
	assert.Contains(t, report.Items[0].Error, "not found in menu")
	assert.Equal(t, 1, f.page.Count("key:Escape"))
}

func TestDownloadCompleted_EmptyStudio(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.DownloadCompleted(context.Background(), t.TempDir())
	assert.Error(t, err)
}
