package notebook

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/v0xg/studiopilot/internal/browser"
	"github.com/v0xg/studiopilot/internal/browser/fakedom"
	"github.com/v0xg/studiopilot/internal/diagnostics"
	"github.com/v0xg/studiopilot/internal/engine"
	"github.com/v0xg/studiopilot/internal/extract"
	"github.com/v0xg/studiopilot/internal/locator"
)

var (
	byChatInput  = locator.CSS("[data-test-id='chat-input']")
	bySend       = locator.CSS("[data-test-id='send-button']")
	byResponse   = locator.CSS("[data-test-id='chat-response']")
	byLoading    = locator.CSS("[data-test-id='loading-indicator']")
	byCount      = locator.CSS("[data-test-id='sources-count']")
	byAddSource  = locator.CSS("[data-test-id='add-source-button']")
	byFileInput  = locator.CSS("input[type='file'][name='Filedata']")
	byPasteText  = locator.CSS("[data-test-id='paste-text-option']")
	byPastedText = locator.CSS("textarea[data-test-id='pasted-text-input']")
	byInsert     = locator.CSS("[data-test-id='insert-button']")
	byWebsite    = locator.CSS("[data-test-id='website-url-option']")
	byURLInput   = locator.CSS("input[data-test-id='website-url-input']")
	byNewNB      = locator.CSS("[data-test-id='create-notebook-button']")
	byTitle      = locator.CSS("[data-test-id='notebook-title-input']")
)

type captureSpy struct {
	mu      sync.Mutex
	actions []string
}

func (c *captureSpy) Capture(ctx context.Context, action string, err error) *diagnostics.ErrorReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, action)
	return &diagnostics.ErrorReport{Action: action}
}

func (c *captureSpy) has(action string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.actions {
		if a == action {
			return true
		}
	}
	return false
}

type fixture struct {
	page   *fakedom.Page
	client *Client
	spy    *captureSpy
}

func newFixture(t *testing.T, mod func(*Config)) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	page := fakedom.New()
	spy := &captureSpy{}
	timing := engine.Timing{
		Budget:       30 * time.Millisecond,
		MinSlice:     time.Millisecond,
		Interval:     time.Millisecond,
		StaleRetries: 2,
		ChunkSize:    5000,
	}
	cat := locator.Default()
	res := engine.NewResolver(cat, page, timing, log)
	exec := engine.NewExecutor(res, spy, log)
	ext := extract.New(page, cat, extract.DefaultConfig(), log)

	cfg := Config{
		ResponseTimeout: 300 * time.Millisecond,
		UploadTimeout:   100 * time.Millisecond,
		ManualTimeout:   30 * time.Millisecond,
		CreateTimeout:   100 * time.Millisecond,
		PollInterval:    2 * time.Millisecond,
		OptionalBudget:  10 * time.Millisecond,
	}
	if mod != nil {
		mod(&cfg)
	}
	return &fixture{page: page, client: New(exec, ext, spy, cfg, log), spy: spy}
}

func answer(s string) string {
	return s + " " + strings.Repeat("Entropy is a measure of disorder. ", 3)
}

func TestSendMessage_ReturnsNewStableAnswer(t *testing.T) {
	f := newFixture(t, nil)
	input := fakedom.NewNode("input", "")
	f.page.Set(byChatInput, input)
	old := fakedom.NewNode("old", answer("Earlier:"))
	f.page.Set(byResponse, old)

	fresh := fakedom.NewNode("fresh", answer("Now:"))
	send := fakedom.NewNode("send", "")
	send.OnClick = func() { f.page.Set(byResponse, old, fresh) }
	f.page.Set(bySend, send)

	got, ok, err := f.client.SendMessage(context.Background(), "What is entropy?")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, strings.TrimSpace(fresh.InnerText), got)
	assert.Equal(t, "What is entropy?", input.Value)
	assert.Equal(t, 1, f.page.Count("click:send"))
}

func TestSendMessage_RepeatedAnswerIsNew(t *testing.T) {
	f := newFixture(t, nil)
	f.page.Set(byChatInput, fakedom.NewNode("input", ""))
	canned := answer("The sources do not cover this.")
	old := fakedom.NewNode("old", canned)
	f.page.Set(byResponse, old)

	again := fakedom.NewNode("again", canned)
	send := fakedom.NewNode("send", "")
	send.OnClick = func() { f.page.Set(byResponse, old, again) }
	f.page.Set(bySend, send)

	start := time.Now()
	got, ok, err := f.client.SendMessage(context.Background(), "Who won the 1954 world cup?")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, strings.TrimSpace(canned), got)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.False(t, f.spy.has("send_message"))
}

func TestSendMessage_WaitsForLoadingIndicator(t *testing.T) {
	f := newFixture(t, nil)
	f.page.Set(byChatInput, fakedom.NewNode("input", ""))
	spinner := fakedom.NewNode("spinner", "")
	fresh := fakedom.NewNode("fresh", answer("Done:"))
	send := fakedom.NewNode("send", "")
	send.OnClick = func() {
		f.page.Set(byLoading, spinner)
		go func() {
			time.Sleep(20 * time.Millisecond)
			f.page.Do(func() { spinner.Hidden = true })
			f.page.Set(byResponse, fresh)
		}()
	}
	f.page.Set(bySend, send)

	got, ok, err := f.client.SendMessage(context.Background(), "q?")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, strings.TrimSpace(fresh.InnerText), got)
}

func TestSendMessage_FallsBackToEnter(t *testing.T) {
	f := newFixture(t, nil)
	f.page.Set(byChatInput, fakedom.NewNode("input", ""))
	fresh := fakedom.NewNode("fresh", answer("Via enter:"))
	f.page.OnKey = func(k browser.Key) {
		if k == browser.KeyEnter {
			f.page.Set(byResponse, fresh)
		}
	}

	got, ok, err := f.client.SendMessage(context.Background(), "q?")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, strings.TrimSpace(fresh.InnerText), got)
	assert.Equal(t, 1, f.page.Count("key:Enter"))
}

func TestSendMessage_NoAnswerIsMissNotError(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.ResponseTimeout = 40 * time.Millisecond })
	f.page.Set(byChatInput, fakedom.NewNode("input", ""))
	f.page.Set(bySend, fakedom.NewNode("send", ""))

	got, ok, err := f.client.SendMessage(context.Background(), "anyone?")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, got)
	assert.True(t, f.spy.has("send_message"))
}

func TestSendMessage_MissingInputIsError(t *testing.T) {
	f := newFixture(t, nil)
	_, _, err := f.client.SendMessage(context.Background(), "hi")
	assert.ErrorIs(t, err, engine.ErrNotFound)

	_, _, err = f.client.SendMessage(context.Background(), "  ")
	assert.Error(t, err)
}

func TestSourceCount(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, 0, f.client.SourceCount(context.Background()))

	f.page.Body = "Studio\n3 Quellen\nChat"
	assert.Equal(t, 3, f.client.SourceCount(context.Background()))

	f.page.Body = "2 sources selected"
	assert.Equal(t, 2, f.client.SourceCount(context.Background()))

	counter := fakedom.NewNode("count", "Quellen (7)")
	f.page.Set(byCount, counter)
	assert.Equal(t, 7, f.client.SourceCount(context.Background()))

	labelled := fakedom.NewNode("count", "Sources")
	labelled.Attrs = map[string]string{"aria-label": "Sources (4)"}
	f.page.Set(byCount, labelled)
	assert.Equal(t, 4, f.client.SourceCount(context.Background()))
}

func writeFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lecture1.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))
	return path
}

func TestUploadFile_CountIncreases(t *testing.T) {
	f := newFixture(t, nil)
	counter := fakedom.NewNode("count", "Quellen (1)")
	f.page.Set(byCount, counter)
	f.page.Set(byAddSource, fakedom.NewNode("add", ""))
	input := fakedom.NewNode("file", "")
	input.Hidden = true
	input.OnChange = func() {
		f.page.Do(func() { counter.InnerText = "Quellen (2)" })
	}
	f.page.Set(byFileInput, input)
	path := writeFile(t)

	ok, err := f.client.UploadFile(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{path}, input.Files)
	assert.Equal(t, 1, f.page.Count("click:add"))
}

func TestUploadFile_ManualCompletion(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.ManualTimeout = 500 * time.Millisecond })
	counter := fakedom.NewNode("count", "(0)")
	f.page.Set(byCount, counter)
	go func() {
		time.Sleep(30 * time.Millisecond)
		f.page.Do(func() { counter.InnerText = "(1)" })
	}()

	ok, err := f.client.UploadFile(context.Background(), writeFile(t))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, f.spy.has("upload_file_input"))
}

func TestUploadFile_NothingHappens(t *testing.T) {
	f := newFixture(t, nil)
	f.page.Set(byFileInput, fakedom.NewNode("file", ""))

	ok, err := f.client.UploadFile(context.Background(), writeFile(t))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, f.spy.has("add_source"))
}

func TestUploadFile_MissingFile(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.client.UploadFile(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"))
	assert.Error(t, err)

	_, err = f.client.UploadFile(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestAddTextSource(t *testing.T) {
	f := newFixture(t, nil)
	counter := fakedom.NewNode("count", "(2)")
	f.page.Set(byCount, counter)
	f.page.Set(byAddSource, fakedom.NewNode("add", ""))
	f.page.Set(byPasteText, fakedom.NewNode("paste", ""))
	area := fakedom.NewNode("area", "")
	f.page.Set(byPastedText, area)
	insert := fakedom.NewNode("insert", "")
	insert.OnClick = func() {
		f.page.Do(func() { counter.InnerText = "(3)" })
	}
	f.page.Set(byInsert, insert)

	ok, err := f.client.AddTextSource(context.Background(), "Topic 1", "Body of the topic.")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Topic 1\n\nBody of the topic.", area.Value)
	assert.Equal(t, 0, f.page.Count("key:Control+Enter"))
}

func TestAddTextSource_CtrlEnterFallback(t *testing.T) {
	f := newFixture(t, nil)
	counter := fakedom.NewNode("count", "(0)")
	f.page.Set(byCount, counter)
	f.page.Set(byPastedText, fakedom.NewNode("area", ""))
	f.page.OnKey = func(k browser.Key) {
		if k == browser.KeyControlEnter {
			f.page.Do(func() { counter.InnerText = "(1)" })
		}
	}

	ok, err := f.client.AddTextSource(context.Background(), "", "text")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, f.page.Count("key:Control+Enter"))

	_, err = f.client.AddTextSource(context.Background(), "t", " ")
	assert.Error(t, err)
}

func TestAddWebsiteSource(t *testing.T) {
	f := newFixture(t, nil)
	counter := fakedom.NewNode("count", "(1)")
	f.page.Set(byCount, counter)
	f.page.Set(byAddSource, fakedom.NewNode("add", ""))
	f.page.Set(byWebsite, fakedom.NewNode("website", ""))
	field := fakedom.NewNode("url", "")
	f.page.Set(byURLInput, field)
	f.page.OnKey = func(k browser.Key) {
		if k == browser.KeyEnter {
			f.page.Do(func() { counter.InnerText = "(2)" })
		}
	}

	ok, err := f.client.AddWebsiteSource(context.Background(), " https://example.com/article ")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/article", field.Value)
	assert.Equal(t, 1, f.page.Count("click:website"))
	assert.Equal(t, 1, f.page.Count("key:Enter"))
	assert.Equal(t, 2, f.client.SourceCount(context.Background()))
}

func TestAddWebsiteSource_RejectsNonHTTP(t *testing.T) {
	f := newFixture(t, nil)
	for _, raw := range []string{"", "example.com", "ftp://example.com/x", "https://"} {
		_, err := f.client.AddWebsiteSource(context.Background(), raw)
		assert.Error(t, err, raw)
	}
	assert.Empty(t, f.page.Events())
}

func TestCreateNotebook_NamesNewNotebook(t *testing.T) {
	f := newFixture(t, nil)
	f.page.URL = "https://notebook.test/"
	title := fakedom.NewNode("title", "")
	create := fakedom.NewNode("create", "")
	create.OnClick = func() {
		f.page.Do(func() { f.page.URL = "https://notebook.test/notebook/42" })
		f.page.Set(byTitle, title)
	}
	f.page.Set(byNewNB, create)

	got, err := f.client.CreateNotebook(context.Background(), "https://notebook.test/", "Physics 101")
	require.NoError(t, err)
	assert.Equal(t, "https://notebook.test/notebook/42", got)
	assert.Equal(t, "Physics 101", title.Value)
	assert.Equal(t, 1, f.page.Count("key:Enter"))
	assert.Equal(t, 0, f.page.Count("navigate:"))
}

func TestCreateNotebook_NavigatesHomeFirst(t *testing.T) {
	f := newFixture(t, nil)
	create := fakedom.NewNode("create", "")
	create.OnClick = func() {
		f.page.Do(func() { f.page.URL = "https://notebook.test/notebook/7" })
	}
	f.page.Set(byNewNB, create)

	got, err := f.client.CreateNotebook(context.Background(), "https://home.test/", "")
	require.NoError(t, err)
	assert.Equal(t, "https://notebook.test/notebook/7", got)
	ev := f.page.Events()
	require.NotEmpty(t, ev)
	assert.Equal(t, "navigate:https://home.test/", ev[0])
	assert.Equal(t, 1, f.page.Count("click:create"))
}

func TestCreateNotebook_NoNotebookPage(t *testing.T) {
	f := newFixture(t, nil)
	f.page.URL = "https://notebook.test/"
	f.page.Set(byNewNB, fakedom.NewNode("create", ""))

	_, err := f.client.CreateNotebook(context.Background(), "", "Unused")
	require.Error(t, err)
	assert.True(t, f.spy.has("create_notebook"))
	assert.Equal(t, 0, f.page.Count("key:Enter"))
}

func TestCreateNotebook_RenameFailureOnlyWarns(t *testing.T) {
	f := newFixture(t, nil)
	create := fakedom.NewNode("create", "")
	create.OnClick = func() {
		f.page.Do(func() { f.page.URL = "https://notebook.test/notebook/9" })
	}
	f.page.Set(byNewNB, create)

	got, err := f.client.CreateNotebook(context.Background(), "", "Named")
	require.NoError(t, err)
	assert.Equal(t, "https://notebook.test/notebook/9", got)
}
