package extract

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/v0xg/studiopilot/internal/browser/fakedom"
	"github.com/v0xg/studiopilot/internal/locator"
)

var (
	byPanel    = locator.CSS("[data-test-id='chat-panel']")
	byResponse = locator.CSS("[data-test-id='chat-response']")
	byArticle  = locator.CSS("[role='article']")
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DenyList = []string{"Notebook guide", "Quellen hinzufügen", "  "}
	return cfg
}

func newExtractor(t *testing.T, page *fakedom.Page, cfg Config) *Extractor {
	return New(page, locator.Default(), cfg, zaptest.NewLogger(t))
}

func long(prefix string) string {
	return prefix + strings.Repeat(" the lecture covers thermodynamics in depth.", 3)
}

func TestLatestAnswer_PrefersMostRecent(t *testing.T) {
	page := fakedom.New()
	older := fakedom.NewNode("older", long("First answer:"))
	newer := fakedom.NewNode("newer", long("Second answer:"))
	page.Set(byResponse, older, newer)

	got, ok := newExtractor(t, page, testConfig()).LatestAnswer(context.Background(), "What is entropy?")
	require.True(t, ok)
	assert.Equal(t, strings.TrimSpace(newer.InnerText), got)
}

func TestLatest_PositionTellsIdenticalAnswersApart(t *testing.T) {
	page := fakedom.New()
	same := long("Not covered by your sources.")
	first := fakedom.NewNode("first", same)
	page.Set(byResponse, first)
	x := newExtractor(t, page, testConfig())

	before, ok := x.Latest(context.Background(), "q1")
	require.True(t, ok)
	page.Set(byResponse, first, fakedom.NewNode("second", same))
	after, ok := x.Latest(context.Background(), "q2")
	require.True(t, ok)

	assert.Equal(t, before.Text, after.Text)
	assert.Equal(t, before.Position+1, after.Position)
	assert.True(t, after.After(before))
	assert.False(t, before.After(before))
}

func TestLatestAnswer_RejectsEcho(t *testing.T) {
	page := fakedom.New()
	answer := fakedom.NewNode("answer", long("Entropy measures disorder;"))
	echo := fakedom.NewNode("echo", long("HELLO"))
	page.Set(byResponse, answer, echo)

	got, ok := newExtractor(t, page, testConfig()).LatestAnswer(context.Background(), "Hello")
	require.True(t, ok)
	assert.Equal(t, strings.TrimSpace(answer.InnerText), got)
}

func TestLatestAnswer_NeverReturnsEchoOrOutOfWindow(t *testing.T) {
	cfg := testConfig()
	cfg.MinLength = 20
	cfg.MaxLength = 120
	sent := "Hello"

	texts := []string{
		"hello there, this is an echo of the question text",
		"short",
		strings.Repeat("x", 121),
		"Hello again, another echo that is long enough to pass",
		"A valid answer that is definitely long enough.",
		"HeLLo mixed case echo that is long enough to pass",
		strings.Repeat("y", 120),
		"Notebook guide: furniture text that is long enough",
	}
	// Try every suffix so each candidate gets its turn as the most recent one.
	for i := range texts {
		page := fakedom.New()
		var nodes []*fakedom.Node
		for j, txt := range texts[:i+1] {
			nodes = append(nodes, fakedom.NewNode(string(rune('a'+j)), txt))
		}
		page.Set(byResponse, nodes...)

		got, ok := newExtractor(t, page, cfg).LatestAnswer(context.Background(), sent)
		if !ok {
			assert.Empty(t, got)
			continue
		}
		n := utf8.RuneCountInString(got)
		assert.GreaterOrEqual(t, n, cfg.MinLength)
		assert.LessOrEqual(t, n, cfg.MaxLength)
		assert.False(t, strings.HasPrefix(strings.ToLower(got), "hello"), got)
	}
}

func TestLatestAnswer_AllFilteredIsMiss(t *testing.T) {
	page := fakedom.New()
	hidden := fakedom.NewNode("hidden", long("Hidden answer"))
	hidden.Hidden = true
	page.Set(byResponse,
		fakedom.NewNode("short", "Quiz"),
		fakedom.NewNode("echo", long("what is entropy")),
		hidden,
	)

	got, ok := newExtractor(t, page, testConfig()).LatestAnswer(context.Background(), "What is entropy")
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestLatestAnswer_EmptyPageIsMiss(t *testing.T) {
	got, ok := newExtractor(t, fakedom.New(), testConfig()).LatestAnswer(context.Background(), "x")
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestLatestAnswer_DenyListOnlyInLeadingWindow(t *testing.T) {
	cfg := testConfig()
	cfg.DenyWindow = 40
	page := fakedom.New()
	late := fakedom.NewNode("late", strings.Repeat("a", 60)+" notebook guide mentioned at the end")
	early := fakedom.NewNode("early", "NOTEBOOK GUIDE "+strings.Repeat("b", 60))
	page.Set(byResponse, late, early)

	got, ok := newExtractor(t, page, cfg).LatestAnswer(context.Background(), "")
	require.True(t, ok)
	assert.Equal(t, late.InnerText, got)
}

func TestLatestAnswer_ScopedToChatPanel(t *testing.T) {
	page := fakedom.New()
	inside := fakedom.NewNode("inside", long("Inside the panel:"))
	panel := fakedom.NewNode("panel", "").Add(byResponse, inside)
	page.Set(byPanel, panel)
	page.Set(byResponse, inside, fakedom.NewNode("outside", long("Sidebar summary:")))

	got, ok := newExtractor(t, page, testConfig()).LatestAnswer(context.Background(), "q")
	require.True(t, ok)
	assert.Equal(t, strings.TrimSpace(inside.InnerText), got)
}

func TestLatestAnswer_FallsBackToLaterStrategy(t *testing.T) {
	page := fakedom.New()
	page.Set(byResponse, fakedom.NewNode("tiny", "ok"))
	article := fakedom.NewNode("article", long("From an article node:"))
	page.Set(byArticle, article)

	got, ok := newExtractor(t, page, testConfig()).LatestAnswer(context.Background(), "q")
	require.True(t, ok)
	assert.Equal(t, strings.TrimSpace(article.InnerText), got)
}

func TestFirstRunes(t *testing.T) {
	assert.Equal(t, "", firstRunes("abc", 0))
	assert.Equal(t, "ab", firstRunes("abc", 2))
	assert.Equal(t, "abc", firstRunes("abc", 5))
	assert.Equal(t, "äö", firstRunes("äöü", 2))
}
