package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/studiopilot/internal/browser"
	"github.com/v0xg/studiopilot/internal/browser/fakedom"
)

func TestClick_InterceptedOnceThenForced(t *testing.T) {
	f := newFixture(t, nil)
	btn := fakedom.NewNode("primary", "")
	btn.ClickErr = []error{browser.ErrIntercepted}
	f.page.Set(byPrimary, btn)
	backdrop := fakedom.NewNode("backdrop", "")
	f.page.Set(byBackdrop, backdrop)

	err := f.executor.Click(context.Background(), "button")
	require.NoError(t, err)

	assert.Equal(t, 1, f.page.Count("key:Escape"), "one overlay dismissal")
	assert.Equal(t, 1, f.page.Count("hide:.backdrop"))
	assert.Equal(t, 1, f.page.Count("force:primary"))
	assert.Equal(t, 0, f.page.Count("click:primary"))
	assert.True(t, backdrop.Hidden)
	assert.Empty(t, f.spy.Actions())
}

func TestClick_AlwaysInterceptedIsBounded(t *testing.T) {
	f := newFixture(t, nil)
	btn := fakedom.NewNode("primary", "")
	for i := 0; i < 10; i++ {
		btn.ClickErr = append(btn.ClickErr, browser.ErrIntercepted)
		btn.ForceErr = append(btn.ForceErr, fmt.Errorf("%w: still covered", browser.ErrIntercepted))
	}
	f.page.Set(byPrimary, btn)

	err := f.executor.Click(context.Background(), "button")
	require.Error(t, err)

	var ie *InteractionError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 3, ie.Attempts)
	assert.ErrorIs(t, err, browser.ErrIntercepted)
	assert.Equal(t, 3, f.page.Count("click-failed:primary"))
	assert.Equal(t, 3, f.page.Count("key:Escape"))
	assert.Equal(t, []string{"click_button"}, f.spy.Actions())
}

func TestClick_StaleIsReResolved(t *testing.T) {
	f := newFixture(t, nil)
	btn := fakedom.NewNode("primary", "")
	btn.ClickErr = []error{fmt.Errorf("%w: node gone", browser.ErrStale)}
	f.page.Set(byPrimary, btn)

	require.NoError(t, f.executor.Click(context.Background(), "button"))
	assert.Equal(t, 2, f.page.FindCount(byPrimary))
	assert.Equal(t, 1, f.page.Count("click:primary"))
	assert.Equal(t, 0, f.page.Count("key:Escape"))
}

func TestClick_OtherErrorsAreNotRetried(t *testing.T) {
	f := newFixture(t, nil)
	btn := fakedom.NewNode("primary", "")
	btn.ClickErr = []error{errors.New("boom")}
	f.page.Set(byPrimary, btn)

	err := f.executor.Click(context.Background(), "button")
	var ie *InteractionError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 1, ie.Attempts)
	assert.Equal(t, "click", ie.Action)
}

func TestClick_NotFoundIsInteractionError(t *testing.T) {
	f := newFixture(t, nil)

	err := f.executor.Click(context.Background(), "button")
	assert.ErrorIs(t, err, ErrNotFound)
	var ie *InteractionError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, []string{"click_button"}, f.spy.Actions())
}

func TestClick_NotifiesObserver(t *testing.T) {
	f := newFixture(t, nil)
	f.page.Set(byPrimary, fakedom.NewNode("primary", ""))
	obs := &clickLog{}
	f.executor.SetObserver(obs)

	require.NoError(t, f.executor.Click(context.Background(), "button"))
	assert.Equal(t, []string{"button"}, obs.labels)
	assert.Equal(t, 1, f.page.Count("scroll:primary"))
}

func TestClickElement_DoesNotReResolve(t *testing.T) {
	f := newFixture(t, nil)
	node := fakedom.NewNode("row", "")
	node.ClickErr = []error{browser.ErrStale}
	f.page.Set(byPrimary, node)
	el, err := f.resolver.Resolve(context.Background(), "button", 0)
	require.NoError(t, err)

	err = f.executor.ClickElement(context.Background(), "row", el)
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrStale)
}

func TestType_ChunksByRunes(t *testing.T) {
	f := newFixture(t, nil)
	field := fakedom.NewNode("field", "")
	field.Value = "old"
	f.page.Set(byField, field)
	text := "Grüße aus Köln!"

	require.NoError(t, f.executor.Type(context.Background(), "field", text))
	assert.Equal(t, text, field.Value)
	assert.Equal(t, 1, f.page.Count("clear:field"))
	assert.Equal(t, 3, f.page.Count("input:field"))
}

func TestType_StaleRestartsFromClear(t *testing.T) {
	f := newFixture(t, nil)
	first := fakedom.NewNode("field", "")
	second := fakedom.NewNode("field2", "")
	first.OnChange = func() {
		// The first edit re-renders the field.
		first.Detached = true
		f.page.Set(byField, second)
	}
	f.page.Set(byField, first)

	require.NoError(t, f.executor.Type(context.Background(), "field", "0123456789"))
	assert.Equal(t, "0123456789", second.Value)
}

func TestUploadFile_RevealsHiddenInput(t *testing.T) {
	f := newFixture(t, nil)
	input := fakedom.NewNode("file", "")
	input.Hidden = true
	f.page.Set(byFile, input)
	path := filepath.Join(t.TempDir(), "lecture.pdf")

	require.NoError(t, f.executor.UploadFile(context.Background(), "file_input", path))
	assert.Equal(t, []string{path}, input.Files)
	assert.False(t, input.Hidden)
	assert.Equal(t, 1, f.page.Count("reveal:file"))
}

func TestUploadFile_RejectsRelativePath(t *testing.T) {
	f := newFixture(t, nil)
	err := f.executor.UploadFile(context.Background(), "file_input", "lecture.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absolute")
}

func TestSplitRunes(t *testing.T) {
	assert.Equal(t, []string{"abc"}, splitRunes("abc", 0))
	assert.Equal(t, []string{"abc"}, splitRunes("abc", 3))
	assert.Equal(t, []string{"ab", "c"}, splitRunes("abc", 2))
	assert.Equal(t, []string{"äö", "ü"}, splitRunes("äöü", 2))
	assert.Equal(t, []string{""}, splitRunes("", 5))
}
