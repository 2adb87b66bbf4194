package studio

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/studiopilot/internal/locator"
)

func TestParseMaterial(t *testing.T) {
	for in, want := range map[string]MaterialType{
		"audio":        Audio,
		" Video ":      Video,
		"mind-map":     MindMap,
		"QUIZ":         Quiz,
		"Karteikarten": Flashcards,
		"infografik":   Infographic,
	} {
		got, err := ParseMaterial(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMaterial("slides")
	assert.Error(t, err)
}

func TestParseMaterials(t *testing.T) {
	all, err := ParseMaterials(nil)
	require.NoError(t, err)
	assert.Equal(t, AllMaterials(), all)

	got, err := ParseMaterials([]string{"quiz", "cards", "flashcards", "Quiz"})
	require.NoError(t, err)
	assert.Equal(t, []MaterialType{Quiz, Flashcards}, got)

	_, err = ParseMaterials([]string{"quiz", "nope"})
	assert.Error(t, err)
}

func TestEveryMaterialHasCatalogEntry(t *testing.T) {
	cat := locator.Default()
	for _, m := range AllMaterials() {
		_, ok := cat.Entry(m.Entry())
		assert.True(t, ok, m)
	}
}

func TestLanguageSubsetsAreDisjointAndComplete(t *testing.T) {
	o := &Orchestrator{language: map[MaterialType]bool{}}
	for _, m := range DefaultLanguageRequired() {
		o.language[m] = true
	}
	assert.True(t, o.RequiresLanguage(Audio))
	assert.True(t, o.RequiresLanguage(Video))
	assert.True(t, o.RequiresLanguage(Infographic))
	assert.False(t, o.RequiresLanguage(Quiz))
	assert.False(t, o.RequiresLanguage(Flashcards))
	assert.False(t, o.RequiresLanguage(MindMap))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Short", displayName("Short"))
	exact := strings.Repeat("x", 30)
	assert.Equal(t, exact, displayName(exact))
	assert.Equal(t, strings.Repeat("ü", 30)+"...", displayName(strings.Repeat("ü", 31)))
}

func TestDataSourceMatch(t *testing.T) {
	s := DataSource{Name: "Lecture2 Entropy"}
	assert.True(t, s.Match(nil))
	assert.True(t, s.Match([]string{"ENTROPY"}))
	assert.True(t, s.Match([]string{"x", "lecture2"}))
	assert.False(t, s.Match([]string{"lecture1"}))
	assert.False(t, s.Match([]string{" "}))
}

func TestLanguageOption(t *testing.T) {
	e := LanguageOption("English")
	require.NoError(t, e.Validate())
	require.Len(t, e.Strategies, 2)
	assert.False(t, e.Strategies[0].Fold)
	assert.True(t, e.Strategies[1].Fold)
}

func TestSummarize(t *testing.T) {
	ts := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)
	out := Summarize([]MaterialStatus{
		{Type: Quiz, Source: "Lecture1", Started: true, Timestamp: ts},
		{Type: Flashcards, Source: "Lecture1", Error: "open: button disabled", Timestamp: ts},
		{Type: Quiz, Source: "Lecture2", Started: true, Timestamp: ts},
	})
	assert.Contains(t, out, "Total operations: 3")
	assert.Contains(t, out, "  ✓ quiz\n")
	assert.Contains(t, out, "  ✗ flashcards: open: button disabled\n")
	assert.Contains(t, out, "Started: 2\n")
	assert.Contains(t, out, "Failed:  1\n")
	assert.Less(t, strings.Index(out, "Lecture1"), strings.Index(out, "Lecture2"))
}

func TestDataSourceKeyAndLabel(t *testing.T) {
	first := newDataSource("Lecture", 0, 0, nil)
	second := newDataSource("Lecture", 3, 1, nil)
	assert.Equal(t, "Lecture", first.Key())
	assert.Equal(t, "Lecture", first.Label())
	assert.Equal(t, "Lecture#2", second.Key())
	assert.Equal(t, "Lecture #2", second.Label())
}
