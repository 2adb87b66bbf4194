// Package studio generates study materials (audio and video overviews, mind
// maps, quizzes, flashcards, infographics) for the sources of a notebook,
// one source at a time, and downloads the finished ones.
package studio

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/v0xg/studiopilot/internal/browser"
	"github.com/v0xg/studiopilot/internal/locator"
)

// MaterialType is one kind of generated material.
type MaterialType string

const (
	Audio       MaterialType = "audio"
	Video       MaterialType = "video"
	MindMap     MaterialType = "mindmap"
	Quiz        MaterialType = "quiz"
	Flashcards  MaterialType = "flashcards"
	Infographic MaterialType = "infographic"
)

// AllMaterials returns every material type in generation order.
func AllMaterials() []MaterialType {
	return []MaterialType{Audio, Video, MindMap, Quiz, Flashcards, Infographic}
}

// DefaultLanguageRequired lists the types whose control opens a
// customization dialog with a language choice. The rest start on click.
func DefaultLanguageRequired() []MaterialType {
	return []MaterialType{Audio, Video, Infographic}
}

var materialAliases = map[string]MaterialType{
	"audio":          Audio,
	"audio-overview": Audio,
	"podcast":        Audio,
	"video":          Video,
	"video-overview": Video,
	"mindmap":        MindMap,
	"mind-map":       MindMap,
	"mind_map":       MindMap,
	"quiz":           Quiz,
	"flashcards":     Flashcards,
	"cards":          Flashcards,
	"karteikarten":   Flashcards,
	"infographic":    Infographic,
	"infografik":     Infographic,
}

// ParseMaterial accepts a type name or one of its aliases, case-insensitively.
func ParseMaterial(s string) (MaterialType, error) {
	if t, ok := materialAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown material type %q", s)
}

// ParseMaterials parses a list, dropping duplicates. An empty list means all.
func ParseMaterials(names []string) ([]MaterialType, error) {
	if len(names) == 0 {
		return AllMaterials(), nil
	}
	seen := make(map[MaterialType]bool)
	var out []MaterialType
	for _, n := range names {
		t, err := ParseMaterial(n)
		if err != nil {
			return nil, err
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out, nil
}

// Entry is the catalog entry of the type's studio control.
func (t MaterialType) Entry() string { return locator.MaterialPrefix + string(t) }

func (t MaterialType) String() string { return string(t) }

// MaterialStatus is the outcome of one generation attempt.
type MaterialStatus struct {
	Type      MaterialType `json:"type"`
	Source    string       `json:"source"`
	Started   bool         `json:"started"`
	Error     string       `json:"error,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// OK reports whether generation started cleanly.
func (s MaterialStatus) OK() bool { return s.Started && s.Error == "" }

const displayRunes = 30

// DataSource is one source of the notebook as listed in the sources panel.
type DataSource struct {
	// Name is the full label of the source's checkbox.
	Name string
	// DisplayName is Name cut to 30 runes for logs and reports.
	DisplayName string
	Index       int
	// Occurrence counts earlier sources with the same Name.
	Occurrence int

	handle browser.Element
}

func newDataSource(name string, index, occurrence int, handle browser.Element) DataSource {
	return DataSource{Name: name, DisplayName: displayName(name), Index: index, Occurrence: occurrence, handle: handle}
}

// Key identifies the source within one listing. It is Name, suffixed with
// "#n" for the n-th source sharing that name.
func (s DataSource) Key() string {
	if s.Occurrence == 0 {
		return s.Name
	}
	return fmt.Sprintf("%s#%d", s.Name, s.Occurrence+1)
}

// Label is DisplayName with the same suffix as Key.
func (s DataSource) Label() string {
	if s.Occurrence == 0 {
		return s.DisplayName
	}
	return fmt.Sprintf("%s #%d", s.DisplayName, s.Occurrence+1)
}

func displayName(name string) string {
	if utf8.RuneCountInString(name) <= displayRunes {
		return name
	}
	return string([]rune(name)[:displayRunes]) + "..."
}

// Match reports whether any pattern occurs in the source name, ignoring
// case. No patterns match everything.
func (s DataSource) Match(patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	name := strings.ToLower(s.Name)
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" && strings.Contains(name, p) {
			return true
		}
	}
	return false
}

// LanguageOption is the entry for the option naming lang in an open
// language listbox: exact text first, then case-insensitive.
func LanguageOption(lang string) locator.Entry {
	const tag = "*[@role='option']"
	return locator.Entry{
		Name:        "language_option",
		Description: "language option " + lang,
		Strategies: []locator.Strategy{
			locator.Text(tag, lang),
			locator.TextFold(tag, lang),
		},
	}
}
