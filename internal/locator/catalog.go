// Package locator holds the catalog of named, ordered element-location
// strategies for every logical UI target the engine interacts with.
//
// The catalog is data. It ships embedded as YAML and can be overridden
// entry-by-entry from a file when the target application's markup changes.
package locator

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Logical targets referenced from code.
const (
	ChatInput         = "chat_input"
	SendButton        = "send_button"
	ChatPanel         = "chat_panel"
	AnswerCandidate   = "answer_candidate"
	LoadingIndicator  = "loading_indicator"
	AddSourceButton   = "add_source_button"
	UploadFileOption  = "upload_file_option"
	FileInput         = "file_input"
	PasteTextOption   = "paste_text_option"
	TextInput         = "text_input"
	InsertButton      = "insert_button"
	WebsiteOption     = "website_option"
	URLInput          = "url_input"
	NewNotebookButton = "new_notebook_button"
	NotebookTitle     = "notebook_title"
	SourcesCount      = "sources_count"
	SourcesTab        = "sources_tab"
	SourceCheckbox    = "source_checkbox"
	SelectAllSources  = "select_all_sources"
	StudioTab         = "studio_tab"
	LanguageDropdown  = "language_dropdown"
	LanguageListbox   = "language_listbox"
	CreateButton      = "create_button"
	Overlay           = "overlay"
	Dialog            = "dialog"
	CloseDialog       = "close_dialog"
	StudioItem        = "studio_item"
	MoreButton        = "more_button"
	MenuDownload      = "menu_download"
	MaterialPrefix    = "material_"
)

// Entry is a named, non-empty, ordered list of strategies. Earlier
// strategies are more specific; later ones are broader fallbacks.
type Entry struct {
	Name        string
	Description string
	Strategies  []Strategy
}

// Validate checks that the entry is usable. Case-folded text strategies are
// the most prone to false positives and must come after every exact one.
func (e Entry) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("entry without name")
	}
	if len(e.Strategies) == 0 {
		return fmt.Errorf("entry %q has no strategies", e.Name)
	}
	folded := false
	for i, s := range e.Strategies {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("entry %q strategy %d: %w", e.Name, i, err)
		}
		if s.Fold {
			folded = true
		} else if folded {
			return fmt.Errorf("entry %q strategy %d: exact strategy after a case-insensitive one", e.Name, i)
		}
	}
	return nil
}

// Catalog maps entry names to entries. It is read-only once built.
type Catalog struct {
	Version string
	entries map[string]Entry
}

type fileStrategy struct {
	CSS  string `yaml:"css,omitempty"`
	Text string `yaml:"text,omitempty"`
	Tag  string `yaml:"tag,omitempty"`
	Fold bool   `yaml:"fold,omitempty"`
}

type fileEntry struct {
	Description string         `yaml:"description,omitempty"`
	Strategies  []fileStrategy `yaml:"strategies"`
}

type fileCatalog struct {
	Version string               `yaml:"version"`
	Entries map[string]fileEntry `yaml:"entries"`
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded locator catalog is invalid: %v", err))
	}
	return c
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var fc fileCatalog
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	c := &Catalog{Version: fc.Version, entries: make(map[string]Entry, len(fc.Entries))}
	for name, fe := range fc.Entries {
		e := Entry{Name: name, Description: fe.Description}
		for i, fs := range fe.Strategies {
			switch {
			case fs.CSS != "" && fs.Text != "":
				return nil, fmt.Errorf("entry %q strategy %d: both css and text set", name, i)
			case fs.CSS != "":
				s := CSS(fs.CSS)
				s.Fold = fs.Fold
				e.Strategies = append(e.Strategies, s)
			default:
				s := Text(fs.Tag, fs.Text)
				s.Fold = fs.Fold
				e.Strategies = append(e.Strategies, s)
			}
		}
		if err := e.Validate(); err != nil {
			return nil, err
		}
		c.entries[name] = e
	}
	return c, nil
}

// LoadFile parses a catalog file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Merge returns a new catalog where entries from override replace entries
// of the same name in c. The override's version wins when set.
func (c *Catalog) Merge(override *Catalog) *Catalog {
	out := &Catalog{Version: c.Version, entries: make(map[string]Entry, len(c.entries))}
	for k, v := range c.entries {
		out.entries[k] = v
	}
	if override == nil {
		return out
	}
	if override.Version != "" {
		out.Version = override.Version
	}
	for k, v := range override.entries {
		out.entries[k] = v
	}
	return out
}

// Entry looks up an entry by name.
func (c *Catalog) Entry(name string) (Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

// Names returns all entry names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entries))
	for k := range c.entries {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Len is the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }
