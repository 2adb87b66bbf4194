// Package fakedom is an in-memory stand-in for a browser session. Tests wire
// nodes to locator strategies and inspect the recorded event log.
package fakedom

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/v0xg/studiopilot/internal/browser"
	"github.com/v0xg/studiopilot/internal/locator"
)

// Node is a fake element. Exported fields may be set freely before the node
// is returned from a Find; afterwards mutate it through Page.Do.
type Node struct {
	Name      string
	InnerText string
	Attrs     map[string]string
	Hidden    bool
	Detached  bool
	IsChecked bool
	// Toggles makes successful clicks flip IsChecked, like a checkbox.
	Toggles bool
	Value   string
	Files   []string
	// Width and Height default to 100x20. Collapsed forces a 0x0 box, which
	// also makes the node invisible.
	Width, Height float64
	Collapsed     bool
	ScrollTop     float64

	// Children maps a strategy key (Strategy.String) to descendants.
	Children map[string][]*Node

	// ClickErr and ForceErr are consumed one per call; a nil entry succeeds.
	ClickErr []error
	ForceErr []error
	// OnClick runs after a successful native or forced click.
	OnClick func()
	// OnChange runs after Input, Clear or SetFiles.
	OnChange func()
	// OnScroll runs after ScrollBy with the new scroll offset.
	OnScroll func(top float64)

	page *Page
}

// NewNode returns a visible node with the given name and text.
func NewNode(name, text string) *Node {
	return &Node{Name: name, InnerText: text}
}

// Add registers children under a strategy and returns n for chaining.
func (n *Node) Add(s locator.Strategy, children ...*Node) *Node {
	if n.Children == nil {
		n.Children = make(map[string][]*Node)
	}
	n.Children[s.String()] = append(n.Children[s.String()], children...)
	return n
}

// Page is a fake browser.Session.
type Page struct {
	mu      sync.Mutex
	matches map[string][]*Node
	finds   map[string]int
	events  []string

	Body       string
	Inv        browser.Inventory
	Shot       []byte
	ShotErr    error
	Markup     string
	MarkupErr  error
	URL, Title string
	Dead       bool
	// Downloads are handed out in order by ExpectDownload.
	Downloads []string
	OnKey     func(browser.Key)
}

var _ browser.Session = (*Page)(nil)

// New returns an empty page.
func New() *Page {
	return &Page{
		matches: make(map[string][]*Node),
		finds:   make(map[string]int),
		URL:     "https://notebook.test/notebook/1",
		Title:   "Notebook",
		Shot:    tinyPNG(),
		Markup:  "<html><body></body></html>",
	}
}

// Set replaces the nodes matched by s.
func (p *Page) Set(s locator.Strategy, nodes ...*Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.matches[s.String()] = nodes
}

// Do runs fn under the page lock so tests can mutate nodes while the engine polls.
func (p *Page) Do(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
}

// Events returns a copy of the event log.
func (p *Page) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// Count returns how many events start with prefix.
func (p *Page) Count(prefix string) int {
	n := 0
	for _, e := range p.Events() {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

// FindCount returns how many times s was queried at page level.
func (p *Page) FindCount(s locator.Strategy) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finds[s.String()]
}

func (p *Page) record(format string, args ...interface{}) {
	p.events = append(p.events, fmt.Sprintf(format, args...))
}

func (p *Page) adopt(nodes []*Node) []browser.Element {
	out := make([]browser.Element, 0, len(nodes))
	for _, n := range nodes {
		n.page = p
		out = append(out, n)
	}
	return out
}

func (p *Page) Find(ctx context.Context, s locator.Strategy) ([]browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Dead {
		return nil, browser.ErrSessionDead
	}
	p.finds[s.String()]++
	return p.adopt(p.matches[s.String()]), nil
}

func (p *Page) PressKey(ctx context.Context, k browser.Key) error {
	p.mu.Lock()
	p.record("key:%s", k)
	hook := p.OnKey
	p.mu.Unlock()
	if hook != nil {
		hook(k)
	}
	return nil
}

func (p *Page) HideMatching(ctx context.Context, css string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("hide:%s", css)
	hidden := 0
	for _, n := range p.matches[locator.CSS(css).String()] {
		if !n.Hidden && !n.Detached {
			n.Hidden = true
			hidden++
		}
	}
	return hidden, nil
}

func (p *Page) BodyText(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Body, nil
}

func (p *Page) Inventory(ctx context.Context) (browser.Inventory, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Inv, nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ShotErr != nil {
		return nil, p.ShotErr
	}
	return p.Shot, nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Markup, p.MarkupErr
}

func (p *Page) Info(ctx context.Context) (browser.PageInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return browser.PageInfo{URL: p.URL, Title: p.Title}, nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("navigate:%s", url)
	p.URL = url
	return nil
}

func (p *Page) Alive(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.Dead
}

func (p *Page) ExpectDownload(ctx context.Context, dir string) func() (string, error) {
	p.mu.Lock()
	p.record("expect-download:%s", dir)
	p.mu.Unlock()
	return func() (string, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if len(p.Downloads) == 0 {
			return "", fmt.Errorf("no download started")
		}
		path := p.Downloads[0]
		p.Downloads = p.Downloads[1:]
		return path, nil
	}
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("close")
	return nil
}

// lock takes the owning page's lock and fails for detached nodes.
func (n *Node) lock() (func(), error) {
	p := n.page
	p.mu.Lock()
	if n.Detached {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", browser.ErrStale, n.Name)
	}
	return p.mu.Unlock, nil
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (n *Node) Visible(ctx context.Context) (bool, error) {
	unlock, err := n.lock()
	if err != nil {
		return false, err
	}
	defer unlock()
	return !n.Hidden && !n.Collapsed, nil
}

func (n *Node) ScrollIntoView(ctx context.Context) error {
	unlock, err := n.lock()
	if err != nil {
		return err
	}
	defer unlock()
	n.page.record("scroll:%s", n.Name)
	return nil
}

func (n *Node) Click(ctx context.Context) error {
	return n.click("click", &n.ClickErr)
}

func (n *Node) ForceClick(ctx context.Context) error {
	return n.click("force", &n.ForceErr)
}

func (n *Node) click(kind string, errs *[]error) error {
	unlock, err := n.lock()
	if err != nil {
		return err
	}
	if err := pop(errs); err != nil {
		n.page.record("%s-failed:%s", kind, n.Name)
		unlock()
		return err
	}
	n.page.record("%s:%s", kind, n.Name)
	if n.Toggles {
		n.IsChecked = !n.IsChecked
	}
	hook := n.OnClick
	unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (n *Node) change(event string, fn func()) error {
	unlock, err := n.lock()
	if err != nil {
		return err
	}
	fn()
	n.page.record("%s:%s", event, n.Name)
	hook := n.OnChange
	unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (n *Node) Input(ctx context.Context, text string) error {
	return n.change("input", func() { n.Value += text })
}

func (n *Node) Clear(ctx context.Context) error {
	return n.change("clear", func() { n.Value = "" })
}

func (n *Node) SetFiles(ctx context.Context, paths ...string) error {
	return n.change("files", func() { n.Files = append([]string(nil), paths...) })
}

func (n *Node) Reveal(ctx context.Context) error {
	unlock, err := n.lock()
	if err != nil {
		return err
	}
	defer unlock()
	n.Hidden = false
	n.page.record("reveal:%s", n.Name)
	return nil
}

func (n *Node) Text(ctx context.Context) (string, error) {
	unlock, err := n.lock()
	if err != nil {
		return "", err
	}
	defer unlock()
	return n.InnerText, nil
}

func (n *Node) Attribute(ctx context.Context, name string) (string, bool, error) {
	unlock, err := n.lock()
	if err != nil {
		return "", false, err
	}
	defer unlock()
	v, ok := n.Attrs[name]
	return v, ok, nil
}

func (n *Node) Checked(ctx context.Context) (bool, error) {
	unlock, err := n.lock()
	if err != nil {
		return false, err
	}
	defer unlock()
	return n.IsChecked, nil
}

func (n *Node) ScrollBy(ctx context.Context, dy float64) error {
	unlock, err := n.lock()
	if err != nil {
		return err
	}
	n.ScrollTop += dy
	top := n.ScrollTop
	n.page.record("scrollby:%s", n.Name)
	hook := n.OnScroll
	unlock()
	if hook != nil {
		hook(top)
	}
	return nil
}

func (n *Node) Box(ctx context.Context) (browser.Box, error) {
	unlock, err := n.lock()
	if err != nil {
		return browser.Box{}, err
	}
	defer unlock()
	if n.Collapsed {
		return browser.Box{}, nil
	}
	w, h := n.Width, n.Height
	if w == 0 && h == 0 {
		w, h = 100, 20
	}
	return browser.Box{Width: w, Height: h}, nil
}

func (n *Node) Find(ctx context.Context, s locator.Strategy) ([]browser.Element, error) {
	unlock, err := n.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return n.page.adopt(n.Children[s.String()]), nil
}
