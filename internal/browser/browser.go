// Package browser defines the session contract the engine drives and the
// go-rod implementation of it.
package browser

import (
	"context"
	"errors"

	"github.com/v0xg/studiopilot/internal/locator"
)

var (
	// ErrStale means an element handle no longer refers to a node in the document.
	ErrStale = errors.New("stale element reference")
	// ErrIntercepted means another element would receive a pointer click.
	ErrIntercepted = errors.New("click intercepted")
	// ErrSessionDead means the browser cannot be driven and could not be recreated.
	ErrSessionDead = errors.New("browser session dead")
)

// Key is a keyboard action the engine needs.
type Key int

const (
	KeyEscape Key = iota
	KeyEnter
	KeyControlEnter
)

func (k Key) String() string {
	switch k {
	case KeyEscape:
		return "Escape"
	case KeyEnter:
		return "Enter"
	case KeyControlEnter:
		return "Control+Enter"
	default:
		return "unknown"
	}
}

// Box is an element's layout rectangle in CSS pixels.
type Box struct {
	X, Y, Width, Height float64
}

// Center returns the middle of the box.
func (b Box) Center() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Element is a handle to a rendered node. Handles go stale when the
// application re-renders; methods then return an error wrapping ErrStale.
type Element interface {
	Visible(ctx context.Context) (bool, error)
	// ScrollIntoView centers the element in the viewport.
	ScrollIntoView(ctx context.Context) error
	// Click dispatches a real pointer click and fails with ErrIntercepted
	// when another element covers the hit point.
	Click(ctx context.Context) error
	// ForceClick invokes the element's click handler from script.
	ForceClick(ctx context.Context) error
	// Input appends text at the element's current caret position.
	Input(ctx context.Context, text string) error
	Clear(ctx context.Context) error
	SetFiles(ctx context.Context, paths ...string) error
	// Reveal forces a hidden element to render so it can take input.
	Reveal(ctx context.Context) error
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, bool, error)
	Checked(ctx context.Context) (bool, error)
	ScrollBy(ctx context.Context, dy float64) error
	Box(ctx context.Context) (Box, error)
	// Find returns the matches of s among the element's descendants in document order.
	Find(ctx context.Context, s locator.Strategy) ([]Element, error)
}

// PageInfo identifies the current document.
type PageInfo struct {
	URL   string
	Title string
}

// ElementInfo summarizes one interactive element for reports and the advisor.
type ElementInfo struct {
	Tag         string `json:"tag"`
	Text        string `json:"text,omitempty"`
	AriaLabel   string `json:"ariaLabel,omitempty"`
	Role        string `json:"role,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Type        string `json:"type,omitempty"`
	Selector    string `json:"selector,omitempty"`
}

// Inventory is the set of visible interactive elements on a page.
type Inventory struct {
	Buttons   []ElementInfo `json:"buttons"`
	Inputs    []ElementInfo `json:"inputs"`
	Editables []ElementInfo `json:"editables"`
}

// Page is the document-level half of a session.
type Page interface {
	// Find returns the matches of s in document order.
	Find(ctx context.Context, s locator.Strategy) ([]Element, error)
	PressKey(ctx context.Context, k Key) error
	// HideMatching sets display:none on every visible element matching css
	// and returns how many were hidden.
	HideMatching(ctx context.Context, css string) (int, error)
	BodyText(ctx context.Context) (string, error)
	Inventory(ctx context.Context) (Inventory, error)
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
	Info(ctx context.Context) (PageInfo, error)
	Navigate(ctx context.Context, url string) error
	Alive(ctx context.Context) bool
	// ExpectDownload arms a download listener writing into dir. The returned
	// function blocks until the download finishes or ctx ends.
	ExpectDownload(ctx context.Context, dir string) func() (string, error)
}

// Session is an exclusively owned, live browser page.
type Session interface {
	Page
	Close() error
}
