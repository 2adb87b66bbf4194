package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/v0xg/studiopilot/internal/locator"
)

// Options configures how a session is obtained.
type Options struct {
	Headless bool
	// ProfileDir reuses a Chrome profile so an authenticated session survives restarts.
	ProfileDir string
	// ControlURL attaches to an already running browser instead of launching one.
	ControlURL string
	// URL is opened when a new page has to be created.
	URL    string
	Width  int
	Height int
}

// RodSession drives one page of a Chromium browser through go-rod.
type RodSession struct {
	browser  *rod.Browser
	page     *rod.Page
	launched bool
	log      *zap.Logger
}

var _ Session = (*RodSession)(nil)

// Launch starts (or attaches to) a browser and returns a session on its page.
func Launch(ctx context.Context, opts Options, log *zap.Logger) (*RodSession, error) {
	if opts.Width == 0 {
		opts.Width = 1440
	}
	if opts.Height == 0 {
		opts.Height = 900
	}

	controlURL := opts.ControlURL
	launched := false
	if controlURL != "" {
		u, err := launcher.ResolveURL(controlURL)
		if err != nil {
			return nil, fmt.Errorf("resolve control url %s: %w", controlURL, err)
		}
		controlURL = u
		log.Info("attaching to running browser", zap.String("control_url", controlURL))
	} else {
		l := launcher.New().Context(ctx).Headless(opts.Headless)
		if path, ok := launcher.LookPath(); ok {
			l = l.Bin(path)
		}
		if opts.ProfileDir != "" {
			l = l.UserDataDir(opts.ProfileDir)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
		launched = true
		log.Info("browser launched", zap.Bool("headless", opts.Headless), zap.String("profile", opts.ProfileDir))
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := openPage(b, opts.URL, !launched)
	if err != nil {
		if launched {
			_ = b.Close()
		}
		return nil, err
	}

	if launched {
		err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.Width,
			Height:            opts.Height,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("set viewport: %w", err)
		}
	}

	if err := page.Context(ctx).WaitLoad(); err != nil {
		log.Warn("page load wait failed", zap.Error(err))
	}

	return &RodSession{browser: b, page: page, launched: launched, log: log.Named("rod")}, nil
}

// openPage reuses the first existing tab when attaching so the user's
// logged-in notebook stays in front of us.
func openPage(b *rod.Browser, url string, reuse bool) (*rod.Page, error) {
	if reuse {
		pages, err := b.Pages()
		if err != nil {
			return nil, fmt.Errorf("list pages: %w", err)
		}
		if len(pages) > 0 {
			return pages.First(), nil
		}
	}
	page, err := b.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("open page %s: %w", url, err)
	}
	return page, nil
}

// Close releases the page. A browser we attached to is left running.
func (s *RodSession) Close() error {
	if !s.launched {
		return nil
	}
	return s.browser.Close()
}

// Find runs st against the whole document.
func (s *RodSession) Find(ctx context.Context, st locator.Strategy) ([]Element, error) {
	p := s.page.Context(ctx)
	var (
		els rod.Elements
		err error
	)
	switch st.Method {
	case locator.Structural:
		els, err = p.Elements(st.Expr)
	case locator.TextContains:
		els, err = p.ElementsX(st.XPath(false))
	default:
		return nil, fmt.Errorf("unsupported strategy %s", st)
	}
	if err != nil {
		return nil, classify(err)
	}
	return wrapElements(els), nil
}

// PressKey sends k to the focused element.
func (s *RodSession) PressKey(ctx context.Context, k Key) error {
	acts := s.page.Context(ctx).KeyActions()
	switch k {
	case KeyEscape:
		acts = acts.Type(input.Escape)
	case KeyEnter:
		acts = acts.Type(input.Enter)
	case KeyControlEnter:
		acts = acts.Press(input.ControlLeft).Type(input.Enter)
	default:
		return fmt.Errorf("unsupported key %d", int(k))
	}
	return classify(acts.Do())
}

// HideMatching hides every rendered element matching css.
func (s *RodSession) HideMatching(ctx context.Context, css string) (int, error) {
	res, err := s.page.Context(ctx).Eval(`(sel) => {
		let n = 0;
		document.querySelectorAll(sel).forEach(el => {
			const r = el.getBoundingClientRect();
			if (r.width === 0 || r.height === 0) return;
			if (getComputedStyle(el).display === 'none') return;
			el.style.setProperty('display', 'none', 'important');
			n++;
		});
		return n;
	}`, css)
	if err != nil {
		return 0, classify(err)
	}
	return res.Value.Int(), nil
}

// BodyText returns the rendered text of the document body.
func (s *RodSession) BodyText(ctx context.Context) (string, error) {
	res, err := s.page.Context(ctx).Eval(`() => document.body ? document.body.innerText : ''`)
	if err != nil {
		return "", classify(err)
	}
	return res.Value.Str(), nil
}

// Inventory lists the visible interactive elements.
func (s *RodSession) Inventory(ctx context.Context) (Inventory, error) {
	var inv Inventory
	res, err := s.page.Context(ctx).Eval(inventoryJS)
	if err != nil {
		return inv, classify(err)
	}
	if err := json.Unmarshal([]byte(res.Value.JSON("", "")), &inv); err != nil {
		return inv, fmt.Errorf("decode inventory: %w", err)
	}
	return inv, nil
}

// Screenshot captures the viewport as PNG.
func (s *RodSession) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, classify(err)
	}
	return data, nil
}

// HTML returns the current document markup.
func (s *RodSession) HTML(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).HTML()
	return html, classify(err)
}

// Info returns the page URL and title.
func (s *RodSession) Info(ctx context.Context) (PageInfo, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return PageInfo{}, classify(err)
	}
	return PageInfo{URL: info.URL, Title: info.Title}, nil
}

// Navigate loads url and waits for the load event.
func (s *RodSession) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

// Alive reports whether the page still evaluates script within 3s.
func (s *RodSession) Alive(ctx context.Context) bool {
	p := s.page.Context(ctx).Timeout(3 * time.Second)
	defer p.CancelTimeout()
	_, err := p.Eval(`() => document.readyState`)
	if err != nil {
		s.log.Debug("liveness check failed", zap.Error(err))
		return false
	}
	return true
}

// ExpectDownload arms a download listener. The returned function waits for
// the file and renames it to its suggested name when there is one.
func (s *RodSession) ExpectDownload(ctx context.Context, dir string) func() (string, error) {
	wait := s.browser.Context(ctx).WaitDownload(dir)
	return func() (string, error) {
		info := wait()
		if info == nil {
			return "", fmt.Errorf("download did not complete: %w", context.Cause(ctx))
		}
		src := filepath.Join(dir, info.GUID)
		if info.SuggestedFilename == "" {
			return src, nil
		}
		dst := filepath.Join(dir, filepath.Base(info.SuggestedFilename))
		if err := os.Rename(src, dst); err != nil {
			s.log.Warn("keeping download under its GUID name", zap.String("path", src), zap.Error(err))
			return src, nil
		}
		return dst, nil
	}
}

type rodElement struct {
	el *rod.Element
}

func wrapElements(els rod.Elements) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out
}

func (e *rodElement) eval(ctx context.Context, js string, args ...interface{}) (*proto.RuntimeRemoteObject, error) {
	res, err := e.el.Context(ctx).Eval(js, args...)
	return res, classify(err)
}

// visibleJS requires a rendered box with both dimensions non-zero. rod's own
// Visible accepts a 0x0 box that merely has an offset.
const visibleJS = `() => {
	const r = this.getBoundingClientRect();
	if (!(r.width > 0 && r.height > 0)) return false;
	const st = getComputedStyle(this);
	return st.display !== 'none' && st.visibility !== 'hidden';
}`

func (e *rodElement) Visible(ctx context.Context) (bool, error) {
	res, err := e.eval(ctx, visibleJS)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (e *rodElement) ScrollIntoView(ctx context.Context) error {
	_, err := e.eval(ctx, `() => this.scrollIntoView({block: 'center', inline: 'center'})`)
	return err
}

// Click moves the mouse to the element's hit point and presses there. Unlike
// rod's Element.Click it does not wait for the element to become
// interactable, so a covering overlay surfaces as ErrIntercepted at once.
func (e *rodElement) Click(ctx context.Context) error {
	el := e.el.Context(ctx)
	pt, err := el.Interactable()
	if err != nil {
		return classify(err)
	}
	page := el.Page()
	if err := page.Mouse.MoveTo(*pt); err != nil {
		return classify(err)
	}
	return classify(page.Mouse.Click(proto.InputMouseButtonLeft, 1))
}

func (e *rodElement) ForceClick(ctx context.Context) error {
	_, err := e.eval(ctx, `() => this.click()`)
	return err
}

func (e *rodElement) Input(ctx context.Context, text string) error {
	return classify(e.el.Context(ctx).Input(text))
}

func (e *rodElement) Clear(ctx context.Context) error {
	_, err := e.eval(ctx, `() => {
		if ('value' in this) {
			this.value = '';
		} else {
			this.textContent = '';
		}
		this.dispatchEvent(new Event('input', {bubbles: true}));
	}`)
	return err
}

func (e *rodElement) SetFiles(ctx context.Context, paths ...string) error {
	return classify(e.el.Context(ctx).SetFiles(paths))
}

func (e *rodElement) Reveal(ctx context.Context) error {
	_, err := e.eval(ctx, `() => {
		this.style.display = 'block';
		this.style.visibility = 'visible';
		this.style.opacity = '1';
		this.style.width = '1px';
		this.style.height = '1px';
	}`)
	return err
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	s, err := e.el.Context(ctx).Text()
	return s, classify(err)
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, classify(err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *rodElement) Checked(ctx context.Context) (bool, error) {
	res, err := e.eval(ctx, `() => this.checked === true || this.getAttribute('aria-checked') === 'true'`)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (e *rodElement) ScrollBy(ctx context.Context, dy float64) error {
	_, err := e.eval(ctx, `(dy) => { this.scrollTop += dy; }`, dy)
	return err
}

func (e *rodElement) Box(ctx context.Context) (Box, error) {
	shape, err := e.el.Context(ctx).Shape()
	if err != nil {
		return Box{}, classify(err)
	}
	r := shape.Box()
	if r == nil {
		return Box{}, fmt.Errorf("element has no shape")
	}
	return Box{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}, nil
}

func (e *rodElement) Find(ctx context.Context, st locator.Strategy) ([]Element, error) {
	el := e.el.Context(ctx)
	var (
		els rod.Elements
		err error
	)
	switch st.Method {
	case locator.Structural:
		els, err = el.Elements(st.Expr)
	case locator.TextContains:
		els, err = el.ElementsX(st.XPath(true))
	default:
		return nil, fmt.Errorf("unsupported strategy %s", st)
	}
	if err != nil {
		return nil, classify(err)
	}
	return wrapElements(els), nil
}
