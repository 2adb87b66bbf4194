// Package notebook drives a notebook page: creating and naming it, asking
// questions in the chat and adding file, text and website sources.
package notebook

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/studiopilot/internal/browser"
	"github.com/v0xg/studiopilot/internal/engine"
	"github.com/v0xg/studiopilot/internal/extract"
	"github.com/v0xg/studiopilot/internal/locator"
	"github.com/v0xg/studiopilot/internal/poll"
)

// Config bounds the client's waits.
type Config struct {
	// ResponseTimeout bounds the wait for a chat answer, loading included.
	ResponseTimeout time.Duration
	// UploadTimeout bounds the wait for a new source after injecting it.
	UploadTimeout time.Duration
	// ManualTimeout is how long a human gets to finish a stuck source add.
	ManualTimeout time.Duration
	// CreateTimeout bounds the wait for a new notebook's page to open.
	CreateTimeout time.Duration
	PollInterval  time.Duration
	// OptionalBudget is the resolve budget for steps that may legitimately be absent.
	OptionalBudget time.Duration
}

// DefaultConfig returns production waits.
func DefaultConfig() Config {
	return Config{
		ResponseTimeout: 120 * time.Second,
		UploadTimeout:   60 * time.Second,
		ManualTimeout:   120 * time.Second,
		CreateTimeout:   30 * time.Second,
		PollInterval:    time.Second,
		OptionalBudget:  3 * time.Second,
	}
}

// Client drives one notebook page.
type Client struct {
	exec     *engine.Executor
	res      *engine.Resolver
	page     browser.Page
	extract  *extract.Extractor
	reporter engine.Reporter
	cfg      Config
	log      *zap.Logger
}

// New returns a client. reporter may be nil.
func New(exec *engine.Executor, ext *extract.Extractor, reporter engine.Reporter, cfg Config, log *zap.Logger) *Client {
	return &Client{
		exec:     exec,
		res:      exec.Resolver(),
		page:     exec.Resolver().Page(),
		extract:  ext,
		reporter: reporter,
		cfg:      cfg,
		log:      log.Named("notebook"),
	}
}

// notebookPath marks a URL as a notebook page rather than the notebook list.
const notebookPath = "/notebook/"

// CreateNotebook opens home when set, creates a notebook and names it when
// name is set. It returns the new notebook's URL. A failed rename only warns.
func (c *Client) CreateNotebook(ctx context.Context, home, name string) (string, error) {
	if err := browser.EnsureAt(ctx, c.page, home); err != nil {
		return "", fmt.Errorf("create notebook: %w", err)
	}
	before, _ := c.page.Info(ctx)
	if err := c.exec.Click(ctx, locator.NewNotebookButton); err != nil {
		return "", fmt.Errorf("create notebook: %w", err)
	}

	var created string
	ok, err := poll.Until(ctx, c.cfg.PollInterval, c.cfg.CreateTimeout, func() bool {
		info, err := c.page.Info(ctx)
		if err != nil || info.URL == before.URL || !strings.Contains(info.URL, notebookPath) {
			return false
		}
		created = info.URL
		return true
	})
	if err != nil {
		return "", err
	}
	if !ok {
		err := fmt.Errorf("create notebook: no notebook page within %s", c.cfg.CreateTimeout)
		c.capture(ctx, "create_notebook", err)
		return "", err
	}
	c.log.Info("notebook created", zap.String("url", created))

	if name != "" {
		if err := c.SetNotebookName(ctx, name); err != nil {
			if ctx.Err() != nil {
				return created, ctx.Err()
			}
			c.log.Warn("notebook keeps its default name", zap.Error(err))
		}
	}
	return created, nil
}

// SetNotebookName replaces the notebook title and commits it with Enter.
func (c *Client) SetNotebookName(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("empty notebook name")
	}
	if err := c.exec.Type(ctx, locator.NotebookTitle, name); err != nil {
		return fmt.Errorf("set notebook name: %w", err)
	}
	if err := c.page.PressKey(ctx, browser.KeyEnter); err != nil {
		return fmt.Errorf("set notebook name: %w", err)
	}
	c.log.Info("notebook named", zap.String("name", name))
	return nil
}

// SendMessage asks a question in the chat and waits for the answer. A
// candidate is new when it was rendered after the last answer present before
// sending, even if its text is identical. It counts once it reads the same on
// two consecutive polls. ok is false when no answer showed up in time.
func (c *Client) SendMessage(ctx context.Context, text string) (string, bool, error) {
	if strings.TrimSpace(text) == "" {
		return "", false, errors.New("empty message")
	}
	previous, hadPrevious := c.extract.Latest(ctx, text)
	deadline := time.Now().Add(c.cfg.ResponseTimeout)

	if err := c.exec.Type(ctx, locator.ChatInput, text); err != nil {
		return "", false, fmt.Errorf("type message: %w", err)
	}
	if err := c.exec.Click(ctx, locator.SendButton); err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		c.log.Warn("send button unusable, pressing Enter", zap.Error(err))
		if kerr := c.page.PressKey(ctx, browser.KeyEnter); kerr != nil {
			return "", false, fmt.Errorf("send message: %w", err)
		}
	}
	c.log.Info("message sent", zap.Int("runes", len([]rune(text))))

	if _, err := poll.Until(ctx, c.cfg.PollInterval, time.Until(deadline), func() bool {
		return !c.loading(ctx)
	}); err != nil {
		return "", false, err
	}

	var (
		last    extract.Answer
		hasLast bool
	)
	stable, err := poll.Until(ctx, c.cfg.PollInterval, time.Until(deadline), func() bool {
		ans, ok := c.extract.Latest(ctx, text)
		if !ok || (hadPrevious && !ans.After(previous)) {
			return false
		}
		if hasLast && ans == last {
			return true
		}
		last, hasLast = ans, true
		return false
	})
	if err != nil {
		return "", false, err
	}
	switch {
	case stable:
		c.log.Info("answer received", zap.Int("runes", len([]rune(last.Text))))
		return last.Text, true, nil
	case hasLast:
		c.log.Warn("answer still changing at timeout, returning latest")
		return last.Text, true, nil
	default:
		c.log.Warn("no answer found", zap.Duration("timeout", c.cfg.ResponseTimeout))
		c.capture(ctx, "send_message", errors.New("no answer within timeout"))
		return "", false, nil
	}
}

// loading reports whether a loading indicator is currently visible.
func (c *Client) loading(ctx context.Context) bool {
	entry, ok := c.res.Catalog().Entry(locator.LoadingIndicator)
	if !ok {
		return false
	}
	for _, s := range entry.Strategies {
		els, err := c.page.Find(ctx, s)
		if err != nil {
			continue
		}
		for _, el := range els {
			if vis, err := el.Visible(ctx); err == nil && vis {
				return true
			}
		}
	}
	return false
}

var (
	parenCount = regexp.MustCompile(`\((\d+)\)`)
	bodyCount  = regexp.MustCompile(`(?i)(\d+)\s*(?:quelle|source)`)
)

// SourceCount reads the number of sources in the notebook: "(N)" on the
// sources counter, else "N Quellen" or "N sources" anywhere in the page,
// else zero.
func (c *Client) SourceCount(ctx context.Context) int {
	if entry, ok := c.res.Catalog().Entry(locator.SourcesCount); ok {
		for _, s := range entry.Strategies {
			els, err := c.page.Find(ctx, s)
			if err != nil {
				continue
			}
			for _, el := range els {
				if n, ok := countIn(ctx, el); ok {
					return n
				}
			}
		}
	}
	body, err := c.page.BodyText(ctx)
	if err != nil {
		c.log.Debug("body text unavailable", zap.Error(err))
		return 0
	}
	if m := bodyCount.FindStringSubmatch(body); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

func countIn(ctx context.Context, el browser.Element) (int, bool) {
	var texts []string
	if t, err := el.Text(ctx); err == nil {
		texts = append(texts, t)
	}
	if a, ok, err := el.Attribute(ctx, "aria-label"); err == nil && ok {
		texts = append(texts, a)
	}
	for _, t := range texts {
		if m := parenCount.FindStringSubmatch(t); m != nil {
			n, _ := strconv.Atoi(m[1])
			return n, true
		}
	}
	return 0, false
}

// UploadFile adds a local file as a source. It reports true once the source
// count goes up.
func (c *Client) UploadFile(ctx context.Context, path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return false, fmt.Errorf("upload source: %w", err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("upload source: %s is a directory", abs)
	}

	before := c.SourceCount(ctx)
	c.log.Info("uploading", zap.String("file", info.Name()), zap.Int("sources_before", before))

	if !c.tryClick(ctx, locator.AddSourceButton) {
		c.log.Debug("add source button not clicked, trying the file input directly")
	}
	c.tryClick(ctx, locator.UploadFileOption)

	injected := true
	if err := c.exec.UploadFile(ctx, locator.FileInput, abs); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		injected = false
	}
	return c.awaitNewSource(ctx, before, info.Name(), injected)
}

// AddTextSource pastes text as a new source. title, when set, heads the text.
func (c *Client) AddTextSource(ctx context.Context, title, text string) (bool, error) {
	if strings.TrimSpace(text) == "" {
		return false, errors.New("empty source text")
	}
	before := c.SourceCount(ctx)
	c.log.Info("adding text source", zap.String("title", title), zap.Int("runes", len([]rune(text))))

	c.tryClick(ctx, locator.AddSourceButton)
	if !c.tryClick(ctx, locator.PasteTextOption) {
		c.log.Warn("paste text option not found")
	}

	payload := text
	if title != "" {
		payload = title + "\n\n" + text
	}
	injected := true
	if err := c.exec.Type(ctx, locator.TextInput, payload); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		injected = false
	} else if !c.tryClick(ctx, locator.InsertButton) {
		c.log.Debug("insert button not clicked, submitting with Ctrl+Enter")
		if err := c.page.PressKey(ctx, browser.KeyControlEnter); err != nil {
			c.log.Debug("ctrl+enter failed", zap.Error(err))
		}
	}
	return c.awaitNewSource(ctx, before, title, injected)
}

// AddWebsiteSource adds the page at rawURL as a source. It reports true once
// the source count goes up.
func (c *Client) AddWebsiteSource(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false, fmt.Errorf("website source: %q is not an http(s) URL", rawURL)
	}
	site := u.String()
	before := c.SourceCount(ctx)
	c.log.Info("adding website source", zap.String("url", site), zap.Int("sources_before", before))

	c.tryClick(ctx, locator.AddSourceButton)
	if !c.tryClick(ctx, locator.WebsiteOption) {
		c.log.Warn("website option not found")
	}

	injected := true
	if err := c.exec.Type(ctx, locator.URLInput, site); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		injected = false
	} else if !c.tryClick(ctx, locator.InsertButton) {
		c.log.Debug("insert button not clicked, submitting with Enter")
		if err := c.page.PressKey(ctx, browser.KeyEnter); err != nil {
			c.log.Debug("enter failed", zap.Error(err))
		}
	}
	return c.awaitNewSource(ctx, before, site, injected)
}

// awaitNewSource polls the source count. If the automated path did not
// produce a new source in time, a human gets ManualTimeout to finish it.
func (c *Client) awaitNewSource(ctx context.Context, before int, what string, injected bool) (bool, error) {
	grew := func() bool { return c.SourceCount(ctx) > before }

	if injected {
		ok, err := poll.Until(ctx, c.cfg.PollInterval, c.cfg.UploadTimeout, grew)
		if err != nil {
			return false, err
		}
		if ok {
			c.log.Info("source added", zap.String("source", what), zap.Int("sources", c.SourceCount(ctx)))
			return true, nil
		}
	}

	c.log.Warn("MANUAL ACTION: add the source in the browser window",
		zap.String("source", what),
		zap.Duration("waiting", c.cfg.ManualTimeout))
	ok, err := poll.Until(ctx, c.cfg.PollInterval, c.cfg.ManualTimeout, grew)
	if err != nil {
		return false, err
	}
	if ok {
		c.log.Info("source added manually", zap.String("source", what))
		return true, nil
	}
	c.capture(ctx, "add_source", fmt.Errorf("source count stayed at %d for %s", before, what))
	return false, nil
}

func (c *Client) tryClick(ctx context.Context, name string) bool {
	el, err := c.res.Resolve(ctx, name, c.cfg.OptionalBudget)
	if err != nil {
		c.log.Debug("optional step skipped", zap.String("target", name), zap.Error(err))
		return false
	}
	return c.exec.ClickElement(ctx, name, el) == nil
}

func (c *Client) capture(ctx context.Context, action string, err error) {
	if c.reporter != nil {
		c.reporter.Capture(ctx, action, err)
	}
}
