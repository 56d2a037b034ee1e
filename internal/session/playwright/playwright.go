// Package playwright provides catalog sessions driven by Playwright's Chromium.
// The provider keeps one browser process and gives each session its own
// BrowserContext, which isolates cookies, storage and cache per task.
package playwright

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pw "github.com/playwright-community/playwright-go"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultActionTimeout     = 10 * time.Second
)

// Config controls the Playwright session provider.
type Config struct {
	UserAgent         string
	ExecPath          string
	Headful           bool
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
}

func (c Config) withDefaults() (Config, error) {
	if c.NavigationTimeout < 0 || c.ActionTimeout < 0 {
		return c, errors.New("playwright timeouts must be >= 0")
	}
	if c.NavigationTimeout == 0 {
		c.NavigationTimeout = defaultNavigationTimeout
	}
	if c.ActionTimeout == 0 {
		c.ActionTimeout = defaultActionTimeout
	}
	return c, nil
}

// Provider owns the Playwright driver and a single Chromium instance.
type Provider struct {
	cfg     Config
	driver  *pw.Playwright
	browser pw.Browser
}

// New starts the Playwright driver and launches Chromium.
func New(cfg Config) (*Provider, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	driver, err := pw.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	launch := pw.BrowserTypeLaunchOptions{
		Headless: pw.Bool(!cfg.Headful),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--disable-gpu",
		},
	}
	if cfg.ExecPath != "" {
		launch.ExecutablePath = pw.String(cfg.ExecPath)
	}
	browser, err := driver.Chromium.Launch(launch)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("launch chromium: %w", err), driver.Stop())
	}
	return &Provider{cfg: cfg, driver: driver, browser: browser}, nil
}

// Close shuts the browser and the driver down.
func (p *Provider) Close() error {
	var errs []error
	if err := p.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	if err := p.driver.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop playwright: %w", err))
	}
	return errors.Join(errs...)
}

// Acquire opens a fresh browser context and page.
func (p *Provider) Acquire(ctx context.Context) (catalog.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire playwright session: %w", err)
	}
	opts := pw.BrowserNewContextOptions{AcceptDownloads: pw.Bool(false)}
	if p.cfg.UserAgent != "" {
		opts.UserAgent = pw.String(p.cfg.UserAgent)
	}
	bctx, err := p.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create page: %w", err), bctx.Close())
	}
	page.SetDefaultTimeout(millis(p.cfg.ActionTimeout))
	return &Session{cfg: p.cfg, bctx: bctx, page: page}, nil
}

// Session is one isolated browser context with a single page.
type Session struct {
	cfg  Config
	bctx pw.BrowserContext
	page pw.Page

	mu       sync.Mutex
	released bool
	once     sync.Once
	closeErr error
}

type element struct {
	loc      pw.Locator
	selector string
}

func (e element) Describe() string {
	return e.selector
}

// Navigate loads url and waits for the DOM to be parsed.
func (s *Session) Navigate(ctx context.Context, url string) error {
	timeout, err := s.budget(ctx, s.cfg.NavigationTimeout)
	if err != nil {
		return err
	}
	if _, err := s.page.Goto(url, pw.PageGotoOptions{
		WaitUntil: pw.WaitUntilStateDomcontentloaded,
		Timeout:   timeout,
	}); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// WaitForMarker waits until selector is attached to the DOM.
func (s *Session) WaitForMarker(ctx context.Context, selector string, timeout time.Duration) (catalog.Element, error) {
	if timeout <= 0 {
		timeout = s.cfg.ActionTimeout
	}
	limit, err := s.budget(ctx, timeout)
	if err != nil {
		return nil, err
	}
	loc := s.page.Locator(selector).First()
	err = loc.WaitFor(pw.LocatorWaitForOptions{
		State:   pw.WaitForSelectorStateAttached,
		Timeout: limit,
	})
	switch {
	case err == nil:
		return element{loc: loc, selector: selector}, nil
	case isTimeout(ctx, err):
		return nil, fmt.Errorf("wait for %s: %w", selector, catalog.ErrMarkerTimeout)
	default:
		return nil, fmt.Errorf("wait for %s: %w", selector, err)
	}
}

// ReadText returns the element's text content.
func (s *Session) ReadText(ctx context.Context, el catalog.Element) (string, error) {
	e, limit, err := s.element(ctx, el)
	if err != nil {
		return "", err
	}
	text, err := e.loc.TextContent(pw.LocatorTextContentOptions{Timeout: limit})
	if err != nil {
		return "", fmt.Errorf("read text %s: %w", e.selector, err)
	}
	return text, nil
}

// ReadAttribute returns the named attribute, or ErrElementMissing when unset.
func (s *Session) ReadAttribute(ctx context.Context, el catalog.Element, name string) (string, error) {
	e, limit, err := s.element(ctx, el)
	if err != nil {
		return "", err
	}
	raw, err := e.loc.Evaluate("(el, name) => el.getAttribute(name)", name, pw.LocatorEvaluateOptions{Timeout: limit})
	if err != nil {
		return "", fmt.Errorf("read attribute %s on %s: %w", name, e.selector, err)
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("attribute %s on %s: %w", name, e.selector, catalog.ErrElementMissing)
	}
	return value, nil
}

// Enclosing returns the nearest ancestor of el with the given tag.
func (s *Session) Enclosing(ctx context.Context, el catalog.Element, tag string) (catalog.Element, error) {
	e, _, err := s.element(ctx, el)
	if err != nil {
		return nil, err
	}
	parent := e.loc.Locator(ancestorSelector(tag))
	n, err := parent.Count()
	if err != nil {
		return nil, fmt.Errorf("enclosing %s of %s: %w", tag, e.selector, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("enclosing %s of %s: %w", tag, e.selector, catalog.ErrElementMissing)
	}
	return element{loc: parent, selector: e.selector + " < " + tag}, nil
}

// SnapshotMarkup returns the element's outer HTML as it is right now.
func (s *Session) SnapshotMarkup(ctx context.Context, el catalog.Element) (string, error) {
	e, limit, err := s.element(ctx, el)
	if err != nil {
		return "", err
	}
	raw, err := e.loc.Evaluate("el => el.outerHTML", nil, pw.LocatorEvaluateOptions{Timeout: limit})
	if err != nil {
		return "", fmt.Errorf("snapshot %s: %w", e.selector, err)
	}
	html, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("snapshot %s: unexpected %T", e.selector, raw)
	}
	return html, nil
}

// Release closes the page and its browser context. Later calls return the
// first result.
func (s *Session) Release() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.released = true
		s.mu.Unlock()
		var errs []error
		if s.page != nil {
			if err := s.page.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close page: %w", err))
			}
		}
		if s.bctx != nil {
			if err := s.bctx.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close browser context: %w", err))
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// budget returns d in milliseconds, shortened to ctx's deadline.
func (s *Session) budget(ctx context.Context, d time.Duration) (*float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("playwright session: %w", err)
	}
	s.mu.Lock()
	released := s.released
	s.mu.Unlock()
	if released {
		return nil, catalog.ErrSessionReleased
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d {
			d = left
		}
	}
	return pw.Float(millis(d)), nil
}

func (s *Session) element(ctx context.Context, el catalog.Element) (element, *float64, error) {
	limit, err := s.budget(ctx, s.cfg.ActionTimeout)
	if err != nil {
		return element{}, nil, err
	}
	e, ok := el.(element)
	if !ok {
		return element{}, nil, fmt.Errorf("foreign element %T: %w", el, catalog.ErrElementMissing)
	}
	return e, limit, nil
}

// isTimeout reports whether err is Playwright's own wait timeout rather than
// the caller giving up.
func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, pw.ErrTimeout) && ctx.Err() == nil
}

func ancestorSelector(tag string) string {
	return "xpath=ancestor::" + strings.ToLower(strings.TrimSpace(tag)) + "[1]"
}

func millis(d time.Duration) float64 {
	if d < time.Millisecond {
		return 1
	}
	return float64(d.Milliseconds())
}
