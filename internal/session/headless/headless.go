// Package headless provides catalog sessions backed by headless Chrome via
// chromedp. Every session owns a separate browser started from a shared exec
// allocator, so no cookies, storage or page state leak between tasks.
package headless

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultActionTimeout     = 10 * time.Second
)

// Config controls the behavior of the headless session provider.
type Config struct {
	UserAgent         string
	ExecPath          string
	Headful           bool
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
}

// Provider launches one browser per acquired session.
type Provider struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates a Provider. Chrome is not started until the first Acquire.
func New(cfg Config) (*Provider, error) {
	if cfg.NavigationTimeout < 0 || cfg.ActionTimeout < 0 {
		return nil, fmt.Errorf("headless timeouts must be >= 0")
	}
	if cfg.NavigationTimeout == 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.ActionTimeout == 0 {
		cfg.ActionTimeout = defaultActionTimeout
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	return &Provider{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context, killing any browser still running.
func (p *Provider) Close() {
	p.allocCancel()
}

// Acquire starts a fresh browser and returns a session bound to it.
func (p *Provider) Acquire(ctx context.Context) (catalog.Session, error) {
	browserCtx, cancel := chromedp.NewContext(p.allocator)
	stopForward := forwardCancel(ctx, cancel)
	// The first Run allocates the browser; it must not carry a deadline or the
	// browser would close when that deadline passes.
	if err := chromedp.Run(browserCtx, p.setupAction()); err != nil {
		stopForward()
		cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return &Session{
		ctx:         browserCtx,
		cancel:      cancel,
		stopForward: stopForward,
		cfg:         p.cfg,
	}, nil
}

func (p *Provider) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if p.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(p.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}

// Session drives one browser for one task.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	stopForward func()
	cfg         Config

	releaseOnce sync.Once
	releaseErr  error
}

type element struct {
	node     *cdp.Node
	selector string
}

func (e element) Describe() string {
	return e.selector
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// WaitForMarker waits up to timeout for selector to match a node.
func (s *Session) WaitForMarker(ctx context.Context, selector string, timeout time.Duration) (catalog.Element, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, timeout, chromedp.Nodes(selector, &nodes, chromedp.ByQuery))
	switch {
	case isWaitTimeout(ctx, err):
		return nil, fmt.Errorf("wait for %s: %w", selector, catalog.ErrMarkerTimeout)
	case err != nil:
		return nil, fmt.Errorf("wait for %s: %w", selector, err)
	case len(nodes) == 0:
		return nil, fmt.Errorf("wait for %s: %w", selector, catalog.ErrElementMissing)
	}
	return element{node: nodes[0], selector: selector}, nil
}

// ReadText returns the rendered text of el.
func (s *Session) ReadText(ctx context.Context, el catalog.Element) (string, error) {
	e, err := asElement(el)
	if err != nil {
		return "", err
	}
	var text string
	if err := s.run(ctx, s.cfg.ActionTimeout,
		chromedp.Text([]cdp.NodeID{e.node.NodeID}, &text, chromedp.ByNodeID),
	); err != nil {
		return "", fmt.Errorf("read text of %s: %w", e.selector, err)
	}
	return text, nil
}

// ReadAttribute returns the named attribute of el.
func (s *Session) ReadAttribute(ctx context.Context, el catalog.Element, name string) (string, error) {
	e, err := asElement(el)
	if err != nil {
		return "", err
	}
	var (
		value string
		ok    bool
	)
	if err := s.run(ctx, s.cfg.ActionTimeout,
		chromedp.AttributeValue([]cdp.NodeID{e.node.NodeID}, name, &value, &ok, chromedp.ByNodeID),
	); err != nil {
		return "", fmt.Errorf("read attribute %s of %s: %w", name, e.selector, err)
	}
	if !ok {
		return "", fmt.Errorf("attribute %s on %s: %w", name, e.selector, catalog.ErrElementMissing)
	}
	return value, nil
}

// Enclosing walks the DOM tree chromedp keeps for the frame up to the
// nearest ancestor named tag.
func (s *Session) Enclosing(_ context.Context, el catalog.Element, tag string) (catalog.Element, error) {
	e, err := asElement(el)
	if err != nil {
		return nil, err
	}
	ancestor := enclosing(e.node, tag)
	if ancestor == nil {
		return nil, fmt.Errorf("enclosing %s of %s: %w", tag, e.selector, catalog.ErrElementMissing)
	}
	return element{node: ancestor, selector: e.selector + " < " + tag}, nil
}

// SnapshotMarkup captures the outer HTML of el in a single call.
func (s *Session) SnapshotMarkup(ctx context.Context, el catalog.Element) (string, error) {
	e, err := asElement(el)
	if err != nil {
		return "", err
	}
	var html string
	if err := s.run(ctx, s.cfg.ActionTimeout,
		chromedp.OuterHTML([]cdp.NodeID{e.node.NodeID}, &html, chromedp.ByNodeID),
	); err != nil {
		return "", fmt.Errorf("snapshot %s: %w", e.selector, err)
	}
	return html, nil
}

// Release closes the browser. Repeated calls return the first result.
func (s *Session) Release() error {
	s.releaseOnce.Do(func() {
		s.stopForward()
		if err := chromedp.Cancel(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.releaseErr = fmt.Errorf("close browser: %w", err)
		}
		s.cancel()
	})
	return s.releaseErr
}

func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if s.ctx.Err() != nil {
		return catalog.ErrSessionReleased
	}
	opCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()
	if err := chromedp.Run(opCtx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	} else {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

// isWaitTimeout separates "our bounded wait elapsed" from "the caller gave up".
func isWaitTimeout(parent context.Context, err error) bool {
	return err != nil && errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil
}

func enclosing(node *cdp.Node, tag string) *cdp.Node {
	for cur := parentOf(node); cur != nil; cur = parentOf(cur) {
		if strings.EqualFold(cur.NodeName, tag) {
			return cur
		}
	}
	return nil
}

func parentOf(node *cdp.Node) *cdp.Node {
	node.RLock()
	defer node.RUnlock()
	return node.Parent
}

func asElement(el catalog.Element) (element, error) {
	e, ok := el.(element)
	if !ok || e.node == nil {
		return element{}, fmt.Errorf("foreign element %T: %w", el, catalog.ErrElementMissing)
	}
	return e, nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil || parent.Done() == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
