// Package static serves catalog sessions from saved HTML documents. It backs
// offline replays (session.provider=static) and extraction tests, evaluating
// selectors with goquery against a parsed copy of each page.
package static

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
)

// Provider hands out sessions over a fixed URL -> HTML mapping.
type Provider struct {
	pages map[string]string
}

// New creates a Provider serving the given pages keyed by URL.
func New(pages map[string]string) *Provider {
	copied := make(map[string]string, len(pages))
	for url, html := range pages {
		copied[url] = html
	}
	return &Provider{pages: copied}
}

// NewFromDir loads every <identifier>.html file in dir and serves it at the
// schema URL for that identifier.
func NewFromDir(dir string, schema catalog.Schema) (*Provider, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.html"))
	if err != nil {
		return nil, fmt.Errorf("glob static pages: %w", err)
	}
	pages := make(map[string]string, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied fixture directory
		if err != nil {
			return nil, fmt.Errorf("read static page %s: %w", path, err)
		}
		id := catalog.Identifier(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
		pages[schema.URLFor(id)] = string(data)
	}
	return &Provider{pages: pages}, nil
}

// Acquire returns a new, empty session.
func (p *Provider) Acquire(ctx context.Context) (catalog.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire static session: %w", err)
	}
	return &Session{pages: p.pages}, nil
}

// Session is a single-owner view over one loaded page.
type Session struct {
	pages map[string]string

	mu       sync.Mutex
	doc      *goquery.Document
	released bool
}

type element struct {
	sel      *goquery.Selection
	selector string
}

func (e element) Describe() string {
	return e.selector
}

// Navigate loads url. Unknown URLs render as an empty page, the same way an
// unlisted item renders a shell without its detail markup.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s.pages[url]))
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return nil
}

// WaitForMarker returns the first match for selector. A static document never
// changes, so a miss is reported as a timeout straight away.
func (s *Session) WaitForMarker(ctx context.Context, selector string, _ time.Duration) (catalog.Element, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	doc := s.doc
	s.mu.Unlock()
	if doc == nil {
		return nil, fmt.Errorf("wait for %s: no page loaded", selector)
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("wait for %s: %w", selector, catalog.ErrMarkerTimeout)
	}
	return element{sel: sel, selector: selector}, nil
}

// ReadText returns the element's text content.
func (s *Session) ReadText(ctx context.Context, el catalog.Element) (string, error) {
	e, err := s.element(ctx, el)
	if err != nil {
		return "", err
	}
	return e.sel.Text(), nil
}

// ReadAttribute returns the named attribute of el.
func (s *Session) ReadAttribute(ctx context.Context, el catalog.Element, name string) (string, error) {
	e, err := s.element(ctx, el)
	if err != nil {
		return "", err
	}
	value, ok := e.sel.Attr(name)
	if !ok {
		return "", fmt.Errorf("attribute %s on %s: %w", name, e.selector, catalog.ErrElementMissing)
	}
	return value, nil
}

// Enclosing returns the nearest ancestor of el with the given tag.
func (s *Session) Enclosing(ctx context.Context, el catalog.Element, tag string) (catalog.Element, error) {
	e, err := s.element(ctx, el)
	if err != nil {
		return nil, err
	}
	parent := e.sel.Parent().Closest(tag)
	if parent.Length() == 0 {
		return nil, fmt.Errorf("enclosing %s of %s: %w", tag, e.selector, catalog.ErrElementMissing)
	}
	return element{sel: parent, selector: e.selector + " < " + tag}, nil
}

// SnapshotMarkup returns the element's outer HTML.
func (s *Session) SnapshotMarkup(ctx context.Context, el catalog.Element) (string, error) {
	e, err := s.element(ctx, el)
	if err != nil {
		return "", err
	}
	html, err := goquery.OuterHtml(e.sel)
	if err != nil {
		return "", fmt.Errorf("snapshot %s: %w", e.selector, err)
	}
	return html, nil
}

// Release drops the loaded page. It is safe to call more than once.
func (s *Session) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	s.doc = nil
	return nil
}

func (s *Session) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("static session: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return catalog.ErrSessionReleased
	}
	return nil
}

func (s *Session) element(ctx context.Context, el catalog.Element) (element, error) {
	if err := s.check(ctx); err != nil {
		return element{}, err
	}
	e, ok := el.(element)
	if !ok {
		return element{}, fmt.Errorf("foreign element %T: %w", el, catalog.ErrElementMissing)
	}
	return e, nil
}
