// Package snapshot parses a point-in-time capture of element markup and
// answers selector queries against it. A Document never touches the live
// page it came from, so tables read from it cannot go stale mid-parse.
package snapshot

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
)

// Document is an immutable, parsed capture of markup.
type Document struct {
	markup string
	doc    *goquery.Document
}

// Node is one element inside a Document.
type Node struct {
	sel *goquery.Selection
}

// Parse builds a Document from captured markup.
func Parse(markup string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &Document{markup: markup, doc: doc}, nil
}

// source returns the raw capture the Document was parsed from.
func (d *Document) source() string {
	return d.markup
}

// Query returns every element matching selector, in document order.
func (d *Document) Query(selector string) []Node {
	return collect(d.doc.Find(selector))
}

// Text returns the node's rendered text with whitespace runs collapsed.
// Line breaks and block boundaries separate words, as a browser would show
// them.
func (n Node) Text() string {
	var b strings.Builder
	writeText(&b, n.sel)
	return NormalizeSpace(b.String())
}

// Attr returns the named attribute.
func (n Node) Attr(name string) (string, bool) {
	return n.sel.Attr(name)
}

// Query returns descendants of n matching selector, in document order.
func (n Node) Query(selector string) []Node {
	return collect(n.sel.Find(selector))
}

// children returns direct children of n matching selector.
func (n Node) children(selector string) []Node {
	return collect(n.sel.ChildrenFiltered(selector))
}

// Pairs walks rows in document order and pairs the first cell of each row
// (label) with the second (value). Only rows of the outermost table count;
// tables nested inside a cell stay part of that cell's text. Rows without
// cells are skipped; a row holding a single cell cannot be paired and fails
// the whole table.
func (d *Document) Pairs(rowSelector, cellSelector string) (catalog.Pairs, error) {
	rows := collect(d.ownRows(rowSelector))
	pairs := make(catalog.Pairs, 0, len(rows))
	for i, row := range rows {
		cells := row.children(cellSelector)
		switch len(cells) {
		case 0:
			continue
		case 1:
			return nil, fmt.Errorf("row %d %q: %w", i, cells[0].Text(), catalog.ErrMalformedRow)
		}
		label := strings.TrimSpace(strings.TrimSuffix(cells[0].Text(), ":"))
		pairs = append(pairs, catalog.Pair{Label: label, Value: cells[1].Text()})
	}
	return pairs, nil
}

// ownRows returns the rows whose nearest table is the outermost table of the
// capture. Without any table every matching row is kept.
func (d *Document) ownRows(rowSelector string) *goquery.Selection {
	rows := d.doc.Find(rowSelector)
	root := d.doc.Find("table").First()
	if root.Length() == 0 {
		return rows
	}
	return rows.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Closest("table").IsSelection(root)
	})
}

// blockElements render on their own line, so their text never runs into a
// neighbour's.
var blockElements = map[string]bool{
	"address": true, "article": true, "blockquote": true, "dd": true, "div": true,
	"dl": true, "dt": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "hr": true, "li": true, "ol": true, "p": true,
	"pre": true, "section": true, "table": true, "tbody": true, "td": true,
	"tfoot": true, "th": true, "thead": true, "tr": true, "ul": true,
}

func writeText(b *strings.Builder, sel *goquery.Selection) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		switch name := goquery.NodeName(s); {
		case name == "#text":
			b.WriteString(s.Text())
		case name == "br":
			b.WriteByte(' ')
		case blockElements[name]:
			b.WriteByte(' ')
			writeText(b, s)
			b.WriteByte(' ')
		case strings.HasPrefix(name, "#"):
			// comments, doctype
		default:
			writeText(b, s)
		}
	})
}

// NormalizeSpace trims s and collapses internal whitespace runs to one space.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func collect(sel *goquery.Selection) []Node {
	nodes := make([]Node, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, Node{sel: s})
	})
	return nodes
}
