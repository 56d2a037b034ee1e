package extractor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
	"github.com/JakeFAU/catalog-exporter/internal/snapshot"
)

const defaultFieldTimeout = 15 * time.Second

// Extractor reads the record fields from a session already positioned on
// the item detail view.
type Extractor struct {
	schema  catalog.Schema
	timeout time.Duration
}

// New creates an Extractor. A zero timeout selects the default.
func New(schema catalog.Schema, timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = defaultFieldTimeout
	}
	return &Extractor{schema: schema, timeout: timeout}
}

// Extract reads every field in order. Fields that fail are left empty and
// reported as diagnostics; Extract itself never fails.
func (e *Extractor) Extract(
	ctx context.Context,
	sess catalog.Session,
	id catalog.Identifier,
) (catalog.Record, []catalog.FieldDiagnostic) {
	rec := catalog.Record{Identifier: id}
	steps := []struct {
		field catalog.Field
		run   func() error
	}{
		{catalog.FieldName, func() (err error) {
			rec.Name, err = e.text(ctx, sess, e.schema.Name)
			return err
		}},
		{catalog.FieldDescription, func() (err error) {
			rec.Description, err = e.text(ctx, sess, e.schema.Description)
			return err
		}},
		{catalog.FieldSpecifications, func() (err error) {
			rec.Specifications, err = e.specifications(ctx, sess)
			return err
		}},
		{catalog.FieldShippingInfo, func() (err error) {
			rec.ShippingInfo, err = e.shippingInfo(ctx, sess)
			return err
		}},
		{catalog.FieldImageURL, func() (err error) {
			rec.ImageURL, err = e.imageURL(ctx, sess)
			return err
		}},
	}

	var diags []catalog.FieldDiagnostic
	for _, step := range steps {
		if err := step.run(); err != nil {
			diags = append(diags, catalog.FieldDiagnostic{Field: step.field, Err: err})
		}
	}
	return rec, diags
}

func (e *Extractor) text(ctx context.Context, sess catalog.Session, selector string) (string, error) {
	el, err := sess.WaitForMarker(ctx, selector, e.timeout)
	if err != nil {
		return "", err
	}
	text, err := sess.ReadText(ctx, el)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (e *Extractor) specifications(ctx context.Context, sess catalog.Session) (catalog.Pairs, error) {
	table, err := sess.WaitForMarker(ctx, e.schema.SpecTable, e.timeout)
	if err != nil {
		return nil, err
	}
	return e.pairs(ctx, sess, table)
}

func (e *Extractor) shippingInfo(ctx context.Context, sess catalog.Session) (catalog.Pairs, error) {
	anchor, err := sess.WaitForMarker(ctx, e.schema.ShippingAnchor, e.timeout)
	if err != nil {
		return nil, err
	}
	table, err := sess.Enclosing(ctx, anchor, e.schema.EnclosingTag)
	if err != nil {
		return nil, err
	}
	return e.pairs(ctx, sess, table)
}

func (e *Extractor) pairs(ctx context.Context, sess catalog.Session, table catalog.Element) (catalog.Pairs, error) {
	markup, err := sess.SnapshotMarkup(ctx, table)
	if err != nil {
		return nil, err
	}
	doc, err := snapshot.Parse(markup)
	if err != nil {
		return nil, err
	}
	pairs, err := doc.Pairs(e.schema.Row, e.schema.Cell)
	if err != nil {
		return nil, fmt.Errorf("pair %s rows: %w", table.Describe(), err)
	}
	return pairs, nil
}

func (e *Extractor) imageURL(ctx context.Context, sess catalog.Session) (string, error) {
	img, err := sess.WaitForMarker(ctx, e.schema.Image, e.timeout)
	if err != nil {
		return "", err
	}
	src, err := sess.ReadAttribute(ctx, img, e.schema.ImageAttribute)
	if err != nil {
		return "", err
	}
	return AbsoluteImageURL(strings.TrimSpace(src)), nil
}

// AbsoluteImageURL rewrites protocol-relative URLs to https and passes every
// other form through unchanged.
func AbsoluteImageURL(src string) string {
	if strings.HasPrefix(src, "//") {
		return "https:" + src
	}
	return src
}
