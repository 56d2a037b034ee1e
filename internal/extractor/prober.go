// Package extractor turns a rendered catalog page into a Record. The Prober
// decides cheaply whether an item is listed at all; the Extractor reads the
// five record fields, isolating failures so that one missing field never
// costs the others.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
)

const defaultProbeTimeout = 5 * time.Second

// Prober checks whether an item detail view renders for an identifier.
type Prober struct {
	schema  catalog.Schema
	timeout time.Duration
}

// NewProber creates a Prober. A zero timeout selects the default.
func NewProber(schema catalog.Schema, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Prober{schema: schema, timeout: timeout}
}

// Probe navigates sess to the item and waits for the listing marker. A
// marker timeout means the item is not listed and is not an error.
func (p *Prober) Probe(ctx context.Context, sess catalog.Session, id catalog.Identifier) (bool, error) {
	if err := sess.Navigate(ctx, p.schema.URLFor(id)); err != nil {
		return false, fmt.Errorf("probe %s: %w", id, err)
	}
	_, err := sess.WaitForMarker(ctx, p.schema.ProbeMarker, p.timeout)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, catalog.ErrMarkerTimeout):
		return false, nil
	default:
		return false, fmt.Errorf("probe %s: %w", id, err)
	}
}
