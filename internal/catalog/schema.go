package catalog

import (
	"fmt"
	"net/url"
	"strings"
)

// idPlaceholder is replaced by the escaped identifier in Schema.ItemURL.
const idPlaceholder = "{id}"

// Schema maps one catalog layout onto selectors. Layouts differ between
// catalog variants, so everything here is configuration rather than code.
type Schema struct {
	ItemURL        string `mapstructure:"item_url"`
	ProbeMarker    string `mapstructure:"probe_marker"`
	Name           string `mapstructure:"name"`
	Description    string `mapstructure:"description"`
	SpecTable      string `mapstructure:"spec_table"`
	ShippingAnchor string `mapstructure:"shipping_anchor"`
	EnclosingTag   string `mapstructure:"enclosing_tag"`
	Row            string `mapstructure:"row"`
	Cell           string `mapstructure:"cell"`
	Image          string `mapstructure:"image"`
	ImageAttribute string `mapstructure:"image_attribute"`
}

// DefaultSchema returns the selectors for the biggestbook.com item detail view.
func DefaultSchema() Schema {
	return Schema{
		ItemURL:        "https://www.biggestbook.com/ui#/itemDetail?itemId={id}",
		ProbeMarker:    "#pd-item-desc",
		Name:           "#pd-item-desc.ess-detail-desc",
		Description:    "div.ess-detail-desc-info",
		SpecTable:      "div.ess-detail-specs table",
		ShippingAnchor: "td.ess-detail-shipping-label",
		EnclosingTag:   "table",
		Row:            "tr",
		Cell:           "th, td",
		Image:          "img.ngxImageZoomThumbnail",
		ImageAttribute: "src",
	}
}

// URLFor renders the item detail URL for id.
func (s Schema) URLFor(id Identifier) string {
	return strings.ReplaceAll(s.ItemURL, idPlaceholder, url.QueryEscape(string(id)))
}

// Validate enforces that every selector is present and the URL template is usable.
func (s Schema) Validate() error {
	if !strings.Contains(s.ItemURL, idPlaceholder) {
		return fmt.Errorf("schema.item_url must contain %s", idPlaceholder)
	}
	if _, err := url.Parse(strings.ReplaceAll(s.ItemURL, idPlaceholder, "x")); err != nil {
		return fmt.Errorf("schema.item_url: %w", err)
	}
	required := map[string]string{
		"schema.probe_marker":    s.ProbeMarker,
		"schema.name":            s.Name,
		"schema.description":     s.Description,
		"schema.spec_table":      s.SpecTable,
		"schema.shipping_anchor": s.ShippingAnchor,
		"schema.enclosing_tag":   s.EnclosingTag,
		"schema.row":             s.Row,
		"schema.cell":            s.Cell,
		"schema.image":           s.Image,
		"schema.image_attribute": s.ImageAttribute,
	}
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s must be set", key)
		}
	}
	return nil
}
