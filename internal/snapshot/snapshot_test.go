package snapshot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
)

const specTable = `<table class="specs">
  <tr><th>Color:</th><td>Red</td></tr>
  <tr></tr>
  <tr><td>Weight</td><td>  2kg
  </td></tr>
</table>`

func TestPairsPreserveDocumentOrder(t *testing.T) {
	t.Parallel()

	doc, err := Parse(specTable)
	require.NoError(t, err)

	pairs, err := doc.Pairs("tr", "th, td")
	require.NoError(t, err)
	require.Equal(t, catalog.Pairs{
		{Label: "Color", Value: "Red"},
		{Label: "Weight", Value: "2kg"},
	}, pairs)
	require.Equal(t, "Color: Red\nWeight: 2kg", pairs.String())
}

func TestPairsAreDeterministicAcrossReparse(t *testing.T) {
	t.Parallel()

	first, err := Parse(specTable)
	require.NoError(t, err)
	firstPairs, err := first.Pairs("tr", "th, td")
	require.NoError(t, err)

	second, err := Parse(first.source())
	require.NoError(t, err)
	secondPairs, err := second.Pairs("tr", "th, td")
	require.NoError(t, err)

	require.Equal(t, firstPairs, secondPairs)
}

func TestPairsRejectSingleCellRow(t *testing.T) {
	t.Parallel()

	doc, err := Parse(`<table><tr><td>Color</td><td>Red</td></tr><tr><td>orphan</td></tr></table>`)
	require.NoError(t, err)

	_, err = doc.Pairs("tr", "td")
	require.Error(t, err)
	require.True(t, errors.Is(err, catalog.ErrMalformedRow))
}

func TestPairsIgnoreCellsBeyondTheSecond(t *testing.T) {
	t.Parallel()

	doc, err := Parse(`<table><tr><td>Size</td><td>10 x 4 <span>in</span></td><td>extra</td></tr></table>`)
	require.NoError(t, err)

	pairs, err := doc.Pairs("tr", "td")
	require.NoError(t, err)
	require.Equal(t, catalog.Pairs{{Label: "Size", Value: "10 x 4 in"}}, pairs)
}

func TestPairsKeepNestedTablesInsideTheirCell(t *testing.T) {
	t.Parallel()

	doc, err := Parse(`<table><tbody>
<tr><th>Color</th><td>Red</td></tr>
<tr><th>Dims</th><td><table><tr><td>W</td><td>2</td></tr><tr><td>note only</td></tr></table></td></tr>
<tr><th>Weight</th><td>2kg</td></tr>
</tbody></table>`)
	require.NoError(t, err)

	pairs, err := doc.Pairs("tr", "th, td")
	require.NoError(t, err)
	require.Equal(t, catalog.Pairs{
		{Label: "Color", Value: "Red"},
		{Label: "Dims", Value: "W 2 note only"},
		{Label: "Weight", Value: "2kg"},
	}, pairs)
}

func TestPairsWithoutTableKeepEveryRow(t *testing.T) {
	t.Parallel()

	doc, err := Parse(`<div class="row"><span>A</span><span>1</span></div><div class="row"><span>B</span><span>2</span></div>`)
	require.NoError(t, err)

	pairs, err := doc.Pairs("div.row", "span")
	require.NoError(t, err)
	require.Equal(t, "A: 1\nB: 2", pairs.String())
}

func TestTextSeparatesLineBreaksAndBlocks(t *testing.T) {
	t.Parallel()

	doc, err := Parse(`<table><tr><td>Features</td><td>Acid-free<br>Recycled<div>Made in<b>USA</b></div><p>Bulk</p><!-- hidden --></td></tr></table>`)
	require.NoError(t, err)

	pairs, err := doc.Pairs("tr", "td")
	require.NoError(t, err)
	require.Equal(t, "Features: Acid-free Recycled Made inUSA Bulk", pairs.String())
}

func TestQueryAndAttr(t *testing.T) {
	t.Parallel()

	doc, err := Parse(`<div><img class="main" src="//cdn/x.jpg"><img src="/y.jpg"></div>`)
	require.NoError(t, err)

	nodes := doc.Query("img")
	require.Len(t, nodes, 2)
	src, ok := nodes[0].Attr("src")
	require.True(t, ok)
	require.Equal(t, "//cdn/x.jpg", src)
	require.Empty(t, doc.Query("table"))
}

func TestNormalizeSpace(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a b c", NormalizeSpace("  a\n\tb   c "))
	require.Empty(t, NormalizeSpace(" \n "))
}
