// Package input reads the identifier list that drives an export run.
package input

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
)

// maxLine bounds a single identifier line.
const maxLine = 64 * 1024

// Read returns one identifier per non-blank line of r, trimmed, in order.
// Repeated identifiers are kept; the aggregator writes only the first.
func Read(r io.Reader) ([]catalog.Identifier, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLine)
	var ids []catalog.Identifier
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ids = append(ids, catalog.Identifier(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read identifiers: %w", err)
	}
	return ids, nil
}

// ReadFile opens path and reads identifiers from it.
func ReadFile(path string) ([]catalog.Identifier, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied input path
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}
