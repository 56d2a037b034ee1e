// Package csvfile writes export records as CSV with every field quoted.
package csvfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
)

// Writer emits one header row followed by one row per record. Fields are
// always wrapped in double quotes, with embedded quotes doubled, so values
// carrying newlines or delimiters survive any RFC 4180 reader.
type Writer struct {
	mu      sync.Mutex
	out     *bufio.Writer
	closer  io.Closer
	columns int
	rows    int
}

// New writes the header for columns to w.
func New(w io.Writer, columns []string) (*Writer, error) {
	cw := &Writer{out: bufio.NewWriter(w), columns: len(columns)}
	if c, ok := w.(io.Closer); ok {
		cw.closer = c
	}
	if err := cw.writeRow(columns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return cw, nil
}

// Create truncates (or creates) path and writes the catalog header.
func Create(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(path) //nolint:gosec // operator-supplied output path
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	w, err := New(f, catalog.Columns)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// WriteRecord implements catalog.RecordWriter.
func (w *Writer) WriteRecord(rec catalog.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writeRow(rec.Row()); err != nil {
		return fmt.Errorf("write row %s: %w", rec.Identifier, err)
	}
	w.rows++
	return nil
}

// Rows reports how many records have been written.
func (w *Writer) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Flush pushes buffered rows to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.out.Flush(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer when it is closable.
func (w *Writer) Close() error {
	flushErr := w.Flush()
	if w.closer == nil {
		return flushErr
	}
	closeErr := w.closer.Close()
	if closeErr != nil {
		closeErr = fmt.Errorf("close csv: %w", closeErr)
	}
	return errors.Join(flushErr, closeErr)
}

func (w *Writer) writeRow(fields []string) error {
	if len(fields) != w.columns {
		return fmt.Errorf("row has %d fields, want %d", len(fields), w.columns)
	}
	for i, field := range fields {
		if i > 0 {
			if err := w.out.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.out.WriteString(quote(field)); err != nil {
			return err
		}
	}
	_, err := w.out.WriteString("\r\n")
	return err
}

func quote(field string) string {
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}
