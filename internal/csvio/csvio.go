// Package csvio reads and writes the spreadsheet-friendly CSV files shared
// with the office: UTF-8 with a byte order mark so Korean headers render in
// spreadsheet tools, tolerant of files saved with or without the mark.
package csvio

import (
	"encoding/csv"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// BOM is the UTF-8 byte order mark written at the start of new files.
const BOM = "\uFEFF"

// NewReader returns a csv.Reader that strips a leading BOM (UTF-8 or UTF-16)
// and decodes the remainder as UTF-8. Rows may have differing field counts.
func NewReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(Decode(r))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader
}

// Decode strips a leading BOM from r and decodes the remainder as UTF-8.
func Decode(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// ParseLine parses a single physical CSV line. Quoted fields must be closed
// on the same line.
func ParseLine(line string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.FieldsPerRecord = -1
	return reader.Read()
}

// WriteBOM writes the UTF-8 byte order mark.
func WriteBOM(w io.Writer) error {
	_, err := io.WriteString(w, BOM)
	return err
}
