// Package catalog loads the read-only item catalog that maps item codes to
// display names and specifications.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"qcstation/internal/csvio"
)

// Item is an immutable catalog entry.
type Item struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Spec string `json:"spec"`
}

// Catalog is an in-memory item lookup. The zero value is empty and usable.
type Catalog struct {
	items map[string]Item
	// codes sorted longest first so substring inference prefers the most specific code
	codes []string
}

var headerAliases = map[string]string{
	"code":      "code",
	"item_code": "code",
	"품목코드":      "code",
	"name":      "name",
	"item_name": "name",
	"품목명":       "name",
	"spec":      "spec",
	"item_spec": "spec",
	"규격":        "spec",
}

// New builds a catalog from items. Later duplicates replace earlier ones.
func New(items ...Item) *Catalog {
	c := &Catalog{items: make(map[string]Item, len(items))}
	for _, item := range items {
		item.Code = strings.TrimSpace(item.Code)
		if item.Code == "" {
			continue
		}
		item.Name = strings.TrimSpace(item.Name)
		item.Spec = strings.TrimSpace(item.Spec)
		c.items[item.Code] = item
	}
	c.codes = make([]string, 0, len(c.items))
	for code := range c.items {
		c.codes = append(c.codes, code)
	}
	sort.Slice(c.codes, func(i, j int) bool {
		if len(c.codes[i]) != len(c.codes[j]) {
			return len(c.codes[i]) > len(c.codes[j])
		}
		return c.codes[i] < c.codes[j]
	})
	return c
}

// Load reads a catalog CSV from disk.
func Load(path string) (*Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer file.Close()
	c, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse reads catalog rows. A header row naming code/name/spec columns (in
// English or Korean) is honoured; without one, columns are positional.
func Parse(r io.Reader) (*Catalog, error) {
	rows, err := csvio.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("catalog is empty")
	}

	columns := map[string]int{"code": 0, "name": 1, "spec": 2}
	start := 0
	if header, ok := parseHeader(rows[0]); ok {
		columns = header
		start = 1
	}

	items := make([]Item, 0, len(rows)-start)
	for _, row := range rows[start:] {
		item := Item{
			Code: field(row, columns["code"]),
			Name: field(row, columns["name"]),
			Spec: field(row, columns["spec"]),
		}
		if item.Code == "" {
			continue
		}
		items = append(items, item)
	}
	return New(items...), nil
}

func parseHeader(row []string) (map[string]int, bool) {
	columns := map[string]int{"name": -1, "spec": -1}
	found := false
	for idx, cell := range row {
		key, ok := headerAliases[strings.ToLower(strings.TrimSpace(cell))]
		if !ok {
			continue
		}
		columns[key] = idx
		if key == "code" {
			found = true
		}
	}
	return columns, found
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// Lookup returns the item for code.
func (c *Catalog) Lookup(code string) (Item, bool) {
	if c == nil || c.items == nil {
		return Item{}, false
	}
	item, ok := c.items[strings.TrimSpace(code)]
	return item, ok
}

// Contains reports whether code is a known item.
func (c *Catalog) Contains(code string) bool {
	_, ok := c.Lookup(code)
	return ok
}

// FindInBarcode returns the catalog item whose code appears inside raw,
// preferring the longest matching code.
func (c *Catalog) FindInBarcode(raw string) (Item, bool) {
	if c == nil {
		return Item{}, false
	}
	for _, code := range c.codes {
		if strings.Contains(raw, code) {
			return c.items[code], true
		}
	}
	return Item{}, false
}

// Len returns the number of items.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}
