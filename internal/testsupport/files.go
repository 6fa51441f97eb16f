package testsupport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// CatalogRow is one item of a test catalog.
type CatalogRow struct {
	Code string
	Name string
	Spec string
}

// WriteCatalog writes a BOM-prefixed catalog CSV with a header row, the way
// the catalog export from the ERP produces it.
func WriteCatalog(t testing.TB, path string, rows ...CatalogRow) {
	t.Helper()

	var b strings.Builder
	b.WriteString("\ufeffcode,name,spec\n")
	for _, row := range rows {
		b.WriteString(row.Code + "," + row.Name + "," + row.Spec + "\n")
	}
	WriteFile(t, path, b.String())
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
