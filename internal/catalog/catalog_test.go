package catalog_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"qcstation/internal/catalog"
)

func TestParseWithKoreanHeaderAndBOM(t *testing.T) {
	data := "\uFEFF규격,품목코드,품목명\nS,ABC0000000001,Widget\nL,ABC0000000002,Gadget\n"
	c, err := catalog.Parse(strings.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	item, ok := c.Lookup("ABC0000000001")
	if !ok {
		t.Fatal("expected item")
	}
	if item.Name != "Widget" || item.Spec != "S" {
		t.Fatalf("unexpected item: %+v", item)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 items, got %d", c.Len())
	}
}

func TestParsePositionalWithoutHeader(t *testing.T) {
	c, err := catalog.Parse(strings.NewReader("ABC0000000001,Widget,S\n,skipped,x\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !c.Contains("ABC0000000001") || c.Len() != 1 {
		t.Fatalf("unexpected catalog contents")
	}
}

func TestFindInBarcodePrefersLongestCode(t *testing.T) {
	c := catalog.New(
		catalog.Item{Code: "ABC000000000", Name: "short"},
		catalog.Item{Code: "ABC0000000001", Name: "long"},
	)
	item, ok := c.FindInBarcode("X-ABC0000000001-900")
	if !ok || item.Name != "long" {
		t.Fatalf("expected longest match, got %+v %v", item, ok)
	}
	if _, ok := c.FindInBarcode("X-ZZZ-1"); ok {
		t.Fatal("expected no match")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := catalog.Load(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatal("expected error for missing catalog")
	}
}

func TestLoadFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.csv")
	if err := os.WriteFile(path, []byte("code,name,spec\nABC0000000001,Widget,S\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := catalog.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !c.Contains("ABC0000000001") {
		t.Fatal("expected item loaded")
	}
}
