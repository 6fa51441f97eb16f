package barcode_test

import (
	"encoding/base64"
	"testing"

	"qcstation/internal/barcode"
)

type stubCatalog map[string]struct{}

func (s stubCatalog) Contains(code string) bool {
	_, ok := s[code]
	return ok
}

func newClassifier() *barcode.Classifier {
	return barcode.NewClassifier(stubCatalog{"ABC0000000001": {}}, barcode.Options{ItemCodeLength: 13, DefaultQuantity: 60})
}

func TestClassifyKinds(t *testing.T) {
	c := newClassifier()
	cases := []struct {
		name string
		raw  string
		want barcode.Kind
	}{
		{"json master", `{"CLC":"ABC0000000001","QT":"3","PHS":"A"}`, barcode.KindMasterLabel},
		{"json remnant", `{"id":"SPARE-20261015-101010000001","code":"ABC0000000001","qty":1}`, barcode.KindRemnantLabel},
		{"json defect", `{"id":"DEFECT-20261015-101010000001","code":"ABC0000000001","qty":4}`, barcode.KindDefectLabel},
		{"legacy master", "CLC=ABC0000000001|WID=W1|QT=10", barcode.KindMasterLabel},
		{"legacy without WID is not a master", "CLC=ABC0000000001|QT=10", barcode.KindUnit},
		{"plain remnant", "spare-20261015-101010000001", barcode.KindRemnantLabel},
		{"minimal master", "ABC0000000001", barcode.KindMasterLabel},
		{"unknown item code", "ZZZ0000000001", barcode.KindUnknown},
		{"unit", "X-ABC0000000001-001", barcode.KindUnit},
		{"short", "abc", barcode.KindUnknown},
		{"empty", "   ", barcode.KindUnknown},
		{"json without markers", `{"foo":"bar","baz":"0123456789"}`, barcode.KindUnit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(tc.raw)
			if got.Kind != tc.want {
				t.Fatalf("Classify(%q) kind = %s, want %s", tc.raw, got.Kind, tc.want)
			}
		})
	}
}

func TestClassifyJSONMasterFields(t *testing.T) {
	c := newClassifier()
	raw := `{"CLC":"ABC0000000001","QTY":12,"PHS":"2","WID":"W-77","SPC":"SUP","FPB":"B1","OBD":"2026-10-20","PJT":"G1"}`
	scan := c.Classify(raw)
	if scan.Kind != barcode.KindMasterLabel || scan.Master == nil {
		t.Fatalf("expected master label, got %+v", scan)
	}
	m := scan.Master
	if m.Code != raw || m.Form != barcode.FormJSON {
		t.Fatalf("unexpected identity: %q %q", m.Code, m.Form)
	}
	if m.ItemCode != "ABC0000000001" || m.Quantity != 12 {
		t.Fatalf("unexpected item/qty: %q %d", m.ItemCode, m.Quantity)
	}
	if m.Phase != "2" || m.WorkOrder != "W-77" || m.Supplier != "SUP" || m.FinishedBatch != "B1" || m.OutboundDate != "2026-10-20" || m.ItemGroup != "G1" {
		t.Fatalf("unexpected optional fields: %+v", m)
	}
}

func TestClassifyDefaultsQuantity(t *testing.T) {
	c := newClassifier()
	scan := c.Classify(`{"CLC":"ABC0000000001"}`)
	if scan.Master == nil || scan.Master.Quantity != 60 {
		t.Fatalf("expected default quantity 60, got %+v", scan.Master)
	}
	minimal := c.Classify("ABC0000000001")
	if minimal.Master == nil || minimal.Master.Form != barcode.FormMinimal || minimal.Master.Quantity != 60 {
		t.Fatalf("unexpected minimal master: %+v", minimal.Master)
	}
}

func TestClassifyDefectPayload(t *testing.T) {
	c := newClassifier()
	scan := c.Classify(`{"id":"DEFECT-20261015-101010000001","code":"ABC0000000001","qty":"4"}`)
	if scan.ArtifactID != "DEFECT-20261015-101010000001" || scan.ItemCode != "ABC0000000001" || scan.Quantity != 4 {
		t.Fatalf("unexpected defect scan: %+v", scan)
	}
}

func TestClassifyBase64WrappedLegacy(t *testing.T) {
	c := newClassifier()
	inner := "CLC=ABC0000000001|WID=W9|QT=5"
	wrapped := base64.RawURLEncoding.EncodeToString([]byte(inner))
	scan := c.Classify(wrapped)
	if scan.Kind != barcode.KindMasterLabel {
		t.Fatalf("expected master after unwrap, got %s", scan.Kind)
	}
	if scan.Raw != inner || scan.Master.Quantity != 5 || scan.Master.WorkOrder != "W9" {
		t.Fatalf("unexpected unwrapped master: %+v", scan.Master)
	}
}

func TestClassifyBase64DecodesOnlyOnce(t *testing.T) {
	c := newClassifier()
	inner := base64.RawURLEncoding.EncodeToString([]byte("CLC=ABC0000000001|WID=W9"))
	twice := base64.RawURLEncoding.EncodeToString([]byte(inner))
	scan := c.Classify(twice)
	if scan.Kind == barcode.KindMasterLabel {
		t.Fatal("expected double-wrapped payload not to be unwrapped twice")
	}
}

func TestParseLegacy(t *testing.T) {
	fields := barcode.ParseLegacy(" clc = A1 |WID=W|junk|=x")
	if fields["CLC"] != "A1" || fields["WID"] != "W" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %v", fields)
	}
}
