package barcode

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind enumerates the classified scan variants.
type Kind int

const (
	KindUnknown Kind = iota
	KindMasterLabel
	KindRemnantLabel
	KindDefectLabel
	KindUnit
)

func (k Kind) String() string {
	switch k {
	case KindMasterLabel:
		return "master_label"
	case KindRemnantLabel:
		return "remnant_label"
	case KindDefectLabel:
		return "defect_label"
	case KindUnit:
		return "unit"
	default:
		return "unknown"
	}
}

// Form records which master label encoding was scanned.
type Form string

const (
	FormJSON    Form = "json"
	FormLegacy  Form = "legacy"
	FormMinimal Form = "minimal"
)

// Master label field keys.
const (
	KeyItemCode      = "CLC"
	KeyQuantity      = "QT"
	KeyQuantityAlt   = "QTY"
	KeyPhase         = "PHS"
	KeyWorkOrder     = "WID"
	KeySupplier      = "SPC"
	KeyFinishedBatch = "FPB"
	KeyOutboundDate  = "OBD"
	KeyProject       = "PJT"
)

const (
	RemnantPrefix = "SPARE-"
	DefectPrefix  = "DEFECT-"
)

// MasterLabel carries the parsed fields of a master label. Code is the
// opaque label identity used for completion tracking.
type MasterLabel struct {
	Code          string
	Form          Form
	ItemCode      string
	Quantity      int
	Phase         string
	WorkOrder     string
	Supplier      string
	FinishedBatch string
	OutboundDate  string
	ItemGroup     string
	Fields        map[string]string
}

// HasQuantity reports whether the label carried an explicit quantity.
func (m MasterLabel) HasQuantity() bool {
	return m.Quantity > 0
}

// Scan is the tagged result of classification. Only the fields relevant to
// Kind are populated.
type Scan struct {
	Kind Kind
	Raw  string

	Master *MasterLabel

	// ArtifactID is set for remnant and defect labels.
	ArtifactID string
	// ItemCode and Quantity are set for defect labels when the payload carries them.
	ItemCode string
	Quantity int
}

// Catalog is the read-only item lookup the classifier needs.
type Catalog interface {
	Contains(code string) bool
}

// Options tune classification.
type Options struct {
	ItemCodeLength  int
	DefaultQuantity int
}

// Classifier turns raw scans into Scan values.
type Classifier struct {
	catalog Catalog
	opts    Options
}

// NewClassifier builds a classifier over the provided catalog.
func NewClassifier(catalog Catalog, opts Options) *Classifier {
	if opts.ItemCodeLength <= 0 {
		opts.ItemCodeLength = 13
	}
	return &Classifier{catalog: catalog, opts: opts}
}

// ItemCodeLength returns the configured item code length.
func (c *Classifier) ItemCodeLength() int {
	return c.opts.ItemCodeLength
}

// Classify maps a raw scan to its variant.
func (c *Classifier) Classify(raw string) Scan {
	return c.classify(strings.TrimSpace(raw), true)
}

func (c *Classifier) classify(raw string, allowDecode bool) Scan {
	if raw == "" {
		return Scan{Kind: KindUnknown, Raw: raw}
	}

	if strings.HasPrefix(raw, "{") {
		if scan, ok := c.classifyJSON(raw); ok {
			return scan
		}
	}

	if strings.Contains(raw, "=") && strings.Contains(raw, "|") {
		fields := ParseLegacy(raw)
		if fields[KeyItemCode] != "" && fields[KeyWorkOrder] != "" {
			return Scan{Kind: KindMasterLabel, Raw: raw, Master: c.masterFromFields(raw, FormLegacy, fields)}
		}
	}

	upper := strings.ToUpper(raw)
	if strings.HasPrefix(upper, RemnantPrefix) {
		return Scan{Kind: KindRemnantLabel, Raw: raw, ArtifactID: raw}
	}
	if strings.HasPrefix(upper, DefectPrefix) {
		return Scan{Kind: KindDefectLabel, Raw: raw, ArtifactID: raw}
	}

	if allowDecode && !strings.Contains(raw, "|") && len(raw) > 20 {
		if decoded, ok := decodeWrapped(raw); ok {
			return c.classify(decoded, false)
		}
	}

	switch {
	case len(raw) == c.opts.ItemCodeLength && c.catalog != nil && c.catalog.Contains(raw):
		fields := map[string]string{KeyItemCode: raw}
		return Scan{Kind: KindMasterLabel, Raw: raw, Master: c.masterFromFields(raw, FormMinimal, fields)}
	case len(raw) > c.opts.ItemCodeLength:
		return Scan{Kind: KindUnit, Raw: raw}
	default:
		return Scan{Kind: KindUnknown, Raw: raw}
	}
}

func (c *Classifier) classifyJSON(raw string) (Scan, bool) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Scan{}, false
	}
	if id := stringify(payload["id"]); id != "" {
		upper := strings.ToUpper(id)
		switch {
		case strings.HasPrefix(upper, RemnantPrefix):
			return Scan{
				Kind:       KindRemnantLabel,
				Raw:        raw,
				ArtifactID: id,
				ItemCode:   stringify(payload["code"]),
				Quantity:   atoi(stringify(payload["qty"])),
			}, true
		case strings.HasPrefix(upper, DefectPrefix):
			return Scan{
				Kind:       KindDefectLabel,
				Raw:        raw,
				ArtifactID: id,
				ItemCode:   stringify(payload["code"]),
				Quantity:   atoi(stringify(payload["qty"])),
			}, true
		}
	}
	if _, ok := payload[KeyItemCode]; ok {
		fields := make(map[string]string, len(payload))
		for key, value := range payload {
			fields[key] = stringify(value)
		}
		if fields[KeyItemCode] == "" {
			return Scan{}, false
		}
		return Scan{Kind: KindMasterLabel, Raw: raw, Master: c.masterFromFields(raw, FormJSON, fields)}, true
	}
	return Scan{}, false
}

func (c *Classifier) masterFromFields(raw string, form Form, fields map[string]string) *MasterLabel {
	qty := atoi(fields[KeyQuantity])
	if qty <= 0 {
		qty = atoi(fields[KeyQuantityAlt])
	}
	if qty <= 0 {
		qty = c.opts.DefaultQuantity
	}
	return &MasterLabel{
		Code:          raw,
		Form:          form,
		ItemCode:      strings.TrimSpace(fields[KeyItemCode]),
		Quantity:      qty,
		Phase:         fields[KeyPhase],
		WorkOrder:     fields[KeyWorkOrder],
		Supplier:      fields[KeySupplier],
		FinishedBatch: fields[KeyFinishedBatch],
		OutboundDate:  fields[KeyOutboundDate],
		ItemGroup:     fields[KeyProject],
		Fields:        fields,
	}
}

// ParseLegacy splits a `k=v|k=v` payload. Keys are trimmed and upper-cased;
// segments without '=' are ignored.
func ParseLegacy(raw string) map[string]string {
	fields := make(map[string]string)
	for _, part := range strings.Split(raw, "|") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}
	return fields
}

// decodeWrapped attempts a URL-safe base64 decode with padding repair and
// reports whether the payload looks like a legacy key=value label.
func decodeWrapped(raw string) (string, bool) {
	padded := raw
	if rem := len(padded) % 4; rem != 0 {
		padded += strings.Repeat("=", 4-rem)
	}
	data, err := base64.URLEncoding.DecodeString(padded)
	if err != nil {
		return "", false
	}
	decoded := strings.TrimSpace(string(data))
	if !strings.Contains(decoded, "|") || !strings.Contains(decoded, "=") {
		return "", false
	}
	return decoded, true
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func atoi(value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return int(f)
	}
	return 0
}
