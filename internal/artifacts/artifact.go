package artifacts

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes remnant boxes from defect boxes.
type Kind int

const (
	KindRemnant Kind = iota + 1
	KindDefect
)

func (k Kind) String() string {
	switch k {
	case KindRemnant:
		return "remnant"
	case KindDefect:
		return "defect"
	default:
		return "unknown"
	}
}

// Prefix returns the ID prefix for the kind.
func (k Kind) Prefix() string {
	if k == KindDefect {
		return "DEFECT-"
	}
	return "SPARE-"
}

func (k Kind) idKey() string {
	if k == KindDefect {
		return "defect_box_id"
	}
	return "remnant_id"
}

func (k Kind) dataDir() string {
	if k == KindDefect {
		return "defects_merged"
	}
	return "spare"
}

func (k Kind) labelDir() string {
	if k == KindDefect {
		return "defective_labels"
	}
	return "remnant_labels"
}

// KindOf infers the kind from an artifact ID.
func KindOf(id string) (Kind, bool) {
	upper := strings.ToUpper(strings.TrimSpace(id))
	switch {
	case strings.HasPrefix(upper, KindRemnant.Prefix()):
		return KindRemnant, true
	case strings.HasPrefix(upper, KindDefect.Prefix()):
		return KindDefect, true
	default:
		return 0, false
	}
}

// CreationLayout is the ISO 8601 layout of creation_date.
const CreationLayout = "2006-01-02T15:04:05.000000"

// Artifact is a remnant or defect box. Quantity always equals len(Barcodes)
// once the box is stored.
type Artifact struct {
	Kind         Kind
	ID           string
	CreationDate time.Time
	Worker       string
	ItemCode     string
	ItemName     string
	ItemSpec     string
	Barcodes     []string
	Quantity     int

	// SourceID names the box this one was split from, if any.
	SourceID string
	// Partial marks a defect box closed before reaching its target.
	Partial bool
}

type wireArtifact struct {
	CreationDate string   `json:"creation_date"`
	Worker       string   `json:"worker"`
	ItemCode     string   `json:"item_code"`
	ItemName     string   `json:"item_name"`
	ItemSpec     string   `json:"item_spec"`
	Barcodes     []string `json:"barcodes"`
	Quantity     int      `json:"quantity"`
	SourceID     string   `json:"source_id,omitempty"`
	Partial      bool     `json:"partial,omitempty"`
}

// MarshalJSON writes the record with the ID under remnant_id or
// defect_box_id, the key existing consumers read.
func (a Artifact) MarshalJSON() ([]byte, error) {
	body, err := json.Marshal(wireArtifact{
		CreationDate: a.CreationDate.Format(CreationLayout),
		Worker:       a.Worker,
		ItemCode:     a.ItemCode,
		ItemName:     a.ItemName,
		ItemSpec:     a.ItemSpec,
		Barcodes:     nonNil(a.Barcodes),
		Quantity:     a.Quantity,
		SourceID:     a.SourceID,
		Partial:      a.Partial,
	})
	if err != nil {
		return nil, err
	}
	id, err := json.Marshal(a.ID)
	if err != nil {
		return nil, err
	}
	key := a.Kind.idKey()
	if a.Kind == 0 {
		key = "id"
	}
	out := make([]byte, 0, len(body)+len(key)+len(id)+4)
	out = append(out, '{', '"')
	out = append(out, key...)
	out = append(out, '"', ':')
	out = append(out, id...)
	if len(body) > 2 {
		out = append(out, ',')
	}
	out = append(out, body[1:]...)
	return out, nil
}

// UnmarshalJSON accepts remnant_id, defect_box_id or a plain id.
func (a *Artifact) UnmarshalJSON(data []byte) error {
	var wire struct {
		wireArtifact
		ID          string `json:"id"`
		RemnantID   string `json:"remnant_id"`
		DefectBoxID string `json:"defect_box_id"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := Artifact{
		Worker:   wire.Worker,
		ItemCode: wire.ItemCode,
		ItemName: wire.ItemName,
		ItemSpec: wire.ItemSpec,
		Barcodes: wire.Barcodes,
		Quantity: wire.Quantity,
		SourceID: wire.SourceID,
		Partial:  wire.Partial,
	}
	switch {
	case wire.RemnantID != "":
		out.ID, out.Kind = wire.RemnantID, KindRemnant
	case wire.DefectBoxID != "":
		out.ID, out.Kind = wire.DefectBoxID, KindDefect
	default:
		out.ID = wire.ID
		out.Kind, _ = KindOf(wire.ID)
	}
	if wire.CreationDate != "" {
		ts, err := parseCreation(wire.CreationDate)
		if err != nil {
			return fmt.Errorf("creation_date: %w", err)
		}
		out.CreationDate = ts
	}
	*a = out
	return nil
}

// Day returns the dated folder name of the artifact.
func (a Artifact) Day() string {
	return a.CreationDate.Format("2006-01-02")
}

// Check verifies the quantity invariant and that every barcode carries the
// item code.
func (a Artifact) Check() error {
	if a.Quantity != len(a.Barcodes) {
		return fmt.Errorf("%s: quantity %d does not match %d barcodes", a.ID, a.Quantity, len(a.Barcodes))
	}
	for _, barcode := range a.Barcodes {
		if !strings.Contains(barcode, a.ItemCode) {
			return fmt.Errorf("%s: barcode %q does not contain item %s", a.ID, barcode, a.ItemCode)
		}
	}
	return nil
}

func parseCreation(value string) (time.Time, error) {
	for _, layout := range []string{CreationLayout, time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", value)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
