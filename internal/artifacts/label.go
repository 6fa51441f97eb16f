package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// LabelDescriptor is everything a renderer needs to print a box label.
type LabelDescriptor struct {
	Kind         Kind
	ID           string
	ItemCode     string
	ItemName     string
	ItemSpec     string
	Quantity     int
	Worker       string
	CreationDate string
	// QRPayload is the JSON embedded in the label's QR code.
	QRPayload string
}

// QRPayload is the machine-readable content of a box label.
type QRPayload struct {
	ID       string `json:"id"`
	ItemCode string `json:"code"`
	Quantity int    `json:"qty"`
}

// Descriptor builds the label descriptor for a.
func Descriptor(a Artifact) LabelDescriptor {
	payload, _ := json.Marshal(QRPayload{ID: a.ID, ItemCode: a.ItemCode, Quantity: a.Quantity})
	return LabelDescriptor{
		Kind:         a.Kind,
		ID:           a.ID,
		ItemCode:     a.ItemCode,
		ItemName:     a.ItemName,
		ItemSpec:     a.ItemSpec,
		Quantity:     a.Quantity,
		Worker:       a.Worker,
		CreationDate: a.CreationDate.Format(CreationLayout),
		QRPayload:    string(payload),
	}
}

// Renderer turns a descriptor into a label image at path.
type Renderer interface {
	Render(desc LabelDescriptor, path string) error
}

// NopRenderer discards descriptors. Stations without a label printer use it.
type NopRenderer struct{}

func (NopRenderer) Render(LabelDescriptor, string) error { return nil }

// DescriptorRenderer writes the descriptor as JSON beside the image path so
// an external print agent can render it.
type DescriptorRenderer struct{}

func (DescriptorRenderer) Render(desc LabelDescriptor, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(map[string]any{
		"kind":          desc.Kind.String(),
		"id":            desc.ID,
		"item_code":     desc.ItemCode,
		"item_name":     desc.ItemName,
		"item_spec":     desc.ItemSpec,
		"quantity":      desc.Quantity,
		"worker":        desc.Worker,
		"creation_date": desc.CreationDate,
		"qr_payload":    desc.QRPayload,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path+".label.json", data, 0o644)
}
