package session

import "slices"

// Remnant is a box of leftover good units being packed in Remnant mode.
type Remnant struct {
	ItemCode        string   `json:"item_code"`
	ItemName        string   `json:"item_name"`
	ItemSpec        string   `json:"item_spec"`
	ScannedBarcodes []string `json:"scanned_barcodes"`
}

// Active reports whether the item has been chosen.
func (r *Remnant) Active() bool {
	return r != nil && r.ItemCode != ""
}

// Contains reports whether barcode is already in the box.
func (r *Remnant) Contains(barcode string) bool {
	return slices.Contains(r.ScannedBarcodes, barcode)
}

// DefectMerge consolidates defective units from many trays into one box.
type DefectMerge struct {
	ItemCode       string   `json:"item_code"`
	ItemName       string   `json:"item_name"`
	ItemSpec       string   `json:"item_spec"`
	TargetQuantity int      `json:"target_quantity"`
	ScannedDefects []string `json:"scanned_defects"`

	// MergedBoxIDs lists defect boxes whose units were poured into this one.
	MergedBoxIDs []string `json:"merged_box_ids,omitempty"`

	// PartialBoxIDs are poured boxes with units undone out of the live box.
	// They keep those units when the live box is written.
	PartialBoxIDs []string `json:"partial_box_ids,omitempty"`
}

// Active reports whether the item has been chosen.
func (d *DefectMerge) Active() bool {
	return d != nil && d.ItemCode != ""
}

// Contains reports whether barcode is already in the box.
func (d *DefectMerge) Contains(barcode string) bool {
	return slices.Contains(d.ScannedDefects, barcode)
}

// Space returns how many units fit before the target is reached.
func (d *DefectMerge) Space() int {
	return d.TargetQuantity - len(d.ScannedDefects)
}
