package session

import (
	"fmt"
	"slices"
	"time"
)

// Status marks a scanned unit as good or defective.
type Status string

const (
	StatusGood      Status = "good"
	StatusDefective Status = "defective"
)

// Item is one accepted unit scan.
type Item struct {
	Barcode   string    `json:"barcode"`
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
}

// Inspection is the live batch for one master label. The zero value is idle.
type Inspection struct {
	SessionID       string `json:"session_id"`
	MasterLabelCode string `json:"master_label_code"`
	MasterLabelForm string `json:"master_label_form,omitempty"`

	ItemCode string `json:"item_code"`
	ItemName string `json:"item_name"`
	ItemSpec string `json:"item_spec"`

	Phase         string            `json:"phs"`
	WorkOrder     string            `json:"work_order_id"`
	Supplier      string            `json:"supplier_code"`
	FinishedBatch string            `json:"finished_product_batch"`
	OutboundDate  string            `json:"outbound_date"`
	ItemGroup     string            `json:"item_group"`
	LabelFields   map[string]string `json:"master_label_fields,omitempty"`
	Quantity      int               `json:"quantity"`

	GoodItems       []Item   `json:"good_items"`
	DefectiveItems  []Item   `json:"defective_items"`
	ScannedBarcodes []string `json:"scanned_barcodes"`

	MismatchErrorCount int       `json:"mismatch_error_count"`
	TotalIdleSeconds   float64   `json:"total_idle_seconds"`
	StopwatchSeconds   float64   `json:"stopwatch_seconds"`
	StartTime          time.Time `json:"start_time"`

	HasErrorOrReset     bool `json:"has_error_or_reset"`
	IsPartialSubmission bool `json:"is_partial_submission"`
	IsRestoredSession   bool `json:"is_restored_session"`
	IsRemnantSession    bool `json:"is_remnant_session"`

	ConsumedRemnantIDs []string `json:"consumed_remnant_ids"`

	// PendingRemnantIDs are remnants partly drawn into the tray. The drawn
	// units leave the remnant when the tray completes.
	PendingRemnantIDs []string `json:"pending_remnant_ids,omitempty"`
}

// Active reports whether a master label has been accepted.
func (s *Inspection) Active() bool {
	return s != nil && s.MasterLabelCode != ""
}

// Filled returns the number of units placed in the tray, good or defective.
func (s *Inspection) Filled() int {
	return len(s.GoodItems) + len(s.DefectiveItems)
}

// Space returns how many more units the tray takes.
func (s *Inspection) Space() int {
	return s.Quantity - s.Filled()
}

// Full reports whether the tray has reached its target quantity.
func (s *Inspection) Full() bool {
	return s.Quantity > 0 && s.Filled() >= s.Quantity
}

// Contains reports whether barcode was already accepted into the session.
func (s *Inspection) Contains(barcode string) bool {
	return slices.Contains(s.ScannedBarcodes, barcode)
}

// Add records an accepted unit. It fails on duplicates so the good and
// defective lists stay disjoint.
func (s *Inspection) Add(barcode string, status Status, at time.Time) error {
	if s.Contains(barcode) {
		return fmt.Errorf("barcode %q already scanned", barcode)
	}
	item := Item{Barcode: barcode, Timestamp: at, Status: status}
	switch status {
	case StatusGood:
		s.GoodItems = append(s.GoodItems, item)
	case StatusDefective:
		s.DefectiveItems = append(s.DefectiveItems, item)
	default:
		return fmt.Errorf("unknown status %q", status)
	}
	s.ScannedBarcodes = append(s.ScannedBarcodes, barcode)
	return nil
}

// Undo removes the most recently scanned unit and returns it.
func (s *Inspection) Undo() (Item, bool) {
	if len(s.ScannedBarcodes) == 0 {
		return Item{}, false
	}
	last := s.ScannedBarcodes[len(s.ScannedBarcodes)-1]
	s.ScannedBarcodes = s.ScannedBarcodes[:len(s.ScannedBarcodes)-1]
	if idx := indexOf(s.GoodItems, last); idx >= 0 {
		item := s.GoodItems[idx]
		s.GoodItems = slices.Delete(s.GoodItems, idx, idx+1)
		return item, true
	}
	if idx := indexOf(s.DefectiveItems, last); idx >= 0 {
		item := s.DefectiveItems[idx]
		s.DefectiveItems = slices.Delete(s.DefectiveItems, idx, idx+1)
		return item, true
	}
	return Item{Barcode: last}, true
}

// RecordError counts a rejected scan against the session.
func (s *Inspection) RecordError() {
	s.MismatchErrorCount++
	s.HasErrorOrReset = true
}

// GoodBarcodes returns the good unit barcodes in scan order.
func (s *Inspection) GoodBarcodes() []string {
	return barcodes(s.GoodItems)
}

// DefectiveBarcodes returns the defective unit barcodes in scan order.
func (s *Inspection) DefectiveBarcodes() []string {
	return barcodes(s.DefectiveItems)
}

// Clone returns a deep copy.
func (s *Inspection) Clone() *Inspection {
	if s == nil {
		return nil
	}
	out := *s
	out.GoodItems = slices.Clone(s.GoodItems)
	out.DefectiveItems = slices.Clone(s.DefectiveItems)
	out.ScannedBarcodes = slices.Clone(s.ScannedBarcodes)
	out.ConsumedRemnantIDs = slices.Clone(s.ConsumedRemnantIDs)
	out.PendingRemnantIDs = slices.Clone(s.PendingRemnantIDs)
	if s.LabelFields != nil {
		out.LabelFields = make(map[string]string, len(s.LabelFields))
		for k, v := range s.LabelFields {
			out.LabelFields[k] = v
		}
	}
	return &out
}

// Check verifies the ordering and disjointness invariants.
func (s *Inspection) Check() error {
	seen := make(map[string]Status, len(s.ScannedBarcodes))
	for _, item := range s.GoodItems {
		seen[item.Barcode] = StatusGood
	}
	for _, item := range s.DefectiveItems {
		if _, dup := seen[item.Barcode]; dup {
			return fmt.Errorf("barcode %q is both good and defective", item.Barcode)
		}
		seen[item.Barcode] = StatusDefective
	}
	if len(seen) != len(s.ScannedBarcodes) {
		return fmt.Errorf("scanned %d barcodes but hold %d items", len(s.ScannedBarcodes), len(seen))
	}
	for _, barcode := range s.ScannedBarcodes {
		if _, ok := seen[barcode]; !ok {
			return fmt.Errorf("scanned barcode %q has no item", barcode)
		}
	}
	return nil
}

func indexOf(items []Item, barcode string) int {
	return slices.IndexFunc(items, func(item Item) bool { return item.Barcode == barcode })
}

func barcodes(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Barcode)
	}
	return out
}
