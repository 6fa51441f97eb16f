// Package summary folds the inspection log into the dashboard figures: per
// item pallet and defect counts for the day, completion time percentiles,
// and the week's clean-tray average and best time.
package summary

import (
	"math"
	"sort"
	"time"

	"qcstation/internal/eventlog"
)

// ItemStats aggregates one item's trays for the day.
type ItemStats struct {
	Code             string
	Name             string
	Spec             string
	PalletCount      int
	DefectiveEACount int
}

// Daily is the projection of one day's log.
type Daily struct {
	Items           []ItemStats
	TotalTrays      int
	CompletionTimes []float64
	P50             float64
	P90             float64
}

// Projector folds TRAY_COMPLETE events. A TRAY_RESUMED withdraws the
// latest completion of its master label until the tray completes again. It is
// not safe for concurrent use.
type Projector struct {
	items  map[string]*ItemStats
	order  []string
	trays  []completion
	latest map[string]int
}

type completion struct {
	item      string
	defective int
	counted   bool
	seconds   float64
	withdrawn bool
}

// NewProjector returns an empty projector.
func NewProjector() *Projector {
	return &Projector{items: make(map[string]*ItemStats), latest: make(map[string]int)}
}

// Apply folds ev into the projection. Other events and malformed payloads
// are ignored.
func (p *Projector) Apply(ev eventlog.Event) {
	switch ev.Kind {
	case eventlog.KindTrayComplete:
		p.complete(ev)
	case eventlog.KindTrayResumed:
		var ref eventlog.SessionRef
		if ev.Decode(&ref) == nil {
			p.withdraw(ref.MasterLabelCode)
		}
	}
}

func (p *Projector) complete(ev eventlog.Event) {
	var tray eventlog.TrayComplete
	if err := ev.Decode(&tray); err != nil || tray.ItemCode == "" {
		return
	}
	stats, ok := p.items[tray.ItemCode]
	if !ok {
		stats = &ItemStats{Code: tray.ItemCode}
		p.items[tray.ItemCode] = stats
		p.order = append(p.order, tray.ItemCode)
	}
	if tray.ItemName != "" {
		stats.Name = tray.ItemName
	}
	if tray.ItemSpec != "" {
		stats.Spec = tray.ItemSpec
	}
	c := completion{
		item:      tray.ItemCode,
		defective: defectiveCount(tray),
		counted:   !tray.IsPartialSubmission,
		seconds:   tray.WorkTimeSec,
	}
	stats.DefectiveEACount += c.defective
	if c.counted {
		stats.PalletCount++
	}
	if tray.MasterLabelCode != "" {
		p.latest[tray.MasterLabelCode] = len(p.trays)
	}
	p.trays = append(p.trays, c)
}

func (p *Projector) withdraw(code string) {
	idx, ok := p.latest[code]
	if !ok {
		return
	}
	delete(p.latest, code)
	c := &p.trays[idx]
	c.withdrawn = true
	stats := p.items[c.item]
	stats.DefectiveEACount -= c.defective
	if c.counted {
		stats.PalletCount--
	}
}

// Reset clears the projection for a new day.
func (p *Projector) Reset() {
	p.items = make(map[string]*ItemStats)
	p.order = nil
	p.trays = nil
	p.latest = make(map[string]int)
}

// Snapshot returns the current projection. Items are ordered by first
// appearance.
func (p *Projector) Snapshot() Daily {
	var out Daily
	for _, code := range p.order {
		out.Items = append(out.Items, *p.items[code])
	}
	for _, c := range p.trays {
		if c.counted && !c.withdrawn {
			out.TotalTrays++
			out.CompletionTimes = append(out.CompletionTimes, c.seconds)
		}
	}
	out.P50 = Percentile(out.CompletionTimes, 50)
	out.P90 = Percentile(out.CompletionTimes, 90)
	return out
}

// Fold projects events from scratch.
func Fold(events []eventlog.Event) Daily {
	p := NewProjector()
	for _, ev := range events {
		p.Apply(ev)
	}
	return p.Snapshot()
}

// Percentile returns the nearest-rank percentile of values, or 0 when empty.
func Percentile(values []float64, pct float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	rank := int(math.Ceil(pct / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// Weekly holds the clean-tray timing for a week.
type Weekly struct {
	CleanTrays  int
	AverageSec  float64
	BestSec     float64
	WeekStart   time.Time
	WeekEnd     time.Time
	MinPerUnit  float64
	Implausible int
}

// FoldWeek computes average and best tray time over clean trays: no errors
// or resets, not partial, not restored, and filled to capacity. Trays faster
// than minPerUnit seconds per unit are discarded as implausible.
func FoldWeek(events []eventlog.Event, minPerUnit float64) Weekly {
	out := Weekly{MinPerUnit: minPerUnit}
	var total float64
	resumed := superseded(events)
	for i, ev := range events {
		if ev.Kind != eventlog.KindTrayComplete || resumed[i] {
			continue
		}
		var tray eventlog.TrayComplete
		if err := ev.Decode(&tray); err != nil || !clean(tray) {
			continue
		}
		if tray.WorkTimeSec < minPerUnit*float64(tray.TrayCapacity) {
			out.Implausible++
			continue
		}
		out.CleanTrays++
		total += tray.WorkTimeSec
		if out.BestSec == 0 || tray.WorkTimeSec < out.BestSec {
			out.BestSec = tray.WorkTimeSec
		}
	}
	if out.CleanTrays > 0 {
		out.AverageSec = total / float64(out.CleanTrays)
	}
	return out
}

// WeekBounds returns Monday 00:00 and Sunday 00:00 of the week containing day.
func WeekBounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	offset := (int(start.Weekday()) + 6) % 7
	start = start.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 6)
}

// superseded marks the TRAY_COMPLETE events later reopened by a TRAY_RESUMED
// for the same master label.
func superseded(events []eventlog.Event) map[int]bool {
	out := make(map[int]bool)
	latest := make(map[string]int)
	for i, ev := range events {
		switch ev.Kind {
		case eventlog.KindTrayComplete:
			var tray eventlog.TrayComplete
			if ev.Decode(&tray) == nil && tray.MasterLabelCode != "" {
				latest[tray.MasterLabelCode] = i
			}
		case eventlog.KindTrayResumed:
			var ref eventlog.SessionRef
			if ev.Decode(&ref) != nil {
				continue
			}
			if idx, ok := latest[ref.MasterLabelCode]; ok {
				out[idx] = true
				delete(latest, ref.MasterLabelCode)
			}
		}
	}
	return out
}

func clean(tray eventlog.TrayComplete) bool {
	if tray.HasErrorOrReset || tray.ErrorCount > 0 || tray.IsPartialSubmission || tray.IsRestoredSession {
		return false
	}
	if tray.TrayCapacity <= 0 {
		return false
	}
	return goodCount(tray)+defectiveCount(tray) == tray.TrayCapacity
}

func goodCount(tray eventlog.TrayComplete) int {
	if n := len(tray.ScannedProductBarcodes); n > 0 {
		return n
	}
	return tray.GoodCount
}

func defectiveCount(tray eventlog.TrayComplete) int {
	if n := len(tray.DefectiveProductBarcodes); n > 0 {
		return n
	}
	return tray.DefectiveCount
}
