package engine

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"qcstation/internal/artifacts"
	"qcstation/internal/eventlog"
	"qcstation/internal/session"
)

// LogReader is the read side of the event log.
type LogReader interface {
	Files(stream eventlog.Stream, worker string) ([]eventlog.FileInfo, error)
	ReadFile(path string) ([]eventlog.Event, error)
}

// BoxLister lists stored boxes.
type BoxLister interface {
	List(kind artifacts.Kind) ([]artifacts.Artifact, error)
}

// Defect is a unit marked defective during inspection that has not been
// packed into a defect box or reworked since.
type Defect struct {
	Barcode         string
	MasterLabelCode string
	ItemCode        string
	Worker          string
	At              time.Time
}

// Unprocessed replays every inspection log and returns the defects still
// waiting for a defect box, oldest first. A non-empty item keeps only
// barcodes containing it.
func Unprocessed(logs LogReader, boxes BoxLister, item string) ([]Defect, error) {
	handled := make(map[string]struct{})
	if boxes != nil {
		stored, err := boxes.List(artifacts.KindDefect)
		if err != nil {
			return nil, fmt.Errorf("list defect boxes: %w", err)
		}
		for _, box := range stored {
			for _, code := range box.Barcodes {
				handled[code] = struct{}{}
			}
		}
	}

	reworkFiles, err := logs.Files(eventlog.StreamRework, "")
	if err != nil {
		return nil, fmt.Errorf("list rework logs: %w", err)
	}
	for _, file := range reworkFiles {
		events, err := logs.ReadFile(file.Path)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if ev.Kind != eventlog.KindReworkSuccess {
				continue
			}
			var payload eventlog.Rework
			if ev.Decode(&payload) == nil && payload.Barcode != "" {
				handled[payload.Barcode] = struct{}{}
			}
		}
	}

	files, err := logs.Files(eventlog.StreamInspection, "")
	if err != nil {
		return nil, fmt.Errorf("list inspection logs: %w", err)
	}
	open := make(map[string]Defect)
	for i := len(files) - 1; i >= 0; i-- {
		events, err := logs.ReadFile(files[i].Path)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			switch ev.Kind {
			case eventlog.KindInspectionDefective:
				var payload eventlog.Inspection
				if ev.Decode(&payload) != nil || payload.Barcode == "" {
					continue
				}
				open[payload.Barcode] = Defect{
					Barcode:         payload.Barcode,
					MasterLabelCode: payload.MasterLabelCode,
					ItemCode:        payload.ItemCode,
					Worker:          ev.Worker,
					At:              ev.Timestamp,
				}
			case eventlog.KindInspectionUndo:
				var payload eventlog.Undo
				if ev.Decode(&payload) == nil && payload.Status == string(session.StatusDefective) {
					delete(open, payload.Barcode)
				}
			}
		}
	}

	out := make([]Defect, 0, len(open))
	for code, defect := range open {
		if _, done := handled[code]; done {
			continue
		}
		if item != "" && !strings.Contains(code, item) {
			continue
		}
		out = append(out, defect)
	}
	slices.SortFunc(out, func(a, b Defect) int {
		if c := a.At.Compare(b.At); c != 0 {
			return c
		}
		return strings.Compare(a.Barcode, b.Barcode)
	})
	return out, nil
}

// Unprocessed lists pending defects for item using the engine's stores.
func (e *Engine) Unprocessed(item string) ([]Defect, error) {
	if e.log == nil {
		return nil, nil
	}
	e.flushLog()
	return Unprocessed(e.log, e.artifacts, item)
}
