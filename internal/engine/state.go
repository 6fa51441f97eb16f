package engine

import (
	"strings"

	"qcstation/internal/artifacts"
	"qcstation/internal/barcode"
	"qcstation/internal/eventlog"
	"qcstation/internal/session"
)

// Mode is the top-level station mode.
type Mode int

const (
	ModeStandard Mode = iota
	ModeRework
	ModeRemnant
	ModeDefective
)

func (m Mode) String() string {
	switch m {
	case ModeRework:
		return "rework"
	case ModeRemnant:
		return "remnant"
	case ModeDefective:
		return "defective"
	default:
		return "standard"
	}
}

// ParseMode accepts the names returned by String.
func ParseMode(value string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "standard", "inspection":
		return ModeStandard, true
	case "rework":
		return ModeRework, true
	case "remnant", "spare":
		return ModeRemnant, true
	case "defective", "defect", "merge":
		return ModeDefective, true
	default:
		return 0, false
	}
}

// ScanEvent is one read from the scanner together with the pedal state.
type ScanEvent struct {
	Barcode string
	// Defect is true while the defect pedal is held.
	Defect bool
}

// Choice answers a prompt.
type Choice string

const (
	ChoiceYes     Choice = "yes"
	ChoiceNo      Choice = "no"
	ChoiceFill    Choice = "fill"
	ChoiceExclude Choice = "exclude"
)

// Prompt asks the operator to pick one of Choices.
type Prompt struct {
	Message string
	Choices []Choice
}

// Outcome summarizes what a scan or command did.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeDebounced
	OutcomeAccepted
	OutcomeSessionStarted
	OutcomeCompleted
	OutcomePrompt
	OutcomeAwaiting
	OutcomeArtifactCreated
	OutcomeReplaced
	OutcomeNotice
)

// Result is returned by every engine input.
type Result struct {
	Outcome Outcome
	Message string
	Prompt  *Prompt
	// Completed holds trays closed by this input, oldest first.
	Completed []eventlog.TrayComplete
	// Artifacts holds boxes written by this input.
	Artifacts []artifacts.Artifact
}

func (r *Result) absorb(other Result) {
	r.Completed = append(r.Completed, other.Completed...)
	r.Artifacts = append(r.Artifacts, other.Artifacts...)
}

// pending is a sub-state that intercepts scans before the mode handler.
// Exactly one may be active at a time.
type pending interface {
	name() string
}

type awaitingResume struct {
	label *barcode.MasterLabel
}

type awaitingRemnantConfirm struct {
	box artifacts.Artifact
}

type awaitingOverflowChoice struct {
	box   artifacts.Artifact
	space int
}

type excludingOverflow struct {
	box      artifacts.Artifact
	need     int
	excluded []string
}

type awaitingOldLabel struct{}

type awaitingNewLabel struct {
	old string
}

type historicalTray struct {
	path    string
	events  []eventlog.Event
	index   int
	payload eventlog.TrayComplete
}

func (h historicalTray) capacity() int {
	if h.payload.TrayCapacity > 0 {
		return h.payload.TrayCapacity
	}
	return len(h.payload.ScannedProductBarcodes) + len(h.payload.DefectiveProductBarcodes)
}

type awaitingAdditional struct {
	old, new *barcode.MasterLabel
	tray     historicalTray
	need     int
	added    []string
}

type awaitingRemoved struct {
	old, new *barcode.MasterLabel
	tray     historicalTray
	need     int
	removed  []string
}

func (awaitingResume) name() string         { return "awaiting_resume" }
func (awaitingRemnantConfirm) name() string { return "awaiting_remnant_confirm" }
func (awaitingOverflowChoice) name() string { return "awaiting_overflow_choice" }
func (excludingOverflow) name() string      { return "excluding_overflow" }
func (awaitingOldLabel) name() string       { return "awaiting_old_completed" }
func (awaitingNewLabel) name() string       { return "awaiting_new_replacement" }
func (awaitingAdditional) name() string     { return "awaiting_additional_items" }
func (awaitingRemoved) name() string        { return "awaiting_removed_items" }

func isReplace(p pending) bool {
	switch p.(type) {
	case awaitingOldLabel, awaitingNewLabel, *awaitingAdditional, *awaitingRemoved:
		return true
	default:
		return false
	}
}

// View is a read-only copy of the engine state for display.
type View struct {
	Mode     Mode
	Worker   string
	Pending  string
	Prompt   *Prompt
	Session  *session.Inspection
	Remnant  *session.Remnant
	Merge    *session.DefectMerge
	Idle     bool
	CanUndo  bool
	Excluded []string
	Needed   int
}
