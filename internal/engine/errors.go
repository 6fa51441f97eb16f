package engine

import (
	"errors"
	"fmt"

	"qcstation/internal/eventlog"
)

// ErrorKind classifies an operator-visible scan failure.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindMalformedUnit
	KindItemMismatch
	KindDuplicate
	KindItemNotFound
	KindRemnantNotFound
	KindArtifactReadError
	KindRemnantWithoutMaster
	KindOutOfOrder
	KindNoHistoricalRecord
	KindReplaceCountMismatch
	KindModeLocked
	KindReworkDuplicate
	KindNotInArtifact
	KindAlreadyFull
)

var (
	ErrUnknownScan          = errors.New("unrecognized scan")
	ErrMalformedUnit        = errors.New("unit barcode too short")
	ErrItemMismatch         = errors.New("item code mismatch")
	ErrDuplicate            = errors.New("barcode already scanned")
	ErrItemNotFound         = errors.New("item not in catalog")
	ErrRemnantNotFound      = errors.New("box not found")
	ErrArtifactRead         = errors.New("box record unreadable")
	ErrRemnantWithoutMaster = errors.New("remnant scanned without a master label")
	ErrOutOfOrder           = errors.New("unit scanned before a master label")
	ErrNoHistoricalRecord   = errors.New("no completed tray for master label")
	ErrReplaceCountMismatch = errors.New("replacement scan count mismatch")
	ErrModeLocked           = errors.New("mode change blocked by live session")
	ErrReworkDuplicate      = errors.New("unit already reworked today")
	ErrNotInArtifact        = errors.New("unit not in the box or tray being edited")
	ErrAlreadyFull          = errors.New("tray already full")
)

var kindInfo = map[ErrorKind]struct {
	name     string
	sentinel error
	event    eventlog.Kind
}{
	KindUnknown:              {"Unknown", ErrUnknownScan, eventlog.KindScanFailUnknown},
	KindMalformedUnit:        {"MalformedUnit", ErrMalformedUnit, eventlog.KindScanFailMalformed},
	KindItemMismatch:         {"ItemMismatch", ErrItemMismatch, eventlog.KindScanFailMismatch},
	KindDuplicate:            {"Duplicate", ErrDuplicate, eventlog.KindScanFailDuplicate},
	KindItemNotFound:         {"ItemNotFound", ErrItemNotFound, eventlog.KindScanFailItemNotFound},
	KindRemnantNotFound:      {"RemnantNotFound", ErrRemnantNotFound, eventlog.KindScanFailRemnant},
	KindArtifactReadError:    {"ArtifactReadError", ErrArtifactRead, eventlog.KindScanFailRemnant},
	KindRemnantWithoutMaster: {"RemnantWithoutMaster", ErrRemnantWithoutMaster, eventlog.KindScanFailRemnant},
	KindOutOfOrder:           {"OutOfOrder", ErrOutOfOrder, eventlog.KindScanFailOutOfOrder},
	KindNoHistoricalRecord:   {"NoHistoricalRecord", ErrNoHistoricalRecord, eventlog.KindScanFailReplace},
	KindReplaceCountMismatch: {"ReplaceCountMismatch", ErrReplaceCountMismatch, eventlog.KindScanFailReplace},
	KindModeLocked:           {"ModeLocked", ErrModeLocked, ""},
	KindReworkDuplicate:      {"ReworkDuplicate", ErrReworkDuplicate, eventlog.KindReworkFailDuplicate},
	KindNotInArtifact:        {"NotInArtifact", ErrNotInArtifact, eventlog.KindScanFailRemnant},
	KindAlreadyFull:          {"AlreadyFull", ErrAlreadyFull, eventlog.KindScanFailRemnant},
}

func (k ErrorKind) String() string {
	if info, ok := kindInfo[k]; ok {
		return info.name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// ScanError is a recoverable, operator-visible rejection.
type ScanError struct {
	Kind    ErrorKind
	Barcode string
	Detail  string
	Err     error
}

func (e *ScanError) Error() string {
	msg := kindInfo[e.Kind].sentinel.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Barcode != "" {
		msg += " (" + e.Barcode + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the sentinel for the error's kind.
func (e *ScanError) Is(target error) bool {
	info, ok := kindInfo[e.Kind]
	return ok && target == info.sentinel
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

func scanErr(kind ErrorKind, barcode, detail string) *ScanError {
	return &ScanError{Kind: kind, Barcode: barcode, Detail: detail}
}

// AsScanError extracts a ScanError from err.
func AsScanError(err error) (*ScanError, bool) {
	var se *ScanError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
