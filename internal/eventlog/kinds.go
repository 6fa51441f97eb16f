package eventlog

// Stream partitions the log into independent files.
type Stream string

const (
	StreamInspection  Stream = "inspection"
	StreamRework      Stream = "rework"
	StreamDefectMerge Stream = "defect_merge"
)

var streamPrefixes = map[Stream]string{
	StreamInspection:  "검사작업이벤트로그",
	StreamRework:      "리워크작업이벤트로그",
	StreamDefectMerge: "불량처리로그",
}

// Streams lists every known stream.
func Streams() []Stream {
	return []Stream{StreamInspection, StreamRework, StreamDefectMerge}
}

// Prefix returns the file name prefix for the stream.
func (s Stream) Prefix() string {
	return streamPrefixes[s]
}

// Kind names an event row.
type Kind string

const (
	KindWorkStart      Kind = "WORK_START"
	KindWorkEnd        Kind = "WORK_END"
	KindLogFileCreated Kind = "LOG_FILE_CREATED"

	KindMasterLabelScanned  Kind = "MASTER_LABEL_SCANNED"
	KindInspectionGood      Kind = "INSPECTION_GOOD"
	KindInspectionDefective Kind = "INSPECTION_DEFECTIVE"
	KindInspectionUndo      Kind = "INSPECTION_UNDO"

	KindTrayComplete Kind = "TRAY_COMPLETE"
	KindTrayReset    Kind = "TRAY_RESET"
	KindTrayRestore  Kind = "TRAY_RESTORE"
	KindTrayTakeover Kind = "TRAY_TAKEOVER"
	KindTrayResumed  Kind = "TRAY_RESUMED"

	KindRemnantCreated             Kind = "REMNANT_CREATED"
	KindRemnantCreatedFromOverflow Kind = "REMNANT_CREATED_FROM_OVERFLOW"
	KindRemnantConsumed            Kind = "REMNANT_CONSUMED"
	KindRemnantFileDeletionError   Kind = "REMNANT_FILE_DELETION_ERROR"

	KindDefectMergeComplete       Kind = "DEFECT_MERGE_COMPLETE"
	KindDefectCreatedFromOverflow Kind = "DEFECT_CREATED_FROM_OVERFLOW"

	KindReworkSuccess       Kind = "REWORK_SUCCESS"
	KindReworkFailDuplicate Kind = "REWORK_FAIL_DUPLICATE"

	KindHistoricalReplaceStart   Kind = "HISTORICAL_REPLACE_START"
	KindHistoricalReplaceCancel  Kind = "HISTORICAL_REPLACE_CANCEL"
	KindHistoricalReplaceSuccess Kind = "HISTORICAL_REPLACE_SUCCESS"

	KindScanFailMismatch     Kind = "SCAN_FAIL_MISMATCH"
	KindScanFailDuplicate    Kind = "SCAN_FAIL_DUPLICATE"
	KindScanFailMalformed    Kind = "SCAN_FAIL_MALFORMED"
	KindScanFailItemNotFound Kind = "SCAN_FAIL_ITEM_NOT_FOUND"
	KindScanFailOutOfOrder   Kind = "SCAN_FAIL_OUT_OF_ORDER"
	KindScanFailRemnant      Kind = "SCAN_FAIL_REMNANT"
	KindScanFailUnknown      Kind = "SCAN_FAIL_UNKNOWN"
	KindScanFailReplace      Kind = "SCAN_FAIL_REPLACE"

	KindIdleStart  Kind = "IDLE_START"
	KindIdleEnd    Kind = "IDLE_END"
	KindModeChange Kind = "MODE_CHANGE"
)
