package eventlog

// WorkSession is attached to WORK_START, WORK_END and LOG_FILE_CREATED.
type WorkSession struct {
	MachineID string `json:"machine_id,omitempty"`
	File      string `json:"file,omitempty"`
}

// MasterLabelScanned carries the full parsed master label.
type MasterLabelScanned struct {
	MasterLabelCode string            `json:"master_label_code"`
	ItemCode        string            `json:"item_code"`
	ItemName        string            `json:"item_name"`
	ItemSpec        string            `json:"item_spec"`
	Quantity        int               `json:"quantity"`
	Form            string            `json:"form"`
	Fields          map[string]string `json:"fields"`
	SessionID       string            `json:"session_id,omitempty"`
}

// Inspection is attached to INSPECTION_GOOD and INSPECTION_DEFECTIVE.
type Inspection struct {
	Barcode         string `json:"barcode"`
	MasterLabelCode string `json:"master_label_code,omitempty"`
	DirectScan      bool   `json:"direct_scan,omitempty"`
	ItemCode        string `json:"item_code,omitempty"`
	ItemName        string `json:"item_name,omitempty"`
	ScanTime        string `json:"scan_time,omitempty"`
	RemnantID       string `json:"remnant_id,omitempty"`
}

// Undo is attached to INSPECTION_UNDO.
type Undo struct {
	Barcode string `json:"barcode"`
	Status  string `json:"status"`
}

// TrayComplete is the fully denormalized session written when a tray closes.
type TrayComplete struct {
	MasterLabelCode          string            `json:"master_label_code"`
	SessionID                string            `json:"session_id,omitempty"`
	ItemCode                 string            `json:"item_code"`
	ItemName                 string            `json:"item_name"`
	ItemSpec                 string            `json:"item_spec"`
	Phase                    string            `json:"phs"`
	WorkOrderID              string            `json:"work_order_id"`
	SupplierCode             string            `json:"supplier_code"`
	FinishedProductBatch     string            `json:"finished_product_batch"`
	OutboundDate             string            `json:"outbound_date"`
	ItemGroup                string            `json:"item_group"`
	TrayCapacity             int               `json:"tray_capacity"`
	ScannedProductBarcodes   []string          `json:"scanned_product_barcodes"`
	DefectiveProductBarcodes []string          `json:"defective_product_barcodes"`
	ScanCount                int               `json:"scan_count"`
	GoodCount                int               `json:"good_count"`
	DefectiveCount           int               `json:"defective_count"`
	WorkTimeSec              float64           `json:"work_time_sec"`
	IdleTimeSec              float64           `json:"idle_time_sec"`
	ErrorCount               int               `json:"error_count"`
	HasErrorOrReset          bool              `json:"has_error_or_reset"`
	IsPartialSubmission      bool              `json:"is_partial_submission"`
	IsRestoredSession        bool              `json:"is_restored_session"`
	IsRemnantSession         bool              `json:"is_remnant_session"`
	ConsumedRemnantIDs       []string          `json:"consumed_remnant_ids"`
	StartTime                string            `json:"start_time"`
	EndTime                  string            `json:"end_time"`
	MasterLabelFields        map[string]string `json:"master_label_fields,omitempty"`
}

// SessionRef identifies a session for reset, restore, takeover and resume.
type SessionRef struct {
	MasterLabelCode string `json:"master_label_code"`
	SessionID       string `json:"session_id,omitempty"`
	ItemCode        string `json:"item_code,omitempty"`
	GoodCount       int    `json:"good_count"`
	DefectiveCount  int    `json:"defective_count"`
	PreviousWorker  string `json:"previous_worker,omitempty"`
}

// Artifact describes a remnant or defect box in REMNANT_* and DEFECT_* events.
type Artifact struct {
	ID           string   `json:"id"`
	SourceID     string   `json:"source_id,omitempty"`
	CreationDate string   `json:"creation_date,omitempty"`
	ItemCode     string   `json:"item_code"`
	ItemName     string   `json:"item_name,omitempty"`
	ItemSpec     string   `json:"item_spec,omitempty"`
	Barcodes     []string `json:"barcodes"`
	Quantity     int      `json:"quantity"`
	Partial      bool     `json:"partial,omitempty"`
}

// RemnantConsumed records a remnant merged into an inspection session.
type RemnantConsumed struct {
	RemnantID       string   `json:"remnant_id"`
	MasterLabelCode string   `json:"master_label_code"`
	Barcodes        []string `json:"barcodes"`
	Quantity        int      `json:"quantity"`
	Excluded        []string `json:"excluded,omitempty"`
}

// RemnantDeletionError records a consumed remnant file that could not be removed.
type RemnantDeletionError struct {
	RemnantID string `json:"remnant_id"`
	Error     string `json:"error"`
}

// Rework is attached to REWORK_SUCCESS and REWORK_FAIL_DUPLICATE.
type Rework struct {
	Barcode    string `json:"barcode"`
	ReworkTime string `json:"rework_time"`
}

// Replace is attached to HISTORICAL_REPLACE_* events.
type Replace struct {
	OldMasterLabel string   `json:"old_master_label,omitempty"`
	NewMasterLabel string   `json:"new_master_label,omitempty"`
	LogFile        string   `json:"log_file,omitempty"`
	OldCapacity    int      `json:"old_capacity,omitempty"`
	NewCapacity    int      `json:"new_capacity,omitempty"`
	Added          []string `json:"added,omitempty"`
	Removed        []string `json:"removed,omitempty"`
}

// ScanFail is attached to SCAN_FAIL_* diagnostics.
type ScanFail struct {
	Barcode  string `json:"barcode"`
	Reason   string `json:"reason"`
	Expected string `json:"expected,omitempty"`
	Mode     string `json:"mode,omitempty"`
}

// Idle is attached to IDLE_START and IDLE_END.
type Idle struct {
	MasterLabelCode string  `json:"master_label_code,omitempty"`
	IdleSeconds     float64 `json:"idle_seconds,omitempty"`
}

// ModeChange is attached to MODE_CHANGE.
type ModeChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}
