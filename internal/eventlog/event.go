package eventlog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the ISO 8601 layout written to the timestamp column.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

var timestampLayouts = []string{
	TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Event is one row of the log.
type Event struct {
	Timestamp time.Time
	Worker    string
	Kind      Kind
	Details   json.RawMessage

	// rawTimestamp preserves the on-disk text so rewrites do not reformat
	// rows they did not change.
	rawTimestamp string
}

// NewEvent marshals payload into the details column. A nil payload becomes {}.
func NewEvent(at time.Time, worker string, kind Kind, payload any) (Event, error) {
	details := json.RawMessage("{}")
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal %s details: %w", kind, err)
		}
		details = data
	}
	return Event{Timestamp: at, Worker: worker, Kind: kind, Details: details}, nil
}

// Decode unmarshals the details column into v.
func (e Event) Decode(v any) error {
	if len(e.Details) == 0 {
		return fmt.Errorf("decode %s: empty details", e.Kind)
	}
	if err := json.Unmarshal(e.Details, v); err != nil {
		return fmt.Errorf("decode %s: %w", e.Kind, err)
	}
	return nil
}

// TimestampText returns the timestamp column text.
func (e Event) TimestampText() string {
	if e.rawTimestamp != "" {
		return e.rawTimestamp
	}
	return e.Timestamp.Format(TimestampLayout)
}

func (e Event) row() []string {
	details := string(e.Details)
	if strings.TrimSpace(details) == "" {
		details = "{}"
	}
	return []string{e.TimestampText(), e.Worker, string(e.Kind), details}
}

// ParseTimestamp accepts the layouts written by this and earlier station versions.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
