package eventlog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DetailsMap decodes the details column into a generic map, keeping numbers
// as json.Number so fields this package does not know about round-trip
// unchanged.
func (e Event) DetailsMap() (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(e.Details))
	decoder.UseNumber()
	fields := map[string]any{}
	if err := decoder.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode %s details: %w", e.Kind, err)
	}
	return fields, nil
}

// WithDetails returns a copy of e whose details are the result of applying
// mutate to the decoded map. The timestamp text is preserved.
func (e Event) WithDetails(mutate func(map[string]any)) (Event, error) {
	fields, err := e.DetailsMap()
	if err != nil {
		return Event{}, err
	}
	mutate(fields)
	data, err := json.Marshal(fields)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s details: %w", e.Kind, err)
	}
	out := e
	out.Details = data
	return out, nil
}
