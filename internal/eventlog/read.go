package eventlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"qcstation/internal/csvio"
)

// ReadFile returns every well-formed event in the file at path. Torn or
// malformed rows are skipped; a missing file yields no events.
func (s *Store) ReadFile(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	reader := bufio.NewReaderSize(csvio.Decode(file), 64*1024)
	var events []Event
	for {
		line, err := reader.ReadString('\n')
		if text := strings.TrimRight(line, "\r\n"); text != "" {
			// Details are compact JSON, so every row is one physical line
			// and a torn write only damages its own line.
			if row, perr := csvio.ParseLine(text); perr == nil {
				if ev, ok := parseRow(row); ok {
					events = append(events, ev)
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return events, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return events, nil
}

func parseRow(row []string) (Event, bool) {
	if len(row) < 4 {
		return Event{}, false
	}
	if strings.EqualFold(strings.TrimSpace(row[0]), header[0]) {
		return Event{}, false
	}
	ts, err := ParseTimestamp(row[0])
	if err != nil {
		return Event{}, false
	}
	details := strings.TrimSpace(row[3])
	if details == "" {
		details = "{}"
	}
	if !json.Valid([]byte(details)) {
		return Event{}, false
	}
	return Event{
		Timestamp:    ts,
		Worker:       row[1],
		Kind:         Kind(strings.TrimSpace(row[2])),
		Details:      json.RawMessage(details),
		rawTimestamp: row[0],
	}, true
}

// Day returns the events of one {stream, worker, day} partition.
func (s *Store) Day(stream Stream, worker string, day time.Time) ([]Event, error) {
	return s.ReadFile(s.Path(stream, worker, day))
}

// Scan visits events of stream within [from, to] (by file day, inclusive),
// oldest file first. An empty worker scans every worker's files. Returning
// false from fn stops the scan.
func (s *Store) Scan(stream Stream, worker string, from, to time.Time, fn func(FileInfo, Event) bool) error {
	files, err := s.Files(stream, worker)
	if err != nil {
		return err
	}
	fromDay := truncateDay(from)
	toDay := truncateDay(to)
	for i := len(files) - 1; i >= 0; i-- {
		info := files[i]
		if !from.IsZero() && info.Day.Before(fromDay) {
			continue
		}
		if !to.IsZero() && info.Day.After(toDay) {
			continue
		}
		events, err := s.ReadFile(info.Path)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if !fn(info, ev) {
				return nil
			}
		}
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}
