package eventlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"qcstation/internal/csvio"
)

// Rewrite replaces the events of the file at path with what edit returns.
// The file is read and renamed over while holding the lock next to it, the
// same lock every append takes, so rows written by another station's writer
// land either before the read or after the rename.
func (s *Store) Rewrite(path string, edit func([]Event) ([]Event, error)) error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	lock, err := lockFile(path)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	current, err := s.ReadFile(path)
	if err != nil {
		return err
	}
	events, err := edit(current)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if err := csvio.WriteBOM(tmp); err != nil {
		cleanup()
		return fmt.Errorf("write bom: %w", err)
	}
	writer := csv.NewWriter(tmp)
	if err := writer.Write(header); err != nil {
		cleanup()
		return fmt.Errorf("write header: %w", err)
	}
	for _, ev := range events {
		if err := writer.Write(ev.row()); err != nil {
			cleanup()
			return fmt.Errorf("write %s: %w", ev.Kind, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		cleanup()
		return fmt.Errorf("flush rewrite: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync rewrite: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close rewrite: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename rewrite: %w", err)
	}
	return nil
}

// lockFile takes the advisory lock guarding path across stations. The lock
// file stays on disk; removing it would let a waiter lock a stale inode.
func lockFile(path string) (*flock.Flock, error) {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("lock %s: %w", filepath.Base(path), err)
	}
	return lock, nil
}
