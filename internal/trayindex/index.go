// Package trayindex mirrors completed trays into a local SQLite database so
// the station can answer "was this master label finished today" and "which
// log file holds this tray" without rescanning the shared CSV logs. The CSV
// logs stay authoritative; the index can be rebuilt from them at any time.
package trayindex

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes. The index is a cache,
// so a mismatch drops and recreates it.
const schemaVersion = 1

// Tray is one indexed TRAY_COMPLETE.
type Tray struct {
	MasterLabelCode string
	SessionID       string
	Day             string
	Worker          string
	LogPath         string
	ItemCode        string
	Capacity        int
	Good            int
	Defective       int
	Partial         bool
	EndTime         string
	Resumed         bool
}

// Index is the SQLite-backed tray index.
type Index struct {
	db   *sql.DB
	path string
}

// Open creates or opens the index at path.
func Open(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	idx := &Index{db: db, path: path}
	if err := idx.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

// Close closes the database.
func (i *Index) Close() error {
	if i == nil || i.db == nil {
		return nil
	}
	return i.db.Close()
}

// Path returns the database file path.
func (i *Index) Path() string {
	return i.path
}

func (i *Index) initSchema(ctx context.Context) error {
	var tableExists int
	err := i.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 1 {
		var version int
		err := i.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
		if err == nil && version == schemaVersion {
			return nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read schema version: %w", err)
		}
		if _, err := i.db.ExecContext(ctx, "DROP TABLE IF EXISTS trays; DROP TABLE IF EXISTS schema_version"); err != nil {
			return fmt.Errorf("drop stale schema: %w", err)
		}
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

const trayColumns = "master_label_code, session_id, day, worker, log_path, item_code, capacity, good, defective, partial, end_time, resumed"

// Record inserts t. Recording the same tray twice is a no-op.
func (i *Index) Record(ctx context.Context, t Tray) error {
	_, err := i.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO trays ("+trayColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		t.MasterLabelCode, t.SessionID, t.Day, t.Worker, t.LogPath, t.ItemCode,
		t.Capacity, t.Good, t.Defective, boolInt(t.Partial), t.EndTime, boolInt(t.Resumed),
	)
	if err != nil {
		return fmt.Errorf("record tray %s: %w", t.MasterLabelCode, err)
	}
	return nil
}

// CompletedOn returns the master labels completed on day (YYYY-MM-DD) that
// have not since been resumed.
func (i *Index) CompletedOn(ctx context.Context, day string) ([]string, error) {
	rows, err := i.db.QueryContext(ctx,
		"SELECT DISTINCT master_label_code FROM trays WHERE day = ? AND resumed = 0 ORDER BY master_label_code", day)
	if err != nil {
		return nil, fmt.Errorf("query completed trays: %w", err)
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan completed tray: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// MarkResumed flags every tray for code on day as resumed.
func (i *Index) MarkResumed(ctx context.Context, code, day string) error {
	if _, err := i.db.ExecContext(ctx,
		"UPDATE trays SET resumed = 1 WHERE master_label_code = ? AND day = ?", code, day); err != nil {
		return fmt.Errorf("mark %s resumed: %w", code, err)
	}
	return nil
}

// Relabel moves the tray at (logPath, endTime) from oldCode to newCode after
// a retroactive replacement.
func (i *Index) Relabel(ctx context.Context, logPath, endTime, oldCode, newCode string, capacity, good int) error {
	if _, err := i.db.ExecContext(ctx,
		"UPDATE trays SET master_label_code = ?, capacity = ?, good = ? WHERE log_path = ? AND end_time = ? AND master_label_code = ?",
		newCode, capacity, good, logPath, endTime, oldCode); err != nil {
		return fmt.Errorf("relabel %s: %w", oldCode, err)
	}
	return nil
}

// Locate returns the most recently completed tray for code.
func (i *Index) Locate(ctx context.Context, code string) (Tray, bool, error) {
	row := i.db.QueryRowContext(ctx,
		"SELECT "+trayColumns+" FROM trays WHERE master_label_code = ? ORDER BY end_time DESC, id DESC LIMIT 1", code)
	t, err := scanTray(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Tray{}, false, nil
	}
	if err != nil {
		return Tray{}, false, fmt.Errorf("locate %s: %w", code, err)
	}
	return t, true, nil
}

// List returns trays completed between from and to (YYYY-MM-DD, inclusive),
// newest first. Empty bounds are open.
func (i *Index) List(ctx context.Context, from, to string) ([]Tray, error) {
	var (
		clauses []string
		args    []any
	)
	if from != "" {
		clauses = append(clauses, "day >= ?")
		args = append(args, from)
	}
	if to != "" {
		clauses = append(clauses, "day <= ?")
		args = append(args, to)
	}
	query := "SELECT " + trayColumns + " FROM trays"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY end_time DESC, id DESC"

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trays: %w", err)
	}
	defer rows.Close()
	var trays []Tray
	for rows.Next() {
		t, err := scanTray(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tray: %w", err)
		}
		trays = append(trays, t)
	}
	return trays, rows.Err()
}

// Rebuild replaces the whole index with trays in one transaction.
func (i *Index) Rebuild(ctx context.Context, trays []Tray) error {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM trays"); err != nil {
		return fmt.Errorf("clear trays: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO trays ("+trayColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, t := range trays {
		if _, err := stmt.ExecContext(ctx,
			t.MasterLabelCode, t.SessionID, t.Day, t.Worker, t.LogPath, t.ItemCode,
			t.Capacity, t.Good, t.Defective, boolInt(t.Partial), t.EndTime, boolInt(t.Resumed),
		); err != nil {
			return fmt.Errorf("insert tray %s: %w", t.MasterLabelCode, err)
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTray(row rowScanner) (Tray, error) {
	var (
		t                Tray
		partial, resumed int
	)
	err := row.Scan(&t.MasterLabelCode, &t.SessionID, &t.Day, &t.Worker, &t.LogPath, &t.ItemCode,
		&t.Capacity, &t.Good, &t.Defective, &partial, &t.EndTime, &resumed)
	if err != nil {
		return Tray{}, err
	}
	t.Partial = partial != 0
	t.Resumed = resumed != 0
	return t, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
