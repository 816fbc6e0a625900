// Package sqlite persists statistics snapshots for vrrd.
// Uses WAL mode for concurrent reads and crash-safe writes. The control core
// itself is stateless; this store is a telemetry sink only.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/panelworks/vrrd/internal/display"
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// SnapshotInfo describes one persisted statistics snapshot.
type SnapshotInfo struct {
	ID      string    `json:"id"`
	TakenAt time.Time `json:"taken_at"`
	Entries int       `json:"entries"`
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode and a 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id       TEXT PRIMARY KEY,
			taken_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_taken ON snapshots(taken_at)`,

		`CREATE TABLE IF NOT EXISTS present_stats (
			snapshot_id       TEXT NOT NULL REFERENCES snapshots(id),
			power_mode        INTEGER NOT NULL,
			brightness_mode   INTEGER NOT NULL,
			active_config_id  INTEGER NOT NULL,
			num_vsync         INTEGER NOT NULL,
			count             INTEGER NOT NULL,
			last_timestamp_ns INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_present_stats_snapshot ON present_stats(snapshot_id)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Snapshot Repository ────────────────────────────────────────────────────

// SaveSnapshot persists one batch of statistics entries and returns the
// snapshot id. Empty batches are skipped and return an empty id.
func (d *DB) SaveSnapshot(entries []display.StatEntry) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}
	id := uuid.NewString()

	tx, err := d.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO snapshots (id, taken_at) VALUES (?, ?)`,
		id, time.Now().Unix(),
	); err != nil {
		return "", err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO present_stats
		 (snapshot_id, power_mode, brightness_mode, active_config_id, num_vsync, count, last_timestamp_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(
			id,
			int32(e.Profile.Status.PowerMode),
			int32(e.Profile.Status.BrightnessMode),
			int32(e.Profile.Status.ActiveConfigID),
			e.Profile.NumVsync,
			e.Record.Count,
			e.Record.LastTimestampNs,
		); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// ListSnapshots returns stored snapshots newest first.
func (d *DB) ListSnapshots() ([]SnapshotInfo, error) {
	rows, err := d.db.Query(
		`SELECT s.id, s.taken_at, COUNT(p.snapshot_id)
		 FROM snapshots s LEFT JOIN present_stats p ON p.snapshot_id = s.id
		 GROUP BY s.id ORDER BY s.taken_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var takenAt int64
		if err := rows.Scan(&info.ID, &takenAt, &info.Entries); err != nil {
			return nil, err
		}
		info.TakenAt = time.Unix(takenAt, 0)
		out = append(out, info)
	}
	return out, rows.Err()
}

// SnapshotStats returns the entries of one snapshot, ordered like a live
// statistics dump.
func (d *DB) SnapshotStats(id string) ([]display.StatEntry, error) {
	rows, err := d.db.Query(
		`SELECT power_mode, brightness_mode, active_config_id, num_vsync, count, last_timestamp_ns
		 FROM present_stats WHERE snapshot_id = ?
		 ORDER BY power_mode, active_config_id, brightness_mode, num_vsync`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []display.StatEntry
	for rows.Next() {
		var e display.StatEntry
		var power, brightness, config int32
		if err := rows.Scan(&power, &brightness, &config,
			&e.Profile.NumVsync, &e.Record.Count, &e.Record.LastTimestampNs); err != nil {
			return nil, err
		}
		e.Profile.Status.PowerMode = display.PowerMode(power)
		e.Profile.Status.BrightnessMode = display.BrightnessMode(brightness)
		e.Profile.Status.ActiveConfigID = display.ConfigID(config)
		out = append(out, e)
	}
	return out, rows.Err()
}
