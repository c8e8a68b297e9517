// Package storage persists the durable ledger of extraction events and
// minted bundles in SQLite. Writes happen only from the coordinator and
// outbox goroutines, never while the engine lock is held.
package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/JupitersGhost/ChaosMagnet/internal/vault"
)

// DB wraps a sql.DB connection to a SQLite database.
type DB struct {
	db *sql.DB
}

// NewDB opens (or creates) a SQLite database at path and runs schema
// migrations.
func NewDB(path string) (*DB, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	d := &DB{db: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// migrate creates all required tables if they do not already exist.
func (d *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS extraction_events (
		seq         INTEGER PRIMARY KEY,
		source      TEXT NOT NULL,
		quality     REAL NOT NULL,
		occurred_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS mints (
		id           TEXT PRIMARY KEY,
		requester    TEXT NOT NULL,
		filename     TEXT NOT NULL,
		minted_at    INTEGER NOT NULL,
		entropy_bits REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_mints_minted_at ON mints(minted_at);
	`
	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// ExtractionEvent is one ledger row per extraction.
type ExtractionEvent struct {
	Seq        uint64  `json:"seq"`
	Source     string  `json:"source"`
	Quality    float64 `json:"quality"` // Shannon entropy of the whitened output
	OccurredAt int64   `json:"occurred_at"`
}

// RecordExtraction inserts one extraction event. Replays of the same
// sequence number overwrite rather than duplicate.
func (d *DB) RecordExtraction(ev ExtractionEvent) error {
	_, err := d.db.Exec(
		`INSERT OR REPLACE INTO extraction_events (seq, source, quality, occurred_at)
		 VALUES (?, ?, ?, ?)`,
		ev.Seq, ev.Source, ev.Quality, ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert extraction event: %w", err)
	}
	return nil
}

// RecentExtractions returns up to limit events, newest first.
func (d *DB) RecentExtractions(limit int) ([]ExtractionEvent, error) {
	rows, err := d.db.Query(
		`SELECT seq, source, quality, occurred_at FROM extraction_events
		 ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query extraction events: %w", err)
	}
	defer rows.Close()

	var out []ExtractionEvent
	for rows.Next() {
		var ev ExtractionEvent
		if err := rows.Scan(&ev.Seq, &ev.Source, &ev.Quality, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan extraction event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// RecordMint implements vault.Recorder.
func (d *DB) RecordMint(rec vault.MintRecord) error {
	_, err := d.db.Exec(
		`INSERT INTO mints (id, requester, filename, minted_at, entropy_bits)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Requester, rec.Filename, rec.MintedAt, rec.EntropyBits,
	)
	if err != nil {
		return fmt.Errorf("insert mint: %w", err)
	}
	return nil
}

// RecentMints returns up to limit mint records, newest first.
func (d *DB) RecentMints(limit int) ([]vault.MintRecord, error) {
	rows, err := d.db.Query(
		`SELECT id, requester, filename, minted_at, entropy_bits FROM mints
		 ORDER BY minted_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query mints: %w", err)
	}
	defer rows.Close()

	var out []vault.MintRecord
	for rows.Next() {
		var rec vault.MintRecord
		if err := rows.Scan(&rec.ID, &rec.Requester, &rec.Filename, &rec.MintedAt, &rec.EntropyBits); err != nil {
			return nil, fmt.Errorf("scan mint: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
