// Package recordlog keeps an SQLite archive of the trust records this node
// has seen on the overlay, for later inspection.
package recordlog

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/spacedatanetwork/sdn-trust/internal/record"
)

// Entry is one archived record.
type Entry struct {
	Key       []byte
	Value     []byte
	Source    string
	Valid     bool
	FirstSeen time.Time
	LastSeen  time.Time
	SeenCount int64
}

// Archive provides SQLite-based persistence for observed records.
type Archive struct {
	db   *sql.DB
	path string
}

// Open opens or creates the archive at dbPath.
func Open(dbPath string) (*Archive, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		db:   db,
		path: dbPath,
	}

	if err := a.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return a, nil
}

// initialize creates the required tables.
func (a *Archive) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS observed_records (
		key BLOB PRIMARY KEY,
		value BLOB NOT NULL,
		source TEXT,
		valid INTEGER NOT NULL DEFAULT 0,
		first_seen TIMESTAMP NOT NULL,
		last_seen TIMESTAMP NOT NULL,
		seen_count INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_observed_last_seen ON observed_records(last_seen);
	`

	_, err := a.db.Exec(schema)
	return err
}

// Observe archives rec. A later value for the same key replaces the stored
// one; first_seen is kept and seen_count incremented.
func (a *Archive) Observe(rec record.Record, source string) error {
	_, _, decodeErr := rec.Decode()
	now := time.Now().UTC()

	_, err := a.db.Exec(`
		INSERT INTO observed_records (key, value, source, valid, first_seen, last_seen, seen_count)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			source = excluded.source,
			valid = excluded.valid,
			last_seen = excluded.last_seen,
			seen_count = seen_count + 1
	`,
		rec.Key,
		rec.Value,
		source,
		decodeErr == nil,
		now,
		now,
	)
	return err
}

// Get returns the archived entry for key, or nil if none exists.
func (a *Archive) Get(key []byte) (*Entry, error) {
	row := a.db.QueryRow(`
		SELECT key, value, source, valid, first_seen, last_seen, seen_count
		FROM observed_records WHERE key = ?
	`, key)

	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Recent returns up to limit entries, most recently seen first.
func (a *Archive) Recent(limit int) ([]*Entry, error) {
	rows, err := a.db.Query(`
		SELECT key, value, source, valid, first_seen, last_seen, seen_count
		FROM observed_records ORDER BY last_seen DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of archived keys.
func (a *Archive) Count() (int64, error) {
	var n int64
	err := a.db.QueryRow(`SELECT COUNT(*) FROM observed_records`).Scan(&n)
	return n, err
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Path returns the database file path.
func (a *Archive) Path() string {
	return a.path
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e      Entry
		source sql.NullString
	)
	if err := s.Scan(&e.Key, &e.Value, &source, &e.Valid, &e.FirstSeen, &e.LastSeen, &e.SeenCount); err != nil {
		return nil, err
	}
	e.Source = source.String
	return &e, nil
}
