package geo

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// SQLiteStore keeps the cache in the geo_cache table of an open database.
// The database handle is owned by the caller.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	const schema = `
	CREATE TABLE IF NOT EXISTS geo_cache (
		address TEXT PRIMARY KEY,
		entry TEXT NOT NULL,
		resolved_at INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create geo_cache: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load() (map[string]Entry, error) {
	rows, err := s.db.Query(`SELECT address, entry FROM geo_cache`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Entry)
	for rows.Next() {
		var addr, raw string
		if err := rows.Scan(&addr, &raw); err != nil {
			return nil, err
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode geo_cache row %s: %w", addr, err)
		}
		out[addr] = e
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Put(address string, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO geo_cache (address, entry, resolved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			entry = excluded.entry,
			resolved_at = excluded.resolved_at
	`, address, string(raw), e.Timestamp)
	return err
}

func (s *SQLiteStore) Replace(entries map[string]Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM geo_cache`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO geo_cache (address, entry, resolved_at) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for addr, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(addr, string(raw), e.Timestamp); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error { return nil }
