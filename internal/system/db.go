package system

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens (creating if needed) the SQLite database at path.
// An empty path uses DefaultDBPath.
func InitDB(path string) (*sql.DB, error) {
	if path == "" {
		p, err := DefaultDBPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Fail early if the DB is not writable.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return db, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		process TEXT NOT NULL,
		category TEXT NOT NULL,
		src_addr TEXT NOT NULL,
		src_port INTEGER NOT NULL,
		dst_addr TEXT NOT NULL,
		dst_port INTEGER NOT NULL,
		status TEXT NOT NULL,
		location TEXT NOT NULL,   -- JSON encoded location
		capture_mode TEXT NOT NULL DEFAULT '',
		captured_at INTEGER NOT NULL,  -- unix ms
		resolved_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS history_captured_at ON history(captured_at);

	CREATE TABLE IF NOT EXISTS ignorelist (
		pattern TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS ignorelist_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO ignorelist_meta (id, version) VALUES (1, 1);

	CREATE TABLE IF NOT EXISTS admin_auth (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		password_hash TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`

	_, err := db.Exec(schema)
	return err
}
