package system

import (
	"database/sql"
	"errors"
	"time"
)

// SetOrRotateAdminPassword guards the admin endpoint password.
//   - current == nil: initial setup, fails if a password exists
//   - current != nil: verify current, then rotate to next
func SetOrRotateAdminPassword(db *sql.DB, current *string, next string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var storedHash string
	err = tx.QueryRow(`SELECT password_hash FROM admin_auth WHERE id = 1`).Scan(&storedHash)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if current != nil {
			return ErrAdminNotSet
		}
	case err != nil:
		return err
	default:
		if current == nil {
			return ErrAdminAlreadySet
		}
		if !verifyPassword(storedHash, *current) {
			return ErrBadCredential
		}
	}

	hash, err := hashPassword(next)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO admin_auth (id, password_hash, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			password_hash = excluded.password_hash,
			updated_at = excluded.updated_at
	`, hash, time.Now().UTC())
	if err != nil {
		return err
	}

	return tx.Commit()
}

func AdminPasswordConfigured(db *sql.DB) (bool, error) {
	var v int
	err := db.QueryRow(`SELECT 1 FROM admin_auth WHERE id = 1`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func VerifyAdminCredentials(db *sql.DB, password string) error {
	var hash string
	err := db.QueryRow(`SELECT password_hash FROM admin_auth WHERE id = 1`).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAdminNotSet
	}
	if err != nil {
		return err
	}

	if !verifyPassword(hash, password) {
		return ErrBadCredential
	}
	return nil
}
