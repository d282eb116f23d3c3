package system

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"netglobe/internal/models"
)

// InsertHistory appends one enriched connection to the history table.
func InsertHistory(db *sql.DB, ev models.EnrichedEvent) error {
	loc, err := json.Marshal(ev.Location)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		INSERT INTO history (
			process, category, src_addr, src_port, dst_addr, dst_port,
			status, location, capture_mode, captured_at, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.Process, ev.Category, ev.SourceAddr, ev.SourcePort, ev.DestAddr, ev.DestPort,
		ev.Location.Status, string(loc), ev.CaptureMode,
		ev.CapturedAt.UnixMilli(), ev.ResolvedAt.UnixMilli(),
	)
	return err
}

// RecentHistory returns up to limit events, newest first.
func RecentHistory(db *sql.DB, limit int) ([]models.EnrichedEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT process, category, src_addr, src_port, dst_addr, dst_port,
		       location, capture_mode, captured_at, resolved_at
		FROM history
		ORDER BY captured_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.EnrichedEvent
	for rows.Next() {
		var ev models.EnrichedEvent
		var loc string
		var captured, resolved int64
		if err := rows.Scan(
			&ev.Process, &ev.Category, &ev.SourceAddr, &ev.SourcePort,
			&ev.DestAddr, &ev.DestPort, &loc, &ev.CaptureMode, &captured, &resolved,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(loc), &ev.Location); err != nil {
			return nil, fmt.Errorf("decode history location: %w", err)
		}
		ev.CapturedAt = time.UnixMilli(captured).UTC()
		ev.ResolvedAt = time.UnixMilli(resolved).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// PruneHistory deletes events captured before cutoff.
func PruneHistory(db *sql.DB, cutoff time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM history WHERE captured_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
