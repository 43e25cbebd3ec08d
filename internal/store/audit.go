package store

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// AuditEntry represents a row in audit_log.
type AuditEntry struct {
	ID        string
	UserID    string
	Action    string
	Detail    string
	CreatedAt time.Time
}

// LogEvent writes an audit entry. Detail must never contain secrets or key
// material.
func (d *DB) LogEvent(entry AuditEntry) error {
	if entry.ID == "" {
		b := make([]byte, 16)
		rand.Read(b)
		entry.ID = hex.EncodeToString(b)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := d.conn.Exec(
		`INSERT INTO audit_log (id, user_id, action, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Action, entry.Detail,
		entry.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetAuditLog retrieves recent audit entries, newest first.
func (d *DB) GetAuditLog(limit int) ([]AuditEntry, error) {
	rows, err := d.conn.Query(
		"SELECT id, user_id, action, detail, created_at FROM audit_log ORDER BY created_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Detail, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
