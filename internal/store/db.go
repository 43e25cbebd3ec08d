package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const createSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	salt          TEXT NOT NULL,
	kdf_params    TEXT NOT NULL DEFAULT '{}',
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS folders (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	name       TEXT NOT NULL,
	parent_id  TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS credentials (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	folder_id  TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL,
	username   TEXT NOT NULL DEFAULT '',
	password   TEXT NOT NULL DEFAULT '',
	url        TEXT NOT NULL DEFAULT '',
	notes      TEXT NOT NULL DEFAULT '',
	tags       TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS totp_secrets (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	folder_id    TEXT NOT NULL DEFAULT '',
	issuer       TEXT NOT NULL,
	account_name TEXT NOT NULL DEFAULT '',
	secret_key   TEXT NOT NULL,
	algorithm    TEXT NOT NULL DEFAULT 'SHA1',
	digits       INTEGER NOT NULL DEFAULT 6,
	period       INTEGER NOT NULL DEFAULT 30,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL DEFAULT '',
	action     TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_folders_user ON folders(user_id);
CREATE INDEX IF NOT EXISTS idx_credentials_user ON credentials(user_id);
CREATE INDEX IF NOT EXISTS idx_credentials_identity ON credentials(user_id, name, username, folder_id);
CREATE INDEX IF NOT EXISTS idx_totp_identity ON totp_secrets(user_id, issuer, account_name);
CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at);
`

// DB wraps a *sql.DB with vault-record operations. Secret columns (password,
// notes, secret_key) only ever hold base64 AEAD ciphertext; plaintext secrets
// never reach this layer.
type DB struct {
	conn *sql.DB
}

// Open opens or creates the records database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("setting %s: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(createSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}
