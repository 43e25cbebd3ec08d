package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Folder represents a row in folders.
type Folder struct {
	ID        string
	UserID    string
	Name      string
	ParentID  string
	CreatedAt time.Time
}

// Credential represents a row in credentials. Password and Notes hold base64
// AEAD ciphertext.
type Credential struct {
	ID        string
	UserID    string
	FolderID  string
	Name      string
	Username  string
	Password  string
	URL       string
	Notes     string
	Tags      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TotpSecret represents a row in totp_secrets. SecretKey holds base64 AEAD
// ciphertext.
type TotpSecret struct {
	ID          string
	UserID      string
	FolderID    string
	Issuer      string
	AccountName string
	SecretKey   string
	Algorithm   string
	Digits      int
	Period      int
	CreatedAt   time.Time
}

// CreateFolder inserts a folder and returns its id.
func (d *DB) CreateFolder(ctx context.Context, f Folder) (string, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Name == "" {
		return "", fmt.Errorf("folder name is required")
	}
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO folders (id, user_id, name, parent_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.UserID, f.Name, f.ParentID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("inserting folder: %w", err)
	}
	return f.ID, nil
}

// ListFolders returns all folders for a user.
func (d *DB) ListFolders(ctx context.Context, userID string) ([]Folder, error) {
	rows, err := d.conn.QueryContext(ctx,
		"SELECT id, user_id, name, parent_id, created_at FROM folders WHERE user_id = ? ORDER BY name",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []Folder
	for rows.Next() {
		var f Folder
		var createdAt string
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.ParentID, &createdAt); err != nil {
			return nil, err
		}
		f.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// CreateCredential inserts a credential and returns its id.
func (d *DB) CreateCredential(ctx context.Context, c Credential) (string, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Name == "" {
		return "", fmt.Errorf("credential name is required")
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO credentials (id, user_id, folder_id, name, username, password, url, notes, tags, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.FolderID, c.Name, c.Username, c.Password, c.URL, c.Notes, c.Tags, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("inserting credential: %w", err)
	}
	return c.ID, nil
}

// FindCredential looks up a credential by its stable identity key
// (name + username + folder). Returns nil when no match exists.
func (d *DB) FindCredential(ctx context.Context, userID, name, username, folderID string) (*Credential, error) {
	var c Credential
	var createdAt, updatedAt string
	err := d.conn.QueryRowContext(ctx,
		`SELECT id, user_id, folder_id, name, username, password, url, notes, tags, created_at, updated_at
		 FROM credentials WHERE user_id = ? AND name = ? AND username = ? AND folder_id = ?`,
		userID, name, username, folderID,
	).Scan(&c.ID, &c.UserID, &c.FolderID, &c.Name, &c.Username, &c.Password, &c.URL, &c.Notes, &c.Tags, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &c, nil
}

// ListCredentials returns all credentials for a user.
func (d *DB) ListCredentials(ctx context.Context, userID string) ([]Credential, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, user_id, folder_id, name, username, password, url, notes, tags, created_at, updated_at
		 FROM credentials WHERE user_id = ? ORDER BY name, username`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		var c Credential
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.UserID, &c.FolderID, &c.Name, &c.Username, &c.Password, &c.URL, &c.Notes, &c.Tags, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// CreateTotpSecret inserts a TOTP secret and returns its id.
func (d *DB) CreateTotpSecret(ctx context.Context, s TotpSecret) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Issuer == "" {
		return "", fmt.Errorf("totp issuer is required")
	}
	if s.Algorithm == "" {
		s.Algorithm = "SHA1"
	}
	if s.Digits == 0 {
		s.Digits = 6
	}
	if s.Period == 0 {
		s.Period = 30
	}
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO totp_secrets (id, user_id, folder_id, issuer, account_name, secret_key, algorithm, digits, period, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.FolderID, s.Issuer, s.AccountName, s.SecretKey, s.Algorithm, s.Digits, s.Period,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("inserting totp secret: %w", err)
	}
	return s.ID, nil
}

// FindTotpSecret looks up a TOTP secret by issuer + account name. Returns nil
// when no match exists.
func (d *DB) FindTotpSecret(ctx context.Context, userID, issuer, accountName string) (*TotpSecret, error) {
	var s TotpSecret
	var createdAt string
	err := d.conn.QueryRowContext(ctx,
		`SELECT id, user_id, folder_id, issuer, account_name, secret_key, algorithm, digits, period, created_at
		 FROM totp_secrets WHERE user_id = ? AND issuer = ? AND account_name = ?`,
		userID, issuer, accountName,
	).Scan(&s.ID, &s.UserID, &s.FolderID, &s.Issuer, &s.AccountName, &s.SecretKey, &s.Algorithm, &s.Digits, &s.Period, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &s, nil
}

// CountRecords returns total credential and TOTP counts for a user.
func (d *DB) CountRecords(ctx context.Context, userID string) (credentials, totpSecrets int, err error) {
	if err = d.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM credentials WHERE user_id = ?", userID).Scan(&credentials); err != nil {
		return 0, 0, err
	}
	if err = d.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM totp_secrets WHERE user_id = ?", userID).Scan(&totpSecrets); err != nil {
		return 0, 0, err
	}
	return credentials, totpSecrets, nil
}
