package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// User represents a row in users. PasswordHash holds the base64 Argon2id
// digest of the account password; KDFParams the JSON cost parameters it was
// derived with.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Salt         string
	KDFParams    string
	CreatedAt    time.Time
}

// CreateUser inserts a user row.
func (d *DB) CreateUser(ctx context.Context, u User) error {
	if u.ID == "" || u.Email == "" {
		return fmt.Errorf("user requires id and email")
	}
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, salt, kdf_params, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Salt, u.KDFParams,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetUserByEmail returns the user with the given email, or nil.
func (d *DB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return d.getUser(ctx, "email = ?", email)
}

// GetUserByID returns the user with the given id, or nil.
func (d *DB) GetUserByID(ctx context.Context, id string) (*User, error) {
	return d.getUser(ctx, "id = ?", id)
}

func (d *DB) getUser(ctx context.Context, where string, arg any) (*User, error) {
	var u User
	var createdAt string
	err := d.conn.QueryRowContext(ctx,
		"SELECT id, email, name, password_hash, salt, kdf_params, created_at FROM users WHERE "+where,
		arg,
	).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Salt, &u.KDFParams, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}
