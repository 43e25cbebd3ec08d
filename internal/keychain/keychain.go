// Package keychain persists wrapped-key records: one entry per unlock factor
// per user. Entries are append-only: rotating a factor adds a new entry, it
// never mutates or deletes an old one.
package keychain

import "time"

// Entry types. One masterpass entry encodes the password-derived wrapping;
// zero or more passkey entries encode alternate unlock factors.
const (
	TypeMasterpass = "masterpass"
	TypePasskey    = "passkey"
)

// Entry binds one unlock factor to a wrapped copy of the vault master key.
//
// The JSON field names are the persisted wire shape and must stay byte-stable
// across versions: entries created by older builds must keep decoding.
type Entry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Type         string    `json:"type"`
	CredentialID string    `json:"credentialId"`
	WrappedKey   string    `json:"wrappedKey"` // base64(nonce || ciphertext+tag)
	Salt         string    `json:"salt"`       // base64, empty for passkey entries
	Params       string    `json:"params"`     // JSON metadata (KDF costs, passkey name, transports)
	IsBackup     bool      `json:"isBackup"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store is the persisted set of wrapped-key records. Implementations never
// delete entries on their own; revocation is an explicit caller decision.
type Store interface {
	Create(entry Entry) (string, error)
	ListByUser(userID string) ([]Entry, error)
	GetByCredentialID(userID, credentialID string) (*Entry, error)
	MarkSyncStatus(userID string) error
}
