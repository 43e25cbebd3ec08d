// Package authenticator is the credential-ceremony collaborator: it produces
// and asserts platform credentials used as alternate vault unlock factors.
package authenticator

import (
	"context"
	"errors"
)

// Ceremony failure classes. Callers branch on these by name; anything else
// is a generic failure carrying the platform's error text.
var (
	ErrAlreadyRegistered = errors.New("credential already registered")
	ErrTimeout           = errors.New("ceremony timed out")
	ErrUserCancelled     = errors.New("user cancelled ceremony")
	ErrNoCredential      = errors.New("no usable credential")
)

// RelyingParty identifies the application to the authenticator.
type RelyingParty struct {
	Name string
	ID   string
}

// Credential is the public result of a registration ceremony.
type Credential struct {
	ID             string   `json:"id"`
	PublicKey      string   `json:"publicKey"` // base64
	Transports     []string `json:"transports"`
	AttestationFmt string   `json:"attestationFmt"`
}

// Assertion is the result of an authentication ceremony.
type Assertion struct {
	CredentialID string
	Challenge    []byte
	Signature    []byte
}

// Ceremony performs registration and assertion against a platform
// authenticator. Both operations may require user presence and suspend until
// the device responds or the context deadline expires.
type Ceremony interface {
	Register(ctx context.Context, rp RelyingParty, userID, userName string) (*Credential, error)
	Assert(ctx context.Context, rp RelyingParty, allowedCredentialIDs []string) (*Assertion, error)
}
