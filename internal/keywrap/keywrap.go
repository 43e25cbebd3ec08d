// Package keywrap re-wraps the vault master key under secondary unlock
// factors, so the vault can be opened without the master password. It never
// derives the master key itself: every operation starts from an unlocked
// session or hands its result to one.
package keywrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/whisperrkeep/wkeep/internal/authenticator"
	"github.com/whisperrkeep/wkeep/internal/crypto"
	"github.com/whisperrkeep/wkeep/internal/keychain"
	"github.com/whisperrkeep/wkeep/internal/logger"
	"github.com/whisperrkeep/wkeep/internal/vault"
)

var (
	ErrCredentialExists = errors.New("a passkey is already registered for this device")
	ErrCeremonyFailed   = errors.New("credential ceremony failed")
)

// DefaultCeremonyTimeout bounds user presence during register/assert.
const DefaultCeremonyTimeout = 60 * time.Second

// PasskeyParams is the params JSON stored on a passkey keychain entry.
// It holds public verification data only, never key material.
type PasskeyParams struct {
	Name       string   `json:"name"`
	PublicKey  string   `json:"publicKey"`
	Counter    int      `json:"counter"`
	Transports []string `json:"transports"`
	Created    string   `json:"created"`
}

// Service wraps and unwraps the master key under passkey credentials.
type Service struct {
	sessions *vault.Manager
	keychain keychain.Store
	ceremony authenticator.Ceremony
	rp       authenticator.RelyingParty
	timeout  time.Duration
	logger   *logger.Logger
}

// New creates the key-wrapping service. timeout <= 0 uses the default
// 60-second user-presence bound.
func New(sessions *vault.Manager, kc keychain.Store, ceremony authenticator.Ceremony, rp authenticator.RelyingParty, timeout time.Duration, log *logger.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultCeremonyTimeout
	}
	return &Service{
		sessions: sessions,
		keychain: kc,
		ceremony: ceremony,
		rp:       rp,
		timeout:  timeout,
		logger:   log,
	}
}

// RegisterPasskey runs the registration ceremony, derives a wrap key from the
// new credential's id plus the user id, encrypts the raw master key under a
// fresh nonce and persists the result as a passkey keychain entry. The vault
// must be Unlocked.
//
// The wrap key is derived from public credential data; its strength rests on
// the AEAD ciphertext being bound to the random nonce generated here. Nothing
// in this path may reuse nonces or weaken the derivation.
func (s *Service) RegisterPasskey(ctx context.Context, name string) (*keychain.Entry, error) {
	userID, ok := s.sessions.UserID()
	if !ok {
		return nil, vault.ErrLocked
	}
	master := s.sessions.MasterKey()
	if master == nil {
		return nil, vault.ErrLocked
	}
	defer crypto.Zero(master)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cred, err := s.ceremony.Register(ctx, s.rp, userID, userID)
	if err != nil {
		if errors.Is(err, authenticator.ErrAlreadyRegistered) {
			return nil, ErrCredentialExists
		}
		if errors.Is(err, authenticator.ErrTimeout) || errors.Is(err, authenticator.ErrUserCancelled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCeremonyFailed, err)
	}

	wrapKey := crypto.DeriveWrapKey(cred.ID, userID)
	wrapped, err := crypto.EncryptToBase64(wrapKey, master)
	crypto.Zero(wrapKey)
	if err != nil {
		return nil, fmt.Errorf("wrapping master key: %w", err)
	}

	params, err := json.Marshal(PasskeyParams{
		Name:       name,
		PublicKey:  cred.PublicKey,
		Counter:    0,
		Transports: cred.Transports,
		Created:    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding passkey params: %w", err)
	}

	entry := keychain.Entry{
		UserID:       userID,
		Type:         keychain.TypePasskey,
		CredentialID: cred.ID,
		WrappedKey:   wrapped,
		Salt:         "",
		Params:       string(params),
		IsBackup:     false,
	}
	id, err := s.keychain.Create(entry)
	if err != nil {
		return nil, fmt.Errorf("persisting passkey entry: %w", err)
	}
	entry.ID = id

	if err := s.keychain.MarkSyncStatus(userID); err != nil {
		s.logger.Warn("failed to mark passkey sync status", "user_id", userID, "error", err.Error())
	}

	s.logger.Info("passkey registered", "user_id", userID, "credential_id", cred.ID)
	return &entry, nil
}

// UnlockWithPasskey runs the assertion ceremony against the user's passkey
// entries, unwraps the master key from the matching entry and feeds it into
// the session machine exactly as the password path would.
//
// Returns (false, nil) when no entry matches or the wrapped key fails to
// decrypt (rotated credential, corrupted entry). That is an unlock failure, not a
// crash. Ceremony timeouts and cancellations are returned by name.
func (s *Service) UnlockWithPasskey(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, vault.ErrInvalidUser
	}

	entries, err := s.keychain.ListByUser(userID)
	if err != nil {
		return false, fmt.Errorf("listing keychain entries: %w", err)
	}
	var allowed []string
	for _, e := range entries {
		if e.Type == keychain.TypePasskey {
			allowed = append(allowed, e.CredentialID)
		}
	}
	if len(allowed) == 0 {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	assertion, err := s.ceremony.Assert(ctx, s.rp, allowed)
	if err != nil {
		if errors.Is(err, authenticator.ErrTimeout) || errors.Is(err, authenticator.ErrUserCancelled) {
			return false, err
		}
		if errors.Is(err, authenticator.ErrNoCredential) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrCeremonyFailed, err)
	}

	entry, err := s.keychain.GetByCredentialID(userID, assertion.CredentialID)
	if err != nil {
		return false, fmt.Errorf("fetching passkey entry: %w", err)
	}
	if entry == nil {
		return false, nil
	}

	wrapKey := crypto.DeriveWrapKey(assertion.CredentialID, userID)
	master, err := crypto.DecryptFromBase64(wrapKey, entry.WrappedKey)
	crypto.Zero(wrapKey)
	if err != nil {
		s.logger.Debug("passkey unwrap failed", "user_id", userID, "credential_id", assertion.CredentialID)
		return false, nil
	}

	// UnlockWithKey zeroes the buffer.
	return s.sessions.UnlockWithKey(userID, master), nil
}

// PasskeyInfo is a passkey entry with decoded params. Wrapped-key material
// is omitted.
type PasskeyInfo struct {
	EntryID      string `json:"entryId"`
	CredentialID string `json:"credentialId"`
	PasskeyParams
}

// ListPasskeys returns the user's passkey entries.
func (s *Service) ListPasskeys(userID string) ([]PasskeyInfo, error) {
	entries, err := s.keychain.ListByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("listing keychain entries: %w", err)
	}
	var out []PasskeyInfo
	for _, e := range entries {
		if e.Type != keychain.TypePasskey {
			continue
		}
		info := PasskeyInfo{EntryID: e.ID, CredentialID: e.CredentialID}
		if e.Params != "" {
			_ = json.Unmarshal([]byte(e.Params), &info.PasskeyParams)
		}
		out = append(out, info)
	}
	return out, nil
}
