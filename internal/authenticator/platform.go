package authenticator

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/zalando/go-keyring"
)

// Platform is a Ceremony backed by the operating system keychain. Each
// registered credential is an Ed25519 key pair whose seed lives in the OS
// keyring under the relying-party service name, so it is protected by the
// user's OS login, which is the closest a headless client gets to a platform
// authenticator.
type Platform struct{}

// NewPlatform returns the OS-keyring-backed ceremony implementation.
func NewPlatform() *Platform {
	return &Platform{}
}

// ceremonyErr maps a finished context onto the ceremony failure classes.
func ceremonyErr(ctx context.Context) error {
	switch ctx.Err() {
	case context.Canceled:
		return ErrUserCancelled
	case context.DeadlineExceeded:
		return ErrTimeout
	}
	return nil
}

// Register creates a new credential for the user. Registering a second
// credential for a user on the same device returns ErrAlreadyRegistered.
func (p *Platform) Register(ctx context.Context, rp RelyingParty, userID, userName string) (*Credential, error) {
	if err := ceremonyErr(ctx); err != nil {
		return nil, err
	}

	type result struct {
		cred *Credential
		err  error
	}
	done := make(chan result, 1)
	go func() {
		cred, err := p.register(rp, userID)
		done <- result{cred, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ceremonyErr(ctx)
	case r := <-done:
		return r.cred, r.err
	}
}

func (p *Platform) register(rp RelyingParty, userID string) (*Credential, error) {
	userKey := "user:" + userID
	if _, err := keyring.Get(rp.Name, userKey); err == nil {
		return nil, ErrAlreadyRegistered
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating credential key: %w", err)
	}

	credentialID := base64.RawURLEncoding.EncodeToString([]byte(uuid.NewString()))

	if err := keyring.Set(rp.Name, "cred:"+credentialID, hex.EncodeToString(priv.Seed())); err != nil {
		return nil, fmt.Errorf("storing credential seed: %w", err)
	}
	if err := keyring.Set(rp.Name, userKey, credentialID); err != nil {
		return nil, fmt.Errorf("indexing credential: %w", err)
	}

	return &Credential{
		ID:             credentialID,
		PublicKey:      base64.StdEncoding.EncodeToString(pub),
		Transports:     []string{"internal"},
		AttestationFmt: "none",
	}, nil
}

// Assert proves possession of one of the allowed credentials by signing a
// fresh challenge with its stored seed.
func (p *Platform) Assert(ctx context.Context, rp RelyingParty, allowedCredentialIDs []string) (*Assertion, error) {
	if err := ceremonyErr(ctx); err != nil {
		return nil, err
	}

	type result struct {
		assertion *Assertion
		err       error
	}
	done := make(chan result, 1)
	go func() {
		a, err := p.assert(rp, allowedCredentialIDs)
		done <- result{a, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ceremonyErr(ctx)
	case r := <-done:
		return r.assertion, r.err
	}
}

func (p *Platform) assert(rp RelyingParty, allowed []string) (*Assertion, error) {
	for _, credentialID := range allowed {
		seedHex, err := keyring.Get(rp.Name, "cred:"+credentialID)
		if err != nil {
			continue
		}
		seed, err := hex.DecodeString(seedHex)
		if err != nil || len(seed) != ed25519.SeedSize {
			continue
		}

		challenge := make([]byte, 32)
		if _, err := rand.Read(challenge); err != nil {
			return nil, fmt.Errorf("generating challenge: %w", err)
		}
		priv := ed25519.NewKeyFromSeed(seed)
		return &Assertion{
			CredentialID: credentialID,
			Challenge:    challenge,
			Signature:    ed25519.Sign(priv, challenge),
		}, nil
	}
	return nil, ErrNoCredential
}
