package authenticator

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

var testRP = RelyingParty{Name: "wkeep-test", ID: "localhost"}

func initMockKeyring(t *testing.T) {
	t.Helper()
	keyring.MockInit()
}

func TestPlatform_RegisterAndAssert(t *testing.T) {
	initMockKeyring(t)
	p := NewPlatform()
	ctx := context.Background()

	cred, err := p.Register(ctx, testRP, "user-1", "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, cred.ID)
	assert.NotEmpty(t, cred.PublicKey)
	assert.Equal(t, []string{"internal"}, cred.Transports)

	assertion, err := p.Assert(ctx, testRP, []string{cred.ID})
	require.NoError(t, err)
	assert.Equal(t, cred.ID, assertion.CredentialID)

	// The signature verifies under the registered public key.
	pub, err := base64.StdEncoding.DecodeString(cred.PublicKey)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pub), assertion.Challenge, assertion.Signature))
}

func TestPlatform_DuplicateRegistration(t *testing.T) {
	initMockKeyring(t)
	p := NewPlatform()
	ctx := context.Background()

	_, err := p.Register(ctx, testRP, "user-1", "user-1")
	require.NoError(t, err)

	_, err = p.Register(ctx, testRP, "user-1", "user-1")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestPlatform_AssertUnknownCredential(t *testing.T) {
	initMockKeyring(t)
	p := NewPlatform()

	_, err := p.Assert(context.Background(), testRP, []string{"no-such-credential"})
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestPlatform_CeremonyTimeout(t *testing.T) {
	initMockKeyring(t)
	p := NewPlatform()

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := p.Register(ctx, testRP, "user-1", "user-1")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPlatform_CeremonyCancelled(t *testing.T) {
	initMockKeyring(t)
	p := NewPlatform()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Assert(ctx, testRP, nil)
	assert.ErrorIs(t, err, ErrUserCancelled)
}
