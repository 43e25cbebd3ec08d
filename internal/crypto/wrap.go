package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveWrapKey derives an AEAD wrap key from a credential's stable
// identifier plus the user identifier via a one-way hash.
//
// The inputs are public credential-response data, not a secret: the wrap
// key's secrecy rests entirely on the AEAD ciphertext being bound to a fresh
// random nonce at wrap time. Do not reuse nonces and do not derive this key
// from anything weaker.
func DeriveWrapKey(credentialID, userID string) []byte {
	sum := sha256.Sum256([]byte(credentialID + userID))
	return sum[:]
}

// DeriveSubkey derives a 256-bit subkey from the master key for a record
// domain ("credential", "totp"). Uses HKDF-SHA256 with the domain as info so
// the same master key yields independent keys per record type, regardless of
// which unlock path produced it.
func DeriveSubkey(masterKey []byte, domain string) ([]byte, error) {
	r := hkdf.New(sha256.New, masterKey, nil, []byte(domain))
	subkey := make([]byte, KeyLen)
	if _, err := io.ReadFull(r, subkey); err != nil {
		return nil, fmt.Errorf("deriving subkey for %s: %w", domain, err)
	}
	return subkey, nil
}
