package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

const nonceLen = 12 // 96-bit nonce for GCM

// Encrypt encrypts plaintext with AES-256-GCM under a fresh random 12-byte
// nonce. Returns nonce || ciphertext+tag as a single byte slice. This framing
// is the persisted wire shape of every wrapped key and record secret; it must
// not change, or previously created entries stop decrypting.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	if len(key) != KeyLen {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeyLen, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, nonceLen+len(sealed))
	copy(out, nonce)
	copy(out[nonceLen:], sealed)
	return out, nil
}

// Decrypt decrypts data produced by Encrypt. Expects nonce || ciphertext+tag.
// A tampered or truncated input, or a wrong key, fails the AEAD tag check.
func Decrypt(key, data []byte) ([]byte, error) {
	if len(data) < nonceLen+1 {
		return nil, errors.New("ciphertext too short")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	plaintext, err := aead.Open(nil, data[:nonceLen], data[nonceLen:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

// EncryptToBase64 encrypts plaintext and returns the framed output
// base64-encoded, ready for a KeychainEntry or record column.
func EncryptToBase64(key, plaintext []byte) (string, error) {
	data, err := Encrypt(key, plaintext)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecryptFromBase64 decodes base64 and decrypts.
func DecryptFromBase64(key []byte, encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding base64: %w", err)
	}
	return Decrypt(key, data)
}
