package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/argon2"
)

const (
	KeyLen       = 32 // 256-bit
	SaltLen      = 32
	MasterKeyLen = 32
)

// KDFParams are the Argon2id cost parameters used to derive a key-encryption
// key from a master password. They are persisted alongside each masterpass
// keychain entry so that entries created under old defaults keep unwrapping.
type KDFParams struct {
	Time      uint32 `json:"time"`
	MemoryKiB uint32 `json:"memoryKiB"`
	Threads   uint8  `json:"threads"`
}

// DefaultKDFParams returns the current cost defaults: 3 passes over 64 MiB,
// single lane for deterministic timing across machines.
func DefaultKDFParams() KDFParams {
	return KDFParams{Time: 3, MemoryKiB: 64 * 1024, Threads: 1}
}

func (p KDFParams) orDefaults() KDFParams {
	if p.Time == 0 || p.MemoryKiB == 0 || p.Threads == 0 {
		return DefaultKDFParams()
	}
	return p
}

// DeriveKEK derives a 256-bit key-encryption key from a master password and
// a per-user salt using Argon2id.
func DeriveKEK(password, salt []byte, params KDFParams) []byte {
	p := params.orDefaults()
	return argon2.IDKey(password, salt, p.Time, p.MemoryKiB, p.Threads, KeyLen)
}

// GenerateSalt returns 32 bytes of cryptographically secure random data.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// GenerateMasterKey returns a fresh random 256-bit vault master key.
func GenerateMasterKey() ([]byte, error) {
	key := make([]byte, MasterKeyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Zero overwrites a byte slice with zeros. Best-effort key hygiene: callers
// zero every local copy of key material before releasing it.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
