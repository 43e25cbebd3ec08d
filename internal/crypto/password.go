package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// Password generator charsets.
const (
	CharsetAlphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	CharsetStrong       = CharsetAlphanumeric + "!@#$%^&*()-_=+[]{};:,.<>?"
)

const (
	MinPasswordLen = 12
	MaxPasswordLen = 128
)

// GeneratePassword returns a random password of the given length drawn from
// charset. Uses rejection sampling over 32-bit random values to avoid modulo
// bias.
func GeneratePassword(length int, charset string) (string, error) {
	if length < MinPasswordLen {
		return "", fmt.Errorf("password length must be at least %d characters", MinPasswordLen)
	}
	if length > MaxPasswordLen {
		return "", fmt.Errorf("password length cannot exceed %d characters", MaxPasswordLen)
	}
	if charset == "" {
		charset = CharsetStrong
	}

	charCount := uint32(len(charset))
	zone := (1 << 32) / uint64(charCount) * uint64(charCount)

	out := make([]byte, 0, length)
	var buf [4]byte
	for len(out) < length {
		if _, err := rand.Read(buf[:]); err != nil {
			return "", fmt.Errorf("reading random: %w", err)
		}
		n := binary.BigEndian.Uint32(buf[:])
		if uint64(n) < zone {
			out = append(out, charset[n%charCount])
		}
	}
	return string(out), nil
}
