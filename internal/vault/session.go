package vault

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"sync"
	"time"
)

// Session holds the unwrapped master key in memory for the duration of one
// unlocked period. It exists if and only if the vault is Unlocked; the key
// never leaves this process and is zeroed on Destroy.
type Session struct {
	mu           sync.Mutex
	userID       string
	token        string
	masterKey    []byte
	unlockedAt   time.Time
	lastActivity time.Time
}

// NewSession creates a session holding a copy of the master key.
func NewSession(userID string, masterKey []byte) (*Session, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, err
	}

	now := time.Now()
	s := &Session{
		userID:       userID,
		token:        hex.EncodeToString(tokenBytes),
		unlockedAt:   now,
		lastActivity: now,
	}
	// Copy the key so the caller can zero its own buffer
	s.masterKey = make([]byte, len(masterKey))
	copy(s.masterKey, masterKey)
	lockMemory(s.masterKey)
	disableCoreDumps()

	return s, nil
}

// UserID returns the owning user.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Token returns the session token string used to authenticate API calls.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// MasterKey returns a copy of the master key, or nil if the session was
// destroyed. Callers must never persist or transmit the raw bytes and should
// zero their copy when done.
func (s *Session) MasterKey() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.masterKey == nil {
		return nil
	}
	cp := make([]byte, len(s.masterKey))
	copy(cp, s.masterKey)
	return cp
}

// ValidateToken checks a token using constant-time comparison.
func (s *Session) ValidateToken(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.token), []byte(token)) == 1
}

// Touch refreshes the last-activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// UnlockedAt returns when this session was created.
func (s *Session) UnlockedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlockedAt
}

// LastActivity returns the last observed user activity.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Destroy zeroes the master key and invalidates the session.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlockMemory(s.masterKey)
	for i := range s.masterKey {
		s.masterKey[i] = 0
	}
	s.masterKey = nil
	s.token = ""
}
