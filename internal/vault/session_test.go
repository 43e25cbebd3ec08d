package vault

import (
	"testing"
)

func TestMemProtect_NoPanic(t *testing.T) {
	// Verify lockMemory/unlockMemory/disableCoreDumps don't panic.
	// These are best-effort and may silently fail without CAP_IPC_LOCK,
	// but they must never crash the process.
	b := make([]byte, 32)
	lockMemory(b)
	unlockMemory(b)
	disableCoreDumps()
}

func TestSession_KeyLifecycle(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	s, err := NewSession("user-1", key)
	if err != nil {
		t.Fatal(err)
	}

	got := s.MasterKey()
	if got == nil {
		t.Fatal("expected non-nil master key")
	}
	if string(got) != string(key) {
		t.Fatal("master key mismatch")
	}

	// The session holds its own copy; mutating the caller's buffer must not
	// affect it.
	key[0] ^= 0xff
	if s.MasterKey()[0] == key[0] {
		t.Fatal("session shares the caller's key buffer")
	}

	s.Destroy()

	if s.MasterKey() != nil {
		t.Fatal("expected nil master key after destroy")
	}
	if s.ValidateToken(s.Token()) {
		t.Fatal("expected invalid token after destroy")
	}
}

func TestSession_TouchAdvancesActivity(t *testing.T) {
	s, err := NewSession("user-1", make([]byte, 32))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Destroy()

	before := s.LastActivity()
	s.Touch()
	if s.LastActivity().Before(before) {
		t.Fatal("Touch must not move activity backwards")
	}
	if s.UnlockedAt().After(s.LastActivity()) {
		t.Fatal("unlockedAt must not exceed lastActivity")
	}
}

func TestSession_TokensAreUnique(t *testing.T) {
	s1, err := NewSession("user-1", make([]byte, 32))
	if err != nil {
		t.Fatal(err)
	}
	defer s1.Destroy()
	s2, err := NewSession("user-1", make([]byte, 32))
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Destroy()

	if s1.Token() == s2.Token() {
		t.Fatal("two sessions share a token")
	}
}
