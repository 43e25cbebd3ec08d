package vault

import (
	"bytes"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/whisperrkeep/wkeep/internal/crypto"
	"github.com/whisperrkeep/wkeep/internal/keychain"
	"github.com/whisperrkeep/wkeep/internal/testutil"
)

// fakeKeychain is an in-memory keychain.Store that counts calls, so tests
// can assert that validation failures never touch the keychain.
type fakeKeychain struct {
	mu      sync.Mutex
	entries []keychain.Entry
	calls   int
	nextID  int
}

func (f *fakeKeychain) Create(e keychain.Entry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.nextID++
	e.ID = string(rune('a' + f.nextID))
	f.entries = append(f.entries, e)
	return e.ID, nil
}

func (f *fakeKeychain) ListByUser(userID string) ([]keychain.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	var out []keychain.Entry
	for _, e := range f.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeKeychain) GetByCredentialID(userID, credentialID string) (*keychain.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.entries {
		if f.entries[i].UserID == userID && f.entries[i].CredentialID == credentialID {
			e := f.entries[i]
			return &e, nil
		}
	}
	return nil, nil
}

func (f *fakeKeychain) MarkSyncStatus(string) error { return nil }

// testKDF keeps Argon2id cheap so tests stay fast.
var testKDF = crypto.KDFParams{Time: 1, MemoryKiB: 8, Threads: 1}

func newTestManager(kc keychain.Store, idle, poll time.Duration) *Manager {
	return NewManager(kc, nil, testutil.MakeNoopLogger(), Config{
		IdleTimeout:  idle,
		PollInterval: poll,
		KDF:          testKDF,
	})
}

func TestUnlock_NewVaultThenReopen(t *testing.T) {
	kc := &fakeKeychain{}
	m := newTestManager(kc, time.Minute, time.Second)

	ok, err := m.Unlock("correct horse", "user-1", true)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected new vault unlock to succeed")
	}
	if !m.IsUnlocked() {
		t.Fatal("expected Unlocked state")
	}

	key1 := m.MasterKey()
	if len(key1) != 32 {
		t.Fatalf("expected 32-byte master key, got %d", len(key1))
	}

	// Encrypt under the key, relock, reopen with the password, decrypt.
	ciphertext, err := crypto.EncryptToBase64(key1, []byte("round trip"))
	if err != nil {
		t.Fatal(err)
	}

	m.LockNow()
	if m.MasterKey() != nil {
		t.Fatal("expected nil master key after lock")
	}

	ok, err = m.Unlock("correct horse", "user-1", false)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected unlock of existing vault to succeed")
	}
	key2 := m.MasterKey()
	if !bytes.Equal(key1, key2) {
		t.Fatal("master key changed across lock/unlock")
	}
	plaintext, err := crypto.DecryptFromBase64(key2, ciphertext)
	if err != nil {
		t.Fatal(err)
	}
	if string(plaintext) != "round trip" {
		t.Fatalf("unexpected plaintext %q", plaintext)
	}

	m.LockNow()
}

func TestUnlock_ShortPasswordRejectedBeforeAnyWork(t *testing.T) {
	kc := &fakeKeychain{}
	m := newTestManager(kc, time.Minute, time.Second)

	ok, err := m.Unlock("seven77", "user-1", false)
	if err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if ok {
		t.Fatal("expected failure")
	}
	if kc.calls != 0 {
		t.Fatal("validation failure must not reach the keychain or KDF")
	}
}

func TestUnlock_MissingUser(t *testing.T) {
	m := newTestManager(&fakeKeychain{}, time.Minute, time.Second)
	if _, err := m.Unlock("long enough", "", false); err != ErrInvalidUser {
		t.Fatalf("expected ErrInvalidUser, got %v", err)
	}
}

func TestUnlock_WrongPassword(t *testing.T) {
	kc := &fakeKeychain{}
	m := newTestManager(kc, time.Minute, time.Second)

	if _, err := m.Unlock("right password", "user-1", true); err != nil {
		t.Fatal(err)
	}
	m.LockNow()

	ok, err := m.Unlock("wrong password", "user-1", false)
	if err != nil {
		t.Fatalf("wrong password must not raise, got %v", err)
	}
	if ok {
		t.Fatal("expected unlock failure")
	}
	if m.IsUnlocked() {
		t.Fatal("expected Locked state after failed unlock")
	}
}

func TestUnlock_UnknownUserIndistinguishableFromWrongPassword(t *testing.T) {
	m := newTestManager(&fakeKeychain{}, time.Minute, time.Second)

	ok, err := m.Unlock("any password", "nobody", false)
	if err != nil {
		t.Fatalf("missing entry must not raise, got %v", err)
	}
	if ok {
		t.Fatal("expected unlock failure")
	}
}

func TestUnlock_TamperedEntry(t *testing.T) {
	kc := &fakeKeychain{}
	m := newTestManager(kc, time.Minute, time.Second)

	if _, err := m.Unlock("right password", "user-1", true); err != nil {
		t.Fatal(err)
	}
	m.LockNow()

	// Corrupt the wrapped key in place
	kc.mu.Lock()
	raw, _ := base64.StdEncoding.DecodeString(kc.entries[0].WrappedKey)
	raw[len(raw)-1] ^= 0xff
	kc.entries[0].WrappedKey = base64.StdEncoding.EncodeToString(raw)
	kc.mu.Unlock()

	ok, err := m.Unlock("right password", "user-1", false)
	if err != nil {
		t.Fatalf("tampered entry must not raise, got %v", err)
	}
	if ok {
		t.Fatal("expected unlock failure for tampered entry")
	}
}

func TestUnlock_NewVaultTwiceRejected(t *testing.T) {
	m := newTestManager(&fakeKeychain{}, time.Minute, time.Second)

	if _, err := m.Unlock("first password", "user-1", true); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Unlock("second password", "user-1", true); err != ErrVaultExists {
		t.Fatalf("expected ErrVaultExists, got %v", err)
	}
	m.LockNow()
}

func TestUnlock_ReentrantReplacesKey(t *testing.T) {
	kc := &fakeKeychain{}
	m := newTestManager(kc, time.Minute, time.Second)

	if _, err := m.Unlock("password one", "alice", true); err != nil {
		t.Fatal(err)
	}
	aliceKey := m.MasterKey()

	// Unlock for a different user while still Unlocked: the session must be
	// replaced wholesale, never blended.
	if _, err := m.Unlock("password two", "bob", true); err != nil {
		t.Fatal(err)
	}
	bobKey := m.MasterKey()

	if bytes.Equal(aliceKey, bobKey) {
		t.Fatal("two vaults must not share a master key")
	}
	if uid, _ := m.UserID(); uid != "bob" {
		t.Fatalf("expected session owner bob, got %s", uid)
	}

	// Alice's vault still opens with her password and her original key.
	if ok, err := m.Unlock("password one", "alice", false); err != nil || !ok {
		t.Fatalf("alice re-unlock failed: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(m.MasterKey(), aliceKey) {
		t.Fatal("alice's key changed after bob's session")
	}
	m.LockNow()
}

func TestLockNow_Idempotent(t *testing.T) {
	m := newTestManager(&fakeKeychain{}, time.Minute, time.Second)

	m.LockNow()
	m.LockNow()

	if _, err := m.Unlock("some password", "user-1", true); err != nil {
		t.Fatal(err)
	}
	m.LockNow()
	m.LockNow()
	if m.IsUnlocked() {
		t.Fatal("expected Locked state")
	}
	if m.MasterKey() != nil {
		t.Fatal("expected nil master key")
	}
	if m.SessionToken() != "" {
		t.Fatal("expected empty session token after lock")
	}
}

func TestUpdateActivity_NoopWhenLocked(t *testing.T) {
	m := newTestManager(&fakeKeychain{}, time.Minute, time.Second)
	m.UpdateActivity() // must not panic or create a session
	if m.IsUnlocked() {
		t.Fatal("activity must not unlock the vault")
	}
}

func TestUnlockWithKey(t *testing.T) {
	m := newTestManager(&fakeKeychain{}, time.Minute, time.Second)

	key, _ := crypto.GenerateMasterKey()
	want := make([]byte, len(key))
	copy(want, key)

	if !m.UnlockWithKey("user-1", key) {
		t.Fatal("expected unlock with key to succeed")
	}
	if !bytes.Equal(m.MasterKey(), want) {
		t.Fatal("session key mismatch")
	}
	// Caller's buffer is zeroed during adoption
	for _, b := range key {
		if b != 0 {
			t.Fatal("caller buffer not zeroed")
		}
	}
	m.LockNow()

	if m.UnlockWithKey("user-1", []byte("short")) {
		t.Fatal("expected rejection of wrong-length key")
	}
}

func TestIdleWatcher_LocksAfterTimeout(t *testing.T) {
	m := newTestManager(&fakeKeychain{}, 50*time.Millisecond, 10*time.Millisecond)

	autoLocked := make(chan struct{})
	m.SetAutoLockHandler(func() { close(autoLocked) })

	if _, err := m.Unlock("some password", "user-1", true); err != nil {
		t.Fatal(err)
	}

	select {
	case <-autoLocked:
	case <-time.After(2 * time.Second):
		t.Fatal("idle watcher did not lock within deadline")
	}
	if m.IsUnlocked() {
		t.Fatal("expected Locked state after idle timeout")
	}
	if m.MasterKey() != nil {
		t.Fatal("expected nil master key after idle lock")
	}
}

func TestIdleWatcher_ActivityDefersLock(t *testing.T) {
	m := newTestManager(&fakeKeychain{}, 80*time.Millisecond, 10*time.Millisecond)

	if _, err := m.Unlock("some password", "user-1", true); err != nil {
		t.Fatal(err)
	}

	// Keep touching for ~4 timeout periods; the session must survive.
	deadline := time.Now().Add(320 * time.Millisecond)
	for time.Now().Before(deadline) {
		m.UpdateActivity()
		time.Sleep(20 * time.Millisecond)
	}
	if !m.IsUnlocked() {
		t.Fatal("activity should have deferred the idle lock")
	}

	// Stop touching; the watcher locks within one poll of the deadline.
	time.Sleep(300 * time.Millisecond)
	if m.IsUnlocked() {
		t.Fatal("expected idle lock after activity stopped")
	}
}

func TestStatus(t *testing.T) {
	m := newTestManager(&fakeKeychain{}, time.Minute, time.Second)

	st := m.Status()
	if st.Unlocked {
		t.Fatal("expected locked status")
	}

	if _, err := m.Unlock("some password", "user-1", true); err != nil {
		t.Fatal(err)
	}
	st = m.Status()
	if !st.Unlocked || st.UserID != "user-1" {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.UnlockedAt.IsZero() || st.LastActivityAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
	m.LockNow()
}

func TestValidateToken(t *testing.T) {
	m := newTestManager(&fakeKeychain{}, time.Minute, time.Second)

	if m.ValidateToken("anything") {
		t.Fatal("locked vault must reject every token")
	}

	if _, err := m.Unlock("some password", "user-1", true); err != nil {
		t.Fatal(err)
	}
	token := m.SessionToken()
	if token == "" {
		t.Fatal("expected session token")
	}
	if !m.ValidateToken(token) {
		t.Fatal("expected current token to validate")
	}
	if m.ValidateToken("bogus") {
		t.Fatal("expected bogus token to fail")
	}

	m.LockNow()
	if m.ValidateToken(token) {
		t.Fatal("expected token rejection after lock")
	}
}
