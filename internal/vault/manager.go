package vault

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/whisperrkeep/wkeep/internal/crypto"
	"github.com/whisperrkeep/wkeep/internal/keychain"
	"github.com/whisperrkeep/wkeep/internal/logger"
	"github.com/whisperrkeep/wkeep/internal/store"
)

var (
	ErrLocked           = errors.New("vault is locked")
	ErrPasswordTooShort = errors.New("master password must be at least 8 characters")
	ErrInvalidUser      = errors.New("user id is required")
	ErrVaultExists      = errors.New("vault already exists for this user")
)

// MinMasterPasswordLen is enforced before any key derivation runs.
const MinMasterPasswordLen = 8

// Auditor records session lifecycle events. Implemented by *store.DB.
type Auditor interface {
	LogEvent(entry store.AuditEntry) error
}

// Config carries session policy parameters.
type Config struct {
	IdleTimeout  time.Duration
	PollInterval time.Duration
	KDF          crypto.KDFParams
}

// Manager is the vault session state machine: Locked → Unlocking → Unlocked →
// Locked. It owns the single process-wide Session and is the only component
// allowed to hold the unwrapped master key between operations.
type Manager struct {
	mu         sync.Mutex
	session    *Session
	watchStop  chan struct{}
	keychain   keychain.Store
	audit      Auditor
	logger     *logger.Logger
	kdf        crypto.KDFParams
	idle       time.Duration
	poll       time.Duration
	onAutoLock func()
}

// NewManager creates the session state machine. audit may be nil.
func NewManager(kc keychain.Store, audit Auditor, log *logger.Logger, cfg Config) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Manager{
		keychain: kc,
		audit:    audit,
		logger:   log,
		kdf:      cfg.KDF,
		idle:     cfg.IdleTimeout,
		poll:     cfg.PollInterval,
	}
}

// SetAutoLockHandler registers the navigation/redirect side effect invoked
// when the idle watcher locks a live session. Not invoked by LockNow.
func (m *Manager) SetAutoLockHandler(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAutoLock = fn
}

// Unlock derives a key-encryption key from the password and the per-user
// salt, unwraps the master key from the user's masterpass keychain entry and
// transitions to Unlocked. With isNewVault it instead generates a fresh
// master key and persists a new masterpass entry.
//
// Returns (false, nil) on cryptographic unwrap failure: a wrong password and
// a missing or tampered entry are deliberately indistinguishable. Re-entrant:
// unlocking while already Unlocked re-verifies and replaces the in-memory
// key; the previous key is zeroed first.
func (m *Manager) Unlock(password, userID string, isNewVault bool) (bool, error) {
	if len(password) < MinMasterPasswordLen {
		return false, ErrPasswordTooShort
	}
	if userID == "" {
		return false, ErrInvalidUser
	}

	entries, err := m.keychain.ListByUser(userID)
	if err != nil {
		return false, fmt.Errorf("listing keychain entries: %w", err)
	}
	var mp *keychain.Entry
	for i := range entries {
		if entries[i].Type == keychain.TypeMasterpass {
			mp = &entries[i]
			break
		}
	}

	if isNewVault {
		if mp != nil {
			return false, ErrVaultExists
		}
		return m.createVault(password, userID)
	}

	if mp == nil {
		return false, nil
	}

	salt, err := base64.StdEncoding.DecodeString(mp.Salt)
	if err != nil {
		return false, nil
	}
	var params crypto.KDFParams
	if mp.Params != "" {
		// Entries carry the costs they were created with; a parse failure
		// falls back to defaults inside DeriveKEK.
		_ = json.Unmarshal([]byte(mp.Params), &params)
	}

	kek := crypto.DeriveKEK([]byte(password), salt, params)
	master, err := crypto.DecryptFromBase64(kek, mp.WrappedKey)
	crypto.Zero(kek)
	if err != nil || len(master) != crypto.MasterKeyLen {
		m.logger.Debug("unlock failed", "user_id", userID)
		return false, nil
	}

	if err := m.adopt(userID, master); err != nil {
		return false, err
	}
	m.logEvent(userID, "unlock", "")
	return true, nil
}

func (m *Manager) createVault(password, userID string) (bool, error) {
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return false, fmt.Errorf("generating salt: %w", err)
	}
	master, err := crypto.GenerateMasterKey()
	if err != nil {
		return false, fmt.Errorf("generating master key: %w", err)
	}

	kek := crypto.DeriveKEK([]byte(password), salt, m.kdf)
	wrapped, err := crypto.EncryptToBase64(kek, master)
	crypto.Zero(kek)
	if err != nil {
		crypto.Zero(master)
		return false, fmt.Errorf("wrapping master key: %w", err)
	}

	params, err := json.Marshal(m.kdf)
	if err != nil {
		crypto.Zero(master)
		return false, fmt.Errorf("encoding kdf params: %w", err)
	}

	if _, err := m.keychain.Create(keychain.Entry{
		UserID:     userID,
		Type:       keychain.TypeMasterpass,
		WrappedKey: wrapped,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Params:     string(params),
	}); err != nil {
		crypto.Zero(master)
		return false, fmt.Errorf("persisting masterpass entry: %w", err)
	}

	if err := m.adopt(userID, master); err != nil {
		return false, err
	}
	m.logEvent(userID, "vault_created", "")
	return true, nil
}

// UnlockWithKey transitions to Unlocked using an already-unwrapped master
// key, exactly as the password path would. This is the entry point for the
// passkey unwrap path. The caller's key buffer is zeroed.
func (m *Manager) UnlockWithKey(userID string, master []byte) bool {
	if userID == "" || len(master) != crypto.MasterKeyLen {
		crypto.Zero(master)
		return false
	}
	if err := m.adopt(userID, master); err != nil {
		return false
	}
	m.logEvent(userID, "unlock", "factor=passkey")
	return true
}

// adopt installs a new session holding master, replacing (and zeroing) any
// previous one, and restarts the idle watcher. The caller's buffer is zeroed.
func (m *Manager) adopt(userID string, master []byte) error {
	s, err := NewSession(userID, master)
	crypto.Zero(master)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	m.mu.Lock()
	if m.session != nil {
		m.session.Destroy()
	}
	m.session = s
	m.startWatcherLocked()
	m.mu.Unlock()
	return nil
}

// LockNow transitions to Locked and discards the in-memory master key
// immediately. Idempotent.
func (m *Manager) LockNow() {
	m.mu.Lock()
	userID, locked := m.lockLocked()
	m.mu.Unlock()
	if locked {
		m.logEvent(userID, "lock", "")
	}
}

// lockLocked stops the watcher and destroys the session. Caller holds m.mu.
func (m *Manager) lockLocked() (userID string, wasUnlocked bool) {
	if m.watchStop != nil {
		close(m.watchStop)
		m.watchStop = nil
	}
	if m.session == nil {
		return "", false
	}
	userID = m.session.UserID()
	m.session.Destroy()
	m.session = nil
	return userID, true
}

// UpdateActivity refreshes the last-activity timestamp. No-op when Locked.
func (m *Manager) UpdateActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		m.session.Touch()
	}
}

// IsUnlocked reports whether a live session holds the master key.
func (m *Manager) IsUnlocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// MasterKey returns a copy of the in-memory master key, or nil when Locked.
// Callers must not cache it beyond their own operation's lifetime.
func (m *Manager) MasterKey() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	m.session.Touch()
	return m.session.MasterKey()
}

// UserID returns the unlocked session's owner.
func (m *Manager) UserID() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return "", false
	}
	return m.session.UserID(), true
}

// SessionToken returns the current session token, or empty when Locked.
func (m *Manager) SessionToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ""
	}
	return m.session.Token()
}

// ValidateToken checks an API session token.
func (m *Manager) ValidateToken(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return false
	}
	return m.session.ValidateToken(token)
}

// Status describes the session state for callers. Never includes key bytes.
type Status struct {
	Unlocked       bool          `json:"unlocked"`
	UserID         string        `json:"user_id,omitempty"`
	UnlockedAt     time.Time     `json:"unlocked_at,omitempty"`
	LastActivityAt time.Time     `json:"last_activity_at,omitempty"`
	IdleTimeout    time.Duration `json:"idle_timeout_ms"`
}

// Status returns the current session state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{IdleTimeout: m.idle}
	if m.session != nil {
		st.Unlocked = true
		st.UserID = m.session.UserID()
		st.UnlockedAt = m.session.UnlockedAt()
		st.LastActivityAt = m.session.LastActivity()
	}
	return st
}

// startWatcherLocked stops any previous idle poller and starts a fresh one.
// Every relock goes through here, so two pollers never race. Caller holds
// m.mu.
func (m *Manager) startWatcherLocked() {
	if m.watchStop != nil {
		close(m.watchStop)
	}
	stop := make(chan struct{})
	m.watchStop = stop
	go m.watch(stop)
}

// watch polls at a fixed interval and locks the session once idle time
// exceeds the timeout.
func (m *Manager) watch(stop <-chan struct{}) {
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if m.expireIfIdle() {
				return
			}
		}
	}
}

// expireIfIdle locks the session when the idle deadline passed. Returns true
// when the watcher should exit.
func (m *Manager) expireIfIdle() bool {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return true
	}
	if time.Since(m.session.LastActivity()) <= m.idle {
		m.mu.Unlock()
		return false
	}
	userID, _ := m.lockLocked()
	fn := m.onAutoLock
	m.mu.Unlock()

	m.logger.Info("vault locked after idle timeout", "user_id", userID)
	m.logEvent(userID, "auto_lock", "reason=idle_timeout")
	if fn != nil {
		fn()
	}
	return true
}

func (m *Manager) logEvent(userID, action, detail string) {
	if m.audit == nil {
		return
	}
	if err := m.audit.LogEvent(store.AuditEntry{UserID: userID, Action: action, Detail: detail}); err != nil {
		m.logger.Warn("failed to write audit entry", "action", action, "error", err.Error())
	}
}
