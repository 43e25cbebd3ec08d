package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/whisperrkeep/wkeep/internal/account"
	"github.com/whisperrkeep/wkeep/internal/authenticator"
	"github.com/whisperrkeep/wkeep/internal/crypto"
	"github.com/whisperrkeep/wkeep/internal/importer"
	"github.com/whisperrkeep/wkeep/internal/keychain"
	"github.com/whisperrkeep/wkeep/internal/keywrap"
	"github.com/whisperrkeep/wkeep/internal/store"
	"github.com/whisperrkeep/wkeep/internal/testutil"
	"github.com/whisperrkeep/wkeep/internal/vault"
)

const testPassword = "test-password-123"

type testEnv struct {
	server   *Server
	sessions *vault.Manager
	token    string
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	kc, err := keychain.Open(t.TempDir() + "/keychain.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kc.Close() })

	db, err := store.Open(t.TempDir() + "/records.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	log := testutil.MakeNoopLogger()
	kdf := crypto.KDFParams{Time: 1, MemoryKiB: 8, Threads: 1}
	mgr := vault.NewManager(kc, db, log, vault.Config{IdleTimeout: time.Minute, KDF: kdf})
	t.Cleanup(mgr.LockNow)

	rp := authenticator.RelyingParty{Name: "wkeep-test", ID: "localhost"}
	kw := keywrap.New(mgr, kc, authenticator.NewPlatform(), rp, time.Second, log)
	imp := importer.NewPipeline(mgr, db, log)
	accounts := account.New(db, "test-secret", time.Hour, kdf, log)

	s := New(mgr, kw, imp, accounts, db, log, ":0")

	ok, err := mgr.Unlock(testPassword, "alice", true)
	if err != nil || !ok {
		t.Fatalf("unlock failed: ok=%v err=%v", ok, err)
	}
	return &testEnv{server: s, sessions: mgr, token: mgr.SessionToken()}
}

func (e *testEnv) doRequest(t *testing.T, method, path string, body any, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	w := httptest.NewRecorder()
	e.server.handler.ServeHTTP(w, req)
	return w
}

func TestStatus_Unlocked(t *testing.T) {
	env := setup(t)
	w := env.doRequest(t, "GET", "/vault/status", nil, false)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var status map[string]any
	json.NewDecoder(w.Body).Decode(&status)
	if status["unlocked"] != true {
		t.Fatal("expected unlocked")
	}
	if status["user_id"] != "alice" {
		t.Fatalf("unexpected user_id %v", status["user_id"])
	}
}

func TestLockThenStatus(t *testing.T) {
	env := setup(t)

	w := env.doRequest(t, "POST", "/vault/lock", nil, true)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = env.doRequest(t, "GET", "/vault/status", nil, false)
	var status map[string]any
	json.NewDecoder(w.Body).Decode(&status)
	if status["unlocked"] != false {
		t.Fatal("expected locked after lock")
	}
	// Manual lock must not advertise an auto-lock redirect.
	if _, ok := status["lock_reason"]; ok {
		t.Fatal("unexpected lock_reason after manual lock")
	}
}

func TestAutoLockReasonSurfaced(t *testing.T) {
	env := setup(t)

	// Simulate the idle watcher firing.
	env.sessions.LockNow()
	env.server.lockMu.Lock()
	env.server.lockReason = "idle_timeout"
	env.server.lockMu.Unlock()

	w := env.doRequest(t, "GET", "/vault/status", nil, false)
	var status map[string]any
	json.NewDecoder(w.Body).Decode(&status)
	if status["lock_reason"] != "idle_timeout" {
		t.Fatalf("expected idle_timeout lock reason, got %v", status["lock_reason"])
	}
	if status["redirect"] != "/login" {
		t.Fatalf("expected /login redirect, got %v", status["redirect"])
	}
}

func TestUnlockClearsLockReason(t *testing.T) {
	env := setup(t)
	env.sessions.LockNow()
	env.server.lockMu.Lock()
	env.server.lockReason = "idle_timeout"
	env.server.lockMu.Unlock()

	w := env.doRequest(t, "POST", "/vault/unlock", map[string]any{
		"password": testPassword, "user_id": "alice",
	}, false)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = env.doRequest(t, "GET", "/vault/status", nil, false)
	var status map[string]any
	json.NewDecoder(w.Body).Decode(&status)
	if _, ok := status["lock_reason"]; ok {
		t.Fatal("lock_reason should be cleared after unlock")
	}
}

func TestUnlockWrongPassword(t *testing.T) {
	env := setup(t)
	env.sessions.LockNow()

	w := env.doRequest(t, "POST", "/vault/unlock", map[string]any{
		"password": "wrong-password-99", "user_id": "alice",
	}, false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUnlockRateLimited(t *testing.T) {
	env := setup(t)
	env.sessions.LockNow()

	body := map[string]any{"password": "wrong-password-99", "user_id": "alice"}
	for i := 0; i < 5; i++ {
		env.doRequest(t, "POST", "/vault/unlock", body, false)
	}
	w := env.doRequest(t, "POST", "/vault/unlock", body, false)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
}

func TestProtectedRequiresAuth(t *testing.T) {
	env := setup(t)

	w := env.doRequest(t, "POST", "/vault/lock", nil, false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	req := httptest.NewRequest("POST", "/vault/lock", nil)
	req.Header.Set("Authorization", "Bearer bogus-token")
	rec := httptest.NewRecorder()
	env.server.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bogus token, got %d", rec.Code)
	}
}

func TestImportEndpoint(t *testing.T) {
	env := setup(t)

	export := map[string]any{
		"folders": []map[string]string{{"id": "f1", "name": "Work"}},
		"items": []map[string]any{
			{"type": 1, "name": "GitHub", "folderId": "f1",
				"login": map[string]any{"username": "alice", "password": "pw"}},
		},
	}
	raw, _ := json.Marshal(export)
	w := env.doRequest(t, "POST", "/vault/import", map[string]any{
		"format": "bitwarden", "data": json.RawMessage(raw),
	}, true)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var res importer.Result
	json.NewDecoder(w.Body).Decode(&res)
	if !res.Success || res.Summary.CredentialsCreated != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	w = env.doRequest(t, "GET", "/vault/records/summary", nil, true)
	var summary map[string]int
	json.NewDecoder(w.Body).Decode(&summary)
	if summary["credentials"] != 1 || summary["folders"] != 1 {
		t.Fatalf("unexpected summary: %v", summary)
	}
}

func TestImportSingleFlight(t *testing.T) {
	env := setup(t)

	env.server.importBusy.Lock()
	env.server.importing = true
	env.server.importBusy.Unlock()

	w := env.doRequest(t, "POST", "/vault/import", map[string]any{
		"format": "bitwarden", "data": json.RawMessage(`{"items": []}`),
	}, true)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}

	env.server.importBusy.Lock()
	env.server.importing = false
	env.server.importBusy.Unlock()

	w = env.doRequest(t, "POST", "/vault/import", map[string]any{
		"format": "bitwarden", "data": json.RawMessage(`{"items": []}`),
	}, true)
	if w.Code != 200 {
		t.Fatalf("expected 200 after release, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRegisterAndLogin(t *testing.T) {
	env := setup(t)

	w := env.doRequest(t, "POST", "/auth/register", map[string]string{
		"email": "alice@example.com", "password": "long enough pw", "name": "Alice",
	}, false)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = env.doRequest(t, "POST", "/auth/register", map[string]string{
		"email": "alice@example.com", "password": "long enough pw",
	}, false)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", w.Code)
	}

	w = env.doRequest(t, "POST", "/auth/login", map[string]string{
		"email": "alice@example.com", "password": "long enough pw",
	}, false)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var sess account.AuthSession
	json.NewDecoder(w.Body).Decode(&sess)
	if sess.Token == "" {
		t.Fatal("expected a session token")
	}

	w = env.doRequest(t, "POST", "/auth/login", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	}, false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	env := setup(t)
	w := env.doRequest(t, "GET", "/vault/status", nil, false)

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("missing nosniff header, got %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("missing no-store header, got %q", got)
	}
}

func TestListPasskeysEmpty(t *testing.T) {
	env := setup(t)

	w := env.doRequest(t, "GET", "/vault/passkeys", nil, true)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var infos []keywrap.PasskeyInfo
	json.NewDecoder(w.Body).Decode(&infos)
	if len(infos) != 0 {
		t.Fatalf("expected no passkeys, got %d", len(infos))
	}
}
