package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/whisperrkeep/wkeep/internal/account"
	"github.com/whisperrkeep/wkeep/internal/authenticator"
	"github.com/whisperrkeep/wkeep/internal/importer"
	"github.com/whisperrkeep/wkeep/internal/keywrap"
	"github.com/whisperrkeep/wkeep/internal/vault"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, constraint, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "constraint": constraint})
}

// POST /auth/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON")
		return
	}
	id, err := s.accounts.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrEmailTaken):
			writeError(w, http.StatusConflict, "conflict", err.Error())
		case errors.Is(err, account.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		default:
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"account_id": id})
}

// POST /auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON")
		return
	}
	sess, err := s.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid email or password")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// GET /vault/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.sessions.Status()
	resp := map[string]any{
		"unlocked":        st.Unlocked,
		"idle_timeout_ms": st.IdleTimeout.Milliseconds(),
	}
	if st.Unlocked {
		resp["user_id"] = st.UserID
		resp["unlocked_at"] = st.UnlockedAt
		resp["last_activity_at"] = st.LastActivityAt
	} else {
		s.lockMu.Lock()
		if s.lockReason != "" {
			resp["lock_reason"] = s.lockReason
			resp["redirect"] = "/login"
		}
		s.lockMu.Unlock()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) clearLockReason() {
	s.lockMu.Lock()
	s.lockReason = ""
	s.lockMu.Unlock()
}

// POST /vault/unlock
func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	if !s.unlockLimit.allow() {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many unlock attempts, try again later")
		return
	}

	var req struct {
		Password string `json:"password"`
		UserID   string `json:"user_id"`
		NewVault bool   `json:"new_vault"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON")
		return
	}

	ok, err := s.sessions.Unlock(req.Password, req.UserID, req.NewVault)
	if err != nil {
		switch {
		case errors.Is(err, vault.ErrPasswordTooShort), errors.Is(err, vault.ErrInvalidUser):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, vault.ErrVaultExists):
			writeError(w, http.StatusConflict, "conflict", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
		}
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "wrong password or unknown vault")
		return
	}

	s.clearLockReason()
	writeJSON(w, http.StatusOK, map[string]string{"token": s.sessions.SessionToken()})
}

// POST /vault/unlock/passkey
func (s *Server) handleUnlockPasskey(w http.ResponseWriter, r *http.Request) {
	if !s.unlockLimit.allow() {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many unlock attempts, try again later")
		return
	}

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON")
		return
	}

	ok, err := s.keywrap.UnlockWithPasskey(r.Context(), req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, vault.ErrInvalidUser):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, authenticator.ErrTimeout):
			writeError(w, http.StatusRequestTimeout, "ceremony_timeout", "passkey ceremony timed out")
		case errors.Is(err, authenticator.ErrUserCancelled):
			writeError(w, http.StatusUnauthorized, "cancelled", "passkey ceremony cancelled")
		default:
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
		}
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "no usable passkey for this user")
		return
	}

	s.clearLockReason()
	writeJSON(w, http.StatusOK, map[string]string{"token": s.sessions.SessionToken()})
}

// POST /vault/lock
func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	s.sessions.LockNow()
	s.clearLockReason()
	writeJSON(w, http.StatusOK, map[string]string{"status": "locked"})
}

// POST /vault/activity
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	// authMiddleware already touched the session.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /vault/import
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	s.importBusy.Lock()
	if s.importing {
		s.importBusy.Unlock()
		writeError(w, http.StatusConflict, "import_in_flight", "an import is already running")
		return
	}
	s.importing = true
	s.importBusy.Unlock()
	defer func() {
		s.importBusy.Lock()
		s.importing = false
		s.importBusy.Unlock()
	}()

	var req struct {
		Format string          `json:"format"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON")
		return
	}
	userID, ok := s.sessions.UserID()
	if !ok {
		writeError(w, http.StatusForbidden, "vault_locked", "vault is locked")
		return
	}

	result, err := s.importer.Run(r.Context(), importer.Format(req.Format), req.Data, userID, nil)
	if err != nil {
		switch {
		case errors.Is(err, importer.ErrUnknownFormat):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, vault.ErrLocked):
			writeError(w, http.StatusForbidden, "vault_locked", "vault is locked")
		default:
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GET /vault/passkeys
func (s *Server) handleListPasskeys(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessions.UserID()
	if !ok {
		writeError(w, http.StatusForbidden, "vault_locked", "vault is locked")
		return
	}
	infos, err := s.keywrap.ListPasskeys(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	if infos == nil {
		infos = []keywrap.PasskeyInfo{}
	}
	writeJSON(w, http.StatusOK, infos)
}

// POST /vault/passkeys
func (s *Server) handleRegisterPasskey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON")
		return
	}
	entry, err := s.keywrap.RegisterPasskey(r.Context(), req.Name)
	if err != nil {
		switch {
		case errors.Is(err, vault.ErrLocked):
			writeError(w, http.StatusForbidden, "vault_locked", "vault is locked")
		case errors.Is(err, keywrap.ErrCredentialExists):
			writeError(w, http.StatusConflict, "conflict", err.Error())
		case errors.Is(err, authenticator.ErrTimeout):
			writeError(w, http.StatusRequestTimeout, "ceremony_timeout", "passkey ceremony timed out")
		case errors.Is(err, authenticator.ErrUserCancelled):
			writeError(w, http.StatusUnauthorized, "cancelled", "passkey ceremony cancelled")
		default:
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"entry_id":      entry.ID,
		"credential_id": entry.CredentialID,
	})
}

// GET /vault/records/summary
func (s *Server) handleRecordSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessions.UserID()
	if !ok {
		writeError(w, http.StatusForbidden, "vault_locked", "vault is locked")
		return
	}
	creds, totp, err := s.db.CountRecords(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	folders, err := s.db.ListFolders(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"credentials":  creds,
		"totp_secrets": totp,
		"folders":      len(folders),
	})
}

// GET /vault/audit
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 1000 {
		limit = 1000
	}
	entries, err := s.db.GetAuditLog(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
