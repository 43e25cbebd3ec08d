// Package api exposes the vault over a loopback HTTP API. The CLI is its
// only intended client.
package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/whisperrkeep/wkeep/internal/account"
	"github.com/whisperrkeep/wkeep/internal/importer"
	"github.com/whisperrkeep/wkeep/internal/keywrap"
	"github.com/whisperrkeep/wkeep/internal/logger"
	"github.com/whisperrkeep/wkeep/internal/store"
	"github.com/whisperrkeep/wkeep/internal/vault"
)

// rateLimiter tracks attempts within a sliding time window.
type rateLimiter struct {
	mu       sync.Mutex
	attempts []time.Time
	max      int
	window   time.Duration
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{max: max, window: window}
}

// allow returns true if the request is within the rate limit.
func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	valid := rl.attempts[:0]
	for _, t := range rl.attempts {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	rl.attempts = valid

	if len(rl.attempts) >= rl.max {
		return false
	}
	rl.attempts = append(rl.attempts, now)
	return true
}

// Server is the HTTP API server for the vault.
type Server struct {
	sessions *vault.Manager
	keywrap  *keywrap.Service
	importer *importer.Pipeline
	accounts *account.Service
	db       *store.DB
	logger   *logger.Logger

	mux         *http.ServeMux
	handler     http.Handler
	server      *http.Server
	unlockLimit *rateLimiter

	// importBusy is the single-flight guard: one import at a time.
	importBusy sync.Mutex
	importing  bool

	// lockMu guards the post-auto-lock redirect state served by /vault/status.
	lockMu     sync.Mutex
	lockReason string
}

// New wires the API server. It registers itself as the session machine's
// auto-lock handler so clients polling /vault/status learn they were logged
// out by the idle watcher.
func New(sessions *vault.Manager, kw *keywrap.Service, imp *importer.Pipeline, accounts *account.Service, db *store.DB, log *logger.Logger, addr string) *Server {
	s := &Server{
		sessions:    sessions,
		keywrap:     kw,
		importer:    imp,
		accounts:    accounts,
		db:          db,
		logger:      log,
		unlockLimit: newRateLimiter(5, time.Minute),
	}
	sessions.SetAutoLockHandler(func() {
		s.lockMu.Lock()
		s.lockReason = "idle_timeout"
		s.lockMu.Unlock()
	})
	s.mux = http.NewServeMux()
	s.registerRoutes()
	s.handler = securityHeadersMiddleware(bodySizeMiddleware(s.mux))
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.handler,
	}
	return s
}

func (s *Server) registerRoutes() {
	// Public endpoints (no auth required)
	s.mux.HandleFunc("POST /auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /vault/status", s.handleStatus)
	s.mux.HandleFunc("POST /vault/unlock", s.handleUnlock)
	s.mux.HandleFunc("POST /vault/unlock/passkey", s.handleUnlockPasskey)

	// Protected endpoints
	protected := http.NewServeMux()
	protected.HandleFunc("POST /vault/lock", s.handleLock)
	protected.HandleFunc("POST /vault/activity", s.handleActivity)
	protected.HandleFunc("POST /vault/import", s.handleImport)
	protected.HandleFunc("GET /vault/passkeys", s.handleListPasskeys)
	protected.HandleFunc("POST /vault/passkeys", s.handleRegisterPasskey)
	protected.HandleFunc("GET /vault/records/summary", s.handleRecordSummary)
	protected.HandleFunc("GET /vault/audit", s.handleAuditLog)

	s.mux.Handle("/", s.authMiddleware(protected))
}

// Start begins listening. Returns immediately; use the returned listener to
// get the actual port.
func (s *Server) Start() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return nil, err
	}
	go s.server.Serve(ln)
	return ln, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the middleware chain for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}
