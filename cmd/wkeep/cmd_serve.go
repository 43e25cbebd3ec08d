package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/whisperrkeep/wkeep/internal/account"
	"github.com/whisperrkeep/wkeep/internal/api"
	"github.com/whisperrkeep/wkeep/internal/authenticator"
	"github.com/whisperrkeep/wkeep/internal/config"
	"github.com/whisperrkeep/wkeep/internal/crypto"
	"github.com/whisperrkeep/wkeep/internal/importer"
	"github.com/whisperrkeep/wkeep/internal/keychain"
	"github.com/whisperrkeep/wkeep/internal/keywrap"
	"github.com/whisperrkeep/wkeep/internal/logger"
	"github.com/whisperrkeep/wkeep/internal/store"
	"github.com/whisperrkeep/wkeep/internal/vault"
)

func cmdServe() {
	cfg, err := config.NewConfig()
	if err != nil {
		fatal("loading config: %v", err)
	}
	log := logger.New(cfg.LogLevel)

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		log.Fatal("creating data dir", "error", err.Error())
	}

	kc, err := keychain.Open(filepath.Join(cfg.DataDir, "keychain.db"))
	if err != nil {
		log.Fatal("opening keychain", "error", err.Error())
	}
	defer kc.Close()

	db, err := store.Open(filepath.Join(cfg.DataDir, "records.db"))
	if err != nil {
		log.Fatal("opening records database", "error", err.Error())
	}
	defer db.Close()

	kdf := crypto.KDFParams{
		Time:      cfg.KDF.Time,
		MemoryKiB: cfg.KDF.MemoryKiB,
		Threads:   cfg.KDF.Threads,
	}
	sessions := vault.NewManager(kc, db, log, vault.Config{
		IdleTimeout:  cfg.IdleTimeout,
		PollInterval: cfg.PollInterval,
		KDF:          kdf,
	})
	defer sessions.LockNow()

	rp := authenticator.RelyingParty{Name: cfg.Passkey.RPName, ID: cfg.Passkey.RPID}
	kw := keywrap.New(sessions, kc, authenticator.NewPlatform(), rp, cfg.Passkey.CeremonyTimeout, log)
	imp := importer.NewPipeline(sessions, db, log)
	accounts := account.New(db, cfg.Session.JWTSecret, cfg.Session.TokenTTL, kdf, log)

	srv := api.New(sessions, kw, imp, accounts, db, log, cfg.ListenAddr)
	ln, err := srv.Start()
	if err != nil {
		log.Fatal("starting server", "error", err.Error())
	}
	fmt.Fprintf(os.Stderr, "wkeep server listening on %s\n", ln.Addr())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Fprintln(os.Stderr, "\nShutting down...")
	sessions.LockNow()
	srv.Stop(context.Background())
	removeSessionToken()
}
