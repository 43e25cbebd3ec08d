package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains client configuration parameters.
type Config struct {
	LogLevel     int           `env:"LOG_LEVEL" envDefault:"0"`
	DataDir      string        `env:"WKEEP_DIR"`
	ListenAddr   string        `env:"WKEEP_ADDR" envDefault:"127.0.0.1:7300"`
	IdleTimeout  time.Duration `env:"WKEEP_IDLE_TIMEOUT" envDefault:"10m"`
	PollInterval time.Duration `env:"WKEEP_POLL_INTERVAL" envDefault:"1s"`
	KDF          KDF           `envPrefix:"WKEEP_KDF_"`
	Session      Session       `envPrefix:"WKEEP_SESSION_"`
	Passkey      Passkey       `envPrefix:"WKEEP_PASSKEY_"`
}

// KDF contains Argon2id parameters for master-key derivation.
type KDF struct {
	Time      uint32 `env:"TIME" envDefault:"3"`
	MemoryKiB uint32 `env:"MEM" envDefault:"65536"`
	Threads   uint8  `env:"PAR" envDefault:"1"`
}

// Session contains account session token parameters.
type Session struct {
	JWTSecret string        `env:"JWT_SECRET" envDefault:"devsecret"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"1h"`
}

// Passkey contains credential-ceremony parameters.
type Passkey struct {
	RPName          string        `env:"RP_NAME" envDefault:"wkeep"`
	RPID            string        `env:"RP_ID" envDefault:"localhost"`
	CeremonyTimeout time.Duration `env:"CEREMONY_TIMEOUT" envDefault:"60s"`
}

// NewConfig loads configuration from environment variables.
func NewConfig() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".wkeep")
	}

	return &cfg, nil
}
