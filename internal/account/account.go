// Package account handles user registration and login. Account passwords are
// separate from the vault master password: they gate API access, never vault
// contents, and are stored only as Argon2id digests.
package account

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/whisperrkeep/wkeep/internal/crypto"
	"github.com/whisperrkeep/wkeep/internal/logger"
	"github.com/whisperrkeep/wkeep/internal/store"
)

var (
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("account password must be at least 8 characters")
)

const minAccountPasswordLen = 8

// AuthSession is the result of a successful login.
type AuthSession struct {
	AccountID string    `json:"accountId"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service manages user accounts backed by the records database.
type Service struct {
	db        *store.DB
	jwtSecret []byte
	tokenTTL  time.Duration
	kdf       crypto.KDFParams
	logger    *logger.Logger
}

func New(db *store.DB, jwtSecret string, tokenTTL time.Duration, kdf crypto.KDFParams, log *logger.Logger) *Service {
	if tokenTTL == 0 {
		tokenTTL = time.Hour
	}
	return &Service{
		db:        db,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		kdf:       kdf,
		logger:    log,
	}
}

// Register creates an account and returns its id.
func (s *Service) Register(ctx context.Context, email, password, name string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return "", fmt.Errorf("invalid email address")
	}
	if len(password) < minAccountPasswordLen {
		return "", ErrWeakPassword
	}

	existing, err := s.db.GetUserByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("checking email: %w", err)
	}
	if existing != nil {
		return "", ErrEmailTaken
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	hash := crypto.DeriveKEK([]byte(password), salt, s.kdf)
	defer crypto.Zero(hash)

	params, err := json.Marshal(s.kdf)
	if err != nil {
		return "", fmt.Errorf("encoding kdf params: %w", err)
	}

	user := store.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: base64.StdEncoding.EncodeToString(hash),
		Salt:         base64.StdEncoding.EncodeToString(salt),
		KDFParams:    string(params),
	}
	if err := s.db.CreateUser(ctx, user); err != nil {
		return "", fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("account registered", "account_id", user.ID)
	return user.ID, nil
}

// Login verifies the account password and issues a signed session token.
// Wrong password and unknown email both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*AuthSession, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.db.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("fetching user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	salt, err := base64.StdEncoding.DecodeString(user.Salt)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	stored, err := base64.StdEncoding.DecodeString(user.PasswordHash)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	var params crypto.KDFParams
	if user.KDFParams != "" {
		if err := json.Unmarshal([]byte(user.KDFParams), &params); err != nil {
			return nil, ErrInvalidCredentials
		}
	}
	computed := crypto.DeriveKEK([]byte(password), salt, params)
	defer crypto.Zero(computed)
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return nil, ErrInvalidCredentials
	}

	expires := time.Now().Add(s.tokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   user.ID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	s.logger.Info("account logged in", "account_id", user.ID)
	return &AuthSession{
		AccountID: user.ID,
		Email:     user.Email,
		Token:     token,
		ExpiresAt: expires,
	}, nil
}

// GetCurrentUser resolves a session token to its account. An invalid or
// expired token returns (nil, nil), not an error.
func (s *Service) GetCurrentUser(ctx context.Context, token string) (*store.User, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, nil
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return nil, nil
	}
	return s.db.GetUserByID(ctx, claims.Subject)
}
