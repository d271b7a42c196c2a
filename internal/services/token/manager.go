// Package token issues and parses the signed credentials a client presents
// when its real-time channel is challenged.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mcoot/partygate/internal/dependencies/clock"
	"github.com/mcoot/partygate/internal/model"
)

// Config holds signing settings
type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
	Leeway time.Duration
}

// DefaultConfig returns default token configuration. Secret must still be set.
func DefaultConfig() Config {
	return Config{
		TTL:    10 * time.Minute,
		Issuer: "partygate",
	}
}

// Claims identify the player and game a credential was issued for
type Claims struct {
	Username string `json:"username"`
	GameCode string `json:"gamecode"`
	jwt.RegisteredClaims
}

// Manager signs and verifies credentials with HS256
type Manager struct {
	config Config
	clock  clock.Clock
}

// NewManager validates cfg and creates a Manager
func NewManager(cfg Config, clk clock.Clock) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg, clock: clk}, nil
}

// Issue signs a credential for username in the given game
func (m *Manager) Issue(username string, gameCode model.LobbyCode) (string, error) {
	now := m.clock.Now()
	claims := Claims{
		Username: username,
		GameCode: string(gameCode),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a credential. Errors are one of model.ErrMalformedToken,
// model.ErrTokenExpired or model.ErrMissingClaims.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, model.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
			return nil, model.ErrMissingClaims
		default:
			return nil, fmt.Errorf("%w: %v", model.ErrMalformedToken, err)
		}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, model.ErrMalformedToken
	}
	if claims.Username == "" || claims.GameCode == "" {
		return nil, model.ErrMissingClaims
	}
	return claims, nil
}

// Verifier adapts the manager to the verification engine
func (m *Manager) Verifier() Verifier {
	return Verifier{m}
}

// Verifier exposes Parse as (username, gameCode, err)
type Verifier struct {
	m *Manager
}

// Parse verifies tok and returns its identity claims
func (v Verifier) Parse(tok string) (string, string, error) {
	claims, err := v.m.Parse(tok)
	if err != nil {
		return "", "", err
	}
	return claims.Username, claims.GameCode, nil
}
