// Package tokens mints and verifies the signed access and refresh tokens that
// bind a client to a principal.
package tokens

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrMalformed covers every verification failure other than expiry: bad
	// encoding, wrong signature, wrong algorithm or key class, missing subject.
	ErrMalformed = errors.New("token malformed or not signed by this service")
	// ErrExpired indicates a correctly signed token past its expiry.
	ErrExpired = errors.New("token expired")
)

// KeyClass selects the key and TTL a token is signed with.
type KeyClass string

const (
	Access  KeyClass = "access"
	Refresh KeyClass = "refresh"
)

// Config holds the per-class secrets and lifetimes.
type Config struct {
	AccessSecret  []byte
	AccessTTL     time.Duration
	RefreshSecret []byte
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

func (c Config) validate() error {
	if len(c.AccessSecret) == 0 || len(c.RefreshSecret) == 0 {
		return errors.New("tokens: access and refresh secrets are required")
	}
	if string(c.AccessSecret) == string(c.RefreshSecret) {
		return errors.New("tokens: access and refresh secrets must differ")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("tokens: ttl must be positive")
	}
	if c.AccessTTL >= c.RefreshTTL {
		return errors.New("tokens: access ttl must be shorter than refresh ttl")
	}
	if c.Leeway < 0 || c.Leeway > 2*time.Minute {
		return errors.New("tokens: invalid leeway")
	}
	return nil
}

// Token is a signed token and its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Claims is the signed payload. Only the issuer writes Subject.
type Claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Manager issues and validates both token classes.
type Manager struct {
	cfg Config
	now func() time.Time
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Manager{cfg: cfg, now: time.Now}, nil
}

// WithClock overrides the time source. Intended for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	clone := *m
	clone.now = now
	return &clone
}

// IssueAccess mints a short-lived access token for principalID.
func (m *Manager) IssueAccess(principalID string) (Token, error) {
	return m.issue(principalID, Access)
}

// IssueRefresh mints a long-lived refresh token for principalID. The caller
// must record it in the session ledger.
func (m *Manager) IssueRefresh(principalID string) (Token, error) {
	return m.issue(principalID, Refresh)
}

func (m *Manager) issue(principalID string, class KeyClass) (Token, error) {
	if strings.TrimSpace(principalID) == "" {
		return Token{}, errors.New("tokens: principal id must be provided")
	}
	secret, ttl := m.keyFor(class)

	now := m.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Type: string(class),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign %s token: %w", class, err)
	}
	return Token{Value: signed, ExpiresAt: expiresAt.Truncate(time.Second)}, nil
}

// Validate verifies raw against the key of class and returns the bound
// principal id. Expired tokens yield ErrExpired; everything else ErrMalformed.
func (m *Manager) Validate(raw string, class KeyClass) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMalformed
	}
	secret, _ := m.keyFor(class)
	if secret == nil {
		return "", ErrMalformed
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	}
	if m.cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.cfg.Leeway))
	}
	if m.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.cfg.Issuer))
	}

	var claims Claims
	token, err := jwt.NewParser(options...).ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpired
		}
		return "", ErrMalformed
	}
	if !token.Valid || claims.Type != string(class) || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrMalformed
	}
	return claims.Subject, nil
}

func (m *Manager) keyFor(class KeyClass) ([]byte, time.Duration) {
	switch class {
	case Access:
		return m.cfg.AccessSecret, m.cfg.AccessTTL
	case Refresh:
		return m.cfg.RefreshSecret, m.cfg.RefreshTTL
	default:
		return nil, 0
	}
}

// RefreshTTL reports the configured refresh lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.cfg.RefreshTTL }

// Fingerprint returns the hex SHA-256 digest of a raw token. Ledgers persist
// fingerprints rather than the tokens themselves.
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
