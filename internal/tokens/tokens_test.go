package tokens

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessSecret:  []byte("access-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshSecret: []byte("refresh-secret"),
		RefreshTTL:    24 * time.Hour,
		Issuer:        "vidtube-test",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestIssueAndValidate(t *testing.T) {
	m := newTestManager(t)

	access, err := m.IssueAccess("user-1")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	refresh, err := m.IssueRefresh("user-1")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	if !refresh.ExpiresAt.After(access.ExpiresAt) {
		t.Fatalf("expected refresh to outlive access: access=%v refresh=%v", access.ExpiresAt, refresh.ExpiresAt)
	}

	if id, err := m.Validate(access.Value, Access); err != nil || id != "user-1" {
		t.Fatalf("validate access: id=%q err=%v", id, err)
	}
	if id, err := m.Validate(refresh.Value, Refresh); err != nil || id != "user-1" {
		t.Fatalf("validate refresh: id=%q err=%v", id, err)
	}
}

func TestValidateRejectsWrongKeyClass(t *testing.T) {
	m := newTestManager(t)

	access, _ := m.IssueAccess("user-1")
	refresh, _ := m.IssueRefresh("user-1")

	if _, err := m.Validate(access.Value, Refresh); !errors.Is(err, ErrMalformed) {
		t.Fatalf("access token accepted as refresh: %v", err)
	}
	if _, err := m.Validate(refresh.Value, Access); !errors.Is(err, ErrMalformed) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}
}

func TestValidateExpired(t *testing.T) {
	m := newTestManager(t)
	past := m.WithClock(func() time.Time { return time.Now().Add(-time.Hour) })

	access, err := past.IssueAccess("user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Validate(access.Value, Access); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired got %v", err)
	}
}

func TestValidateMalformed(t *testing.T) {
	m := newTestManager(t)
	access, _ := m.IssueAccess("user-1")

	other, err := NewManager(Config{
		AccessSecret:  []byte("another-access"),
		AccessTTL:     time.Minute,
		RefreshSecret: []byte("another-refresh"),
		RefreshTTL:    time.Hour,
		Issuer:        "vidtube-test",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	foreign, _ := other.IssueAccess("user-1")

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "user-1",
		"typ": "access",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
		"iss": "vidtube-test",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	parts := strings.Split(access.Value, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	cases := map[string]string{
		"empty":       "",
		"garbage":     "not.a.jwt",
		"foreignKey":  foreign.Value,
		"algNone":     unsigned,
		"tampered":    tampered,
		"whitespace":  "   ",
		"truncated":   parts[0] + "." + parts[1],
		"extraDotted": access.Value + ".x",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := m.Validate(raw, Access); !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed got %v", err)
			}
		})
	}
}

func TestIssuedTokensAreUnique(t *testing.T) {
	m := newTestManager(t)
	first, _ := m.IssueRefresh("user-1")
	second, _ := m.IssueRefresh("user-1")
	if first.Value == second.Value {
		t.Fatal("expected distinct refresh tokens for consecutive issues")
	}
}

func TestIssueRequiresPrincipal(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.IssueAccess(" "); err == nil {
		t.Fatal("expected error for blank principal id")
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"missingSecrets", Config{AccessTTL: time.Minute, RefreshTTL: time.Hour}},
		{"sameSecret", Config{AccessSecret: []byte("s"), RefreshSecret: []byte("s"), AccessTTL: time.Minute, RefreshTTL: time.Hour}},
		{"accessNotShorter", Config{AccessSecret: []byte("a"), RefreshSecret: []byte("r"), AccessTTL: time.Hour, RefreshTTL: time.Minute}},
		{"zeroTTL", Config{AccessSecret: []byte("a"), RefreshSecret: []byte("r"), RefreshTTL: time.Minute}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewManager(tc.cfg); err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	if Fingerprint("a") == Fingerprint("b") {
		t.Fatal("expected different fingerprints")
	}
	if len(Fingerprint("a")) != 64 {
		t.Fatalf("expected hex sha256, got %q", Fingerprint("a"))
	}
}
