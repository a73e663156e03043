package auth

import (
	"context"
	"errors"
)

var (
	// ErrNoSession indicates the principal has no recorded refresh token.
	ErrNoSession = errors.New("no active session")
	// ErrTokenMismatch indicates the presented refresh token is not the one
	// currently recorded for the principal.
	ErrTokenMismatch = errors.New("refresh token does not match active session")
)

// Ledger tracks the single live refresh token of each principal. Tokens are
// passed raw; implementations persist only their fingerprint.
type Ledger interface {
	// Record stores token as the principal's live refresh token, replacing
	// and thereby revoking any previous one.
	Record(ctx context.Context, principalID, token string) error
	// Current returns the fingerprint of the live refresh token or
	// ErrNoSession.
	Current(ctx context.Context, principalID string) (string, error)
	// Rotate atomically replaces presented with next. It fails with
	// ErrTokenMismatch when presented is not the live token and with
	// ErrNoSession when nothing is recorded.
	Rotate(ctx context.Context, principalID, presented, next string) error
	// Clear removes the principal's live refresh token.
	Clear(ctx context.Context, principalID string) error
}
