package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/db"
	"github.com/vidtube/backend/internal/tokens"
)

// PostgresLedger keeps the live refresh token fingerprint in
// users.refresh_token_hash.
type PostgresLedger struct {
	pool db.Pool
}

// NewPostgresLedger constructs a ledger backed by PostgreSQL.
func NewPostgresLedger(pool db.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

// Record overwrites the stored fingerprint.
func (l *PostgresLedger) Record(ctx context.Context, principalID, token string) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users SET refresh_token_hash = $2
        WHERE id = $1
    `, principalID, tokens.Fingerprint(token))
	if err != nil {
		return fmt.Errorf("record refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Current returns the stored fingerprint.
func (l *PostgresLedger) Current(ctx context.Context, principalID string) (string, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var fingerprint *string
	err = conn.QueryRow(ctx, `SELECT refresh_token_hash FROM users WHERE id = $1`, principalID).Scan(&fingerprint)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", auth.ErrNoSession
		}
		return "", fmt.Errorf("select refresh token: %w", err)
	}
	if fingerprint == nil || *fingerprint == "" {
		return "", auth.ErrNoSession
	}
	return *fingerprint, nil
}

// Rotate swaps the fingerprint only while it still equals presented's. The
// conditional UPDATE is the compare-and-swap.
func (l *PostgresLedger) Rotate(ctx context.Context, principalID, presented, next string) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users SET refresh_token_hash = $3
        WHERE id = $1 AND refresh_token_hash = $2
    `, principalID, tokens.Fingerprint(presented), tokens.Fingerprint(next))
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var fingerprint *string
	err = conn.QueryRow(ctx, `SELECT refresh_token_hash FROM users WHERE id = $1`, principalID).Scan(&fingerprint)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return auth.ErrNoSession
	case err != nil:
		return fmt.Errorf("select refresh token: %w", err)
	case fingerprint == nil || *fingerprint == "":
		return auth.ErrNoSession
	default:
		return auth.ErrTokenMismatch
	}
}

// Clear nulls the stored fingerprint.
func (l *PostgresLedger) Clear(ctx context.Context, principalID string) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `UPDATE users SET refresh_token_hash = NULL WHERE id = $1`, principalID); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

var _ auth.Ledger = (*PostgresLedger)(nil)
