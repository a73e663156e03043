package repositories

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vidtube/backend/internal/apperr"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = apperr.New(apperr.KindNotFound, "record not found")
	// ErrConflict indicates the attempted write would violate a uniqueness constraint.
	ErrConflict = apperr.New(apperr.KindConflict, "record conflict")
)

// classify maps driver errors onto the repository sentinels and wraps the
// rest with op.
func classify(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return ErrConflict
		case "23503", "22P02": // foreign_key_violation, invalid_text_representation
			return ErrNotFound
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
