package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/vidtube/backend/internal/db"
	"github.com/vidtube/backend/internal/models"
)

const principalColumns = `id, username, email, full_name, password_hash, avatar_url, cover_image_url,
            COALESCE(refresh_token_hash, ''), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (models.Principal, error) {
	var p models.Principal
	err := row.Scan(&p.ID, &p.Handle, &p.Email, &p.FullName, &p.PasswordHash, &p.Avatar, &p.CoverImage,
		&p.RefreshTokenHash, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// PostgresPrincipalRepository persists principals in the users table and
// serves as the credential store.
type PostgresPrincipalRepository struct {
	pool db.Pool
	now  func() time.Time
}

// NewPostgresPrincipalRepository constructs a principal repository backed by PostgreSQL.
func NewPostgresPrincipalRepository(pool db.Pool) *PostgresPrincipalRepository {
	return &PostgresPrincipalRepository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Create persists a new principal. Handle and email collisions yield ErrConflict.
func (r *PostgresPrincipalRepository) Create(ctx context.Context, p models.Principal) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, username, email, full_name, password_hash, avatar_url, cover_image_url, created_at, updated_at)
        VALUES ($1, lower($2), lower($3), $4, $5, $6, $7, $8, $9)
    `, p.ID, p.Handle, p.Email, p.FullName, p.PasswordHash, p.Avatar, p.CoverImage, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return classify(err, "insert user")
	}
	return nil
}

// FindByID loads a principal with its watch history.
func (r *PostgresPrincipalRepository) FindByID(ctx context.Context, id string) (models.Principal, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Principal{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	p, err := scanPrincipal(conn.QueryRow(ctx, `SELECT `+principalColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return models.Principal{}, classify(err, "select user by id")
	}

	history, err := loadWatchHistory(ctx, conn, id)
	if err != nil {
		return models.Principal{}, err
	}
	p.WatchHistory = history
	return p, nil
}

// FindByHandleOrEmail loads the principal matching either identifier. Empty
// identifiers never match.
func (r *PostgresPrincipalRepository) FindByHandleOrEmail(ctx context.Context, handle, email string) (models.Principal, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Principal{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	p, err := scanPrincipal(conn.QueryRow(ctx, `
        SELECT `+principalColumns+`
        FROM users
        WHERE ($1 <> '' AND username = lower($1)) OR ($2 <> '' AND email = lower($2))
        ORDER BY created_at
        LIMIT 1
    `, handle, email))
	if err != nil {
		return models.Principal{}, classify(err, "select user by username or email")
	}
	return p, nil
}

// UpdateProfile changes the display name and email.
func (r *PostgresPrincipalRepository) UpdateProfile(ctx context.Context, id, fullName, email string) (models.Principal, error) {
	return r.updateReturning(ctx, "update user profile", `
        UPDATE users SET full_name = $2, email = lower($3), updated_at = $4
        WHERE id = $1
        RETURNING `+principalColumns, id, fullName, email, r.now())
}

// UpdateAvatar points the avatar at url.
func (r *PostgresPrincipalRepository) UpdateAvatar(ctx context.Context, id, url string) (models.Principal, error) {
	return r.updateReturning(ctx, "update user avatar", `
        UPDATE users SET avatar_url = $2, updated_at = $3
        WHERE id = $1
        RETURNING `+principalColumns, id, url, r.now())
}

// UpdateCoverImage points the cover image at url.
func (r *PostgresPrincipalRepository) UpdateCoverImage(ctx context.Context, id, url string) (models.Principal, error) {
	return r.updateReturning(ctx, "update user cover image", `
        UPDATE users SET cover_image_url = $2, updated_at = $3
        WHERE id = $1
        RETURNING `+principalColumns, id, url, r.now())
}

// UpdatePassword stores a new password hash.
func (r *PostgresPrincipalRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users SET password_hash = $2, updated_at = $3
        WHERE id = $1
    `, id, passwordHash, r.now())
	if err != nil {
		return classify(err, "update user password")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// VerifySecret compares secret against the stored bcrypt hash.
func (r *PostgresPrincipalRepository) VerifySecret(_ context.Context, p models.Principal, secret string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrHashTooShort):
		return false, nil
	default:
		return false, fmt.Errorf("compare password hash: %w", err)
	}
}

func (r *PostgresPrincipalRepository) updateReturning(ctx context.Context, op, query string, args ...any) (models.Principal, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Principal{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	p, err := scanPrincipal(conn.QueryRow(ctx, query, args...))
	if err != nil {
		return models.Principal{}, classify(err, op)
	}
	return p, nil
}

func loadWatchHistory(ctx context.Context, conn *pgxpool.Conn, principalID string) ([]string, error) {
	rows, err := conn.Query(ctx, `
        SELECT video_id FROM watch_history
        WHERE user_id = $1
        ORDER BY position
    `, principalID)
	if err != nil {
		return nil, fmt.Errorf("query watch history: %w", err)
	}
	defer rows.Close()

	history := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan watch history: %w", err)
		}
		history = append(history, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watch history: %w", err)
	}
	return history, nil
}
