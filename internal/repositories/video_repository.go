package repositories

import (
	"context"
	"fmt"

	"github.com/vidtube/backend/internal/db"
	"github.com/vidtube/backend/internal/models"
)

// PostgresVideoRepository stores videos and watch history entries.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

// Create stores a new video.
func (r *PostgresVideoRepository) Create(ctx context.Context, v models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (id, owner_id, title, description, thumbnail_url, video_url, duration_seconds, views, published, created_at)
        VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10)
    `, v.ID, v.OwnerID, v.Title, v.Description, v.Thumbnail, v.VideoURL, v.Duration, v.Views, v.Published, v.CreatedAt)
	if err != nil {
		return classify(err, "insert video")
	}
	return nil
}

// Delete removes a video. History entries pointing at it are kept.
func (r *PostgresVideoRepository) Delete(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return classify(err, "delete video")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendWatchHistory adds videoID at the end of the principal's history.
func (r *PostgresVideoRepository) AppendWatchHistory(ctx context.Context, principalID, videoID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO watch_history (user_id, position, video_id)
        SELECT $1, COALESCE(MAX(position), 0) + 1, $2
        FROM watch_history
        WHERE user_id = $1
    `, principalID, videoID)
	if err != nil {
		return classify(err, "append watch history")
	}
	return nil
}
