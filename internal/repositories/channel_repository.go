package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vidtube/backend/internal/channels"
	"github.com/vidtube/backend/internal/db"
	"github.com/vidtube/backend/internal/models"
)

// snapshotTx is used for every aggregate read so the counts and membership
// flags derived from it agree with each other.
var snapshotTx = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

// PostgresChannelRepository reads channel and watch history snapshots and
// stores subscription edges.
type PostgresChannelRepository struct {
	pool db.Pool
}

// NewPostgresChannelRepository constructs a channel repository backed by PostgreSQL.
func NewPostgresChannelRepository(pool db.Pool) *PostgresChannelRepository {
	return &PostgresChannelRepository{pool: pool}
}

// ChannelSnapshot loads the channel with handle and every edge touching it
// inside one read-only repeatable-read transaction.
func (r *PostgresChannelRepository) ChannelSnapshot(ctx context.Context, handle string) (channels.ChannelSnapshot, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return channels.ChannelSnapshot{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, snapshotTx)
	if err != nil {
		return channels.ChannelSnapshot{}, fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	channel, err := scanPrincipal(tx.QueryRow(ctx, `SELECT `+principalColumns+` FROM users WHERE username = lower($1)`, handle))
	if err != nil {
		return channels.ChannelSnapshot{}, classify(err, "select channel")
	}

	rows, err := tx.Query(ctx, `
        SELECT subscriber_id, channel_id, created_at
        FROM subscriptions
        WHERE channel_id = $1 OR subscriber_id = $1
    `, channel.ID)
	if err != nil {
		return channels.ChannelSnapshot{}, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	snap := channels.ChannelSnapshot{Channel: channel}
	for rows.Next() {
		var edge models.Subscription
		if err := rows.Scan(&edge.SubscriberID, &edge.ChannelID, &edge.CreatedAt); err != nil {
			return channels.ChannelSnapshot{}, fmt.Errorf("scan subscription: %w", err)
		}
		snap.Edges = append(snap.Edges, edge)
	}
	if err := rows.Err(); err != nil {
		return channels.ChannelSnapshot{}, fmt.Errorf("iterate subscriptions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return channels.ChannelSnapshot{}, fmt.Errorf("commit snapshot transaction: %w", err)
	}
	return snap, nil
}

// HistorySnapshot loads the ordered watch history, the referenced videos and
// their owners inside one read-only repeatable-read transaction.
func (r *PostgresChannelRepository) HistorySnapshot(ctx context.Context, principalID string) (channels.HistorySnapshot, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return channels.HistorySnapshot{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, snapshotTx)
	if err != nil {
		return channels.HistorySnapshot{}, fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, principalID).Scan(&exists); err != nil {
		return channels.HistorySnapshot{}, classify(err, "check user")
	}
	if !exists {
		return channels.HistorySnapshot{}, ErrNotFound
	}

	snap := channels.HistorySnapshot{
		Videos: make(map[string]models.Video),
		Owners: make(map[string][]models.OwnerSummary),
	}

	ids, err := collectStrings(ctx, tx, `
        SELECT video_id FROM watch_history
        WHERE user_id = $1
        ORDER BY position
    `, principalID)
	if err != nil {
		return channels.HistorySnapshot{}, fmt.Errorf("query watch history: %w", err)
	}
	snap.VideoIDs = ids
	if len(ids) == 0 {
		return snap, tx.Commit(ctx)
	}

	videoRows, err := tx.Query(ctx, `
        SELECT id, COALESCE(owner_id, ''), title, description, thumbnail_url, video_url, duration_seconds, views, published, created_at
        FROM videos
        WHERE id = ANY($1)
    `, ids)
	if err != nil {
		return channels.HistorySnapshot{}, fmt.Errorf("query videos: %w", err)
	}
	var ownerIDs []string
	for videoRows.Next() {
		var v models.Video
		if err := videoRows.Scan(&v.ID, &v.OwnerID, &v.Title, &v.Description, &v.Thumbnail, &v.VideoURL, &v.Duration, &v.Views, &v.Published, &v.CreatedAt); err != nil {
			videoRows.Close()
			return channels.HistorySnapshot{}, fmt.Errorf("scan video: %w", err)
		}
		snap.Videos[v.ID] = v
		if v.OwnerID != "" {
			ownerIDs = append(ownerIDs, v.OwnerID)
		}
	}
	videoRows.Close()
	if err := videoRows.Err(); err != nil {
		return channels.HistorySnapshot{}, fmt.Errorf("iterate videos: %w", err)
	}

	if len(ownerIDs) > 0 {
		ownerRows, err := tx.Query(ctx, `
            SELECT id, username, full_name, avatar_url
            FROM users
            WHERE id = ANY($1)
            ORDER BY id
        `, ownerIDs)
		if err != nil {
			return channels.HistorySnapshot{}, fmt.Errorf("query owners: %w", err)
		}
		for ownerRows.Next() {
			var o models.OwnerSummary
			if err := ownerRows.Scan(&o.ID, &o.Handle, &o.FullName, &o.Avatar); err != nil {
				ownerRows.Close()
				return channels.HistorySnapshot{}, fmt.Errorf("scan owner: %w", err)
			}
			snap.Owners[o.ID] = append(snap.Owners[o.ID], o)
		}
		ownerRows.Close()
		if err := ownerRows.Err(); err != nil {
			return channels.HistorySnapshot{}, fmt.Errorf("iterate owners: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return channels.HistorySnapshot{}, fmt.Errorf("commit snapshot transaction: %w", err)
	}
	return snap, nil
}

// AddSubscription inserts an edge. Duplicates yield ErrConflict and unknown
// principals ErrNotFound.
func (r *PostgresChannelRepository) AddSubscription(ctx context.Context, sub models.Subscription) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO subscriptions (subscriber_id, channel_id, created_at)
        VALUES ($1, $2, $3)
    `, sub.SubscriberID, sub.ChannelID, sub.CreatedAt)
	if err != nil {
		return classify(err, "insert subscription")
	}
	return nil
}

// RemoveSubscription deletes an edge.
func (r *PostgresChannelRepository) RemoveSubscription(ctx context.Context, subscriberID, channelID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM subscriptions
        WHERE subscriber_id = $1 AND channel_id = $2
    `, subscriberID, channelID)
	if err != nil {
		return classify(err, "delete subscription")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectStrings(ctx context.Context, tx pgx.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

var _ channels.Store = (*PostgresChannelRepository)(nil)
