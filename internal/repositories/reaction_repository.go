package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vidfriends/watchparty/internal/db"
	"github.com/vidfriends/watchparty/internal/models"
)

// ReactionWrite groups the rows a single reaction produces.
type ReactionWrite struct {
	Event        models.ReactionEvent
	Marker       models.Marker
	Announcement models.Message
	HeldSeconds  int
}

// PostgresReactionRepository stores markers and reaction events.
type PostgresReactionRepository struct {
	pool db.Pool
}

// NewPostgresReactionRepository constructs a reaction repository backed by PostgreSQL.
func NewPostgresReactionRepository(pool db.Pool) *PostgresReactionRepository {
	return &PostgresReactionRepository{pool: pool}
}

// Record writes the reaction event, its marker, the chat announcement and the
// user's counter update in one transaction. Either all four land or none do.
func (r *PostgresReactionRepository) Record(ctx context.Context, w ReactionWrite) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
            INSERT INTO reaction_events (id, video_id, user_id, video_timestamp, username, avatar_url, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
        `, w.Event.ID, w.Event.VideoID, w.Event.UserID, w.Event.VideoTimestamp,
			w.Event.Username, w.Event.AvatarURL, w.Event.CreatedAt); err != nil {
			return translateError(err, "insert reaction event")
		}

		if _, err := tx.Exec(ctx, `
            INSERT INTO markers (id, video_id, user_id, video_timestamp, created_at)
            VALUES ($1, $2, $3, $4, $5)
        `, w.Marker.ID, w.Marker.VideoID, w.Marker.UserID, w.Marker.Timestamp, w.Marker.CreatedAt); err != nil {
			return translateError(err, "insert marker")
		}

		if err := insertMessage(ctx, tx, w.Announcement); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
            UPDATE users
            SET reaction_count = reaction_count + 1,
                total_reaction_duration = total_reaction_duration + $2
            WHERE id = $1
        `, w.Event.UserID, w.HeldSeconds)
		if err != nil {
			return translateError(err, "update reaction counters")
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Markers lists a video's markers with the reacting user, in timeline order.
// Markers whose user no longer resolves come back with an empty username.
func (r *PostgresReactionRepository) Markers(ctx context.Context, videoID string) ([]models.MarkerView, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT mk.id, mk.video_id, mk.user_id, mk.video_timestamp, mk.created_at,
               COALESCE(u.username, ''), COALESCE(u.avatar_url, '')
        FROM markers mk
        LEFT JOIN users u ON u.id = mk.user_id
        WHERE mk.video_id = $1
        ORDER BY mk.video_timestamp ASC, mk.created_at ASC
    `, videoID)
	if err != nil {
		return nil, fmt.Errorf("query markers: %w", err)
	}
	defer rows.Close()

	var markers []models.MarkerView
	for rows.Next() {
		var m models.MarkerView
		if err := rows.Scan(&m.ID, &m.VideoID, &m.UserID, &m.Timestamp, &m.CreatedAt, &m.Username, &m.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan marker: %w", err)
		}
		markers = append(markers, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate markers: %w", err)
	}
	return markers, nil
}

// ClearMarkers removes every marker on a video.
func (r *PostgresReactionRepository) ClearMarkers(ctx context.Context, videoID string) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM markers WHERE video_id = $1`, videoID)
	if err != nil {
		return 0, translateError(err, "delete markers")
	}
	return tag.RowsAffected(), nil
}
