package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/vidfriends/watchparty/internal/db"
	"github.com/vidfriends/watchparty/internal/models"
)

// PostgresWatchTimeRepository accumulates per-user watch time and ranks videos by it.
type PostgresWatchTimeRepository struct {
	pool db.Pool
}

// NewPostgresWatchTimeRepository constructs a watch-time repository backed by PostgreSQL.
func NewPostgresWatchTimeRepository(pool db.Pool) *PostgresWatchTimeRepository {
	return &PostgresWatchTimeRepository{pool: pool}
}

// Add increments the user's watch time on a video by seconds.
func (r *PostgresWatchTimeRepository) Add(ctx context.Context, userID, videoID string, seconds int, at time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO watch_time (user_id, video_id, seconds_watched, last_watched)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id, video_id) DO UPDATE
        SET seconds_watched = watch_time.seconds_watched + EXCLUDED.seconds_watched,
            last_watched = EXCLUDED.last_watched
    `, userID, videoID, seconds, at.UTC())
	if err != nil {
		return translateError(err, "upsert watch time")
	}
	return nil
}

// ForUser lists the user's watch time per video, most recent first.
func (r *PostgresWatchTimeRepository) ForUser(ctx context.Context, userID string) ([]models.WatchTime, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT user_id, video_id, seconds_watched, last_watched
        FROM watch_time
        WHERE user_id = $1
        ORDER BY last_watched DESC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query watch time: %w", err)
	}
	defer rows.Close()

	var out []models.WatchTime
	for rows.Next() {
		var w models.WatchTime
		if err := rows.Scan(&w.UserID, &w.VideoID, &w.SecondsWatched, &w.LastWatched); err != nil {
			return nil, fmt.Errorf("scan watch time: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watch time: %w", err)
	}
	return out, nil
}

// Leaderboard ranks videos by total watch time across all users.
func (r *PostgresWatchTimeRepository) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT v.id, v.title, v.uploaded_by, COALESCE(u.username, ''), COALESCE(u.avatar_url, ''),
               SUM(w.seconds_watched)::INT8, COUNT(DISTINCT w.user_id)
        FROM watch_time w
        JOIN videos v ON v.id = w.video_id
        LEFT JOIN users u ON u.id = v.uploaded_by
        GROUP BY v.id, v.title, v.uploaded_by, u.username, u.avatar_url
        ORDER BY SUM(w.seconds_watched) DESC, v.title ASC
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []models.LeaderboardEntry
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.VideoID, &e.Title, &e.UploaderID, &e.UploaderUsername, &e.UploaderAvatarURL,
			&e.TotalWatchTime, &e.WatcherCount); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard: %w", err)
	}
	return entries, nil
}
