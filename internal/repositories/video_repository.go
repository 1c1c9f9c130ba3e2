package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vidfriends/watchparty/internal/db"
	"github.com/vidfriends/watchparty/internal/models"
)

const videoColumns = `v.id, v.title, v.description, v.url, v.thumbnail_url, v.uploaded_by,
        v.duration_seconds, v.created_at, v.updated_at`

func scanVideo(row pgx.Row) (models.Video, error) {
	var v models.Video
	err := row.Scan(&v.ID, &v.Title, &v.Description, &v.URL, &v.ThumbnailURL, &v.UploadedBy,
		&v.DurationSeconds, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func collectVideos(rows pgx.Rows, action string) ([]models.Video, error) {
	defer rows.Close()
	var videos []models.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", action, err)
		}
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", action, err)
	}
	return videos, nil
}

// PostgresVideoRepository provides PostgreSQL-backed persistence for curated videos.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

// Create stores a new video record.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (id, title, description, url, thumbnail_url, uploaded_by, duration_seconds, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, video.ID, video.Title, video.Description, video.URL, video.ThumbnailURL, video.UploadedBy,
		video.DurationSeconds, video.CreatedAt, video.UpdatedAt)
	if err != nil {
		return translateError(err, "insert video")
	}
	return nil
}

// Update overwrites the editable fields of a video.
func (r *PostgresVideoRepository) Update(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE videos
        SET title = $2, description = $3, url = $4, thumbnail_url = $5, duration_seconds = $6, updated_at = $7
        WHERE id = $1
    `, video.ID, video.Title, video.Description, video.URL, video.ThumbnailURL, video.DurationSeconds, video.UpdatedAt)
	if err != nil {
		return translateError(err, "update video")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByID fetches one video.
func (r *PostgresVideoRepository) FindByID(ctx context.Context, id string) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	v, err := scanVideo(conn.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos v WHERE v.id = $1`, id))
	if err != nil {
		return models.Video{}, translateError(err, "select video")
	}
	return v, nil
}

// List returns the feed of videos, newest first.
func (r *PostgresVideoRepository) List(ctx context.Context) ([]models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT `+videoColumns+` FROM videos v ORDER BY v.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	return collectVideos(rows, "videos")
}

// Delete removes a video and its markers in one transaction. The remaining
// dependent rows go with the video through ON DELETE CASCADE.
func (r *PostgresVideoRepository) Delete(ctx context.Context, id string) (removedMarkers int64, err error) {
	err = inTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM markers WHERE video_id = $1`, id)
		if err != nil {
			return translateError(err, "delete video markers")
		}
		removedMarkers = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
		if err != nil {
			return translateError(err, "delete video")
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removedMarkers, nil
}

// ToggleFavorite flips the user's favorite edge for a video.
func (r *PostgresVideoRepository) ToggleFavorite(ctx context.Context, userID, videoID string) (bool, error) {
	return toggleEdge(ctx, r.pool, "favorites", "user_id", "video_id", userID, videoID)
}

// IsFavorite reports whether the user has favorited the video.
func (r *PostgresVideoRepository) IsFavorite(ctx context.Context, userID, videoID string) (bool, error) {
	return edgeExists(ctx, r.pool, "favorites", "user_id", "video_id", userID, videoID)
}

// Favorites lists the videos a user has favorited, most recent favorite first.
func (r *PostgresVideoRepository) Favorites(ctx context.Context, userID string) ([]models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+videoColumns+`
        FROM favorites f
        JOIN videos v ON v.id = f.video_id
        WHERE f.user_id = $1
        ORDER BY f.created_at DESC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query favorites: %w", err)
	}
	return collectVideos(rows, "favorites")
}

// ToggleVote flips the user's vote edge for a video.
func (r *PostgresVideoRepository) ToggleVote(ctx context.Context, userID, videoID string) (bool, error) {
	return toggleEdge(ctx, r.pool, "votes", "user_id", "video_id", userID, videoID)
}

// HasVoted reports whether the user has voted for the video.
func (r *PostgresVideoRepository) HasVoted(ctx context.Context, userID, videoID string) (bool, error) {
	return edgeExists(ctx, r.pool, "votes", "user_id", "video_id", userID, videoID)
}

// VoteCounts totals votes per video, most voted first. Videos without votes are included.
func (r *PostgresVideoRepository) VoteCounts(ctx context.Context) ([]models.VoteCount, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT v.id, v.title, COUNT(vo.user_id)
        FROM videos v
        LEFT JOIN votes vo ON vo.video_id = v.id
        GROUP BY v.id, v.title
        ORDER BY COUNT(vo.user_id) DESC, v.title ASC
    `)
	if err != nil {
		return nil, fmt.Errorf("query vote counts: %w", err)
	}
	defer rows.Close()

	var counts []models.VoteCount
	for rows.Next() {
		var c models.VoteCount
		if err := rows.Scan(&c.VideoID, &c.Title, &c.Votes); err != nil {
			return nil, fmt.Errorf("scan vote count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vote counts: %w", err)
	}
	return counts, nil
}
