package repositories

import (
	"context"
	"fmt"

	"github.com/vidfriends/watchparty/internal/db"
	"github.com/vidfriends/watchparty/internal/models"
)

// PostgresCommentRepository stores video and profile comments.
type PostgresCommentRepository struct {
	pool db.Pool
}

// NewPostgresCommentRepository constructs a comment repository backed by PostgreSQL.
func NewPostgresCommentRepository(pool db.Pool) *PostgresCommentRepository {
	return &PostgresCommentRepository{pool: pool}
}

// CreateVideoComment stores a comment under a video.
func (r *PostgresCommentRepository) CreateVideoComment(ctx context.Context, c models.VideoComment) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        INSERT INTO comments (id, video_id, user_id, content, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `, c.ID, c.VideoID, c.UserID, c.Content, c.CreatedAt); err != nil {
		return translateError(err, "insert comment")
	}
	return nil
}

// VideoComments lists a video's comments with their authors, newest first.
func (r *PostgresCommentRepository) VideoComments(ctx context.Context, videoID string) ([]models.VideoComment, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT c.id, c.video_id, c.user_id, c.content, c.created_at,
               u.username, u.avatar_url, u.is_admin, u.verified
        FROM comments c
        JOIN users u ON u.id = c.user_id
        WHERE c.video_id = $1
        ORDER BY c.created_at DESC
    `, videoID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var comments []models.VideoComment
	for rows.Next() {
		var c models.VideoComment
		if err := rows.Scan(&c.ID, &c.VideoID, &c.UserID, &c.Content, &c.CreatedAt,
			&c.Author.Username, &c.Author.AvatarURL, &c.Author.IsAdmin, &c.Author.Verified); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.Author.ID = c.UserID
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

// FindVideoComment fetches one video comment without its author.
func (r *PostgresCommentRepository) FindVideoComment(ctx context.Context, id string) (models.VideoComment, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.VideoComment{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var c models.VideoComment
	err = conn.QueryRow(ctx, `
        SELECT id, video_id, user_id, content, created_at FROM comments WHERE id = $1
    `, id).Scan(&c.ID, &c.VideoID, &c.UserID, &c.Content, &c.CreatedAt)
	if err != nil {
		return models.VideoComment{}, translateError(err, "select comment")
	}
	return c, nil
}

// DeleteVideoComment removes a video comment.
func (r *PostgresCommentRepository) DeleteVideoComment(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "comments", id)
}

// CreateProfileComment stores a comment on a profile.
func (r *PostgresCommentRepository) CreateProfileComment(ctx context.Context, c models.ProfileComment) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        INSERT INTO profile_comments (id, user_id, profile_username, content, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `, c.ID, c.UserID, c.ProfileUsername, c.Content, c.CreatedAt); err != nil {
		return translateError(err, "insert profile comment")
	}
	return nil
}

// ProfileComments lists the comments left on a profile, newest first.
func (r *PostgresCommentRepository) ProfileComments(ctx context.Context, profileUsername string) ([]models.ProfileComment, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT pc.id, pc.user_id, pc.profile_username, pc.content, pc.created_at,
               u.username, u.avatar_url, u.verified
        FROM profile_comments pc
        JOIN users u ON u.id = pc.user_id
        WHERE pc.profile_username = $1
        ORDER BY pc.created_at DESC
    `, profileUsername)
	if err != nil {
		return nil, fmt.Errorf("query profile comments: %w", err)
	}
	defer rows.Close()

	var comments []models.ProfileComment
	for rows.Next() {
		var c models.ProfileComment
		if err := rows.Scan(&c.ID, &c.UserID, &c.ProfileUsername, &c.Content, &c.CreatedAt,
			&c.Author.Username, &c.Author.AvatarURL, &c.Author.Verified); err != nil {
			return nil, fmt.Errorf("scan profile comment: %w", err)
		}
		c.Author.ID = c.UserID
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile comments: %w", err)
	}
	return comments, nil
}

// FindProfileComment fetches one profile comment without its author.
func (r *PostgresCommentRepository) FindProfileComment(ctx context.Context, id string) (models.ProfileComment, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.ProfileComment{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var c models.ProfileComment
	err = conn.QueryRow(ctx, `
        SELECT id, user_id, profile_username, content, created_at FROM profile_comments WHERE id = $1
    `, id).Scan(&c.ID, &c.UserID, &c.ProfileUsername, &c.Content, &c.CreatedAt)
	if err != nil {
		return models.ProfileComment{}, translateError(err, "select profile comment")
	}
	return c, nil
}

// DeleteProfileComment removes a profile comment.
func (r *PostgresCommentRepository) DeleteProfileComment(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "profile_comments", id)
}

func (r *PostgresCommentRepository) deleteByID(ctx context.Context, table, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id)
	if err != nil {
		return translateError(err, "delete from "+table)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
