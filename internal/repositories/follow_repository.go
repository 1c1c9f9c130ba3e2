package repositories

import (
	"context"
	"fmt"

	"github.com/vidfriends/watchparty/internal/db"
	"github.com/vidfriends/watchparty/internal/models"
)

// PostgresFollowRepository stores directed follow edges between users.
type PostgresFollowRepository struct {
	pool db.Pool
}

// NewPostgresFollowRepository constructs a follow repository backed by PostgreSQL.
func NewPostgresFollowRepository(pool db.Pool) *PostgresFollowRepository {
	return &PostgresFollowRepository{pool: pool}
}

// Toggle flips the follower → following edge and reports whether it exists afterwards.
func (r *PostgresFollowRepository) Toggle(ctx context.Context, followerID, followingID string) (bool, error) {
	return toggleEdge(ctx, r.pool, "follows", "follower_id", "following_id", followerID, followingID)
}

// IsFollowing reports whether followerID follows followingID.
func (r *PostgresFollowRepository) IsFollowing(ctx context.Context, followerID, followingID string) (bool, error) {
	return edgeExists(ctx, r.pool, "follows", "follower_id", "following_id", followerID, followingID)
}

// Followers lists the users following userID, most recent first.
func (r *PostgresFollowRepository) Followers(ctx context.Context, userID string) ([]models.UserSummary, error) {
	return r.list(ctx, `
        SELECT u.id, u.username, u.avatar_url, u.is_admin, u.verified, u.is_online, u.last_seen
        FROM follows f
        JOIN users u ON u.id = f.follower_id
        WHERE f.following_id = $1
        ORDER BY f.created_at DESC
    `, userID)
}

// Following lists the users userID follows, most recent first.
func (r *PostgresFollowRepository) Following(ctx context.Context, userID string) ([]models.UserSummary, error) {
	return r.list(ctx, `
        SELECT u.id, u.username, u.avatar_url, u.is_admin, u.verified, u.is_online, u.last_seen
        FROM follows f
        JOIN users u ON u.id = f.following_id
        WHERE f.follower_id = $1
        ORDER BY f.created_at DESC
    `, userID)
}

func (r *PostgresFollowRepository) list(ctx context.Context, query, userID string) ([]models.UserSummary, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query follows: %w", err)
	}
	defer rows.Close()

	var users []models.UserSummary
	for rows.Next() {
		var u models.UserSummary
		if err := rows.Scan(&u.ID, &u.Username, &u.AvatarURL, &u.IsAdmin, &u.Verified, &u.IsOnline, &u.LastSeen); err != nil {
			return nil, fmt.Errorf("scan follow: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate follows: %w", err)
	}
	return users, nil
}
