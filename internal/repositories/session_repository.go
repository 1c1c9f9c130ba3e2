package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/vidfriends/watchparty/internal/db"
)

// PostgresPresenceRepository persists the presence and cached counters the
// session store maintains for a signed-in user.
type PostgresPresenceRepository struct {
	pool db.Pool
}

// NewPostgresPresenceRepository constructs a presence repository backed by PostgreSQL.
func NewPostgresPresenceRepository(pool db.Pool) *PostgresPresenceRepository {
	return &PostgresPresenceRepository{pool: pool}
}

// SetPresence writes the online flag and last-seen timestamp.
func (r *PostgresPresenceRepository) SetPresence(ctx context.Context, userID string, online bool, at time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users SET is_online = $2, last_seen = $3 WHERE id = $1
    `, userID, online, at.UTC())
	if err != nil {
		return translateError(err, "update presence")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RefreshFollowCounts recomputes the cached follower and following counts from
// the follows table, stores them and returns the new values.
func (r *PostgresPresenceRepository) RefreshFollowCounts(ctx context.Context, userID string) (followers, following int, err error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	err = conn.QueryRow(ctx, `
        UPDATE users
        SET followers_count = (SELECT COUNT(*) FROM follows WHERE following_id = $1),
            following_count = (SELECT COUNT(*) FROM follows WHERE follower_id = $1)
        WHERE id = $1
        RETURNING followers_count, following_count
    `, userID).Scan(&followers, &following)
	if err != nil {
		return 0, 0, translateError(err, "refresh follow counts")
	}
	return followers, following, nil
}

// IsAdmin reads the admin flag.
func (r *PostgresPresenceRepository) IsAdmin(ctx context.Context, userID string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var isAdmin bool
	if err := conn.QueryRow(ctx, `SELECT is_admin FROM users WHERE id = $1`, userID).Scan(&isAdmin); err != nil {
		return false, translateError(err, "select admin flag")
	}
	return isAdmin, nil
}
