package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vidfriends/watchparty/internal/db"
	"github.com/vidfriends/watchparty/internal/models"
)

const userColumns = `id, username, avatar_url, is_admin, verified, is_online, last_seen,
        followers_count, following_count, reaction_count, total_reaction_duration,
        about, created_at, updated_at`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.AvatarURL, &u.IsAdmin, &u.Verified, &u.IsOnline, &u.LastSeen,
		&u.FollowersCount, &u.FollowingCount, &u.ReactionCount, &u.TotalReactionDuration,
		&u.About, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func collectUsers(rows pgx.Rows, action string) ([]models.User, error) {
	defer rows.Close()
	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", action, err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", action, err)
	}
	return users, nil
}

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Ensure inserts the user row for a first sign-in and returns the stored row.
// An existing row is returned unchanged. ErrConflict means the username is
// taken by another account.
func (r *PostgresUserRepository) Ensure(ctx context.Context, user models.User) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	now := time.Now().UTC()
	if _, err := conn.Exec(ctx, `
        INSERT INTO users (id, username, avatar_url, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $4)
        ON CONFLICT (id) DO NOTHING
    `, user.ID, user.Username, user.AvatarURL, now); err != nil {
		return models.User{}, translateError(err, "insert user")
	}

	found, err := scanUser(conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, user.ID))
	if err != nil {
		return models.User{}, translateError(err, "select user")
	}
	return found, nil
}

// FindByID fetches a user by id.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	u, err := scanUser(conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return models.User{}, translateError(err, "select user by id")
	}
	return u, nil
}

// FindByUsername fetches a user by handle, ignoring a leading @.
func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	u, err := scanUser(conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return models.User{}, translateError(err, "select user by username")
	}
	return u, nil
}

// List returns every user, newest first.
func (r *PostgresUserRepository) List(ctx context.Context) ([]models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	return collectUsers(rows, "users")
}

// Roster returns users for the chat sidebar: online first, then most recently seen.
func (r *PostgresUserRepository) Roster(ctx context.Context) ([]models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+userColumns+`
        FROM users
        ORDER BY is_online DESC, last_seen DESC NULLS LAST, username ASC
    `)
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	return collectUsers(rows, "roster")
}

// UpdateProfile changes the user-editable profile fields.
func (r *PostgresUserRepository) UpdateProfile(ctx context.Context, id, username, avatarURL, about string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	u, err := scanUser(conn.QueryRow(ctx, `
        UPDATE users
        SET username = $2, avatar_url = $3, about = $4, updated_at = NOW()
        WHERE id = $1
        RETURNING `+userColumns, id, username, avatarURL, about))
	if err != nil {
		return models.User{}, translateError(err, "update profile")
	}
	return u, nil
}

// SetAdmin grants or revokes the admin flag.
func (r *PostgresUserRepository) SetAdmin(ctx context.Context, id string, isAdmin bool) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `UPDATE users SET is_admin = $2, updated_at = NOW() WHERE id = $1`, id, isAdmin)
	if err != nil {
		return translateError(err, "update admin flag")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
