package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vidfriends/watchparty/internal/db"
	"github.com/vidfriends/watchparty/internal/models"
)

const messageSelect = `
        SELECT m.id, m.sender_id, m.receiver_id, m.content, m.created_at, m.updated_at, m.edited,
               m.reply_to, m.reply_to_content, m.reply_to_username, m.is_event_message,
               u.id, u.username, u.avatar_url, u.is_admin, u.verified, u.is_online, u.last_seen
        FROM messages m
        LEFT JOIN users u ON u.id = m.sender_id`

// scanMessage reads a message row with its joined sender. The sender is left
// nil when the join found no user.
func scanMessage(row pgx.Row) (models.Message, error) {
	var (
		m        models.Message
		senderID *string
		username *string
		avatar   *string
		isAdmin  *bool
		verified *bool
		online   *bool
		lastSeen *time.Time
	)
	if err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.CreatedAt, &m.UpdatedAt, &m.Edited,
		&m.ReplyTo, &m.ReplyToContent, &m.ReplyToUsername, &m.IsEventMessage,
		&senderID, &username, &avatar, &isAdmin, &verified, &online, &lastSeen); err != nil {
		return models.Message{}, err
	}
	if senderID != nil {
		m.Sender = models.UserSender{User: models.UserSummary{
			ID:        *senderID,
			Username:  deref(username),
			AvatarURL: deref(avatar),
			IsAdmin:   isAdmin != nil && *isAdmin,
			Verified:  verified != nil && *verified,
			IsOnline:  online != nil && *online,
			LastSeen:  lastSeen,
		}}
	}
	return m, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// PostgresMessageRepository stores global and private chat messages.
type PostgresMessageRepository struct {
	pool db.Pool
}

// NewPostgresMessageRepository constructs a message repository backed by PostgreSQL.
func NewPostgresMessageRepository(pool db.Pool) *PostgresMessageRepository {
	return &PostgresMessageRepository{pool: pool}
}

// Create inserts a message row.
func (r *PostgresMessageRepository) Create(ctx context.Context, m models.Message) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return insertMessage(ctx, conn, m)
}

func insertMessage(ctx context.Context, q queryExecer, m models.Message) error {
	_, err := q.Exec(ctx, `
        INSERT INTO messages (id, sender_id, receiver_id, content, created_at, reply_to,
                              reply_to_content, reply_to_username, is_event_message)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, m.ID, m.SenderID, m.ReceiverID, m.Content, m.CreatedAt, m.ReplyTo,
		m.ReplyToContent, m.ReplyToUsername, m.IsEventMessage)
	if err != nil {
		return translateError(err, "insert message")
	}
	return nil
}

// FindByID fetches one message with its sender.
func (r *PostgresMessageRepository) FindByID(ctx context.Context, id string) (models.Message, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Message{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	m, err := scanMessage(conn.QueryRow(ctx, messageSelect+` WHERE m.id = $1`, id))
	if err != nil {
		return models.Message{}, translateError(err, "select message")
	}
	return m, nil
}

// ListGlobal returns every message without a receiver, oldest first.
func (r *PostgresMessageRepository) ListGlobal(ctx context.Context) ([]models.Message, error) {
	return r.list(ctx, messageSelect+`
        WHERE m.receiver_id IS NULL
        ORDER BY m.created_at ASC`)
}

// ListConversation returns the private messages exchanged between two users, oldest first.
func (r *PostgresMessageRepository) ListConversation(ctx context.Context, userID, otherID string) ([]models.Message, error) {
	return r.list(ctx, messageSelect+`
        WHERE (m.sender_id = $1 AND m.receiver_id = $2)
           OR (m.sender_id = $2 AND m.receiver_id = $1)
        ORDER BY m.created_at ASC`, userID, otherID)
}

func (r *PostgresMessageRepository) list(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// UpdateContent rewrites a message's text and marks it edited.
func (r *PostgresMessageRepository) UpdateContent(ctx context.Context, id, content string, at time.Time) (models.Message, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Message{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE messages SET content = $2, edited = true, updated_at = $3 WHERE id = $1
    `, id, content, at.UTC())
	if err != nil {
		return models.Message{}, translateError(err, "update message")
	}
	if tag.RowsAffected() == 0 {
		return models.Message{}, ErrNotFound
	}

	m, err := scanMessage(conn.QueryRow(ctx, messageSelect+` WHERE m.id = $1`, id))
	if err != nil {
		return models.Message{}, translateError(err, "select edited message")
	}
	return m, nil
}

// Delete removes one message.
func (r *PostgresMessageRepository) Delete(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return translateError(err, "delete message")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearGlobal deletes every global message: ordinary rows first, then event
// rows, in a single transaction so a failure leaves the feed untouched.
func (r *PostgresMessageRepository) ClearGlobal(ctx context.Context) (int64, error) {
	var removed int64
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM messages WHERE receiver_id IS NULL AND is_event_message = false`)
		if err != nil {
			return translateError(err, "delete global messages")
		}
		removed = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `DELETE FROM messages WHERE receiver_id IS NULL AND is_event_message = true`)
		if err != nil {
			return translateError(err, "delete global event messages")
		}
		removed += tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
