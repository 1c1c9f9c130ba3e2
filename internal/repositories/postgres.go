package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vidfriends/watchparty/internal/db"
)

// Postgres error codes translated into repository errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

// queryExecer is satisfied by pooled connections and transactions.
type queryExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// translateError maps pgx failures onto ErrNotFound, ErrConflict and
// ErrConstraint and wraps anything else with the failed action.
func translateError(err error, action string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return ErrConflict
		case codeForeignKeyViolation:
			return ErrNotFound
		case codeCheckViolation:
			return fmt.Errorf("%w: %s", ErrConstraint, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", action, err)
}

// inTx runs fn inside a read-committed transaction on a pooled connection.
// The transaction commits when fn returns nil and rolls back otherwise.
func inTx(ctx context.Context, pool db.Pool, fn func(tx pgx.Tx) error) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return pgx.BeginTxFunc(ctx, conn, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

// toggleEdge deletes the (left, right) row from table when present and inserts
// it otherwise. It reports whether the edge exists afterwards.
func toggleEdge(ctx context.Context, pool db.Pool, table, leftCol, rightCol, left, right string) (bool, error) {
	var exists bool
	err := inTx(ctx, pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND %s = $2`, table, leftCol, rightCol),
			left, right)
		if err != nil {
			return translateError(err, "delete "+table)
		}
		if tag.RowsAffected() > 0 {
			exists = false
			return nil
		}

		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING`, table, leftCol, rightCol),
			left, right); err != nil {
			return translateError(err, "insert "+table)
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return exists, nil
}

// edgeExists reports whether table holds the (left, right) row.
func edgeExists(ctx context.Context, pool db.Pool, table, leftCol, rightCol, left, right string) (bool, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	err = conn.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1 AND %s = $2)`, table, leftCol, rightCol),
		left, right).Scan(&exists)
	if err != nil {
		return false, translateError(err, "check "+table)
	}
	return exists, nil
}
