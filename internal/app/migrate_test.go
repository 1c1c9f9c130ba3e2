package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type failingExecer struct {
	beginErr error
	begins   int
}

func (f *failingExecer) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("not implemented")
}

func (f *failingExecer) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *failingExecer) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	f.begins++
	return nil, f.beginErr
}

func TestShouldRetryMigration(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"serialization", &pgconn.PgError{Code: "40001"}, true},
		{"wrapped deadlock", fmt.Errorf("apply: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"syntax", &pgconn.PgError{Code: "42601"}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"tx closed", pgx.ErrTxClosed, true},
		{"other", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := shouldRetryMigration(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v got %v", tc.name, tc.want, got)
		}
	}
}

func TestMigrationBackoff(t *testing.T) {
	if got := migrationBackoff(1); got != migrationBaseBackoff {
		t.Fatalf("expected %v got %v", migrationBaseBackoff, got)
	}
	if got := migrationBackoff(2); got != 2*migrationBaseBackoff {
		t.Fatalf("expected %v got %v", 2*migrationBaseBackoff, got)
	}
	if got := migrationBackoff(20); got != migrationMaxBackoff {
		t.Fatalf("expected cap %v got %v", migrationMaxBackoff, got)
	}
}

func TestApplyMigrationWithRetryGivesUp(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	conn := &failingExecer{beginErr: &pgconn.PgError{Code: "40001"}}

	err := applyMigrationWithRetry(context.Background(), logger, conn, "0001.sql", "SELECT 1")
	if err == nil {
		t.Fatal("expected error after retries")
	}
	if conn.begins != migrationMaxRetries {
		t.Fatalf("expected %d attempts got %d", migrationMaxRetries, conn.begins)
	}
}

func TestApplyMigrationWithRetryStopsOnPermanentError(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	conn := &failingExecer{beginErr: errors.New("permission denied")}

	if err := applyMigrationWithRetry(context.Background(), logger, conn, "0001.sql", "SELECT 1"); err == nil {
		t.Fatal("expected error")
	}
	if conn.begins != 1 {
		t.Fatalf("expected a single attempt got %d", conn.begins)
	}
}

func TestApplyMigrationWithRetryHonoursContext(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	conn := &failingExecer{beginErr: &pgconn.PgError{Code: "40001"}}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := applyMigrationWithRetry(ctx, logger, conn, "0001.sql", "SELECT 1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded got %v", err)
	}
}

func TestListMigrations(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_b.sql", "0001_a.sql", "README.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "0003_dir.sql"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, err := listMigrations(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "0001_a.sql" || got[1] != "0002_b.sql" {
		t.Fatalf("unexpected migrations %v", got)
	}
}

func TestResolveDir(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "migrations")
	if got, _ := resolveDir(abs); got != abs {
		t.Fatalf("expected absolute dir unchanged got %s", got)
	}
	got, err := resolveDir("migrations")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !filepath.IsAbs(got) {
		t.Fatalf("expected absolute path got %s", got)
	}
}
