package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidfriends/watchparty/internal/config"
)

type fakePool struct{}

func (fakePool) Acquire(context.Context) (*pgxpool.Conn, error) {
	return nil, errors.New("not implemented")
}

func (fakePool) Close() {}

func testConfig() config.Config {
	return config.Config{
		AppPort:             8080,
		JWTSecret:           "0123456789abcdef0123",
		JWTIssuer:           "watchparty-test",
		AllowedOrigins:      []string{"http://localhost:5173"},
		LeaderboardCacheTTL: time.Minute,
		PresenceHeartbeat:   30 * time.Second,
		OverlayDuration:     3 * time.Second,
		ChatRateRequests:    20,
		ChatRateWindow:      time.Minute,
		ChatRateBurst:       5,
	}
}

func TestBuildDependencies(t *testing.T) {
	cfg := testConfig()
	cfg.ObjectStore = config.ObjectStoreConfig{Bucket: "test-bucket", Endpoint: "http://localhost:9000", Region: "us-east-1"}

	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	deps, cleanup, err := buildDependencies(context.Background(), fakePool{}, cfg, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cleanup == nil {
		t.Fatal("expected cleanup function")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = cleanup(ctx)
	}()

	if deps.Videos == nil {
		t.Fatal("expected video service to be configured")
	}
	if deps.Chat == nil {
		t.Fatal("expected chat service to be configured")
	}
	if deps.Social == nil {
		t.Fatal("expected social service to be configured")
	}
	if deps.Reactions == nil || deps.Markers == nil {
		t.Fatal("expected reaction service and marker store to be configured")
	}
	if deps.Verifier == nil {
		t.Fatal("expected token verifier to be configured")
	}
	if deps.Live == nil {
		t.Fatal("expected live handler to be configured")
	}
	if deps.Media == nil {
		t.Fatal("expected media storage to be configured")
	}
}

func TestBuildDependenciesWithoutObjectStore(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	deps, cleanup, err := buildDependencies(context.Background(), fakePool{}, testConfig(), logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = cleanup(context.Background()) }()

	if deps.Media != nil {
		t.Fatal("expected media storage to be left unset")
	}
}

func TestBuildDependenciesRejectsShortSecret(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = ""

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	if _, _, err := buildDependencies(context.Background(), fakePool{}, cfg, logger); err == nil {
		t.Fatal("expected error for empty jwt secret")
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://watch.example.com/"})

	cases := map[string]bool{
		"":                          true,
		"https://watch.example.com": true,
		"https://evil.example.com":  false,
	}
	for origin, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/live", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		if got := check(req); got != want {
			t.Fatalf("origin %q: expected %v got %v", origin, want, got)
		}
	}
}
