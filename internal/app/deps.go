package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vidfriends/watchparty/internal/auth"
	"github.com/vidfriends/watchparty/internal/cache"
	"github.com/vidfriends/watchparty/internal/chat"
	"github.com/vidfriends/watchparty/internal/clock"
	"github.com/vidfriends/watchparty/internal/config"
	"github.com/vidfriends/watchparty/internal/db"
	"github.com/vidfriends/watchparty/internal/handlers"
	"github.com/vidfriends/watchparty/internal/live"
	"github.com/vidfriends/watchparty/internal/middleware"
	"github.com/vidfriends/watchparty/internal/reactions"
	"github.com/vidfriends/watchparty/internal/realtime"
	"github.com/vidfriends/watchparty/internal/repositories"
	"github.com/vidfriends/watchparty/internal/social"
	"github.com/vidfriends/watchparty/internal/storage"
	"github.com/vidfriends/watchparty/internal/videos"
)

// limiterIdleTTL is how long an idle rate limit key is remembered.
const limiterIdleTTL = 10 * time.Minute

// buildDependencies wires together concrete implementations used by the HTTP
// handlers and the live socket. The returned cleanup releases the broker and
// cache connections.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, func(context.Context) error, error) {
	var closers []func() error
	cleanup := func(context.Context) error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	var broker realtime.Broker = realtime.NewMemoryBroker()
	if cfg.NATSURL != "" {
		nb, err := realtime.NewNATSBroker(cfg.NATSURL, logger)
		if err != nil {
			return handlers.Dependencies{}, nil, err
		}
		closers = append(closers, nb.Close)
		broker = nb
		logger.Info("realtime broker configured", "kind", "nats")
	}

	var leaderboard videos.LeaderboardCache = videos.NewMemoryCache(cfg.LeaderboardCacheTTL)
	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			_ = cleanup(ctx)
			return handlers.Dependencies{}, nil, err
		}
		closers = append(closers, rdb.Close)
		leaderboard = cache.NewRedisLeaderboard(rdb, cfg.LeaderboardCacheTTL)
		logger.Info("leaderboard cache configured", "kind", "redis")
	}

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		_ = cleanup(ctx)
		return handlers.Dependencies{}, nil, err
	}

	users := repositories.NewPostgresUserRepository(pool)
	presence := repositories.NewPostgresPresenceRepository(pool)
	videoRepo := repositories.NewPostgresVideoRepository(pool)
	reactionRepo := repositories.NewPostgresReactionRepository(pool)
	comments := repositories.NewPostgresCommentRepository(pool)

	chatSvc := &chat.Service{
		Messages: repositories.NewPostgresMessageRepository(pool),
		Users:    users,
		Broker:   broker,
	}
	videoSvc := &videos.Service{
		Catalog: videoRepo,
		Threads: comments,
		Watch:   repositories.NewPostgresWatchTimeRepository(pool),
		Markers: reactionRepo,
		Users:   users,
		Cache:   leaderboard,
		Broker:  broker,
	}
	reactionSvc := &reactions.Service{
		Reactions: reactionRepo,
		Videos:    videoRepo,
		Users:     users,
		Broker:    broker,
	}
	socialSvc := &social.Service{
		Users:    users,
		Follows:  repositories.NewPostgresFollowRepository(pool),
		Counts:   presence,
		Comments: comments,
	}

	limiter := middleware.NewIPRateLimiter(cfg.ChatRateRequests, cfg.ChatRateWindow, cfg.ChatRateBurst, limiterIdleTTL)

	socket := live.Handler{
		Deps: live.Deps{
			Users:           users,
			Presence:        presence,
			Chat:            chatSvc,
			Markers:         reactionRepo,
			Reactions:       reactionSvc,
			Watch:           videoSvc,
			Broker:          broker,
			Limiter:         limiter,
			Clock:           clock.Real(),
			Heartbeat:       cfg.PresenceHeartbeat,
			OverlayDuration: cfg.OverlayDuration,
		},
		CheckOrigin: originChecker(cfg.AllowedOrigins),
	}

	deps := handlers.Dependencies{
		Videos:         videoSvc,
		Markers:        reactionRepo,
		Reactions:      reactionSvc,
		Chat:           chatSvc,
		Social:         socialSvc,
		Admins:         presence,
		Database:       handlers.PingerFunc(func(ctx context.Context) error { return db.Ping(ctx, pool) }),
		Verifier:       verifier,
		Limiter:        limiter,
		Live:           socket,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	}

	if cfg.ObjectStore.Enabled() {
		media, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			_ = cleanup(ctx)
			return handlers.Dependencies{}, nil, err
		}
		deps.Media = media
	}

	return deps, cleanup, nil
}

// originChecker admits websocket upgrades from the configured browser origins.
// Requests without an Origin header come from non-browser clients and pass.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
