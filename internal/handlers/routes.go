package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/vidfriends/watchparty/internal/auth"
	"github.com/vidfriends/watchparty/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Videos    VideoService
	Markers   MarkerStore
	Reactions ReactionService
	Chat      ChatService
	Social    SocialService
	// Media is nil when no object store is configured; uploads then answer 503.
	Media    MediaStorage
	Admins   AdminChecker
	Database Pinger

	Verifier auth.TokenVerifier
	Limiter  RateLimiter
	// Live serves the websocket endpoint. It runs behind RequireAuth.
	Live http.Handler

	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter wires HTTP handlers into a chi router wrapped with request logging
// and CORS.
func NewRouter(deps Dependencies) http.Handler {
	health := HealthHandler{Database: deps.Database}
	videos := VideoHandler{Videos: deps.Videos, MarkerSource: deps.Markers, Reactions: deps.Reactions, Limiter: deps.Limiter}
	messages := MessageHandler{Chat: deps.Chat, Limiter: deps.Limiter}
	social := SocialHandler{Social: deps.Social}
	uploads := UploadHandler{Media: deps.Media, Admins: deps.Admins}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))

	r.Get("/healthz", health.Handle)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalAuth(deps.Verifier))

			r.Get("/videos", videos.List)
			r.Get("/videos/{videoID}", videos.Get)
			r.Get("/videos/{videoID}/comments", videos.Comments)
			r.Get("/videos/{videoID}/markers", videos.Markers)
			r.Get("/leaderboard", videos.Leaderboard)

			r.Get("/messages", messages.Global)
			r.Get("/chat/roster", social.Roster)

			r.Get("/profiles/{username}", social.Profile)
			r.Get("/profiles/{username}/followers", social.Followers)
			r.Get("/profiles/{username}/following", social.Following)
			r.Get("/profiles/{username}/comments", social.Comments)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(deps.Verifier))

			r.Post("/videos", videos.Create)
			r.Put("/videos/{videoID}", videos.Update)
			r.Delete("/videos/{videoID}", videos.Delete)
			r.Delete("/videos/{videoID}/markers", videos.ClearMarkers)
			r.Post("/videos/{videoID}/comments", videos.AddComment)
			r.Delete("/comments/{commentID}", videos.DeleteComment)
			r.Post("/videos/{videoID}/reactions", videos.React)
			r.Get("/videos/{videoID}/favorite", videos.IsFavorite)
			r.Post("/videos/{videoID}/favorite", videos.ToggleFavorite)
			r.Get("/videos/{videoID}/vote", videos.HasVoted)
			r.Post("/videos/{videoID}/vote", videos.ToggleVote)
			r.Post("/videos/{videoID}/watch-time", videos.AddWatchTime)
			r.Get("/favorites", videos.Favorites)
			r.Get("/watch-time", videos.WatchTimes)

			r.Post("/messages", messages.SendGlobal)
			r.Delete("/messages", messages.Clear)
			r.Get("/messages/private/{userID}", messages.Conversation)
			r.Post("/messages/private/{userID}", messages.SendPrivate)
			r.Patch("/messages/{messageID}", messages.Edit)
			r.Delete("/messages/{messageID}", messages.Delete)

			r.Post("/profiles/{username}/follow", social.ToggleFollow)
			r.Post("/profiles/{username}/comments", social.AddComment)
			r.Delete("/profile-comments/{commentID}", social.DeleteComment)
			r.Put("/settings", social.UpdateSettings)

			r.Get("/admin/users", social.Users)
			r.Post("/admin/users/{userID}/toggle-admin", social.ToggleAdmin)
			r.Get("/admin/votes", videos.VoteCounts)

			r.Post("/uploads", uploads.Create)

			if deps.Live != nil {
				r.Method(http.MethodGet, "/live", deps.Live)
			}
		})
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}
