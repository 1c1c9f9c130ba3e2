package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vidfriends/watchparty/internal/apierr"
	"github.com/vidfriends/watchparty/internal/auth"
	"github.com/vidfriends/watchparty/internal/models"
	"github.com/vidfriends/watchparty/internal/player"
	"github.com/vidfriends/watchparty/internal/videos"
)

// VideoHandler serves the catalog, comments, markers and per-user toggles.
type VideoHandler struct {
	Videos       VideoService
	MarkerSource MarkerStore
	Reactions    ReactionService
	Limiter      RateLimiter
}

type videoRequest struct {
	Title           string `json:"title" validate:"required,max=200"`
	Description     string `json:"description" validate:"max=5000"`
	URL             string `json:"url" validate:"required,url"`
	ThumbnailURL    string `json:"thumbnailUrl" validate:"omitempty,url"`
	DurationSeconds int    `json:"durationSeconds" validate:"gte=0"`
}

func (r videoRequest) input() videos.VideoInput {
	return videos.VideoInput{
		Title:           r.Title,
		Description:     r.Description,
		URL:             r.URL,
		ThumbnailURL:    r.ThumbnailURL,
		DurationSeconds: r.DurationSeconds,
	}
}

type commentRequest struct {
	Content string `json:"content" validate:"required"`
}

type reactionRequest struct {
	Position float64 `json:"position" validate:"gte=0"`
	HeldMS   int64   `json:"heldMs" validate:"gte=0"`
}

type watchTimeRequest struct {
	Seconds int `json:"seconds" validate:"gt=0,lte=3600"`
}

type markersResponse struct {
	Markers []models.MarkerView `json:"markers"`
	Groups  []player.GroupView  `json:"groups"`
}

type toggleResponse struct {
	Active bool `json:"active"`
}

// List handles GET /api/v1/videos.
func (h VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.Videos.List(r.Context())
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, list)
}

// Get handles GET /api/v1/videos/{videoID}.
func (h VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	video, err := h.Videos.Get(r.Context(), chi.URLParam(r, "videoID"))
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, video)
}

// Create handles POST /api/v1/videos.
func (h VideoHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req videoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}
	video, err := h.Videos.Upload(ctx, auth.IdentityFromContext(ctx), req.input())
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, video)
}

// Update handles PUT /api/v1/videos/{videoID}.
func (h VideoHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req videoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}
	video, err := h.Videos.Update(ctx, auth.IdentityFromContext(ctx), chi.URLParam(r, "videoID"), req.input())
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, video)
}

// Delete handles DELETE /api/v1/videos/{videoID}.
func (h VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Videos.Delete(ctx, auth.IdentityFromContext(ctx), chi.URLParam(r, "videoID")); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Comments handles GET /api/v1/videos/{videoID}/comments.
func (h VideoHandler) Comments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.Videos.Comments(r.Context(), chi.URLParam(r, "videoID"))
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, comments)
}

// AddComment handles POST /api/v1/videos/{videoID}/comments.
func (h VideoHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}
	comment, err := h.Videos.AddComment(ctx, auth.IdentityFromContext(ctx), chi.URLParam(r, "videoID"), req.Content)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, comment)
}

// DeleteComment handles DELETE /api/v1/comments/{commentID}.
func (h VideoHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Videos.DeleteComment(ctx, auth.IdentityFromContext(ctx), chi.URLParam(r, "commentID")); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Markers handles GET /api/v1/videos/{videoID}/markers. Markers come back
// alongside their per-second groups.
func (h VideoHandler) Markers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	markers, err := h.MarkerSource.Markers(ctx, chi.URLParam(r, "videoID"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if markers == nil {
		markers = []models.MarkerView{}
	}
	respondJSON(ctx, w, http.StatusOK, markersResponse{
		Markers: markers,
		Groups:  player.Views(player.GroupMarkers(markers)),
	})
}

// ClearMarkers handles DELETE /api/v1/videos/{videoID}/markers.
func (h VideoHandler) ClearMarkers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	removed, err := h.Videos.ClearMarkers(ctx, auth.IdentityFromContext(ctx), chi.URLParam(r, "videoID"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, clearResponse{Removed: removed})
}

// React handles POST /api/v1/videos/{videoID}/reactions.
func (h VideoHandler) React(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := auth.IdentityFromContext(ctx)
	if !allowRequest(h.Limiter, r, "react:"+identity.UserID) {
		respondError(ctx, w, apierr.ErrRateLimited)
		return
	}
	var req reactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}
	held := time.Duration(req.HeldMS) * time.Millisecond
	result, err := h.Reactions.Record(ctx, identity, chi.URLParam(r, "videoID"), req.Position, held)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, result)
}

// IsFavorite handles GET /api/v1/videos/{videoID}/favorite.
func (h VideoHandler) IsFavorite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	on, err := h.Videos.IsFavorite(ctx, auth.IdentityFromContext(ctx), chi.URLParam(r, "videoID"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, toggleResponse{Active: on})
}

// ToggleFavorite handles POST /api/v1/videos/{videoID}/favorite.
func (h VideoHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	on, err := h.Videos.ToggleFavorite(ctx, auth.IdentityFromContext(ctx), chi.URLParam(r, "videoID"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, toggleResponse{Active: on})
}

// HasVoted handles GET /api/v1/videos/{videoID}/vote.
func (h VideoHandler) HasVoted(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	on, err := h.Videos.HasVoted(ctx, auth.IdentityFromContext(ctx), chi.URLParam(r, "videoID"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, toggleResponse{Active: on})
}

// ToggleVote handles POST /api/v1/videos/{videoID}/vote.
func (h VideoHandler) ToggleVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	on, err := h.Videos.ToggleVote(ctx, auth.IdentityFromContext(ctx), chi.URLParam(r, "videoID"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, toggleResponse{Active: on})
}

// Favorites handles GET /api/v1/favorites.
func (h VideoHandler) Favorites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.Videos.Favorites(ctx, auth.IdentityFromContext(ctx).UserID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, list)
}

// AddWatchTime handles POST /api/v1/videos/{videoID}/watch-time.
func (h VideoHandler) AddWatchTime(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req watchTimeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}
	if err := h.Videos.AddWatchTime(ctx, auth.IdentityFromContext(ctx).UserID, chi.URLParam(r, "videoID"), req.Seconds); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WatchTimes handles GET /api/v1/watch-time.
func (h VideoHandler) WatchTimes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.Videos.WatchTimes(ctx, auth.IdentityFromContext(ctx).UserID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, list)
}

// Leaderboard handles GET /api/v1/leaderboard.
func (h VideoHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Videos.Leaderboard(r.Context())
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	respondJSON(r.Context(), w, http.StatusOK, entries)
}

// VoteCounts handles GET /api/v1/admin/votes.
func (h VideoHandler) VoteCounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	counts, err := h.Videos.VoteCounts(ctx, auth.IdentityFromContext(ctx))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, counts)
}
