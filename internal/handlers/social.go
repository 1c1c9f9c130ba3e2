package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vidfriends/watchparty/internal/auth"
	"github.com/vidfriends/watchparty/internal/models"
	"github.com/vidfriends/watchparty/internal/social"
)

// SocialHandler serves profiles, follows, profile comments, settings and the
// admin user list.
type SocialHandler struct {
	Social SocialService
}

type profileResponse struct {
	models.User
	IsFollowing bool `json:"isFollowing"`
}

type settingsRequest struct {
	Username  string `json:"username" validate:"required"`
	AvatarURL string `json:"avatarUrl" validate:"omitempty,url"`
	About     string `json:"about"`
}

// Profile handles GET /api/v1/profiles/{username}. isFollowing is false for
// anonymous callers.
func (h SocialHandler) Profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.Social.Profile(ctx, chi.URLParam(r, "username"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	resp := profileResponse{User: user}
	if identity := auth.IdentityFromContext(ctx); !identity.Anonymous() && identity.UserID != user.ID {
		following, err := h.Social.IsFollowing(ctx, identity, user.ID)
		if err != nil {
			respondError(ctx, w, err)
			return
		}
		resp.IsFollowing = following
	}
	respondJSON(ctx, w, http.StatusOK, resp)
}

// ToggleFollow handles POST /api/v1/profiles/{username}/follow.
func (h SocialHandler) ToggleFollow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.Social.Profile(ctx, chi.URLParam(r, "username"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	result, err := h.Social.ToggleFollow(ctx, auth.IdentityFromContext(ctx), user.ID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, result)
}

// Followers handles GET /api/v1/profiles/{username}/followers.
func (h SocialHandler) Followers(w http.ResponseWriter, r *http.Request) {
	h.edges(w, r, h.Social.Followers)
}

// Following handles GET /api/v1/profiles/{username}/following.
func (h SocialHandler) Following(w http.ResponseWriter, r *http.Request) {
	h.edges(w, r, h.Social.Following)
}

func (h SocialHandler) edges(w http.ResponseWriter, r *http.Request, list func(ctx context.Context, userID string) ([]models.UserSummary, error)) {
	ctx := r.Context()
	user, err := h.Social.Profile(ctx, chi.URLParam(r, "username"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	users, err := list(ctx, user.ID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if users == nil {
		users = []models.UserSummary{}
	}
	respondJSON(ctx, w, http.StatusOK, users)
}

// Comments handles GET /api/v1/profiles/{username}/comments.
func (h SocialHandler) Comments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.Social.ProfileComments(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	if comments == nil {
		comments = []models.ProfileComment{}
	}
	respondJSON(r.Context(), w, http.StatusOK, comments)
}

// AddComment handles POST /api/v1/profiles/{username}/comments.
func (h SocialHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}
	comment, err := h.Social.AddProfileComment(ctx, auth.IdentityFromContext(ctx), chi.URLParam(r, "username"), req.Content)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, comment)
}

// DeleteComment handles DELETE /api/v1/profile-comments/{commentID}.
func (h SocialHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Social.DeleteProfileComment(ctx, auth.IdentityFromContext(ctx), chi.URLParam(r, "commentID")); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateSettings handles PUT /api/v1/settings.
func (h SocialHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req settingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}
	user, err := h.Social.UpdateSettings(ctx, auth.IdentityFromContext(ctx), social.Settings{
		Username:  req.Username,
		AvatarURL: req.AvatarURL,
		About:     req.About,
	})
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, user)
}

// Roster handles GET /api/v1/chat/roster.
func (h SocialHandler) Roster(w http.ResponseWriter, r *http.Request) {
	users, err := h.Social.ChatRoster(r.Context())
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	respondJSON(r.Context(), w, http.StatusOK, users)
}

// Users handles GET /api/v1/admin/users.
func (h SocialHandler) Users(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := h.Social.ListUsers(ctx, auth.IdentityFromContext(ctx))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, users)
}

// ToggleAdmin handles POST /api/v1/admin/users/{userID}/toggle-admin.
func (h SocialHandler) ToggleAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.Social.ToggleAdmin(ctx, auth.IdentityFromContext(ctx), chi.URLParam(r, "userID"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, user)
}
