package handlers

import (
	"context"
	"io"
	"time"

	"github.com/vidfriends/watchparty/internal/access"
	"github.com/vidfriends/watchparty/internal/chat"
	"github.com/vidfriends/watchparty/internal/models"
	"github.com/vidfriends/watchparty/internal/reactions"
	"github.com/vidfriends/watchparty/internal/social"
	"github.com/vidfriends/watchparty/internal/videos"
)

// VideoService captures the catalog operations behind the video endpoints.
type VideoService interface {
	List(ctx context.Context) ([]models.Video, error)
	Get(ctx context.Context, id string) (models.Video, error)
	Upload(ctx context.Context, actor access.Identity, in videos.VideoInput) (models.Video, error)
	Update(ctx context.Context, actor access.Identity, id string, in videos.VideoInput) (models.Video, error)
	Delete(ctx context.Context, actor access.Identity, id string) error
	ClearMarkers(ctx context.Context, actor access.Identity, videoID string) (int64, error)
	Comments(ctx context.Context, videoID string) ([]models.VideoComment, error)
	AddComment(ctx context.Context, actor access.Identity, videoID, content string) (models.VideoComment, error)
	DeleteComment(ctx context.Context, actor access.Identity, id string) error
	ToggleFavorite(ctx context.Context, actor access.Identity, videoID string) (bool, error)
	IsFavorite(ctx context.Context, actor access.Identity, videoID string) (bool, error)
	Favorites(ctx context.Context, userID string) ([]models.Video, error)
	ToggleVote(ctx context.Context, actor access.Identity, videoID string) (bool, error)
	HasVoted(ctx context.Context, actor access.Identity, videoID string) (bool, error)
	VoteCounts(ctx context.Context, actor access.Identity) ([]models.VoteCount, error)
	AddWatchTime(ctx context.Context, userID, videoID string, seconds int) error
	WatchTimes(ctx context.Context, userID string) ([]models.WatchTime, error)
	Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error)
}

// MarkerStore loads a video's reaction markers.
type MarkerStore interface {
	Markers(ctx context.Context, videoID string) ([]models.MarkerView, error)
}

// ReactionService records reactions.
type ReactionService interface {
	Record(ctx context.Context, actor access.Identity, videoID string, position float64, held time.Duration) (reactions.Result, error)
}

// ChatService captures the chat write and read paths.
type ChatService interface {
	GlobalMessages(ctx context.Context) ([]models.Message, error)
	Conversation(ctx context.Context, actor access.Identity, otherID string) ([]models.Message, error)
	SendGlobal(ctx context.Context, actor access.Identity, content, replyTo string, opts chat.SendOptions) (models.Message, error)
	SendPrivate(ctx context.Context, actor access.Identity, receiverID, content string) (models.Message, error)
	Edit(ctx context.Context, actor access.Identity, id, content string) (models.Message, error)
	Delete(ctx context.Context, actor access.Identity, id string) error
	ClearGlobal(ctx context.Context, actor access.Identity) (int64, error)
}

// SocialService captures profiles, follows, settings and user administration.
type SocialService interface {
	Profile(ctx context.Context, username string) (models.User, error)
	IsFollowing(ctx context.Context, actor access.Identity, userID string) (bool, error)
	ToggleFollow(ctx context.Context, actor access.Identity, userID string) (social.FollowResult, error)
	Followers(ctx context.Context, userID string) ([]models.UserSummary, error)
	Following(ctx context.Context, userID string) ([]models.UserSummary, error)
	ProfileComments(ctx context.Context, username string) ([]models.ProfileComment, error)
	AddProfileComment(ctx context.Context, actor access.Identity, username, content string) (models.ProfileComment, error)
	DeleteProfileComment(ctx context.Context, actor access.Identity, id string) error
	UpdateSettings(ctx context.Context, actor access.Identity, in social.Settings) (models.User, error)
	ChatRoster(ctx context.Context) ([]models.User, error)
	ListUsers(ctx context.Context, actor access.Identity) ([]models.User, error)
	ToggleAdmin(ctx context.Context, actor access.Identity, targetID string) (models.User, error)
}

// MediaStorage persists uploaded media and returns its public location.
type MediaStorage interface {
	Save(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
}

// AdminChecker reports whether a user holds the admin flag.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}
