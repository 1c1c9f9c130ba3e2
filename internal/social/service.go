// Package social covers profiles, the follow graph, profile comments, account
// settings and admin management of users.
package social

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/vidfriends/watchparty/internal/access"
	"github.com/vidfriends/watchparty/internal/logging"
	"github.com/vidfriends/watchparty/internal/models"
	"github.com/vidfriends/watchparty/internal/repositories"
)

const (
	// MaxCommentLength bounds a profile comment in characters.
	MaxCommentLength = 1000
	// MaxUsernameLength bounds a username in characters.
	MaxUsernameLength = 32
	// MaxAboutLength bounds the profile about text in characters.
	MaxAboutLength = 500
)

var (
	// ErrSelfFollow indicates a user attempted to follow themselves.
	ErrSelfFollow = errors.New("cannot follow yourself")
	// ErrInvalidUsername indicates an empty, overlong or whitespace-containing username.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrAboutTooLong indicates profile about text over MaxAboutLength characters.
	ErrAboutTooLong = errors.New("about text is too long")
	// ErrEmptyComment indicates a comment with no visible text.
	ErrEmptyComment = errors.New("comment is empty")
	// ErrCommentTooLong indicates a comment over MaxCommentLength characters.
	ErrCommentTooLong = errors.New("comment is too long")
)

// UserStore reads and edits user rows.
type UserStore interface {
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Roster(ctx context.Context) ([]models.User, error)
	UpdateProfile(ctx context.Context, id, username, avatarURL, about string) (models.User, error)
	SetAdmin(ctx context.Context, id string, isAdmin bool) error
}

// FollowStore manages follow edges.
type FollowStore interface {
	Toggle(ctx context.Context, followerID, followingID string) (bool, error)
	IsFollowing(ctx context.Context, followerID, followingID string) (bool, error)
	Followers(ctx context.Context, userID string) ([]models.UserSummary, error)
	Following(ctx context.Context, userID string) ([]models.UserSummary, error)
}

// CountRefresher recomputes a user's cached follow counts.
type CountRefresher interface {
	RefreshFollowCounts(ctx context.Context, userID string) (followers, following int, err error)
}

// CommentStore persists profile comments.
type CommentStore interface {
	CreateProfileComment(ctx context.Context, c models.ProfileComment) error
	ProfileComments(ctx context.Context, profileUsername string) ([]models.ProfileComment, error)
	FindProfileComment(ctx context.Context, id string) (models.ProfileComment, error)
	DeleteProfileComment(ctx context.Context, id string) error
}

// FollowResult is the state after a follow toggle.
type FollowResult struct {
	Following      bool `json:"following"`
	FollowersCount int  `json:"followersCount"`
	FollowingCount int  `json:"followingCount"`
}

// Settings are the user-editable profile fields.
type Settings struct {
	Username  string
	AvatarURL string
	About     string
}

// Service implements the social operations.
type Service struct {
	Users    UserStore
	Follows  FollowStore
	Counts   CountRefresher
	Comments CommentStore
	NowFunc  func() time.Time
}

// NormalizeUsername trims a username and strips a leading @.
func NormalizeUsername(username string) string {
	return strings.TrimPrefix(strings.TrimSpace(username), "@")
}

// Profile loads a user by username.
func (s *Service) Profile(ctx context.Context, username string) (models.User, error) {
	user, err := s.Users.FindByUsername(ctx, NormalizeUsername(username))
	if err != nil {
		return models.User{}, fmt.Errorf("load profile: %w", err)
	}
	return user, nil
}

// IsFollowing reports whether the actor follows userID.
func (s *Service) IsFollowing(ctx context.Context, actor access.Identity, userID string) (bool, error) {
	if actor.Anonymous() || actor.UserID == userID {
		return false, nil
	}
	following, err := s.Follows.IsFollowing(ctx, actor.UserID, userID)
	if err != nil {
		return false, fmt.Errorf("check follow: %w", err)
	}
	return following, nil
}

// ToggleFollow follows or unfollows userID and recomputes both users' cached
// counts. The returned counts belong to the followed user.
func (s *Service) ToggleFollow(ctx context.Context, actor access.Identity, userID string) (FollowResult, error) {
	if err := access.Require(actor); err != nil {
		return FollowResult{}, err
	}
	if actor.UserID == userID {
		return FollowResult{}, ErrSelfFollow
	}

	following, err := s.Follows.Toggle(ctx, actor.UserID, userID)
	if err != nil {
		return FollowResult{}, fmt.Errorf("toggle follow: %w", err)
	}

	result := FollowResult{Following: following}
	result.FollowersCount, result.FollowingCount, err = s.Counts.RefreshFollowCounts(ctx, userID)
	if err != nil {
		return FollowResult{}, fmt.Errorf("refresh followed counts: %w", err)
	}
	if _, _, err := s.Counts.RefreshFollowCounts(ctx, actor.UserID); err != nil {
		return FollowResult{}, fmt.Errorf("refresh follower counts: %w", err)
	}

	logging.FromContext(ctx).Info("follow toggled", "target_id", userID, "following", following)
	return result, nil
}

// Followers lists the users following userID.
func (s *Service) Followers(ctx context.Context, userID string) ([]models.UserSummary, error) {
	users, err := s.Follows.Followers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list followers: %w", err)
	}
	return users, nil
}

// Following lists the users userID follows.
func (s *Service) Following(ctx context.Context, userID string) ([]models.UserSummary, error) {
	users, err := s.Follows.Following(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list following: %w", err)
	}
	return users, nil
}

// ProfileComments lists the comments on a profile newest first.
func (s *Service) ProfileComments(ctx context.Context, username string) ([]models.ProfileComment, error) {
	comments, err := s.Comments.ProfileComments(ctx, NormalizeUsername(username))
	if err != nil {
		return nil, fmt.Errorf("list profile comments: %w", err)
	}
	return comments, nil
}

// AddProfileComment posts a comment on username's profile.
func (s *Service) AddProfileComment(ctx context.Context, actor access.Identity, username, content string) (models.ProfileComment, error) {
	if err := access.Require(actor); err != nil {
		return models.ProfileComment{}, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return models.ProfileComment{}, ErrEmptyComment
	}
	if utf8.RuneCountInString(content) > MaxCommentLength {
		return models.ProfileComment{}, ErrCommentTooLong
	}

	profile, err := s.Profile(ctx, username)
	if err != nil {
		return models.ProfileComment{}, err
	}

	comment := models.ProfileComment{
		ID:              uuid.NewString(),
		UserID:          actor.UserID,
		ProfileUsername: profile.Username,
		Content:         content,
		CreatedAt:       s.now(),
		Author:          models.UserSummary{ID: actor.UserID, Username: actor.Username, AvatarURL: actor.AvatarURL},
	}
	if err := s.Comments.CreateProfileComment(ctx, comment); err != nil {
		return models.ProfileComment{}, fmt.Errorf("create profile comment: %w", err)
	}
	if author, err := s.Users.FindByID(ctx, actor.UserID); err == nil {
		comment.Author = author.Summary()
	}
	return comment, nil
}

// DeleteProfileComment removes a profile comment. The author, the profile's
// owner and admins may delete it.
func (s *Service) DeleteProfileComment(ctx context.Context, actor access.Identity, id string) error {
	if err := access.Require(actor); err != nil {
		return err
	}
	comment, err := s.Comments.FindProfileComment(ctx, id)
	if err != nil {
		return fmt.Errorf("load profile comment: %w", err)
	}

	actorUser, err := s.Users.FindByID(ctx, actor.UserID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("load actor: %w", err)
	}
	owners := []string{comment.UserID}
	if actorUser.Username != "" && actorUser.Username == comment.ProfileUsername {
		owners = append(owners, actor.UserID)
	}
	if err := access.RequireOwnerOrAdmin(actor, actorUser.IsAdmin, owners...); err != nil {
		return err
	}

	if err := s.Comments.DeleteProfileComment(ctx, comment.ID); err != nil {
		return fmt.Errorf("delete profile comment: %w", err)
	}
	return nil
}

// UpdateSettings saves the actor's profile fields. A taken username surfaces
// as repositories.ErrConflict.
func (s *Service) UpdateSettings(ctx context.Context, actor access.Identity, in Settings) (models.User, error) {
	if err := access.Require(actor); err != nil {
		return models.User{}, err
	}
	username := NormalizeUsername(in.Username)
	if err := ValidateUsername(username); err != nil {
		return models.User{}, err
	}
	about := strings.TrimSpace(in.About)
	if utf8.RuneCountInString(about) > MaxAboutLength {
		return models.User{}, ErrAboutTooLong
	}

	user, err := s.Users.UpdateProfile(ctx, actor.UserID, username, strings.TrimSpace(in.AvatarURL), about)
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return models.User{}, fmt.Errorf("username %q taken: %w", username, err)
		}
		return models.User{}, fmt.Errorf("update settings: %w", err)
	}
	return user, nil
}

// ValidateUsername checks a normalized username.
func ValidateUsername(username string) error {
	if username == "" || utf8.RuneCountInString(username) > MaxUsernameLength {
		return ErrInvalidUsername
	}
	if strings.IndexFunc(username, unicode.IsSpace) >= 0 {
		return ErrInvalidUsername
	}
	return nil
}

// ChatRoster lists users online first, then by most recent activity.
func (s *Service) ChatRoster(ctx context.Context) ([]models.User, error) {
	users, err := s.Users.Roster(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	return users, nil
}

// ListUsers returns every user newest first. Admin only.
func (s *Service) ListUsers(ctx context.Context, actor access.Identity) ([]models.User, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	users, err := s.Users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// ToggleAdmin flips the target's admin flag and returns the updated user.
func (s *Service) ToggleAdmin(ctx context.Context, actor access.Identity, targetID string) (models.User, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return models.User{}, err
	}
	target, err := s.Users.FindByID(ctx, targetID)
	if err != nil {
		return models.User{}, fmt.Errorf("load target: %w", err)
	}
	target.IsAdmin = !target.IsAdmin
	if err := s.Users.SetAdmin(ctx, target.ID, target.IsAdmin); err != nil {
		return models.User{}, fmt.Errorf("set admin: %w", err)
	}

	logging.FromContext(ctx).Info("admin flag changed", "target_id", target.ID, "is_admin", target.IsAdmin)
	return target, nil
}

func (s *Service) requireAdmin(ctx context.Context, actor access.Identity) error {
	if err := access.Require(actor); err != nil {
		return err
	}
	user, err := s.Users.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return access.ErrForbidden
		}
		return fmt.Errorf("load actor: %w", err)
	}
	return access.RequireAdmin(actor, user.IsAdmin)
}

func (s *Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return time.Now().UTC()
}
