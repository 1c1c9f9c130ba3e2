// Package videos manages the curated catalog and everything hung off a video:
// comments, favorites, votes, watch time and the watch-time leaderboard.
package videos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/vidfriends/watchparty/internal/access"
	"github.com/vidfriends/watchparty/internal/logging"
	"github.com/vidfriends/watchparty/internal/models"
	"github.com/vidfriends/watchparty/internal/realtime"
	"github.com/vidfriends/watchparty/internal/repositories"
)

// MaxCommentLength bounds a video comment in characters.
const MaxCommentLength = 1000

// LeaderboardSize is how many videos the leaderboard ranks.
const LeaderboardSize = 50

// Catalog persists videos and the per-user favorite and vote edges.
type Catalog interface {
	Create(ctx context.Context, video models.Video) error
	Update(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	List(ctx context.Context) ([]models.Video, error)
	Delete(ctx context.Context, id string) (int64, error)
	ToggleFavorite(ctx context.Context, userID, videoID string) (bool, error)
	IsFavorite(ctx context.Context, userID, videoID string) (bool, error)
	Favorites(ctx context.Context, userID string) ([]models.Video, error)
	ToggleVote(ctx context.Context, userID, videoID string) (bool, error)
	HasVoted(ctx context.Context, userID, videoID string) (bool, error)
	VoteCounts(ctx context.Context) ([]models.VoteCount, error)
}

// CommentStore persists video comments.
type CommentStore interface {
	CreateVideoComment(ctx context.Context, c models.VideoComment) error
	VideoComments(ctx context.Context, videoID string) ([]models.VideoComment, error)
	FindVideoComment(ctx context.Context, id string) (models.VideoComment, error)
	DeleteVideoComment(ctx context.Context, id string) error
}

// WatchTimeStore accumulates watch time and ranks videos by it.
type WatchTimeStore interface {
	Add(ctx context.Context, userID, videoID string, seconds int, at time.Time) error
	ForUser(ctx context.Context, userID string) ([]models.WatchTime, error)
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

// MarkerClearer bulk-removes the reaction markers of a video.
type MarkerClearer interface {
	ClearMarkers(ctx context.Context, videoID string) (int64, error)
}

// UserLookup resolves the acting user for admin checks.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// VideoInput carries the editable fields of a video.
type VideoInput struct {
	Title           string
	Description     string
	URL             string
	ThumbnailURL    string
	DurationSeconds int
}

// Service coordinates catalog reads and writes.
type Service struct {
	Catalog Catalog
	Threads CommentStore
	Watch   WatchTimeStore
	Markers MarkerClearer
	Users   UserLookup
	Cache   LeaderboardCache
	Broker  realtime.Broker
	NowFunc func() time.Time
}

// List returns the catalog newest first.
func (s *Service) List(ctx context.Context) ([]models.Video, error) {
	videos, err := s.Catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return videos, nil
}

// Get returns one video.
func (s *Service) Get(ctx context.Context, id string) (models.Video, error) {
	video, err := s.Catalog.FindByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return models.Video{}, fmt.Errorf("load video: %w", err)
	}
	return video, nil
}

// Upload adds a video to the catalog. Only admins curate the catalog.
func (s *Service) Upload(ctx context.Context, actor access.Identity, in VideoInput) (models.Video, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return models.Video{}, err
	}
	in, err := normalizeInput(in)
	if err != nil {
		return models.Video{}, err
	}

	now := s.now()
	video := models.Video{
		ID:              uuid.NewString(),
		Title:           in.Title,
		Description:     in.Description,
		URL:             in.URL,
		ThumbnailURL:    in.ThumbnailURL,
		UploadedBy:      actor.UserID,
		DurationSeconds: in.DurationSeconds,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.Catalog.Create(ctx, video); err != nil {
		return models.Video{}, fmt.Errorf("create video: %w", err)
	}

	logging.FromContext(ctx).Info("video uploaded", "video_id", video.ID)
	return video, nil
}

// Update replaces a video's editable fields.
func (s *Service) Update(ctx context.Context, actor access.Identity, id string, in VideoInput) (models.Video, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return models.Video{}, err
	}
	in, err := normalizeInput(in)
	if err != nil {
		return models.Video{}, err
	}

	video, err := s.Catalog.FindByID(ctx, id)
	if err != nil {
		return models.Video{}, fmt.Errorf("load video: %w", err)
	}
	video.Title = in.Title
	video.Description = in.Description
	video.URL = in.URL
	video.ThumbnailURL = in.ThumbnailURL
	video.DurationSeconds = in.DurationSeconds
	video.UpdatedAt = s.now()

	if err := s.Catalog.Update(ctx, video); err != nil {
		return models.Video{}, fmt.Errorf("update video: %w", err)
	}
	s.invalidateLeaderboard(ctx)
	return video, nil
}

// Delete removes a video together with its markers and tells mounted players
// to refresh their timeline.
func (s *Service) Delete(ctx context.Context, actor access.Identity, id string) error {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return err
	}
	removed, err := s.Catalog.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}

	realtime.Notify(ctx, s.Broker, realtime.TableMarkers, realtime.Delete, nil, nil, map[string]string{"video_id": id})
	s.invalidateLeaderboard(ctx)

	logging.FromContext(ctx).Info("video deleted", "video_id", id, "markers_removed", removed)
	return nil
}

// ClearMarkers removes every reaction marker on a video and tells mounted
// players to refetch. Admin only.
func (s *Service) ClearMarkers(ctx context.Context, actor access.Identity, videoID string) (int64, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return 0, err
	}
	if _, err := s.Catalog.FindByID(ctx, videoID); err != nil {
		return 0, fmt.Errorf("load video: %w", err)
	}
	removed, err := s.Markers.ClearMarkers(ctx, videoID)
	if err != nil {
		return 0, fmt.Errorf("clear markers: %w", err)
	}

	realtime.Notify(ctx, s.Broker, realtime.TableMarkers, realtime.Delete, nil, nil, map[string]string{"video_id": videoID})
	logging.FromContext(ctx).Info("markers cleared", "video_id", videoID, "removed", removed, "by", actor.UserID)
	return removed, nil
}

// Comments lists a video's comments newest first.
func (s *Service) Comments(ctx context.Context, videoID string) ([]models.VideoComment, error) {
	comments, err := s.Threads.VideoComments(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// AddComment posts a comment under a video.
func (s *Service) AddComment(ctx context.Context, actor access.Identity, videoID, content string) (models.VideoComment, error) {
	if err := access.Require(actor); err != nil {
		return models.VideoComment{}, err
	}
	content, err := ValidateComment(content)
	if err != nil {
		return models.VideoComment{}, err
	}

	comment := models.VideoComment{
		ID:        uuid.NewString(),
		VideoID:   videoID,
		UserID:    actor.UserID,
		Content:   content,
		CreatedAt: s.now(),
		Author:    models.UserSummary{ID: actor.UserID, Username: actor.Username, AvatarURL: actor.AvatarURL},
	}
	if err := s.Threads.CreateVideoComment(ctx, comment); err != nil {
		return models.VideoComment{}, fmt.Errorf("create comment: %w", err)
	}
	if user, err := s.Users.FindByID(ctx, actor.UserID); err == nil {
		comment.Author = user.Summary()
	}
	return comment, nil
}

// DeleteComment removes a comment. Its author and admins may delete it.
func (s *Service) DeleteComment(ctx context.Context, actor access.Identity, id string) error {
	if err := access.Require(actor); err != nil {
		return err
	}
	comment, err := s.Threads.FindVideoComment(ctx, id)
	if err != nil {
		return fmt.Errorf("load comment: %w", err)
	}
	if comment.UserID != actor.UserID {
		isAdmin, err := s.isAdmin(ctx, actor)
		if err != nil {
			return err
		}
		if err := access.RequireOwnerOrAdmin(actor, isAdmin, comment.UserID); err != nil {
			return err
		}
	}
	if err := s.Threads.DeleteVideoComment(ctx, comment.ID); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

// ToggleFavorite flips the actor's favorite on a video and reports the new state.
func (s *Service) ToggleFavorite(ctx context.Context, actor access.Identity, videoID string) (bool, error) {
	if err := access.Require(actor); err != nil {
		return false, err
	}
	on, err := s.Catalog.ToggleFavorite(ctx, actor.UserID, videoID)
	if err != nil {
		return false, fmt.Errorf("toggle favorite: %w", err)
	}
	return on, nil
}

// IsFavorite reports whether the actor has favorited the video.
func (s *Service) IsFavorite(ctx context.Context, actor access.Identity, videoID string) (bool, error) {
	if actor.Anonymous() {
		return false, nil
	}
	on, err := s.Catalog.IsFavorite(ctx, actor.UserID, videoID)
	if err != nil {
		return false, fmt.Errorf("check favorite: %w", err)
	}
	return on, nil
}

// Favorites lists the videos a user has favorited.
func (s *Service) Favorites(ctx context.Context, userID string) ([]models.Video, error) {
	videos, err := s.Catalog.Favorites(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	return videos, nil
}

// ToggleVote flips the actor's vote on a video and reports the new state.
func (s *Service) ToggleVote(ctx context.Context, actor access.Identity, videoID string) (bool, error) {
	if err := access.Require(actor); err != nil {
		return false, err
	}
	on, err := s.Catalog.ToggleVote(ctx, actor.UserID, videoID)
	if err != nil {
		return false, fmt.Errorf("toggle vote: %w", err)
	}
	return on, nil
}

// HasVoted reports whether the actor has voted for the video.
func (s *Service) HasVoted(ctx context.Context, actor access.Identity, videoID string) (bool, error) {
	if actor.Anonymous() {
		return false, nil
	}
	on, err := s.Catalog.HasVoted(ctx, actor.UserID, videoID)
	if err != nil {
		return false, fmt.Errorf("check vote: %w", err)
	}
	return on, nil
}

// VoteCounts totals votes per video for the admin dashboard.
func (s *Service) VoteCounts(ctx context.Context, actor access.Identity) ([]models.VoteCount, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	counts, err := s.Catalog.VoteCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count votes: %w", err)
	}
	return counts, nil
}

// AddWatchTime adds seconds to the user's watch time on a video.
func (s *Service) AddWatchTime(ctx context.Context, userID, videoID string, seconds int) error {
	if strings.TrimSpace(userID) == "" {
		return access.ErrUnauthenticated
	}
	if seconds <= 0 {
		return ErrInvalidWatchTime
	}
	if err := s.Watch.Add(ctx, userID, videoID, seconds, s.now()); err != nil {
		return fmt.Errorf("add watch time: %w", err)
	}
	return nil
}

// WatchTimes lists a user's watch time per video.
func (s *Service) WatchTimes(ctx context.Context, userID string) ([]models.WatchTime, error) {
	entries, err := s.Watch.ForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list watch time: %w", err)
	}
	return entries, nil
}

// Leaderboard ranks videos by total watch time. Results are served from the
// cache while fresh; cache failures fall through to the database.
func (s *Service) Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error) {
	logger := logging.FromContext(ctx)
	if s.Cache != nil {
		entries, ok, err := s.Cache.Load(ctx)
		if err != nil {
			logger.Warn("load cached leaderboard", "error", err)
		} else if ok {
			return entries, nil
		}
	}

	entries, err := s.Watch.Leaderboard(ctx, LeaderboardSize)
	if err != nil {
		return nil, fmt.Errorf("compute leaderboard: %w", err)
	}
	if s.Cache != nil {
		if err := s.Cache.Store(ctx, entries); err != nil {
			logger.Warn("store cached leaderboard", "error", err)
		}
	}
	return entries, nil
}

// ValidateComment trims content and enforces the comment length bounds.
func ValidateComment(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyComment
	}
	if utf8.RuneCountInString(content) > MaxCommentLength {
		return "", ErrCommentTooLong
	}
	return content, nil
}

func normalizeInput(in VideoInput) (VideoInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.URL = strings.TrimSpace(in.URL)
	in.ThumbnailURL = strings.TrimSpace(in.ThumbnailURL)
	if in.Title == "" || in.URL == "" || in.DurationSeconds < 0 {
		return VideoInput{}, ErrInvalidVideo
	}
	return in, nil
}

func (s *Service) invalidateLeaderboard(ctx context.Context) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx); err != nil {
		logging.FromContext(ctx).Warn("invalidate leaderboard", "error", err)
	}
}

func (s *Service) requireAdmin(ctx context.Context, actor access.Identity) error {
	if err := access.Require(actor); err != nil {
		return err
	}
	isAdmin, err := s.isAdmin(ctx, actor)
	if err != nil {
		return err
	}
	return access.RequireAdmin(actor, isAdmin)
}

func (s *Service) isAdmin(ctx context.Context, actor access.Identity) (bool, error) {
	user, err := s.Users.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load actor: %w", err)
	}
	return user.IsAdmin, nil
}

func (s *Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return time.Now().UTC()
}
