// Package reactions records a viewer's reaction and fans it out to the marker
// timeline, the reaction log and the global chat.
package reactions

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/vidfriends/watchparty/internal/access"
	"github.com/vidfriends/watchparty/internal/logging"
	"github.com/vidfriends/watchparty/internal/models"
	"github.com/vidfriends/watchparty/internal/realtime"
	"github.com/vidfriends/watchparty/internal/repositories"
	"github.com/vidfriends/watchparty/internal/timecode"
)

// AnonymousName is used when the reacting user has no display name.
const AnonymousName = "Anonymous"

// ErrTimestampOutOfRange indicates a reaction placed before the start or past
// the end of the video.
var ErrTimestampOutOfRange = errors.New("reaction timestamp out of range")

// Store writes the rows of a reaction atomically.
type Store interface {
	Record(ctx context.Context, w repositories.ReactionWrite) error
}

// VideoLookup loads the reacted-to video.
type VideoLookup interface {
	FindByID(ctx context.Context, id string) (models.Video, error)
}

// UserLookup loads the reacting user.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// Result is everything a reaction wrote.
type Result struct {
	Event        models.ReactionEvent `json:"event"`
	Marker       models.Marker        `json:"marker"`
	Announcement models.Message       `json:"announcement"`
}

// Service is the reaction write path.
type Service struct {
	Reactions Store
	Videos    VideoLookup
	Users     UserLookup
	Broker    realtime.Broker
	NowFunc   func() time.Time
}

// Announcement is the chat line posted for a reaction.
func Announcement(username string, second int) string {
	return fmt.Sprintf("🔥 %s reacted at %s!", username, timecode.Format(float64(second)))
}

// Record stores a reaction by actor at position seconds into videoID. held is
// how long the reaction button was held and feeds the user's cumulative total.
func (s *Service) Record(ctx context.Context, actor access.Identity, videoID string, position float64, held time.Duration) (Result, error) {
	if err := access.Require(actor); err != nil {
		return Result{}, err
	}
	if math.IsNaN(position) || math.IsInf(position, 0) || position < 0 {
		return Result{}, ErrTimestampOutOfRange
	}
	second := int(math.Floor(position))

	video, err := s.Videos.FindByID(ctx, videoID)
	if err != nil {
		return Result{}, fmt.Errorf("load video: %w", err)
	}
	if video.DurationSeconds > 0 && second > video.DurationSeconds {
		return Result{}, ErrTimestampOutOfRange
	}

	username, avatar := actor.Username, actor.AvatarURL
	user, err := s.Users.FindByID(ctx, actor.UserID)
	switch {
	case err == nil:
		if user.Username != "" {
			username = user.Username
		}
		if user.AvatarURL != "" {
			avatar = user.AvatarURL
		}
	case errors.Is(err, repositories.ErrNotFound):
		return Result{}, fmt.Errorf("load user: %w", err)
	default:
		logging.FromContext(ctx).Warn("snapshot reacting user", "user_id", actor.UserID, "error", err)
	}
	if username == "" {
		username = AnonymousName
	}

	heldSeconds := int(held / time.Second)
	if heldSeconds < 0 {
		heldSeconds = 0
	}

	now := s.now()
	at := float64(second)
	result := Result{
		Event: models.ReactionEvent{
			ID:             uuid.NewString(),
			VideoID:        video.ID,
			UserID:         actor.UserID,
			VideoTimestamp: at,
			Username:       username,
			AvatarURL:      avatar,
			CreatedAt:      now,
		},
		Marker: models.Marker{
			ID:        uuid.NewString(),
			VideoID:   video.ID,
			UserID:    actor.UserID,
			Timestamp: at,
			CreatedAt: now,
		},
		Announcement: models.Message{
			ID:             uuid.NewString(),
			SenderID:       actor.UserID,
			Content:        Announcement(username, second),
			CreatedAt:      now,
			IsEventMessage: true,
		},
	}

	if err := s.Reactions.Record(ctx, repositories.ReactionWrite{
		Event:        result.Event,
		Marker:       result.Marker,
		Announcement: result.Announcement,
		HeldSeconds:  heldSeconds,
	}); err != nil {
		return Result{}, fmt.Errorf("record reaction: %w", err)
	}

	videoAttrs := map[string]string{"video_id": video.ID, "user_id": actor.UserID}
	realtime.Notify(ctx, s.Broker, realtime.TableReactionEvents, realtime.Insert, result.Event, nil, videoAttrs)
	realtime.Notify(ctx, s.Broker, realtime.TableMarkers, realtime.Insert, result.Marker, nil, videoAttrs)
	realtime.Notify(ctx, s.Broker, realtime.TableMessages, realtime.Insert, result.Announcement, nil,
		map[string]string{"id": result.Announcement.ID, "sender_id": actor.UserID})

	logging.FromContext(ctx).Info("reaction recorded", "video_id", video.ID, "second", second)
	return result, nil
}

func (s *Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return time.Now().UTC()
}
