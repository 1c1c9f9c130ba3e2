package models

import "time"

// User is an account on the platform. Follower and following counts are cached
// copies of the follows table and are recomputed on sign-in and follow toggles.
type User struct {
	ID                    string     `json:"id"`
	Username              string     `json:"username"`
	AvatarURL             string     `json:"avatarUrl"`
	IsAdmin               bool       `json:"isAdmin"`
	Verified              bool       `json:"verified"`
	IsOnline              bool       `json:"isOnline"`
	LastSeen              *time.Time `json:"lastSeen,omitempty"`
	FollowersCount        int        `json:"followersCount"`
	FollowingCount        int        `json:"followingCount"`
	ReactionCount         int        `json:"reactionCount"`
	TotalReactionDuration int        `json:"totalReactionDuration"`
	About                 string     `json:"about"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// Summary returns the display attributes joined onto messages and comments.
func (u User) Summary() UserSummary {
	return UserSummary{
		ID:        u.ID,
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
		IsAdmin:   u.IsAdmin,
		Verified:  u.Verified,
		IsOnline:  u.IsOnline,
		LastSeen:  u.LastSeen,
	}
}

// UserSummary is the subset of a user rendered next to content they authored.
type UserSummary struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	AvatarURL string     `json:"avatarUrl"`
	IsAdmin   bool       `json:"isAdmin"`
	Verified  bool       `json:"verified"`
	IsOnline  bool       `json:"isOnline"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
}

// Video is an admin-curated entry in the feed.
type Video struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	URL             string    `json:"url"`
	ThumbnailURL    string    `json:"thumbnailUrl"`
	UploadedBy      string    `json:"uploadedBy"`
	DurationSeconds int       `json:"durationSeconds"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// VideoComment is a comment posted under a video.
type VideoComment struct {
	ID        string      `json:"id"`
	VideoID   string      `json:"videoId"`
	UserID    string      `json:"userId"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
	Author    UserSummary `json:"author"`
}

// ProfileComment is a comment left on a user's profile page.
type ProfileComment struct {
	ID              string      `json:"id"`
	UserID          string      `json:"userId"`
	ProfileUsername string      `json:"profileUsername"`
	Content         string      `json:"content"`
	CreatedAt       time.Time   `json:"createdAt"`
	Author          UserSummary `json:"author"`
}

// Marker is a timestamped reaction on a video's timeline.
type Marker struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"videoId"`
	UserID    string    `json:"userId"`
	Timestamp float64   `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
}

// MarkerView is a marker joined with the reacting user's display attributes.
type MarkerView struct {
	Marker
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// ReactionEvent is the denormalized log of a reaction. Username and avatar are
// snapshotted when the reaction is recorded.
type ReactionEvent struct {
	ID             string    `json:"id"`
	VideoID        string    `json:"videoId"`
	UserID         string    `json:"userId"`
	VideoTimestamp float64   `json:"videoTimestamp"`
	Username       string    `json:"username"`
	AvatarURL      string    `json:"avatarUrl"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Follow is a directed follower to followee edge.
type Follow struct {
	FollowerID  string    `json:"followerId"`
	FollowingID string    `json:"followingId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// WatchTime accumulates how long a user has watched a video.
type WatchTime struct {
	UserID         string    `json:"userId"`
	VideoID        string    `json:"videoId"`
	SecondsWatched int       `json:"secondsWatched"`
	LastWatched    time.Time `json:"lastWatched"`
}

// LeaderboardEntry ranks a video by the watch time all users spent on it.
type LeaderboardEntry struct {
	VideoID           string `json:"videoId"`
	Title             string `json:"title"`
	UploaderID        string `json:"uploaderId"`
	UploaderUsername  string `json:"uploaderUsername"`
	UploaderAvatarURL string `json:"uploaderAvatarUrl"`
	TotalWatchTime    int    `json:"totalWatchTime"`
	WatcherCount      int    `json:"watcherCount"`
}

// VoteCount totals the votes a video has received.
type VoteCount struct {
	VideoID string `json:"videoId"`
	Title   string `json:"title"`
	Votes   int    `json:"votes"`
}
