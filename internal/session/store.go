// Package session tracks the signed-in identity of one connection and keeps
// its persisted presence fresh.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vidfriends/watchparty/internal/access"
	"github.com/vidfriends/watchparty/internal/clock"
	"github.com/vidfriends/watchparty/internal/logging"
	"github.com/vidfriends/watchparty/internal/models"
	"github.com/vidfriends/watchparty/internal/repositories"
)

// DefaultHeartbeat is how often a visible session rewrites its presence.
const DefaultHeartbeat = 30 * time.Second

// EventSession is emitted with a Snapshot whenever the session changes.
const EventSession = "session"

// UserStore creates and loads user rows.
type UserStore interface {
	Ensure(ctx context.Context, user models.User) (models.User, error)
}

// PresenceStore persists presence and the cached follow counters.
type PresenceStore interface {
	SetPresence(ctx context.Context, userID string, online bool, at time.Time) error
	RefreshFollowCounts(ctx context.Context, userID string) (followers, following int, err error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// Emitter receives session snapshots.
type Emitter interface {
	Emit(eventType string, payload any)
}

// Snapshot is the externally visible session state.
type Snapshot struct {
	Identity       *access.Identity `json:"identity"`
	Loading        bool             `json:"loading"`
	IsAdmin        bool             `json:"isAdmin"`
	IsOnline       bool             `json:"isOnline"`
	FollowersCount int              `json:"followersCount"`
	FollowingCount int              `json:"followingCount"`
}

// Options configures a Store.
type Options struct {
	Clock     clock.Clock
	Heartbeat time.Duration
	Emitter   Emitter
}

// Store is one connection's session. Presence writes are best effort: failures
// are logged and never returned.
type Store struct {
	users     UserStore
	presence  PresenceStore
	clock     clock.Clock
	heartbeat time.Duration
	emitter   Emitter

	mu        sync.Mutex
	identity  *access.Identity
	loading   bool
	isAdmin   bool
	isOnline  bool
	visible   bool
	followers int
	following int
	stop      chan struct{}
	done      chan struct{}
	baseCtx   context.Context
}

// NewStore constructs a signed-out store in the loading state.
func NewStore(users UserStore, presence PresenceStore, opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	return &Store{
		users:     users,
		presence:  presence,
		clock:     opts.Clock,
		heartbeat: opts.Heartbeat,
		emitter:   opts.Emitter,
		loading:   true,
		visible:   true,
	}
}

// Identity returns the signed-in identity, or nil.
func (s *Store) Identity() *access.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil
	}
	identity := *s.identity
	return &identity
}

// Current returns the signed-in identity or the anonymous identity.
func (s *Store) Current() access.Identity {
	if id := s.Identity(); id != nil {
		return *id
	}
	return access.Identity{}
}

// Loading reports whether a sign-in or sign-out is in progress.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// IsAdmin reports the admin flag fetched at sign-in.
func (s *Store) IsAdmin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isAdmin
}

// IsOnline reports the last presence value written.
func (s *Store) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isOnline
}

// Snapshot returns the current session state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Loading:        s.loading,
		IsAdmin:        s.isAdmin,
		IsOnline:       s.isOnline,
		FollowersCount: s.followers,
		FollowingCount: s.following,
	}
	if s.identity != nil {
		identity := *s.identity
		snap.Identity = &identity
	}
	return snap
}

// SignIn establishes identity as the session's user. The user row is created
// on first sign-in, a missing display name is reconciled from the row, follow
// counters are recomputed, the admin flag is loaded and presence goes online.
func (s *Store) SignIn(ctx context.Context, identity access.Identity) error {
	if err := access.Require(identity); err != nil {
		return err
	}
	logger := logging.FromContext(ctx).With(slog.String("user_id", identity.UserID))
	s.stopHeartbeat()

	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	user, err := s.ensureUser(ctx, identity)
	if err != nil {
		logger.Error("ensure user row", "error", err)
	} else if identity.Username == "" {
		identity.Username = user.Username
	}
	if identity.AvatarURL == "" && err == nil {
		identity.AvatarURL = user.AvatarURL
	}

	followers, following, err := s.presence.RefreshFollowCounts(ctx, identity.UserID)
	if err != nil {
		logger.Error("refresh follow counts", "error", err)
	}

	s.mu.Lock()
	s.identity = &identity
	s.followers, s.following = followers, following
	s.baseCtx = context.WithoutCancel(ctx)
	s.mu.Unlock()

	s.CheckIsAdmin(ctx)
	s.writePresence(ctx, true)
	s.startHeartbeat()

	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
	s.emit()
	return nil
}

func (s *Store) ensureUser(ctx context.Context, identity access.Identity) (models.User, error) {
	username := identity.Username
	if username == "" {
		username = fallbackUsername(identity.UserID)
	}
	now := s.clock.Now().UTC()
	candidate := models.User{
		ID:        identity.UserID,
		Username:  username,
		AvatarURL: identity.AvatarURL,
		CreatedAt: now,
		UpdatedAt: now,
	}

	user, err := s.users.Ensure(ctx, candidate)
	if errors.Is(err, repositories.ErrConflict) {
		// Someone else owns the name; first sign-in falls back to an id-derived one.
		candidate.Username = username + "-" + shortID(identity.UserID)
		user, err = s.users.Ensure(ctx, candidate)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("ensure user: %w", err)
	}
	return user, nil
}

// CheckIsAdmin reloads the admin flag. Lookup failures leave it false.
func (s *Store) CheckIsAdmin(ctx context.Context) bool {
	identity := s.Identity()
	if identity == nil {
		return false
	}
	isAdmin, err := s.presence.IsAdmin(ctx, identity.UserID)
	if err != nil {
		logging.FromContext(ctx).Warn("load admin flag", "user_id", identity.UserID, "error", err)
		isAdmin = false
	}
	s.mu.Lock()
	s.isAdmin = isAdmin
	s.mu.Unlock()
	return isAdmin
}

// SetVisibility records whether the client tab is visible and writes presence
// accordingly.
func (s *Store) SetVisibility(ctx context.Context, visible bool) {
	s.mu.Lock()
	s.visible = visible
	s.mu.Unlock()
	s.writePresence(ctx, visible)
	s.emit()
}

// BeforeUnload marks the user offline and stops the heartbeat. The identity
// is kept so a reopened tab can sign in again.
func (s *Store) BeforeUnload(ctx context.Context) {
	s.stopHeartbeat()
	s.writePresence(ctx, false)
}

// SignOut writes offline presence and clears the identity.
func (s *Store) SignOut(ctx context.Context) {
	s.stopHeartbeat()
	s.writePresence(ctx, false)

	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()
	s.emit()

	s.mu.Lock()
	s.identity = nil
	s.isAdmin = false
	s.isOnline = false
	s.followers, s.following = 0, 0
	s.loading = false
	s.mu.Unlock()
	s.emit()
}

func (s *Store) writePresence(ctx context.Context, online bool) {
	identity := s.Identity()
	if identity == nil {
		return
	}
	if err := s.presence.SetPresence(ctx, identity.UserID, online, s.clock.Now().UTC()); err != nil {
		logging.FromContext(ctx).Warn("write presence", "user_id", identity.UserID, "online", online, "error", err)
		return
	}
	s.mu.Lock()
	s.isOnline = online
	s.mu.Unlock()
}

func (s *Store) startHeartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	ticker := s.clock.NewTicker(s.heartbeat)
	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop, s.done = stop, done
	ctx := s.baseCtx

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				s.mu.Lock()
				visible := s.visible
				s.mu.Unlock()
				if visible {
					s.writePresence(ctx, true)
				}
			}
		}
	}()
}

func (s *Store) stopHeartbeat() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (s *Store) emit() {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(EventSession, s.Snapshot())
}

func fallbackUsername(userID string) string {
	return "user-" + shortID(userID)
}

func shortID(userID string) string {
	id := strings.ReplaceAll(userID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return id
}
