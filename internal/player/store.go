// Package player keeps one mounted video's reaction markers and live overlay
// in sync with the change feed.
package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vidfriends/watchparty/internal/clock"
	"github.com/vidfriends/watchparty/internal/logging"
	"github.com/vidfriends/watchparty/internal/models"
	"github.com/vidfriends/watchparty/internal/realtime"
)

// Events emitted to the store's listener.
const (
	EventMarkers        = "video.markers"
	EventOverlay        = "video.overlay"
	EventOverlayCleared = "video.overlay.cleared"
	EventActiveMarker   = "video.active_marker"
)

// State is the lifecycle of a player store.
type State string

const (
	StateIdle          State = "idle"
	StateMarkersLoaded State = "markers-loaded"
	StateUnmounted     State = "unmounted"
)

// MarkerSource loads a video's markers joined with their users.
type MarkerSource interface {
	Markers(ctx context.Context, videoID string) ([]models.MarkerView, error)
}

// Emitter receives the store's state changes.
type Emitter interface {
	Emit(eventType string, payload any)
}

// MarkersPayload is emitted with EventMarkers.
type MarkersPayload struct {
	VideoID string              `json:"videoId"`
	Markers []models.MarkerView `json:"markers"`
	Groups  []GroupView         `json:"groups"`
}

// OverlayPayload is emitted with EventOverlay.
type OverlayPayload struct {
	VideoID     string               `json:"videoId"`
	Event       models.ReactionEvent `json:"event"`
	Decorations []Decoration         `json:"decorations"`
}

// ActiveMarkerPayload is emitted with EventActiveMarker. Second is nil when no
// group is active.
type ActiveMarkerPayload struct {
	VideoID string     `json:"videoId"`
	Second  *int       `json:"second"`
	Group   *GroupView `json:"group,omitempty"`
}

// VideoPayload is emitted with EventOverlayCleared.
type VideoPayload struct {
	VideoID string `json:"videoId"`
}

// Options configures a Store.
type Options struct {
	Clock           clock.Clock
	OverlayDuration time.Duration
	Emitter         Emitter
	// Rand drives decoration placement; nil uses the global source.
	Rand func() float64
	// Watch accumulates watch time while the video plays; nil disables it.
	Watch *WatchAccumulator
}

// Store is one connection's view of a mounted video.
type Store struct {
	videoID string
	markers MarkerSource
	broker  realtime.Broker
	opts    Options

	mu          sync.Mutex
	state       State
	current     []models.MarkerView
	groups      []Group
	overlay     *OverlayPayload
	timer       clock.Timer
	generation  uint64
	playing     bool
	activeKey   *int
	markerSub   *realtime.Subscription
	reactionSub *realtime.Subscription
}

// NewStore constructs an unmounted store for videoID.
func NewStore(videoID string, markers MarkerSource, broker realtime.Broker, opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.OverlayDuration <= 0 {
		opts.OverlayDuration = DefaultOverlayDuration
	}
	return &Store{videoID: videoID, markers: markers, broker: broker, opts: opts, state: StateIdle}
}

// VideoID names the mounted video.
func (s *Store) VideoID() string { return s.videoID }

// State returns the store's lifecycle state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Markers returns a copy of the current marker set.
func (s *Store) Markers() []models.MarkerView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.MarkerView(nil), s.current...)
}

// Groups returns the markers clustered by second.
func (s *Store) Groups() []Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Group(nil), s.groups...)
}

// Overlay returns the active overlay, or nil when none is showing.
func (s *Store) Overlay() *OverlayPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overlay == nil {
		return nil
	}
	o := *s.overlay
	return &o
}

// Mount loads the markers and opens the marker and reaction subscriptions.
func (s *Store) Mount(ctx context.Context) error {
	if err := s.refresh(ctx); err != nil {
		return err
	}

	markerSub, err := s.broker.Subscribe(realtime.MarkersChannel(s.videoID),
		realtime.Filter{Table: realtime.TableMarkers, Event: realtime.AnyEvent, Column: "video_id", Value: s.videoID},
		func(ctx context.Context, _ realtime.Change) {
			if err := s.refresh(ctx); err != nil {
				logging.FromContext(ctx).Error("refresh markers", "video_id", s.videoID, "error", err)
			}
		})
	if err != nil {
		return fmt.Errorf("subscribe markers: %w", err)
	}

	reactionSub, err := s.broker.Subscribe(realtime.ReactionEventsChannel(s.videoID),
		realtime.Filter{Table: realtime.TableReactionEvents, Event: realtime.Insert, Column: "video_id", Value: s.videoID},
		s.handleReaction)
	if err != nil {
		markerSub.Cancel()
		return fmt.Errorf("subscribe reaction events: %w", err)
	}

	s.mu.Lock()
	if s.state == StateUnmounted {
		s.mu.Unlock()
		markerSub.Cancel()
		reactionSub.Cancel()
		return nil
	}
	s.markerSub, s.reactionSub = markerSub, reactionSub
	s.mu.Unlock()
	return nil
}

// Unmount cancels both subscriptions and the overlay timer and flushes watch
// time. It is safe to call more than once.
func (s *Store) Unmount(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateUnmounted {
		s.mu.Unlock()
		return
	}
	s.state = StateUnmounted
	markerSub, reactionSub := s.markerSub, s.reactionSub
	s.markerSub, s.reactionSub = nil, nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.overlay = nil
	s.generation++
	s.mu.Unlock()

	markerSub.Cancel()
	reactionSub.Cancel()
	if s.opts.Watch != nil {
		s.opts.Watch.Pause(ctx)
	}
}

// SetPlaying starts or stops watch-time accumulation.
func (s *Store) SetPlaying(ctx context.Context, playing bool) {
	s.mu.Lock()
	if s.state == StateUnmounted {
		s.mu.Unlock()
		return
	}
	s.playing = playing
	s.mu.Unlock()

	if s.opts.Watch == nil {
		return
	}
	if playing {
		s.opts.Watch.Play(ctx)
	} else {
		s.opts.Watch.Pause(ctx)
	}
}

// SetPosition updates the highlighted marker group for the playback position.
// The highlight only moves while the video plays.
func (s *Store) SetPosition(position float64) {
	s.mu.Lock()
	if !s.playing || s.state == StateUnmounted {
		s.mu.Unlock()
		return
	}
	group, ok := ActiveGroup(s.groups, position)
	var key *int
	if ok {
		second := group.Second
		key = &second
	}
	if sameKey(s.activeKey, key) {
		s.mu.Unlock()
		return
	}
	s.activeKey = key
	s.mu.Unlock()

	payload := ActiveMarkerPayload{VideoID: s.videoID, Second: key}
	if ok {
		view := group.View()
		payload.Group = &view
	}
	s.emit(EventActiveMarker, payload)
}

func (s *Store) refresh(ctx context.Context) error {
	markers, err := s.markers.Markers(ctx, s.videoID)
	if err != nil {
		return fmt.Errorf("load markers: %w", err)
	}
	markers = withFallbackNames(markers)
	groups := GroupMarkers(markers)

	s.mu.Lock()
	if s.state == StateUnmounted {
		s.mu.Unlock()
		return nil
	}
	s.current = markers
	s.groups = groups
	s.state = StateMarkersLoaded
	s.mu.Unlock()

	s.emit(EventMarkers, MarkersPayload{
		VideoID: s.videoID,
		Markers: append([]models.MarkerView(nil), markers...),
		Groups:  Views(groups),
	})
	return nil
}

func (s *Store) handleReaction(ctx context.Context, c realtime.Change) {
	var event models.ReactionEvent
	if err := c.DecodeNew(&event); err != nil {
		logging.FromContext(ctx).Error("decode reaction event", "video_id", s.videoID, "error", err)
		return
	}

	overlay := OverlayPayload{VideoID: s.videoID, Event: event, Decorations: NewDecorations(s.opts.Rand)}

	s.mu.Lock()
	if s.state == StateUnmounted {
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.generation++
	gen := s.generation
	s.overlay = &overlay
	s.timer = s.opts.Clock.AfterFunc(s.opts.OverlayDuration, func() { s.clearOverlay(gen) })
	s.mu.Unlock()

	s.emit(EventOverlay, overlay)
}

// clearOverlay hides the overlay started by generation gen. A newer reaction
// owns the overlay and its own timer, so stale timers do nothing.
func (s *Store) clearOverlay(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.overlay == nil {
		s.mu.Unlock()
		return
	}
	s.overlay = nil
	s.timer = nil
	s.mu.Unlock()

	s.emit(EventOverlayCleared, VideoPayload{VideoID: s.videoID})
}

func (s *Store) emit(eventType string, payload any) {
	if s.opts.Emitter != nil {
		s.opts.Emitter.Emit(eventType, payload)
	}
}

func sameKey(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
