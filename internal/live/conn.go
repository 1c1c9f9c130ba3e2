// Package live is the websocket transport. Each socket gets a Conn that owns
// the connection's session, chat and player stores and forwards their events.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vidfriends/watchparty/internal/access"
	"github.com/vidfriends/watchparty/internal/chat"
	"github.com/vidfriends/watchparty/internal/clock"
	"github.com/vidfriends/watchparty/internal/logging"
	"github.com/vidfriends/watchparty/internal/player"
	"github.com/vidfriends/watchparty/internal/reactions"
	"github.com/vidfriends/watchparty/internal/realtime"
	"github.com/vidfriends/watchparty/internal/session"
)

// EventError reports a failed command back to the client.
const EventError = "error"

// ErrClosed is returned by commands that arrive after the connection closed.
var ErrClosed = errors.New("live connection closed")

// SendBuffer is how many outbound events may queue before the client is
// considered too slow and dropped.
const SendBuffer = 64

// ReactionRecorder records a viewer's reaction.
type ReactionRecorder interface {
	Record(ctx context.Context, actor access.Identity, videoID string, position float64, held time.Duration) (reactions.Result, error)
}

// RateLimiter gates chat sends and reactions per user.
type RateLimiter interface {
	Allow(key string) bool
}

// Deps are the shared collaborators every connection is built from.
type Deps struct {
	Users     session.UserStore
	Presence  session.PresenceStore
	Chat      *chat.Service
	Markers   player.MarkerSource
	Reactions ReactionRecorder
	Watch     player.WatchRecorder
	Broker    realtime.Broker
	Limiter   RateLimiter

	Clock           clock.Clock
	Heartbeat       time.Duration
	OverlayDuration time.Duration
}

// Envelope is the wire shape of every client command and server event.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// ErrorPayload is emitted with EventError.
type ErrorPayload struct {
	Command string `json:"command"`
	Status  int    `json:"status"`
	Error   string `json:"error"`
}

// Conn is one client's live session.
type Conn struct {
	deps     Deps
	identity access.Identity
	ctx      context.Context

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	session *session.Store
	chat    *chat.Store

	mu      sync.Mutex
	players map[string]*player.Store
}

// NewConn builds a connection for identity. Open must be called before
// commands are handled.
func NewConn(ctx context.Context, deps Deps, identity access.Identity) *Conn {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	c := &Conn{
		deps:     deps,
		identity: identity,
		ctx:      ctx,
		send:     make(chan []byte, SendBuffer),
		closed:   make(chan struct{}),
		players:  make(map[string]*player.Store),
	}
	c.session = session.NewStore(deps.Users, deps.Presence, session.Options{
		Clock:     deps.Clock,
		Heartbeat: deps.Heartbeat,
		Emitter:   c,
	})
	c.chat = chat.NewStore(deps.Chat, deps.Broker, identity, c)
	return c
}

// Open signs the session in and subscribes to the chat feed.
func (c *Conn) Open(ctx context.Context) error {
	if err := c.session.SignIn(ctx, c.identity); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	if _, err := c.chat.Subscribe(); err != nil {
		return fmt.Errorf("subscribe chat: %w", err)
	}
	return nil
}

// Emit queues an event for the client. A full queue closes the connection.
func (c *Conn) Emit(eventType string, payload any) {
	if c.isClosed() {
		return
	}

	data, err := json.Marshal(outbound{Type: eventType, Payload: payload})
	if err != nil {
		logging.FromContext(c.ctx).Error("encode live event", "type", eventType, "error", err)
		return
	}

	select {
	case c.send <- data:
	default:
		logging.FromContext(c.ctx).Warn("live client too slow, disconnecting", "type", eventType)
		go c.Close()
	}
}

// Done is closed once the connection has been torn down.
func (c *Conn) Done() <-chan struct{} { return c.closed }

// Close unmounts every player, cancels the chat feed and marks the session
// offline. It is idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		ctx := context.WithoutCancel(c.ctx)

		c.mu.Lock()
		players := c.players
		c.players = make(map[string]*player.Store)
		c.mu.Unlock()
		for _, p := range players {
			p.Unmount(ctx)
		}

		c.chat.Unsubscribe()
		c.session.BeforeUnload(ctx)
	})
}

// Session exposes the connection's session store.
func (c *Conn) Session() *session.Store { return c.session }

// Chat exposes the connection's chat store.
func (c *Conn) Chat() *chat.Store { return c.chat }

// Player returns the mounted store for videoID.
func (c *Conn) Player(videoID string) (*player.Store, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.players[videoID]
	return p, ok
}

func (c *Conn) mount(ctx context.Context, videoID string) error {
	var watch *player.WatchAccumulator
	if c.deps.Watch != nil {
		watch = player.NewWatchAccumulator(c.deps.Clock, c.deps.Watch, c.identity.UserID, videoID)
	}
	store := player.NewStore(videoID, c.deps.Markers, c.deps.Broker, player.Options{
		Clock:           c.deps.Clock,
		OverlayDuration: c.deps.OverlayDuration,
		Emitter:         c,
		Watch:           watch,
	})

	c.mu.Lock()
	if c.isClosed() {
		c.mu.Unlock()
		return ErrClosed
	}
	previous := c.players[videoID]
	c.players[videoID] = store
	c.mu.Unlock()
	if previous != nil {
		previous.Unmount(ctx)
	}

	if err := store.Mount(ctx); err != nil {
		c.dropPlayer(ctx, videoID, store)
		return err
	}
	// Close may have swapped the players map while the store was mounting.
	if c.isClosed() {
		c.dropPlayer(ctx, videoID, store)
		return ErrClosed
	}
	return nil
}

func (c *Conn) dropPlayer(ctx context.Context, videoID string, store *player.Store) {
	c.mu.Lock()
	if c.players[videoID] == store {
		delete(c.players, videoID)
	}
	c.mu.Unlock()
	store.Unmount(ctx)
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Conn) unmount(ctx context.Context, videoID string) {
	c.mu.Lock()
	store := c.players[videoID]
	delete(c.players, videoID)
	c.mu.Unlock()
	if store != nil {
		store.Unmount(ctx)
	}
}
