package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidfriends/watchparty/internal/access"
	"github.com/vidfriends/watchparty/internal/auth"
	"github.com/vidfriends/watchparty/internal/chat"
	"github.com/vidfriends/watchparty/internal/clock"
	"github.com/vidfriends/watchparty/internal/models"
	"github.com/vidfriends/watchparty/internal/player"
	"github.com/vidfriends/watchparty/internal/reactions"
	"github.com/vidfriends/watchparty/internal/realtime"
	"github.com/vidfriends/watchparty/internal/repositories"
	"github.com/vidfriends/watchparty/internal/session"
)

type memoryUsers struct {
	mu    sync.Mutex
	users map[string]models.User
}

func (m *memoryUsers) Ensure(_ context.Context, u models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[u.ID]; ok {
		return existing, nil
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *memoryUsers) FindByID(_ context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return u, nil
}

type memoryPresence struct {
	mu     sync.Mutex
	online map[string]bool
}

func (p *memoryPresence) SetPresence(_ context.Context, userID string, online bool, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[userID] = online
	return nil
}

func (p *memoryPresence) isOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

func (*memoryPresence) RefreshFollowCounts(context.Context, string) (int, int, error) { return 0, 0, nil }
func (*memoryPresence) IsAdmin(context.Context, string) (bool, error)               { return false, nil }

type memoryMessages struct {
	mu       sync.Mutex
	messages []models.Message
}

func (m *memoryMessages) Create(_ context.Context, msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memoryMessages) FindByID(_ context.Context, id string) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ID == id {
			return msg, nil
		}
	}
	return models.Message{}, repositories.ErrNotFound
}

func (m *memoryMessages) ListGlobal(context.Context) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Message
	for _, msg := range m.messages {
		if msg.IsGlobal() {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memoryMessages) ListConversation(_ context.Context, a, b string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Message
	for _, msg := range m.messages {
		if msg.Involves(a) && msg.Involves(b) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memoryMessages) UpdateContent(_ context.Context, id, content string, _ time.Time) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.messages {
		if m.messages[i].ID == id {
			m.messages[i].Content, m.messages[i].Edited = content, true
			return m.messages[i], nil
		}
	}
	return models.Message{}, repositories.ErrNotFound
}

func (m *memoryMessages) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.messages {
		if m.messages[i].ID == id {
			m.messages = append(m.messages[:i], m.messages[i+1:]...)
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (m *memoryMessages) ClearGlobal(context.Context) (int64, error) { return 0, nil }

type staticMarkers struct{}

func (staticMarkers) Markers(_ context.Context, videoID string) ([]models.MarkerView, error) {
	return []models.MarkerView{{Marker: models.Marker{ID: "m1", VideoID: videoID, UserID: "alice", Timestamp: 12}, Username: "alice"}}, nil
}

type recordingReactions struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recordingReactions) Record(_ context.Context, actor access.Identity, videoID string, _ float64, _ time.Duration) (reactions.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, actor.UserID+"@"+videoID)
	return reactions.Result{}, r.err
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

type fixture struct {
	deps      Deps
	presence  *memoryPresence
	reactions *recordingReactions
}

func newFixture() *fixture {
	users := &memoryUsers{users: map[string]models.User{}}
	presence := &memoryPresence{online: map[string]bool{}}
	broker := realtime.NewMemoryBroker()
	rec := &recordingReactions{}
	return &fixture{
		presence:  presence,
		reactions: rec,
		deps: Deps{
			Users:     users,
			Presence:  presence,
			Chat:      &chat.Service{Messages: &memoryMessages{}, Users: users, Broker: broker},
			Markers:   staticMarkers{},
			Reactions: rec,
			Broker:    broker,
			Clock:     clock.NewFake(time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)),
		},
	}
}

var alice = access.Identity{UserID: "alice", Username: "alice"}

// drain collects queued event types.
func drain(c *Conn) []outbound {
	var out []outbound
	for {
		select {
		case data := <-c.send:
			var ev struct {
				Type    string          `json:"type"`
				Payload json.RawMessage `json:"payload"`
			}
			_ = json.Unmarshal(data, &ev)
			out = append(out, outbound{Type: ev.Type, Payload: ev.Payload})
		default:
			return out
		}
	}
}

func types(events []outbound) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func command(t *testing.T, typ string, payload any) Envelope {
	t.Helper()
	env := Envelope{Type: typ}
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		env.Payload = data
	}
	return env
}

func TestOpenSignsInAndSubscribes(t *testing.T) {
	f := newFixture()
	c := NewConn(context.Background(), f.deps, alice)
	require.NoError(t, c.Open(context.Background()))
	defer c.Close()

	assert.Contains(t, types(drain(c)), session.EventSession)
	assert.True(t, f.presence.isOnline("alice"))
	assert.Equal(t, 3, f.deps.Broker.(*realtime.MemoryBroker).Subscribers(realtime.GlobalMessagesChannel))
}

func TestChatSendReachesOwnFeed(t *testing.T) {
	f := newFixture()
	c := NewConn(context.Background(), f.deps, alice)
	require.NoError(t, c.Open(context.Background()))
	defer c.Close()
	drain(c)

	require.NoError(t, c.Handle(context.Background(), command(t, CmdChatSend, map[string]string{"content": "hello"})))

	events := drain(c)
	require.Equal(t, []string{chat.EventMessage}, types(events))
	var msg models.Message
	require.NoError(t, json.Unmarshal(events[0].Payload.(json.RawMessage), &msg))
	assert.Equal(t, "hello", msg.Content)
}

func TestInvalidCommandsEmitErrors(t *testing.T) {
	f := newFixture()
	c := NewConn(context.Background(), f.deps, alice)
	require.NoError(t, c.Open(context.Background()))
	defer c.Close()
	drain(c)

	err := c.Handle(context.Background(), command(t, CmdChatSend, map[string]string{"content": "   "}))
	require.ErrorIs(t, err, chat.ErrEmptyMessage)

	err = c.Handle(context.Background(), Envelope{Type: "nope"})
	require.Error(t, err)

	err = c.Handle(context.Background(), command(t, CmdVideoMount, map[string]string{}))
	require.Error(t, err)

	events := drain(c)
	require.Len(t, events, 3)
	for _, ev := range events {
		assert.Equal(t, EventError, ev.Type)
		var p ErrorPayload
		require.NoError(t, json.Unmarshal(ev.Payload.(json.RawMessage), &p))
		assert.Equal(t, http.StatusBadRequest, p.Status)
	}
}

func TestRateLimitedReaction(t *testing.T) {
	f := newFixture()
	f.deps.Limiter = denyAll{}
	c := NewConn(context.Background(), f.deps, alice)
	require.NoError(t, c.Open(context.Background()))
	defer c.Close()
	drain(c)

	err := c.Handle(context.Background(), command(t, CmdVideoReact, map[string]any{"videoId": "v1", "position": 3.5}))
	require.Error(t, err)
	assert.Empty(t, f.reactions.calls)

	events := drain(c)
	require.Len(t, events, 1)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(events[0].Payload.(json.RawMessage), &p))
	assert.Equal(t, http.StatusTooManyRequests, p.Status)
}

func TestReactionForwarded(t *testing.T) {
	f := newFixture()
	c := NewConn(context.Background(), f.deps, alice)
	require.NoError(t, c.Open(context.Background()))
	defer c.Close()

	require.NoError(t, c.Handle(context.Background(), command(t, CmdVideoReact, map[string]any{"videoId": "v1", "position": 3.5, "heldMs": 1200})))
	assert.Equal(t, []string{"alice@v1"}, f.reactions.calls)

	f.reactions.err = errors.New("db down")
	err := c.Handle(context.Background(), command(t, CmdVideoReact, map[string]any{"videoId": "v1"}))
	require.Error(t, err)
}

func TestMountReplacesExistingPlayer(t *testing.T) {
	f := newFixture()
	c := NewConn(context.Background(), f.deps, alice)
	require.NoError(t, c.Open(context.Background()))
	defer c.Close()
	drain(c)
	broker := f.deps.Broker.(*realtime.MemoryBroker)

	mount := command(t, CmdVideoMount, map[string]string{"videoId": "v1"})
	require.NoError(t, c.Handle(context.Background(), mount))
	first, ok := c.Player("v1")
	require.True(t, ok)
	assert.Contains(t, types(drain(c)), player.EventMarkers)

	require.NoError(t, c.Handle(context.Background(), mount))
	second, _ := c.Player("v1")
	assert.NotSame(t, first, second)
	assert.Equal(t, player.StateUnmounted, first.State())
	assert.Equal(t, 1, broker.Subscribers(realtime.MarkersChannel("v1")))
	assert.Equal(t, 1, broker.Subscribers(realtime.ReactionEventsChannel("v1")))

	require.NoError(t, c.Handle(context.Background(), command(t, CmdVideoUnmount, map[string]string{"videoId": "v1"})))
	_, ok = c.Player("v1")
	assert.False(t, ok)
	assert.Equal(t, 0, broker.Subscribers(realtime.MarkersChannel("v1")))
}

func TestCloseTearsDown(t *testing.T) {
	f := newFixture()
	c := NewConn(context.Background(), f.deps, alice)
	require.NoError(t, c.Open(context.Background()))
	require.NoError(t, c.Handle(context.Background(), command(t, CmdVideoMount, map[string]string{"videoId": "v1"})))
	broker := f.deps.Broker.(*realtime.MemoryBroker)

	c.Close()
	c.Close()

	assert.Equal(t, 0, broker.Subscribers(realtime.GlobalMessagesChannel))
	assert.Equal(t, 0, broker.Subscribers(realtime.MarkersChannel("v1")))
	assert.False(t, f.presence.isOnline("alice"))
	select {
	case <-c.Done():
	default:
		t.Fatal("expected Done to be closed")
	}
}

func TestMountAfterCloseLeavesNothingBehind(t *testing.T) {
	f := newFixture()
	c := NewConn(context.Background(), f.deps, alice)
	require.NoError(t, c.Open(context.Background()))
	broker := f.deps.Broker.(*realtime.MemoryBroker)

	c.Close()

	err := c.mount(context.Background(), "v1")
	require.ErrorIs(t, err, ErrClosed)
	_, ok := c.Player("v1")
	assert.False(t, ok)
	assert.Equal(t, 0, broker.Subscribers(realtime.MarkersChannel("v1")))
	assert.Equal(t, 0, broker.Subscribers(realtime.ReactionEventsChannel("v1")))
}

func TestConcurrentMountAndClose(t *testing.T) {
	f := newFixture()
	c := NewConn(context.Background(), f.deps, alice)
	require.NoError(t, c.Open(context.Background()))
	broker := f.deps.Broker.(*realtime.MemoryBroker)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.mount(context.Background(), "v1")
		}()
	}
	c.Close()
	wg.Wait()

	_, ok := c.Player("v1")
	assert.False(t, ok)
	assert.Equal(t, 0, broker.Subscribers(realtime.MarkersChannel("v1")))
}

func TestSlowClientIsDisconnected(t *testing.T) {
	f := newFixture()
	c := NewConn(context.Background(), f.deps, alice)
	require.NoError(t, c.Open(context.Background()))

	for i := 0; i < SendBuffer+1; i++ {
		c.Emit("test", i)
	}
	require.Eventually(t, func() bool {
		select {
		case <-c.Done():
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestHandlerServesSocket(t *testing.T) {
	f := newFixture()
	h := Handler{Deps: f.deps, CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("anon") == "" {
			r = r.WithContext(auth.WithIdentity(r.Context(), alice))
		}
		h.ServeHTTP(w, r)
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url+"?anon=1", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	read := func() Envelope {
		t.Helper()
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		var env Envelope
		require.NoError(t, ws.ReadJSON(&env))
		return env
	}

	assert.Equal(t, session.EventSession, read().Type)
	require.NoError(t, ws.WriteJSON(Envelope{Type: CmdChatSend, Payload: json.RawMessage(`{"content":"over the wire"}`)}))
	for {
		env := read()
		if env.Type == chat.EventMessage {
			assert.Contains(t, string(env.Payload), "over the wire")
			break
		}
	}

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return !f.presence.isOnline("alice") }, 2*time.Second, 10*time.Millisecond)
}
