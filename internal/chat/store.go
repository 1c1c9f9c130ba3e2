package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/vidfriends/watchparty/internal/access"
	"github.com/vidfriends/watchparty/internal/logging"
	"github.com/vidfriends/watchparty/internal/models"
	"github.com/vidfriends/watchparty/internal/realtime"
)

// State is the lifecycle of a chat store.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
)

// Events emitted to the store's listener.
const (
	EventMessages = "chat.messages"
	EventMessage  = "chat.message"
	EventPrivate  = "chat.private"
	EventUnread   = "chat.unread"
	EventUpdated  = "chat.updated"
	EventDeleted  = "chat.deleted"
)

// ChatRoute is the path suffix of the chat page.
const ChatRoute = "/chat"

// Emitter receives the store's state changes.
type Emitter interface {
	Emit(eventType string, payload any)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(eventType string, payload any)

// Emit calls f.
func (f EmitterFunc) Emit(eventType string, payload any) { f(eventType, payload) }

// PrivatePayload is emitted with EventPrivate.
type PrivatePayload struct {
	UserID   string           `json:"userId"`
	Messages []models.Message `json:"messages"`
}

// UnreadPayload is emitted with EventUnread.
type UnreadPayload struct {
	Count int `json:"count"`
}

// DeletedPayload is emitted with EventDeleted.
type DeletedPayload struct {
	ID string `json:"id"`
}

// IsChatRoute reports whether path is the chat page.
func IsChatRoute(path string) bool {
	path = strings.TrimRight(strings.TrimSpace(path), "/")
	return strings.HasSuffix(path, ChatRoute)
}

// Store is one connection's view of the chat: the global feed, the private
// conversations it has opened and the unread event counter.
type Store struct {
	svc      *Service
	broker   realtime.Broker
	identity access.Identity
	emitter  Emitter

	mu         sync.Mutex
	state      State
	messages   []models.Message
	private    map[string][]models.Message
	unread     int
	route      string
	inserts    *realtime.Subscription
	mutations  []*realtime.Subscription
	subscribed bool
}

// NewStore constructs a store for identity. emitter may be nil.
func NewStore(svc *Service, broker realtime.Broker, identity access.Identity, emitter Emitter) *Store {
	if emitter == nil {
		emitter = EmitterFunc(func(string, any) {})
	}
	return &Store{
		svc:      svc,
		broker:   broker,
		identity: identity,
		emitter:  emitter,
		state:    StateIdle,
		private:  make(map[string][]models.Message),
	}
}

// State returns the store's lifecycle state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the global feed.
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages...)
}

// PrivateMessages returns a copy of the conversation with otherID.
func (s *Store) PrivateMessages(otherID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.private[otherID]...)
}

// Unread returns the unread event counter.
func (s *Store) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// FetchGlobalMessages replaces the feed with the stored global messages. On
// failure the previous feed is kept.
func (s *Store) FetchGlobalMessages(ctx context.Context) error {
	s.mu.Lock()
	previous := s.state
	s.state = StateLoading
	s.mu.Unlock()

	messages, err := s.svc.GlobalMessages(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("fetch global messages", "error", err)
		s.setState(previous)
		return err
	}

	s.mu.Lock()
	s.messages = messages
	s.state = StateReady
	snapshot := append([]models.Message(nil), messages...)
	s.mu.Unlock()

	s.emitter.Emit(EventMessages, snapshot)
	return nil
}

// FetchPrivateMessages replaces the conversation with otherID.
func (s *Store) FetchPrivateMessages(ctx context.Context, otherID string) error {
	messages, err := s.svc.Conversation(ctx, s.identity, otherID)
	if err != nil {
		logging.FromContext(ctx).Error("fetch private messages", "other_id", otherID, "error", err)
		return err
	}

	s.mu.Lock()
	s.private[otherID] = messages
	snapshot := append([]models.Message(nil), messages...)
	s.mu.Unlock()

	s.emitter.Emit(EventPrivate, PrivatePayload{UserID: otherID, Messages: snapshot})
	return nil
}

// SendGlobalMessage posts to the global feed. The message reaches this store
// through the insert subscription.
func (s *Store) SendGlobalMessage(ctx context.Context, content, replyTo string, opts SendOptions) (models.Message, error) {
	return s.svc.SendGlobal(ctx, s.identity, content, replyTo, opts)
}

// SendPrivateMessage posts to the conversation with receiverID.
func (s *Store) SendPrivateMessage(ctx context.Context, receiverID, content string) (models.Message, error) {
	return s.svc.SendPrivate(ctx, s.identity, receiverID, content)
}

// EditMessage rewrites a message the identity authored, or any message for an admin.
func (s *Store) EditMessage(ctx context.Context, id, content string) (models.Message, error) {
	return s.svc.Edit(ctx, s.identity, id, content)
}

// DeleteMessage removes one message.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	return s.svc.Delete(ctx, s.identity, id)
}

// ClearGlobal removes the whole global feed. Admin only.
func (s *Store) ClearGlobal(ctx context.Context) (int64, error) {
	return s.svc.ClearGlobal(ctx, s.identity)
}

// Subscribe opens the store's message feed. Repeated calls return the same
// handle until Unsubscribe.
func (s *Store) Subscribe() (*realtime.Subscription, error) {
	s.mu.Lock()
	if s.subscribed {
		sub := s.inserts
		s.mu.Unlock()
		return sub, nil
	}
	s.mu.Unlock()

	inserts, err := s.broker.Subscribe(realtime.GlobalMessagesChannel,
		realtime.Filter{Table: realtime.TableMessages, Event: realtime.Insert}, s.handleInsert)
	if err != nil {
		return nil, err
	}
	mutations := make([]*realtime.Subscription, 0, 2)
	for _, typ := range []realtime.EventType{realtime.Update, realtime.Delete} {
		sub, err := s.broker.Subscribe(realtime.GlobalMessagesChannel,
			realtime.Filter{Table: realtime.TableMessages, Event: typ}, s.handleMutation)
		if err != nil {
			cancelAll(append(mutations, inserts))
			return nil, err
		}
		mutations = append(mutations, sub)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribed {
		cancelAll(append(mutations, inserts))
		return s.inserts, nil
	}
	s.inserts, s.mutations, s.subscribed = inserts, mutations, true
	return inserts, nil
}

// Unsubscribe cancels the message feed. It is safe to call more than once.
func (s *Store) Unsubscribe() {
	s.mu.Lock()
	inserts, mutations := s.inserts, s.mutations
	s.inserts, s.mutations, s.subscribed = nil, nil, false
	s.mu.Unlock()

	cancelAll(append(mutations, inserts))
}

// isSubscribed guards handlers against deliveries that race Unsubscribe.
func (s *Store) isSubscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed
}

func cancelAll(subs []*realtime.Subscription) {
	for _, sub := range subs {
		sub.Cancel()
	}
}

// SetRoute records the page the connection is on. Entering the chat route
// clears the unread counter.
func (s *Store) SetRoute(path string) {
	s.mu.Lock()
	s.route = path
	s.mu.Unlock()
	if IsChatRoute(path) {
		s.ClearUnread()
	}
}

// IncrementUnread bumps the unread counter unless the chat route is open.
func (s *Store) IncrementUnread() {
	s.mu.Lock()
	if IsChatRoute(s.route) {
		s.mu.Unlock()
		return
	}
	s.unread++
	count := s.unread
	s.mu.Unlock()

	s.emitter.Emit(EventUnread, UnreadPayload{Count: count})
}

// ClearUnread resets the unread counter.
func (s *Store) ClearUnread() {
	s.mu.Lock()
	changed := s.unread != 0
	s.unread = 0
	s.mu.Unlock()

	if changed {
		s.emitter.Emit(EventUnread, UnreadPayload{Count: 0})
	}
}

func (s *Store) handleInsert(ctx context.Context, c realtime.Change) {
	if !s.isSubscribed() {
		return
	}
	var msg models.Message
	if err := c.DecodeNew(&msg); err != nil {
		logging.FromContext(ctx).Error("decode message insert", "error", err)
		return
	}

	if !msg.IsGlobal() {
		s.appendPrivate(ctx, msg)
		return
	}

	if msg.IsEventMessage {
		msg = ResolveSender(msg)
		s.appendGlobal(msg)
		s.IncrementUnread()
		return
	}

	if msg.Sender == nil {
		msg.Sender = s.lookupSender(ctx, msg.SenderID)
	}
	s.appendGlobal(msg)
}

func (s *Store) appendGlobal(msg models.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.emitter.Emit(EventMessage, msg)
}

func (s *Store) appendPrivate(ctx context.Context, msg models.Message) {
	if !msg.Involves(s.identity.UserID) {
		return
	}
	msg.Sender = s.lookupSender(ctx, msg.SenderID)
	other := msg.Counterpart(s.identity.UserID)

	s.mu.Lock()
	s.private[other] = append(s.private[other], msg)
	snapshot := append([]models.Message(nil), s.private[other]...)
	s.mu.Unlock()

	s.emitter.Emit(EventPrivate, PrivatePayload{UserID: other, Messages: snapshot})
}

func (s *Store) lookupSender(ctx context.Context, userID string) models.Sender {
	if userID == "" {
		return nil
	}
	sender, err := s.svc.Sender(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Warn("resolve message sender", "sender_id", userID, "error", err)
		return nil
	}
	return sender
}

func (s *Store) handleMutation(ctx context.Context, c realtime.Change) {
	if !s.isSubscribed() {
		return
	}
	logger := logging.FromContext(ctx)

	if c.Type == realtime.Delete && c.Attrs[AttrCleared] != "" {
		s.mu.Lock()
		s.messages = nil
		s.mu.Unlock()
		s.emitter.Emit(EventMessages, []models.Message{})
		return
	}

	var msg models.Message
	var err error
	if c.Type == realtime.Update {
		err = c.DecodeNew(&msg)
	} else {
		err = decodeOld(c, &msg)
	}
	if err != nil {
		logger.Error("decode message change", "type", c.Type, "error", err)
		return
	}
	if !msg.IsGlobal() && !msg.Involves(s.identity.UserID) {
		return
	}

	s.mu.Lock()
	found := s.replaceLocked(msg, c.Type == realtime.Delete)
	s.mu.Unlock()
	if !found {
		return
	}

	if c.Type == realtime.Delete {
		s.emitter.Emit(EventDeleted, DeletedPayload{ID: msg.ID})
		return
	}
	s.emitter.Emit(EventUpdated, msg)
}

// replaceLocked swaps or removes msg wherever the store holds it.
func (s *Store) replaceLocked(msg models.Message, remove bool) bool {
	if msg.IsGlobal() {
		var found bool
		s.messages, found = replaceIn(s.messages, msg, remove)
		return found
	}
	other := msg.Counterpart(s.identity.UserID)
	conv, ok := s.private[other]
	if !ok {
		return false
	}
	conv, found := replaceIn(conv, msg, remove)
	s.private[other] = conv
	return found
}

func replaceIn(list []models.Message, msg models.Message, remove bool) ([]models.Message, bool) {
	for i := range list {
		if list[i].ID != msg.ID {
			continue
		}
		if remove {
			return append(list[:i], list[i+1:]...), true
		}
		if msg.Sender == nil {
			msg.Sender = list[i].Sender
		}
		list[i] = msg
		return list, true
	}
	return list, false
}

func (s *Store) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func decodeOld(c realtime.Change, dst *models.Message) error {
	if len(c.Old) == 0 {
		return errors.New("change has no old row")
	}
	return json.Unmarshal(c.Old, dst)
}
