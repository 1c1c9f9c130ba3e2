// Package chat implements the global and private chat feeds and the
// notification counter derived from event messages.
package chat

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

// MaxMessageLength bounds the characters in a chat message.
const MaxMessageLength = 2000

var (
	// ErrEmptyMessage indicates the message had no content after trimming.
	ErrEmptyMessage = errors.New("message content is required")
	// ErrMessageTooLong indicates the message exceeded MaxMessageLength.
	ErrMessageTooLong = fmt.Errorf("message exceeds %d characters", MaxMessageLength)
	// ErrInvalidReceiver indicates a private message addressed to nobody or to the sender.
	ErrInvalidReceiver = errors.New("invalid message receiver")
)

// MessageStore persists chat messages.
type MessageStore interface {
	Create(ctx context.Context, m models.Message) error
	FindByID(ctx context.Context, id string) (models.Message, error)
	ListGlobal(ctx context.Context) ([]models.Message, error)
	ListConversation(ctx context.Context, userID, otherID string) ([]models.Message, error)
	UpdateContent(ctx context.Context, id, content string, at time.Time) (models.Message, error)
	Delete(ctx context.Context, id string) error
	ClearGlobal(ctx context.Context) (int64, error)
}

// UserLookup resolves sender attributes and admin flags.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// SendOptions tweaks how a global message is stored.
type SendOptions struct {
	IsEvent bool `json:"isEvent"`
}

// Service is the process-wide chat write path shared by every connection and
// the REST handlers.
type Service struct {
	Messages MessageStore
	Users    UserLookup
	Broker   realtime.Broker
	NowFunc  func() time.Time
}

// GlobalMessages returns the global feed in creation order with senders resolved.
func (s *Service) GlobalMessages(ctx context.Context) ([]models.Message, error) {
	messages, err := s.Messages.ListGlobal(ctx)
	if err != nil {
		return nil, fmt.Errorf("list global messages: %w", err)
	}
	for i := range messages {
		messages[i] = ResolveSender(messages[i])
	}
	return messages, nil
}

// Conversation returns the private messages between actor and otherID.
func (s *Service) Conversation(ctx context.Context, actor access.Identity, otherID string) ([]models.Message, error) {
	if err := access.Require(actor); err != nil {
		return nil, err
	}
	messages, err := s.Messages.ListConversation(ctx, actor.UserID, otherID)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	return messages, nil
}

// SendGlobal stores a global message. When replyTo names an existing message
// its content and author are copied onto the reply.
func (s *Service) SendGlobal(ctx context.Context, actor access.Identity, content, replyTo string, opts SendOptions) (models.Message, error) {
	if err := access.Require(actor); err != nil {
		return models.Message{}, err
	}
	content, err := normalizeContent(content)
	if err != nil {
		return models.Message{}, err
	}

	msg := models.Message{
		ID:             uuid.NewString(),
		SenderID:       actor.UserID,
		Content:        content,
		CreatedAt:      s.now(),
		IsEventMessage: opts.IsEvent,
	}

	if replyTo = strings.TrimSpace(replyTo); replyTo != "" {
		original, err := s.Messages.FindByID(ctx, replyTo)
		switch {
		case err == nil && original.IsGlobal():
			original = ResolveSender(original)
			msg.ReplyTo = &original.ID
			msg.ReplyToContent = original.Content
			if original.Sender != nil {
				msg.ReplyToUsername = original.Sender.DisplayName()
			}
		case err != nil && !errors.Is(err, repositories.ErrNotFound):
			return models.Message{}, fmt.Errorf("load replied message: %w", err)
		}
	}

	if err := s.Messages.Create(ctx, msg); err != nil {
		return models.Message{}, fmt.Errorf("create message: %w", err)
	}

	// Subscribers render the sender carried on the change and only look it
	// up themselves when it is missing.
	if msg.IsEventMessage {
		msg = ResolveSender(msg)
	} else if sender, err := s.Sender(ctx, actor.UserID); err == nil {
		msg.Sender = sender
	} else {
		logging.FromContext(ctx).Warn("resolve message sender", "sender_id", actor.UserID, "error", err)
	}

	realtime.Notify(ctx, s.Broker, realtime.TableMessages, realtime.Insert, msg, nil, messageAttrs(msg))
	return msg, nil
}

// SendPrivate stores a message visible only to actor and receiverID.
func (s *Service) SendPrivate(ctx context.Context, actor access.Identity, receiverID, content string) (models.Message, error) {
	if err := access.Require(actor); err != nil {
		return models.Message{}, err
	}
	receiverID = strings.TrimSpace(receiverID)
	if receiverID == "" || receiverID == actor.UserID {
		return models.Message{}, ErrInvalidReceiver
	}
	content, err := normalizeContent(content)
	if err != nil {
		return models.Message{}, err
	}

	if _, err := s.Users.FindByID(ctx, receiverID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Message{}, ErrInvalidReceiver
		}
		return models.Message{}, fmt.Errorf("load receiver: %w", err)
	}

	msg := models.Message{
		ID:         uuid.NewString(),
		SenderID:   actor.UserID,
		ReceiverID: &receiverID,
		Content:    content,
		CreatedAt:  s.now(),
	}
	if err := s.Messages.Create(ctx, msg); err != nil {
		return models.Message{}, fmt.Errorf("create private message: %w", err)
	}

	realtime.Notify(ctx, s.Broker, realtime.TableMessages, realtime.Insert, msg, nil, messageAttrs(msg))
	return msg, nil
}

// Edit rewrites a message. Only its author or an admin may edit it.
func (s *Service) Edit(ctx context.Context, actor access.Identity, id, content string) (models.Message, error) {
	existing, err := s.authorize(ctx, actor, id)
	if err != nil {
		return models.Message{}, err
	}
	content, err = normalizeContent(content)
	if err != nil {
		return models.Message{}, err
	}

	updated, err := s.Messages.UpdateContent(ctx, existing.ID, content, s.now())
	if err != nil {
		return models.Message{}, fmt.Errorf("update message: %w", err)
	}
	updated = ResolveSender(updated)

	realtime.Notify(ctx, s.Broker, realtime.TableMessages, realtime.Update, updated, existing, messageAttrs(updated))
	return updated, nil
}

// Delete removes a message. Only its author or an admin may delete it.
func (s *Service) Delete(ctx context.Context, actor access.Identity, id string) error {
	existing, err := s.authorize(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.Messages.Delete(ctx, existing.ID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	realtime.Notify(ctx, s.Broker, realtime.TableMessages, realtime.Delete, nil, existing, messageAttrs(existing))
	return nil
}

// ClearGlobal removes every global message. Admin only.
func (s *Service) ClearGlobal(ctx context.Context, actor access.Identity) (int64, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return 0, err
	}
	removed, err := s.Messages.ClearGlobal(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear global messages: %w", err)
	}

	logging.FromContext(ctx).Info("global chat cleared", "removed", removed, "by", actor.UserID)
	realtime.Notify(ctx, s.Broker, realtime.TableMessages, realtime.Delete, nil, nil, map[string]string{AttrCleared: "global"})
	return removed, nil
}

// Sender fetches the display attributes of userID.
func (s *Service) Sender(ctx context.Context, userID string) (models.Sender, error) {
	user, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return models.UserSender{User: user.Summary()}, nil
}

func (s *Service) authorize(ctx context.Context, actor access.Identity, id string) (models.Message, error) {
	if err := access.Require(actor); err != nil {
		return models.Message{}, err
	}
	existing, err := s.Messages.FindByID(ctx, id)
	if err != nil {
		return models.Message{}, fmt.Errorf("load message: %w", err)
	}
	if existing.SenderID == actor.UserID {
		return existing, nil
	}
	isAdmin, err := s.isAdmin(ctx, actor)
	if err != nil {
		return models.Message{}, err
	}
	if err := access.RequireOwnerOrAdmin(actor, isAdmin, existing.SenderID); err != nil {
		return models.Message{}, err
	}
	return existing, nil
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

// AttrCleared marks the DELETE change published by ClearGlobal.
const AttrCleared = "cleared"

// ResolveSender attributes event messages to the synthetic notifier. Other
// messages are returned unchanged.
func ResolveSender(m models.Message) models.Message {
	if m.IsEventMessage {
		m.Sender = models.NotificationSender()
	}
	return m
}

func normalizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return content, nil
}

func messageAttrs(m models.Message) map[string]string {
	attrs := map[string]string{"id": m.ID, "sender_id": m.SenderID}
	if m.ReceiverID != nil {
		attrs["receiver_id"] = *m.ReceiverID
	}
	return attrs
}
