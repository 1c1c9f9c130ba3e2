package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Display identity of the notifier that event messages are attributed to.
const (
	SystemSenderName      = "Watchparty Notification"
	SystemSenderAvatarURL = "/vite.svg"
)

// Message is a chat row. ReceiverID is nil for global messages and set for
// private ones. The row's SenderID is always the inserting account; Sender is
// the identity the message is displayed with.
type Message struct {
	ID              string     `json:"id"`
	SenderID        string     `json:"senderId"`
	ReceiverID      *string    `json:"receiverId"`
	Content         string     `json:"content"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
	Edited          bool       `json:"edited"`
	ReplyTo         *string    `json:"replyTo,omitempty"`
	ReplyToContent  string     `json:"replyToContent,omitempty"`
	ReplyToUsername string     `json:"replyToUsername,omitempty"`
	IsEventMessage  bool       `json:"isEventMessage"`
	Sender          Sender     `json:"sender,omitempty"`
}

// IsGlobal reports whether the message is visible to every user.
func (m Message) IsGlobal() bool {
	return m.ReceiverID == nil
}

// Involves reports whether userID is a party of a private message.
func (m Message) Involves(userID string) bool {
	if m.ReceiverID == nil || userID == "" {
		return false
	}
	return m.SenderID == userID || *m.ReceiverID == userID
}

// Counterpart returns the other party of a private message from userID's view.
func (m Message) Counterpart(userID string) string {
	if m.ReceiverID == nil {
		return ""
	}
	if m.SenderID == userID {
		return *m.ReceiverID
	}
	return m.SenderID
}

// Sender is the identity a message is displayed with: a real user or the
// synthetic notifier. Implementations are UserSender and SystemSender.
type Sender interface {
	senderKind() string
	DisplayName() string
	Avatar() string
}

// UserSender attributes a message to the account that wrote it.
type UserSender struct {
	User UserSummary
}

func (UserSender) senderKind() string    { return "user" }
func (s UserSender) DisplayName() string { return s.User.Username }
func (s UserSender) Avatar() string      { return s.User.AvatarURL }

// SystemSender attributes a message to the synthetic notifier.
type SystemSender struct {
	Name      string
	AvatarURL string
}

func (SystemSender) senderKind() string    { return "system" }
func (s SystemSender) DisplayName() string { return s.Name }
func (s SystemSender) Avatar() string      { return s.AvatarURL }

// NotificationSender is the fixed identity event messages render with.
func NotificationSender() SystemSender {
	return SystemSender{Name: SystemSenderName, AvatarURL: SystemSenderAvatarURL}
}

type senderJSON struct {
	Kind      string     `json:"kind"`
	ID        string     `json:"id,omitempty"`
	Username  string     `json:"username"`
	AvatarURL string     `json:"avatarUrl"`
	IsAdmin   bool       `json:"isAdmin,omitempty"`
	Verified  bool       `json:"verified"`
	IsOnline  bool       `json:"isOnline,omitempty"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
}

func (s UserSender) MarshalJSON() ([]byte, error) {
	return json.Marshal(senderJSON{
		Kind:      "user",
		ID:        s.User.ID,
		Username:  s.User.Username,
		AvatarURL: s.User.AvatarURL,
		IsAdmin:   s.User.IsAdmin,
		Verified:  s.User.Verified,
		IsOnline:  s.User.IsOnline,
		LastSeen:  s.User.LastSeen,
	})
}

func (s SystemSender) MarshalJSON() ([]byte, error) {
	return json.Marshal(senderJSON{
		Kind:      "system",
		Username:  s.Name,
		AvatarURL: s.AvatarURL,
		Verified:  true,
	})
}

// UnmarshalJSON decodes the tagged sender envelope back into its variant.
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var aux struct {
		plain
		Sender json.RawMessage `json:"sender,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Message(aux.plain)
	m.Sender = nil

	if len(aux.Sender) == 0 || string(aux.Sender) == "null" {
		return nil
	}

	var env senderJSON
	if err := json.Unmarshal(aux.Sender, &env); err != nil {
		return fmt.Errorf("decode sender: %w", err)
	}
	switch env.Kind {
	case "user":
		m.Sender = UserSender{User: UserSummary{
			ID:        env.ID,
			Username:  env.Username,
			AvatarURL: env.AvatarURL,
			IsAdmin:   env.IsAdmin,
			Verified:  env.Verified,
			IsOnline:  env.IsOnline,
			LastSeen:  env.LastSeen,
		}}
	case "system":
		m.Sender = SystemSender{Name: env.Username, AvatarURL: env.AvatarURL}
	default:
		return fmt.Errorf("decode sender: unknown kind %q", env.Kind)
	}
	return nil
}
