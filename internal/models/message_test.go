package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMessageSenderVariantsSurviveJSON(t *testing.T) {
	msg := Message{
		ID:             "m1",
		SenderID:       "u1",
		Content:        "🔥 alice reacted at 0:12!",
		IsEventMessage: true,
		Sender:         NotificationSender(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"kind":"system"`) {
		t.Fatalf("expected system sender kind in %s", data)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	sys, ok := decoded.Sender.(SystemSender)
	if !ok {
		t.Fatalf("expected SystemSender got %T", decoded.Sender)
	}
	if sys.Name != SystemSenderName || sys.AvatarURL != SystemSenderAvatarURL {
		t.Fatalf("unexpected system sender %+v", sys)
	}

	msg.IsEventMessage = false
	msg.Sender = UserSender{User: UserSummary{ID: "u1", Username: "alice"}}
	data, err = json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	user, ok := decoded.Sender.(UserSender)
	if !ok || user.User.Username != "alice" {
		t.Fatalf("expected alice UserSender got %#v", decoded.Sender)
	}
}

func TestMessageWithoutSender(t *testing.T) {
	var decoded Message
	if err := json.Unmarshal([]byte(`{"id":"m1","senderId":"u1","receiverId":null,"content":"hi"}`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Sender != nil {
		t.Fatalf("expected nil sender got %#v", decoded.Sender)
	}
	if !decoded.IsGlobal() {
		t.Fatal("expected null receiver to be global")
	}
}

func TestMessageUnknownSenderKind(t *testing.T) {
	var decoded Message
	if err := json.Unmarshal([]byte(`{"id":"m1","sender":{"kind":"robot"}}`), &decoded); err == nil {
		t.Fatal("expected unknown sender kind to fail")
	}
}

func TestMessageParties(t *testing.T) {
	receiver := "bob"
	msg := Message{SenderID: "alice", ReceiverID: &receiver}

	if msg.IsGlobal() {
		t.Fatal("private message reported as global")
	}
	if !msg.Involves("alice") || !msg.Involves("bob") {
		t.Fatal("expected both parties to be involved")
	}
	if msg.Involves("carol") {
		t.Fatal("third party must not be involved")
	}
	if got := msg.Counterpart("alice"); got != "bob" {
		t.Fatalf("expected bob got %s", got)
	}
	if got := msg.Counterpart("bob"); got != "alice" {
		t.Fatalf("expected alice got %s", got)
	}

	global := Message{SenderID: "alice"}
	if global.Involves("alice") {
		t.Fatal("global message has no private parties")
	}
}
