package reactions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vidfriends/watchparty/internal/access"
	"github.com/vidfriends/watchparty/internal/models"
	"github.com/vidfriends/watchparty/internal/realtime"
	"github.com/vidfriends/watchparty/internal/repositories"
)

type reactionStoreStub struct {
	writes []repositories.ReactionWrite
	err    error
}

func (s *reactionStoreStub) Record(_ context.Context, w repositories.ReactionWrite) error {
	if s.err != nil {
		return s.err
	}
	s.writes = append(s.writes, w)
	return nil
}

type videoLookupStub map[string]models.Video

func (v videoLookupStub) FindByID(_ context.Context, id string) (models.Video, error) {
	video, ok := v[id]
	if !ok {
		return models.Video{}, repositories.ErrNotFound
	}
	return video, nil
}

type userLookupStub struct {
	user models.User
	err  error
}

func (u userLookupStub) FindByID(context.Context, string) (models.User, error) {
	return u.user, u.err
}

type recordingBroker struct {
	changes []realtime.Change
	err     error
}

func (b *recordingBroker) Publish(_ context.Context, c realtime.Change) error {
	b.changes = append(b.changes, c)
	return b.err
}

func (b *recordingBroker) Subscribe(string, realtime.Filter, realtime.Handler) (*realtime.Subscription, error) {
	return nil, errors.New("not supported")
}

func newService(store *reactionStoreStub, users userLookupStub, broker *recordingBroker) *Service {
	return &Service{
		Reactions: store,
		Videos:    videoLookupStub{"v1": {ID: "v1", DurationSeconds: 120}, "live": {ID: "live"}},
		Users:     users,
		Broker:    broker,
		NowFunc:   func() time.Time { return time.Date(2024, time.July, 4, 18, 0, 0, 0, time.UTC) },
	}
}

func TestRecordFansOut(t *testing.T) {
	store := &reactionStoreStub{}
	broker := &recordingBroker{}
	svc := newService(store, userLookupStub{user: models.User{ID: "u1", Username: "alice", AvatarURL: "a.png"}}, broker)

	result, err := svc.Record(context.Background(), access.Identity{UserID: "u1"}, "v1", 72.9, 2500*time.Millisecond)
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if len(store.writes) != 1 {
		t.Fatalf("expected one atomic write got %d", len(store.writes))
	}
	w := store.writes[0]
	if w.Marker.Timestamp != 72 || w.Event.VideoTimestamp != 72 {
		t.Fatalf("expected floored timestamp, got marker %v event %v", w.Marker.Timestamp, w.Event.VideoTimestamp)
	}
	if w.HeldSeconds != 2 {
		t.Fatalf("expected 2 held seconds got %d", w.HeldSeconds)
	}
	if !w.Announcement.IsEventMessage || w.Announcement.ReceiverID != nil {
		t.Fatalf("announcement must be a global event message: %+v", w.Announcement)
	}
	if w.Announcement.Content != "🔥 alice reacted at 1:12!" {
		t.Fatalf("unexpected announcement %q", w.Announcement.Content)
	}
	if w.Event.Username != "alice" || w.Event.AvatarURL != "a.png" {
		t.Fatalf("expected user snapshot, got %+v", w.Event)
	}
	if result.Marker.ID != w.Marker.ID {
		t.Fatal("result should echo the written marker")
	}

	tables := []string{}
	for _, c := range broker.changes {
		tables = append(tables, c.Table)
		if c.Type != realtime.Insert {
			t.Fatalf("expected inserts, got %s", c.Type)
		}
	}
	want := []string{realtime.TableReactionEvents, realtime.TableMarkers, realtime.TableMessages}
	if len(tables) != len(want) {
		t.Fatalf("unexpected published tables %v", tables)
	}
	for i := range want {
		if tables[i] != want[i] {
			t.Fatalf("unexpected published tables %v", tables)
		}
	}
	if broker.changes[0].Attrs["video_id"] != "v1" {
		t.Fatalf("reaction change must carry video_id, got %v", broker.changes[0].Attrs)
	}
}

func TestRecordValidatesTimestamp(t *testing.T) {
	svc := newService(&reactionStoreStub{}, userLookupStub{user: models.User{ID: "u1"}}, &recordingBroker{})
	ctx := context.Background()
	actor := access.Identity{UserID: "u1"}

	cases := []struct {
		name    string
		video   string
		at      float64
		wantErr error
	}{
		{name: "negative", video: "v1", at: -1, wantErr: ErrTimestampOutOfRange},
		{name: "past duration", video: "v1", at: 121, wantErr: ErrTimestampOutOfRange},
		{name: "at duration", video: "v1", at: 120.6},
		{name: "unknown duration", video: "live", at: 99999},
		{name: "missing video", video: "nope", at: 1, wantErr: repositories.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Record(ctx, actor, tc.video, tc.at, 0)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v want %v", err, tc.wantErr)
			}
		})
	}
}

func TestRecordFallsBackToAnonymous(t *testing.T) {
	store := &reactionStoreStub{}
	svc := newService(store, userLookupStub{user: models.User{ID: "u1"}}, &recordingBroker{})

	if _, err := svc.Record(context.Background(), access.Identity{UserID: "u1"}, "v1", 5, 0); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := store.writes[0].Event.Username; got != AnonymousName {
		t.Fatalf("expected %q got %q", AnonymousName, got)
	}
	if got := store.writes[0].Announcement.Content; got != "🔥 Anonymous reacted at 0:05!" {
		t.Fatalf("unexpected announcement %q", got)
	}
}

func TestRecordRequiresIdentity(t *testing.T) {
	svc := newService(&reactionStoreStub{}, userLookupStub{}, &recordingBroker{})
	if _, err := svc.Record(context.Background(), access.Identity{}, "v1", 5, 0); !errors.Is(err, access.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated got %v", err)
	}
}

func TestRecordFailureSkipsPublish(t *testing.T) {
	broker := &recordingBroker{}
	svc := newService(&reactionStoreStub{err: errors.New("tx aborted")}, userLookupStub{user: models.User{ID: "u1"}}, broker)

	if _, err := svc.Record(context.Background(), access.Identity{UserID: "u1"}, "v1", 5, 0); err == nil {
		t.Fatal("expected error")
	}
	if len(broker.changes) != 0 {
		t.Fatalf("nothing should be published when the transaction fails, got %d", len(broker.changes))
	}
}

func TestPublishFailureDoesNotFailRecord(t *testing.T) {
	store := &reactionStoreStub{}
	broker := &recordingBroker{err: errors.New("nats down")}
	svc := newService(store, userLookupStub{user: models.User{ID: "u1", Username: "bob"}}, broker)

	if _, err := svc.Record(context.Background(), access.Identity{UserID: "u1"}, "v1", 5, 0); err != nil {
		t.Fatalf("publish failures must not fail a committed reaction: %v", err)
	}
	if len(store.writes) != 1 {
		t.Fatal("expected the reaction to be written")
	}
}
