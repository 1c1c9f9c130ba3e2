package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidfriends/watchparty/internal/clock"
	"github.com/vidfriends/watchparty/internal/models"
	"github.com/vidfriends/watchparty/internal/realtime"
)

func marker(id, user string, at float64) models.MarkerView {
	return models.MarkerView{
		Marker:   models.Marker{ID: id, VideoID: "v1", UserID: user, Timestamp: at},
		Username: user,
	}
}

func TestGroupMarkersBySecond(t *testing.T) {
	groups := GroupMarkers([]models.MarkerView{
		marker("a", "u1", 13.4),
		marker("b", "u2", 12.2),
		marker("c", "u3", 12.7),
		marker("d", "u4", 3),
	})

	require.Len(t, groups, 3)
	assert.Equal(t, []int{3, 12, 13}, []int{groups[0].Second, groups[1].Second, groups[2].Second})
	require.Len(t, groups[1].Markers, 2)
	assert.Equal(t, "b", groups[1].Markers[0].ID, "arrival order is kept inside a group")
	assert.Equal(t, "c", groups[1].Markers[1].ID)
	assert.Len(t, groups[2].Markers, 1)
}

func TestActiveGroupWindow(t *testing.T) {
	groups := GroupMarkers([]models.MarkerView{marker("a", "u1", 10), marker("b", "u2", 11)})

	g, ok := ActiveGroup(groups, 10.5)
	require.True(t, ok)
	assert.Equal(t, 10, g.Second, "the first ascending group within the window wins")

	g, ok = ActiveGroup(groups, 11.7)
	require.True(t, ok)
	assert.Equal(t, 11, g.Second)

	_, ok = ActiveGroup(groups, 11.75)
	assert.False(t, ok)
	_, ok = ActiveGroup(nil, 1)
	assert.False(t, ok)
}

func TestGroupViewOverflow(t *testing.T) {
	g := Group{Second: 75}
	for _, u := range []string{"u1", "u2", "u3", "u4", "u5"} {
		g.Markers = append(g.Markers, marker(u, u, 75))
	}
	v := g.View()
	assert.Equal(t, "1:15", v.Label)
	assert.Equal(t, 5, v.Count)
	assert.Len(t, v.Avatars, MaxGroupAvatars)
	assert.Equal(t, 2, v.Overflow)
}

func TestNewDecorations(t *testing.T) {
	values := []float64{0, 0.5, 0.999}
	i := 0
	rnd := func() float64 {
		v := values[i%len(values)]
		i++
		return v
	}
	decorations := NewDecorations(rnd)
	require.Len(t, decorations, DecorationCount)
	for _, d := range decorations {
		assert.Contains(t, Glyphs, d.Glyph)
		assert.GreaterOrEqual(t, d.Top, 0.0)
		assert.Less(t, d.Top, 100.0)
		assert.LessOrEqual(t, d.Delay, 0.5)
	}
}

type markerSourceStub struct {
	mu      sync.Mutex
	markers []models.MarkerView
	calls   int
	err     error
}

func (m *markerSourceStub) Markers(context.Context, string) ([]models.MarkerView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return append([]models.MarkerView(nil), m.markers...), nil
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) Emit(eventType string, _ any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, eventType)
}

func (e *eventLog) count(eventType string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev == eventType {
			n++
		}
	}
	return n
}

type playerFixture struct {
	store  *Store
	source *markerSourceStub
	broker *realtime.MemoryBroker
	fake   *clock.Fake
	events *eventLog
}

func newPlayerFixture(t *testing.T, watch *WatchAccumulator) playerFixture {
	t.Helper()
	source := &markerSourceStub{markers: []models.MarkerView{marker("m1", "u1", 12), {Marker: models.Marker{ID: "m2", VideoID: "v1", Timestamp: 40}}}}
	broker := realtime.NewMemoryBroker()
	fake := clock.NewFake(time.Date(2024, time.June, 1, 20, 0, 0, 0, time.UTC))
	events := &eventLog{}
	store := NewStore("v1", source, broker, Options{Clock: fake, Emitter: events, Watch: watch})
	require.NoError(t, store.Mount(context.Background()))
	return playerFixture{store: store, source: source, broker: broker, fake: fake, events: events}
}

func publishReaction(t *testing.T, b realtime.Broker, videoID, user string) {
	t.Helper()
	change, err := realtime.NewChange(realtime.TableReactionEvents, realtime.Insert,
		models.ReactionEvent{ID: user + "-event", VideoID: videoID, UserID: user, Username: user},
		nil, map[string]string{"video_id": videoID})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), change))
}

func TestMountLoadsMarkersWithFallbackNames(t *testing.T) {
	f := newPlayerFixture(t, nil)

	assert.Equal(t, StateMarkersLoaded, f.store.State())
	markers := f.store.Markers()
	require.Len(t, markers, 2)
	assert.Equal(t, UnknownUsername, markers[1].Username)
	assert.Equal(t, 1, f.events.count(EventMarkers))
}

func TestMarkerChangesRefetch(t *testing.T) {
	f := newPlayerFixture(t, nil)
	f.source.mu.Lock()
	f.source.markers = append(f.source.markers, marker("m3", "u2", 12.9))
	f.source.mu.Unlock()

	for _, typ := range []realtime.EventType{realtime.Insert, realtime.Delete} {
		change, err := realtime.NewChange(realtime.TableMarkers, typ, nil, nil, map[string]string{"video_id": "v1"})
		require.NoError(t, err)
		require.NoError(t, f.broker.Publish(context.Background(), change))
	}
	other, _ := realtime.NewChange(realtime.TableMarkers, realtime.Insert, nil, nil, map[string]string{"video_id": "v2"})
	require.NoError(t, f.broker.Publish(context.Background(), other))

	assert.Equal(t, 3, f.source.calls, "mount plus one refetch per matching change")
	groups := f.store.Groups()
	require.Len(t, groups, 2)
	assert.Len(t, groups[0].Markers, 2)
}

func TestOverlayTimerResetsOnSecondReaction(t *testing.T) {
	f := newPlayerFixture(t, nil)

	publishReaction(t, f.broker, "v1", "alice")
	require.NotNil(t, f.store.Overlay())
	assert.Len(t, f.store.Overlay().Decorations, DecorationCount)

	f.fake.Advance(time.Second)
	publishReaction(t, f.broker, "v1", "bob")
	assert.Equal(t, "bob", f.store.Overlay().Event.Username, "the newest reaction replaces the active one")
	assert.Equal(t, 1, f.fake.Pending(), "only one overlay timer runs at a time")

	f.fake.Advance(2 * time.Second)
	require.NotNil(t, f.store.Overlay(), "three seconds after the first reaction the overlay is still up")

	f.fake.Advance(time.Second)
	require.Eventually(t, func() bool { return f.events.count(EventOverlayCleared) == 1 }, time.Second, time.Millisecond)
	assert.Nil(t, f.store.Overlay(), "the overlay clears three seconds after the second reaction")
	assert.Equal(t, 2, f.events.count(EventOverlay))
	assert.Zero(t, f.fake.Pending())
}

func TestReactionsForOtherVideosIgnored(t *testing.T) {
	f := newPlayerFixture(t, nil)
	publishReaction(t, f.broker, "v2", "alice")
	assert.Nil(t, f.store.Overlay())
}

func TestUnmountCancelsEverything(t *testing.T) {
	f := newPlayerFixture(t, nil)
	publishReaction(t, f.broker, "v1", "alice")

	f.store.Unmount(context.Background())
	f.store.Unmount(context.Background())

	assert.Equal(t, StateUnmounted, f.store.State())
	assert.Zero(t, f.broker.Subscribers(realtime.MarkersChannel("v1")))
	assert.Zero(t, f.broker.Subscribers(realtime.ReactionEventsChannel("v1")))
	assert.Zero(t, f.fake.Pending())
	assert.Nil(t, f.store.Overlay())

	publishReaction(t, f.broker, "v1", "bob")
	assert.Nil(t, f.store.Overlay())
}

func TestMountFailureKeepsIdle(t *testing.T) {
	source := &markerSourceStub{err: errors.New("db down")}
	store := NewStore("v1", source, realtime.NewMemoryBroker(), Options{})
	assert.Error(t, store.Mount(context.Background()))
	assert.Equal(t, StateIdle, store.State())
}

func TestActiveMarkerOnlyWhilePlaying(t *testing.T) {
	f := newPlayerFixture(t, nil)

	f.store.SetPosition(12.3)
	assert.Zero(t, f.events.count(EventActiveMarker), "paused players do not move the highlight")

	f.store.SetPlaying(context.Background(), true)
	f.store.SetPosition(12.3)
	f.store.SetPosition(12.5)
	assert.Equal(t, 1, f.events.count(EventActiveMarker), "unchanged highlights are not re-emitted")

	f.store.SetPosition(20)
	assert.Equal(t, 2, f.events.count(EventActiveMarker))
}

type watchLog struct {
	mu      sync.Mutex
	flushes []int
}

func (w *watchLog) AddWatchTime(_ context.Context, _, _ string, seconds int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes = append(w.flushes, seconds)
	return nil
}

func (w *watchLog) snapshot() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]int(nil), w.flushes...)
}

func TestWatchAccumulatorFlushesEveryFiveSecondsAndOnPause(t *testing.T) {
	fake := clock.NewFake(time.Date(2024, time.June, 1, 20, 0, 0, 0, time.UTC))
	log := &watchLog{}
	acc := NewWatchAccumulator(fake, log, "u1", "v1")
	ctx := context.Background()

	acc.Play(ctx)
	acc.Play(ctx)
	advance := func(n int) {
		for i := 0; i < n; i++ {
			want := (acc.Accumulated() + 1) % WatchFlushSeconds
			fake.Advance(time.Second)
			require.Eventually(t, func() bool { return acc.Accumulated() == want }, time.Second, time.Millisecond)
		}
	}

	advance(7)
	assert.Equal(t, []int{5}, log.snapshot())
	assert.Equal(t, 2, acc.Accumulated())

	acc.Pause(ctx)
	assert.Equal(t, []int{5, 2}, log.snapshot())
	assert.False(t, acc.Playing())

	acc.Pause(ctx)
	assert.Equal(t, []int{5, 2}, log.snapshot(), "nothing accumulated, nothing flushed")
}

func TestUnmountFlushesWatchTime(t *testing.T) {
	log := &watchLog{}
	fake := clock.NewFake(time.Date(2024, time.June, 1, 20, 0, 0, 0, time.UTC))
	acc := NewWatchAccumulator(fake, log, "u1", "v1")
	f := newPlayerFixture(t, acc)

	f.store.SetPlaying(context.Background(), true)
	fake.Advance(time.Second)
	require.Eventually(t, func() bool { return acc.Accumulated() == 1 }, time.Second, time.Millisecond)

	f.store.Unmount(context.Background())
	assert.Equal(t, []int{1}, log.snapshot())
}
