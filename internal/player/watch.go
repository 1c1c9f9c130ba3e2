package player

import (
	"context"
	"sync"
	"time"

	"github.com/vidfriends/watchparty/internal/clock"
	"github.com/vidfriends/watchparty/internal/logging"
)

// WatchFlushSeconds is how many accumulated seconds trigger a flush.
const WatchFlushSeconds = 5

// WatchRecorder persists watch time.
type WatchRecorder interface {
	AddWatchTime(ctx context.Context, userID, videoID string, seconds int) error
}

// WatchAccumulator counts one second per tick while a video plays and hands
// the total to a WatchRecorder every WatchFlushSeconds and when playback stops.
type WatchAccumulator struct {
	clock    clock.Clock
	recorder WatchRecorder
	userID   string
	videoID  string

	mu          sync.Mutex
	accumulated int
	stop        chan struct{}
	done        chan struct{}
}

// NewWatchAccumulator constructs an idle accumulator.
func NewWatchAccumulator(c clock.Clock, recorder WatchRecorder, userID, videoID string) *WatchAccumulator {
	if c == nil {
		c = clock.Real()
	}
	return &WatchAccumulator{clock: c, recorder: recorder, userID: userID, videoID: videoID}
}

// Accumulated returns the seconds counted since the last flush.
func (a *WatchAccumulator) Accumulated() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.accumulated
}

// Playing reports whether the accumulator is counting.
func (a *WatchAccumulator) Playing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stop != nil
}

// Play starts counting. It is a no-op while already playing.
func (a *WatchAccumulator) Play(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stop != nil {
		return
	}
	ticker := a.clock.NewTicker(time.Second)
	stop := make(chan struct{})
	done := make(chan struct{})
	a.stop, a.done = stop, done
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				a.tick(ctx)
			}
		}
	}()
}

// Pause stops counting and flushes what was accumulated.
func (a *WatchAccumulator) Pause(ctx context.Context) {
	a.mu.Lock()
	stop, done := a.stop, a.done
	a.stop, a.done = nil, nil
	a.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	a.flush(ctx)
}

func (a *WatchAccumulator) tick(ctx context.Context) {
	a.mu.Lock()
	a.accumulated++
	due := a.accumulated >= WatchFlushSeconds
	a.mu.Unlock()
	if due {
		a.flush(ctx)
	}
}

func (a *WatchAccumulator) flush(ctx context.Context) {
	a.mu.Lock()
	seconds := a.accumulated
	a.accumulated = 0
	a.mu.Unlock()

	if seconds == 0 || a.recorder == nil || a.userID == "" {
		return
	}
	if err := a.recorder.AddWatchTime(ctx, a.userID, a.videoID, seconds); err != nil {
		logging.FromContext(ctx).Warn("record watch time", "video_id", a.videoID, "seconds", seconds, "error", err)
	}
}
