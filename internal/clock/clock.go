// Package clock abstracts timers so overlay and heartbeat timing can be driven
// deterministically in tests. Both clocks are backed by clockwork.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the time source used by the session and player stores.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
	NewTicker(d time.Duration) Ticker
}

// Timer is a cancellable one-shot callback.
type Timer interface {
	Stop() bool
}

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real returns a Clock backed by the system time.
func Real() Clock { return wrapped{clockwork.NewRealClock()} }

type wrapped struct{ c clockwork.Clock }

func (w wrapped) Now() time.Time { return w.c.Now() }

func (w wrapped) AfterFunc(d time.Duration, f func()) Timer { return w.c.AfterFunc(d, f) }

func (w wrapped) NewTicker(d time.Duration) Ticker { return ticker{w.c.NewTicker(d)} }

type ticker struct{ t clockwork.Ticker }

func (t ticker) C() <-chan time.Time { return t.t.Chan() }
func (t ticker) Stop()               { t.t.Stop() }

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
	BlockUntilContext(ctx context.Context, n int) error
}

// Fake is a manually advanced clock. Due AfterFunc callbacks run on their own
// goroutine once Advance passes their deadline; tickers deliver at most one
// pending tick.
type Fake struct {
	fc fakeClock

	mu      sync.Mutex
	pending int
}

// NewFake returns a fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{fc: clockwork.NewFakeClockAt(start)}
}

// Now returns the fake's current time.
func (f *Fake) Now() time.Time { return f.fc.Now() }

// AfterFunc schedules fn to run once the fake has been advanced past d.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	f.pending++
	f.mu.Unlock()

	return &fakeTimer{clock: f, t: f.fc.AfterFunc(d, func() {
		f.settle()
		fn()
	})}
}

// NewTicker returns a ticker driven by Advance.
func (f *Fake) NewTicker(d time.Duration) Ticker { return ticker{f.fc.NewTicker(d)} }

// Advance moves the clock forward, expiring due timers and tickers.
func (f *Fake) Advance(d time.Duration) { f.fc.Advance(d) }

// BlockUntil waits until n timers and tickers are waiting on the fake.
func (f *Fake) BlockUntil(ctx context.Context, n int) error {
	return f.fc.BlockUntilContext(ctx, n)
}

// Pending reports how many AfterFunc timers are scheduled and have neither
// fired nor been stopped.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

func (f *Fake) settle() {
	f.mu.Lock()
	f.pending--
	f.mu.Unlock()
}

type fakeTimer struct {
	clock *Fake
	t     clockwork.Timer
}

func (t *fakeTimer) Stop() bool {
	if !t.t.Stop() {
		return false
	}
	t.clock.settle()
	return true
}
