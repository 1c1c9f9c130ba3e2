package clock

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestFakeTimersFireWhenDue(t *testing.T) {
	c := NewFake(time.Unix(0, 0))

	var mu sync.Mutex
	var fired []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			defer mu.Unlock()
			fired = append(fired, name)
		}
	}
	snapshot := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), fired...)
	}
	waitFor := func(n int) {
		t.Helper()
		deadline := time.Now().Add(time.Second)
		for len(snapshot()) < n {
			if time.Now().After(deadline) {
				t.Fatalf("expected %d fired timers got %v", n, snapshot())
			}
			time.Sleep(time.Millisecond)
		}
	}

	c.AfterFunc(3*time.Second, record("late"))
	c.AfterFunc(time.Second, record("early"))
	stopped := c.AfterFunc(2*time.Second, record("stopped"))

	if !stopped.Stop() {
		t.Fatal("expected pending timer to stop")
	}
	if stopped.Stop() {
		t.Fatal("second stop must report false")
	}
	if c.Pending() != 2 {
		t.Fatalf("expected 2 pending timers got %d", c.Pending())
	}

	c.Advance(2 * time.Second)
	waitFor(1)
	if got := snapshot(); len(got) != 1 || got[0] != "early" {
		t.Fatalf("unexpected fired timers %v", got)
	}

	c.Advance(time.Second)
	waitFor(2)
	if got := snapshot(); got[1] != "late" {
		t.Fatalf("unexpected fired timers %v", got)
	}
	if c.Pending() != 0 {
		t.Fatalf("expected no pending timers got %d", c.Pending())
	}
}

func TestFakeTicker(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	tk := c.NewTicker(30 * time.Second)
	defer tk.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.BlockUntil(ctx, 1); err != nil {
		t.Fatalf("ticker never registered: %v", err)
	}

	c.Advance(29 * time.Second)
	select {
	case <-tk.C():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(time.Second)
	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Fatal("expected tick after one period")
	}
}

func TestRealClockTimerStops(t *testing.T) {
	c := Real()
	timer := c.AfterFunc(time.Hour, func() { t.Error("timer must not fire") })
	if !timer.Stop() {
		t.Fatal("expected stop to cancel the timer")
	}
	if c.Now().IsZero() {
		t.Fatal("real clock returned zero time")
	}
}
