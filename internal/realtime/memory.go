package realtime

import (
	"context"
	"sync"

	"github.com/vidfriends/watchparty/internal/logging"
)

// MemoryBroker delivers changes to subscribers in the same process. Publish
// invokes matching handlers synchronously, in subscription order, on the
// publisher's goroutine.
type MemoryBroker struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []*memorySub
}

type memorySub struct {
	id      uint64
	channel string
	filter  Filter
	handler Handler
	handle  *Subscription
}

// NewMemoryBroker constructs an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{}
}

// Publish delivers c to every active matching subscription.
func (b *MemoryBroker) Publish(ctx context.Context, c Change) error {
	b.mu.RLock()
	targets := make([]*memorySub, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.filter.Matches(c) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		if !sub.handle.Active() {
			continue
		}
		b.dispatch(ctx, sub, c)
	}
	return nil
}

func (b *MemoryBroker) dispatch(ctx context.Context, sub *memorySub, c Change) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.FromContext(ctx).Error("realtime handler panicked",
				"channel", sub.channel, "table", c.Table, "panic", rec)
		}
	}()
	sub.handler(ctx, c)
}

// Subscribe registers handler for changes matching filter.
func (b *MemoryBroker) Subscribe(channel string, filter Filter, handler Handler) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &memorySub{id: b.nextID, channel: channel, filter: filter, handler: handler}
	id := sub.id
	sub.handle = newSubscription(channel, func() { b.remove(id) })
	b.subs = append(b.subs, sub)
	return sub.handle, nil
}

func (b *MemoryBroker) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Subscribers counts active subscriptions opened for channel.
func (b *MemoryBroker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, sub := range b.subs {
		if sub.channel == channel {
			n++
		}
	}
	return n
}
