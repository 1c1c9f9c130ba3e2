// Package realtime carries row change notifications from writers to the
// per-connection stores that render them. A Broker fans changes out either in
// process or across service instances over NATS.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// EventType is the kind of row change.
type EventType string

const (
	Insert   EventType = "INSERT"
	Update   EventType = "UPDATE"
	Delete   EventType = "DELETE"
	AnyEvent EventType = "*"
)

// Tables that publish changes.
const (
	TableMessages       = "messages"
	TableMarkers        = "markers"
	TableReactionEvents = "reaction_events"
)

// Change describes one committed row change. Attrs holds the columns
// subscriptions may filter on, as strings; a null column is omitted.
type Change struct {
	Table      string            `json:"table"`
	Type       EventType         `json:"type"`
	New        json.RawMessage   `json:"new,omitempty"`
	Old        json.RawMessage   `json:"old,omitempty"`
	Attrs      map[string]string `json:"attrs,omitempty"`
	CommitTime time.Time         `json:"commitTime"`
}

// NewChange encodes the new and old row images. Either may be nil.
func NewChange(table string, typ EventType, newRow, oldRow any, attrs map[string]string) (Change, error) {
	c := Change{Table: table, Type: typ, Attrs: attrs, CommitTime: time.Now().UTC()}
	if newRow != nil {
		data, err := json.Marshal(newRow)
		if err != nil {
			return Change{}, fmt.Errorf("encode %s row: %w", table, err)
		}
		c.New = data
	}
	if oldRow != nil {
		data, err := json.Marshal(oldRow)
		if err != nil {
			return Change{}, fmt.Errorf("encode old %s row: %w", table, err)
		}
		c.Old = data
	}
	return c, nil
}

// DecodeNew unmarshals the new row image into dst.
func (c Change) DecodeNew(dst any) error {
	if len(c.New) == 0 {
		return fmt.Errorf("%s %s change has no new row", c.Table, c.Type)
	}
	return json.Unmarshal(c.New, dst)
}

// Filter selects changes for a subscription. An empty Event or AnyEvent matches
// every type. When Column is set the change must carry Column equal to Value;
// an empty Value matches only changes where the column is null.
type Filter struct {
	Table  string
	Event  EventType
	Column string
	Value  string
}

// Matches reports whether c satisfies the filter.
func (f Filter) Matches(c Change) bool {
	if f.Table != "" && f.Table != c.Table {
		return false
	}
	if f.Event != "" && f.Event != AnyEvent && f.Event != c.Type {
		return false
	}
	if f.Column == "" {
		return true
	}
	value, present := c.Attrs[f.Column]
	if f.Value == "" {
		return !present || value == ""
	}
	return present && value == f.Value
}

// Handler receives matching changes. Each subscription's handler is invoked
// sequentially in delivery order.
type Handler func(ctx context.Context, c Change)

// Broker publishes changes and hands out subscriptions.
type Broker interface {
	Publish(ctx context.Context, c Change) error
	Subscribe(channel string, filter Filter, handler Handler) (*Subscription, error)
}

// Subscription is the handle returned by Subscribe. Cancel is idempotent and
// safe to call from any goroutine, including from inside the handler.
type Subscription struct {
	channel string
	active  atomic.Bool
	once    sync.Once
	release func()
}

func newSubscription(channel string, release func()) *Subscription {
	s := &Subscription{channel: channel, release: release}
	s.active.Store(true)
	return s
}

// Channel names the scope the subscription was opened for.
func (s *Subscription) Channel() string {
	if s == nil {
		return ""
	}
	return s.channel
}

// Active reports whether the subscription still receives changes.
func (s *Subscription) Active() bool {
	return s != nil && s.active.Load()
}

// Cancel stops delivery. Deliveries already running finish; none start after
// Cancel returns.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.active.Store(false)
		if s.release != nil {
			s.release()
		}
	})
}

// GlobalMessagesChannel is the scope of the global chat feed.
const GlobalMessagesChannel = "messages-global"

// MarkersChannel is the scope of one video's marker feed.
func MarkersChannel(videoID string) string { return "markers-" + videoID }

// ReactionEventsChannel is the scope of one video's reaction event feed.
func ReactionEventsChannel(videoID string) string { return "reaction-events-" + videoID }
