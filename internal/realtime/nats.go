package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/vidfriends/watchparty/internal/logging"
)

// SubjectPrefix namespaces change subjects on the NATS server.
const SubjectPrefix = "watchparty.changes"

// NATSBroker fans changes out across service instances using core NATS
// pub/sub. Changes published while a connection is down are not replayed.
type NATSBroker struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSBroker connects to url and logs connection state transitions.
func NewNATSBroker(url string, logger *slog.Logger) (*NATSBroker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("watchparty"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected, changes published meanwhile are lost", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("nats async error", "subject", subject, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSBroker{conn: conn, logger: logger}, nil
}

// Subject returns the subject a change of typ on table is published to.
func Subject(table string, typ EventType) string {
	if typ == "" || typ == AnyEvent {
		return fmt.Sprintf("%s.%s.*", SubjectPrefix, table)
	}
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, table, strings.ToLower(string(typ)))
}

// Publish sends c to its table and event subject.
func (b *NATSBroker) Publish(ctx context.Context, c Change) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	subject := Subject(c.Table, c.Type)
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	logging.FromContext(ctx).Debug("change published", "subject", subject)
	return nil
}

// Subscribe listens on the filter's table subject and applies the column
// predicate after decoding. nats.go runs each subscription's callbacks on a
// single goroutine, so delivery order is preserved per subscription.
func (b *NATSBroker) Subscribe(channel string, filter Filter, handler Handler) (*Subscription, error) {
	if filter.Table == "" {
		return nil, fmt.Errorf("nats subscribe %s: filter table is required", channel)
	}

	handle := newSubscription(channel, nil)
	logger := b.logger.With(slog.String("channel", channel))

	natsSub, err := b.conn.Subscribe(Subject(filter.Table, filter.Event), func(msg *nats.Msg) {
		if !handle.Active() {
			return
		}
		var c Change
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			logger.Error("decode change", "subject", msg.Subject, "error", err)
			return
		}
		if !filter.Matches(c) {
			return
		}
		handler(logging.WithLogger(context.Background(), logger), c)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", channel, err)
	}

	handle.release = func() {
		if err := natsSub.Unsubscribe(); err != nil && b.conn.IsConnected() {
			logger.Warn("nats unsubscribe", "error", err)
		}
	}
	return handle, nil
}

// Close drains outstanding deliveries and closes the connection.
func (b *NATSBroker) Close() error {
	if b == nil || b.conn == nil {
		return nil
	}
	return b.conn.Drain()
}
