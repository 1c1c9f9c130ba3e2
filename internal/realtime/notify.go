package realtime

import (
	"context"

	"github.com/vidfriends/watchparty/internal/logging"
)

// Notify publishes a change after its rows have committed. Failures are logged
// and swallowed: the write already happened and subscribers catch up on their
// next fetch.
func Notify(ctx context.Context, b Broker, table string, typ EventType, newRow, oldRow any, attrs map[string]string) {
	if b == nil {
		return
	}
	logger := logging.FromContext(ctx)

	change, err := NewChange(table, typ, newRow, oldRow, attrs)
	if err != nil {
		logger.Error("encode realtime change", "table", table, "type", typ, "error", err)
		return
	}
	if err := b.Publish(ctx, change); err != nil {
		logger.Warn("publish realtime change", "table", table, "type", typ, "error", err)
	}
}
