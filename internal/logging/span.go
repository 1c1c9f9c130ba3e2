package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span is a logged unit of work: a websocket connection, a change dispatch or a
// multi-step write.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
	attrs  []any
}

// StartSpan derives a child span from ctx. The returned context carries a logger
// tagged with trace and span identifiers so nested work shares the trace.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := FromContext(ctx)

	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = RequestIDFromContext(ctx)
	}
	if traceID == "" {
		traceID = uuid.NewString()
	}
	if TraceIDFromContext(ctx) == "" {
		ctx = WithTraceID(ctx, traceID)
		logger = logger.With(slog.String("trace_id", traceID))
	}

	spanID := uuid.NewString()
	logger = logger.With(
		slog.String("span_id", spanID),
		slog.String("span_name", name),
	)
	if parent := SpanIDFromContext(ctx); parent != "" {
		logger = logger.With(slog.String("parent_span_id", parent))
	}

	ctx = WithLogger(ctx, logger)
	ctx = WithSpanID(ctx, spanID)

	return ctx, &Span{name: name, logger: logger, start: time.Now()}
}

// Annotate attaches attributes reported when the span ends.
func (s *Span) Annotate(attrs ...any) {
	if s == nil {
		return
	}
	s.attrs = append(s.attrs, attrs...)
}

// End emits a completion entry. A non-nil err marks the span as failed.
func (s *Span) End(err error) {
	if s == nil {
		return
	}
	attrs := append([]any{slog.Duration("duration", time.Since(s.start))}, s.attrs...)
	if err != nil {
		s.logger.Error("span failed", append(attrs, slog.Any("error", err))...)
		return
	}
	s.logger.Info("span completed", attrs...)
}
