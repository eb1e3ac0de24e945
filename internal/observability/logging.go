// Package observability correlates the gateway's structured logs with the
// request that produced them: every log line emitted while processing a
// delivery carries the request id, the matched route and, when the caller
// propagates one, the trace and span ids.
package observability

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type correlatedHandler struct {
	next slog.Handler
}

// WrapSlogHandler decorates a slog handler with the request correlation
// attributes carried in the context.
func WrapSlogHandler(next slog.Handler) slog.Handler {
	if next == nil {
		next = slog.NewTextHandler(io.Discard, nil)
	}
	return &correlatedHandler{next: next}
}

func (h *correlatedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *correlatedHandler) Handle(ctx context.Context, record slog.Record) error {
	if requestID, ok := RequestIDFromContext(ctx); ok {
		record.AddAttrs(slog.String("request_id", requestID))
	}
	if route, ok := RouteFromContext(ctx); ok {
		record.AddAttrs(slog.String("route", route))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		record.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.next.Handle(ctx, record)
}

func (h *correlatedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &correlatedHandler{next: h.next.WithAttrs(attrs)}
}

func (h *correlatedHandler) WithGroup(name string) slog.Handler {
	return &correlatedHandler{next: h.next.WithGroup(name)}
}
