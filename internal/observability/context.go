package observability

import (
	"context"
	"strings"
)

type contextKey string

const (
	requestIDKey contextKey = "observability.request_id"
	routeKey     contextKey = "observability.route"
)

// WithRequestMetadata enriches context with request metadata for log
// correlation.
func WithRequestMetadata(ctx context.Context, requestID, route string) context.Context {
	if requestID = strings.TrimSpace(requestID); requestID != "" {
		ctx = context.WithValue(ctx, requestIDKey, requestID)
	}
	if route = strings.TrimSpace(route); route != "" {
		ctx = context.WithValue(ctx, routeKey, route)
	}
	return ctx
}

// RequestIDFromContext extracts the request id.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(requestIDKey).(string)
	return value, ok && value != ""
}

// RouteFromContext extracts the matched route.
func RouteFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(routeKey).(string)
	return value, ok && value != ""
}
