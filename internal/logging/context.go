package logging

import (
	"context"
	"log/slog"
)

// ContextKey is the type for logging context keys.
type ContextKey string

const (
	// UserIDKey is the context key for the chat user a request acts on.
	UserIDKey ContextKey = "log_user_id"
	// CallerKey is the context key for the authenticated service caller.
	CallerKey ContextKey = "log_caller"
)

// WithUserID returns a context carrying the user id for log enrichment.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithCaller returns a context carrying the caller subject for log enrichment.
func WithCaller(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, CallerKey, subject)
}

// GetUserID returns the user id from context, or empty.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}

// GetCaller returns the caller subject from context, or empty.
func GetCaller(ctx context.Context) string {
	if v, ok := ctx.Value(CallerKey).(string); ok {
		return v
	}
	return ""
}

// FromContext returns a logger enriched with the user id and caller found in ctx.
// The original logger is returned when ctx carries neither.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if ctx == nil {
		return logger
	}
	var attrs []any
	if userID := GetUserID(ctx); userID != "" {
		attrs = append(attrs, "user_id", userID)
	}
	if caller := GetCaller(ctx); caller != "" {
		attrs = append(attrs, "caller", caller)
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}
