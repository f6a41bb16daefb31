package logging

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	// CorrelationIDKey is the context key for correlation ID
	CorrelationIDKey contextKey = "correlation_id"
	// RefreshIDKey identifies one refresh cycle across its platform branches
	RefreshIDKey contextKey = "refresh_id"
)

// WithCorrelationID adds a correlation ID to the context
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// GetCorrelationID retrieves the correlation ID from the context
// Returns empty string if not set
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// GenerateCorrelationID generates a new UUID-based correlation ID
func GenerateCorrelationID() string {
	return uuid.New().String()
}

// EnsureCorrelationID returns ctx carrying a correlation ID, generating one if absent
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := GetCorrelationID(ctx); id != "" {
		return ctx, id
	}
	id := GenerateCorrelationID()
	return WithCorrelationID(ctx, id), id
}

// WithRefreshID tags ctx with a refresh cycle ID
func WithRefreshID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RefreshIDKey, id)
}

// GetRefreshID returns the refresh cycle ID, or "" outside a refresh
func GetRefreshID(ctx context.Context) string {
	if id, ok := ctx.Value(RefreshIDKey).(string); ok {
		return id
	}
	return ""
}
