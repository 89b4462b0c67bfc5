package logging

import "context"

type contextKey string

const (
	connIDKey    contextKey = "conn_id"
	attemptIDKey contextKey = "attempt_id"
	topicKey     contextKey = "topic"
)

// WithConnID adds a stream connection ID to the context.
func WithConnID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, connIDKey, connID)
}

// WithAttemptID adds an attempt ID to the context.
func WithAttemptID(ctx context.Context, attemptID string) context.Context {
	return context.WithValue(ctx, attemptIDKey, attemptID)
}

// WithTopic adds a stream topic to the context.
func WithTopic(ctx context.Context, topic string) context.Context {
	return context.WithValue(ctx, topicKey, topic)
}

// GetConnID retrieves the connection ID from the context.
// Returns empty string if not present.
func GetConnID(ctx context.Context) string {
	return getString(ctx, connIDKey)
}

// GetAttemptID retrieves the attempt ID from the context.
// Returns empty string if not present.
func GetAttemptID(ctx context.Context) string {
	return getString(ctx, attemptIDKey)
}

// GetTopic retrieves the stream topic from the context.
// Returns empty string if not present.
func GetTopic(ctx context.Context) string {
	return getString(ctx, topicKey)
}

func getString(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
