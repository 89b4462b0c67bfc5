package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// ContextHook copies conn_id, attempt_id and topic from the event context
// into log events.
type ContextHook struct{}

// Run adds contextual fields to the zerolog event.
func (h ContextHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == context.Background() || ctx == nil {
		return
	}

	if connID := GetConnID(ctx); connID != "" {
		e.Str(string(connIDKey), connID)
	}

	if attemptID := GetAttemptID(ctx); attemptID != "" {
		e.Str(string(attemptIDKey), attemptID)
	}

	if topic := GetTopic(ctx); topic != "" {
		e.Str(string(topicKey), topic)
	}
}
