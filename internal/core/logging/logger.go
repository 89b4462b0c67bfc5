package logging

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component creates a new logger with a component identifier.
// Uses the "cmp" key for consistency with zerolog conventions.
func Component(name string) zerolog.Logger {
	return log.With().Str("cmp", name).Logger()
}

// ComponentCtx is Component with the context identifiers stamped onto the
// logger itself, for long-lived loops that log without an event context.
func ComponentCtx(ctx context.Context, name string) zerolog.Logger {
	lc := log.With().Str("cmp", name)
	if id := GetConnID(ctx); id != "" {
		lc = lc.Str(string(connIDKey), id)
	}
	if id := GetAttemptID(ctx); id != "" {
		lc = lc.Str(string(attemptIDKey), id)
	}
	if topic := GetTopic(ctx); topic != "" {
		lc = lc.Str(string(topicKey), topic)
	}
	return lc.Logger()
}
