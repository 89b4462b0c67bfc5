package board

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/colonyops/hivesync/internal/state"
)

// StartLogSweep periodically evicts the in-memory logs of processes that
// finished more than retention ago. It blocks until the context is
// cancelled.
func StartLogSweep(ctx context.Context, store *state.Store, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := store.EvictFinishedLogs(now.Add(-retention)); n > 0 {
				log.Debug().Int("processes", n).Msg("evicted finished process logs")
			}
		}
	}
}
