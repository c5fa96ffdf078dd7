package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"claimlens/internal/jobs"
	"claimlens/internal/logging"
)

// heartbeatLoop refreshes the job's heartbeat until the context is cancelled
// so the scheduler's reclaimer can tell a live pipeline from a dead worker.
func heartbeatLoop(ctx context.Context, wg *sync.WaitGroup, store *jobs.Store, logger *slog.Logger, jobID string, interval time.Duration) {
	defer wg.Done()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.UpdateHeartbeat(ctx, jobID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
