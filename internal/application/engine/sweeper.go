package engine

import (
	"context"
	"time"
)

// RunSweeper expires idle pending workflows on a fixed interval until ctx
// is done. Runs per-interval, not per-event.
func (e *Engine) RunSweeper(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			expired, err := e.Sweep(ctx, now, ttl)
			if err != nil {
				e.logger.Warn().Err(err).Msg("sweep failed")
				continue
			}
			if expired > 0 {
				e.logger.Info().Int("expired", expired).Msg("sweep completed")
			}
		}
	}
}
