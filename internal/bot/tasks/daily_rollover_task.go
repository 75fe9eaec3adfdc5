package tasks

import (
	"context"
	"fmt"
	"time"
)

const rolloverTimeout = 2 * time.Minute

// newDailyRolloverTask archives yesterday's intervals and starts a fresh ledger day.
func newDailyRolloverTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "daily_rollover")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting daily rollover...")
		startTime := time.Now()

		ctx, cancel := context.WithTimeout(ctx, rolloverTimeout)
		defer cancel()

		if err := deps.Rollover(ctx); err != nil {
			log.ErrorContext(ctx, "Daily rollover failed", "error", err, "duration", time.Since(startTime))
			return fmt.Errorf("daily rollover failed: %w", err)
		}

		log.InfoContext(ctx, "Daily rollover completed", "duration", time.Since(startTime))
		return nil
	}
}
