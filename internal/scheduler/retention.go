package scheduler

import (
	"context"
	"fmt"
	"time"

	"instalytics/internal/logger"
)

// RetentionJobName is the name the history retention job is scheduled under.
const RetentionJobName = "history-retention"

// HistoryPruner deletes search history older than a cutoff.
type HistoryPruner interface {
	PruneHistory(ctx context.Context, before time.Time) (int64, error)
}

// RetentionJob returns a job that deletes history entries older than maxAge.
func RetentionJob(pruner HistoryPruner, maxAge time.Duration, now func() time.Time, log logger.Logger) Job {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.NewNop()
	}
	return func(ctx context.Context) error {
		cutoff := now().Add(-maxAge).UTC()
		n, err := pruner.PruneHistory(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("prune history before %s: %w", cutoff.Format(time.RFC3339), err)
		}
		log.Info("Pruned search history", logger.Int64("deleted", n), logger.Time("cutoff", cutoff))
		return nil
	}
}
