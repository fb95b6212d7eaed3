package store

import (
	"context"
	"log/slog"
	"time"
)

// DefaultRetentionInterval is how often the retention worker sweeps history.
const DefaultRetentionInterval = 10 * time.Minute

// StartRetentionWorker runs a background goroutine that periodically deletes
// conversation messages older than ttl. A non-positive ttl disables the worker.
func StartRetentionWorker(ctx context.Context, repo Repository, ttl, interval time.Duration) {
	if ttl <= 0 {
		slog.Info("Retention worker disabled", "ttl", ttl)
		return
	}
	if interval <= 0 {
		interval = DefaultRetentionInterval
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				pruneExpired(ctx, repo, ttl)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func pruneExpired(ctx context.Context, repo Repository, ttl time.Duration) {
	deleted, err := repo.PruneMessages(ctx, ttl)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("Retention worker: context canceled during prune", "error", err)
			return
		}
		slog.Error("Retention worker failed to prune messages", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Retention worker pruned messages", "count", deleted, "ttl", ttl)
	}
}
