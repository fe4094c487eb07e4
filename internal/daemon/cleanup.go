package daemon

import (
	"context"
	"log/slog"
	"time"

	"edbox/internal/database"
)

// CleanupTask purges expired sessions and never-consumed upload
// permissions. Both are safe to delete eagerly: expired sessions are
// evicted on resolve anyway and an expired permission can no longer be
// consumed by a message append.
func CleanupTask(db *database.Database, logger *slog.Logger) DaemonFunc {
	return func(ctx context.Context, name string) error {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("Cleanup shutting down", "daemon", name)
				return nil
			case <-ticker.C:
				if n, err := db.DeleteExpiredSessions(ctx); err != nil {
					logger.Error("Failed to delete expired sessions", "error", err)
				} else if n > 0 {
					logger.Debug("Deleted expired sessions", "count", n)
				}

				if n, err := db.DeleteExpiredUploadPermissions(ctx); err != nil {
					logger.Error("Failed to delete expired upload permissions", "error", err)
				} else if n > 0 {
					logger.Debug("Deleted expired upload permissions", "count", n)
				}
			}
		}
	}
}
