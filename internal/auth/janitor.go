// AngelaMos | 2026
// janitor.go

package auth

import (
	"context"
	"log/slog"
	"time"
)

type purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Janitor periodically deletes refresh rows long past their expiry.
type Janitor struct {
	purger   purger
	interval time.Duration
	logger   *slog.Logger
}

func NewJanitor(p purger, interval time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		purger:   p,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	if j.interval <= 0 {
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	deleted, err := j.purger.PurgeExpired(sweepCtx)
	if err != nil {
		j.logger.Error("purge expired refresh tokens", "error", err)
		return
	}

	if deleted > 0 {
		j.logger.Info("purged expired refresh tokens", "count", deleted)
	}
}
