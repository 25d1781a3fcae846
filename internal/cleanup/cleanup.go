package cleanup

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Purger drops expired cache entries and reports how many went away.
type Purger interface {
	Purge() int
}

// Start runs p once immediately and then every interval until ctx is done.
func Start(ctx context.Context, logger *zap.Logger, interval time.Duration, p Purger) {
	logger.Info("analysis cache cleanup scheduled", zap.Duration("interval", interval))
	purge(logger, p)

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				purge(logger, p)
			}
		}
	}()
}

func purge(logger *zap.Logger, p Purger) {
	if n := p.Purge(); n > 0 {
		logger.Info("purged expired analyses", zap.Int("count", n))
	}
}
