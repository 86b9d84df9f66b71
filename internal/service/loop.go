package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// runEvery runs scan once immediately and then on every tick until ctx is cancelled.
func runEvery(ctx context.Context, interval time.Duration, name string, logger *zap.Logger, scan func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := scan(ctx); err != nil && ctx.Err() == nil {
		logger.Error(name+" initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := scan(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Error(name+" scan failed", zap.Error(err))
			}
		}
	}
}
