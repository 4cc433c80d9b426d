package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// IdleSweeper descarta entradas sin uso y devuelve cuantas quito.
type IdleSweeper interface {
	Sweep(idle time.Duration) int
}

// RunIdleSweeper barre cada interval hasta que ctx se cancela.
func RunIdleSweeper(ctx context.Context, logger *zap.Logger, interval, idle time.Duration, sweepers map[string]IdleSweeper) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 || idle <= 0 {
		logger.Warn("idle sweeper disabled", zap.Duration("interval", interval), zap.Duration("idle", idle))
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, sw := range sweepers {
				if n := sw.Sweep(idle); n > 0 {
					logger.Info("idle entries swept", zap.String("registry", name), zap.Int("removed", n))
				}
			}
		}
	}
}
