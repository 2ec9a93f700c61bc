package session

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// RunSweeper purges expired sessions every interval until ctx is done.
func RunSweeper(ctx context.Context, service Service, interval time.Duration) {
	if interval <= 0 {
		log.Warn("Session sweeper disabled, interval is not positive")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Debugf("Session sweeper started, interval %s", interval)
	for {
		select {
		case <-ctx.Done():
			log.Debug("Session sweeper stopped")
			return
		case <-ticker.C:
			if _, err := service.PurgeExpired(ctx); err != nil {
				log.Errorf("session sweep failed: %v", err)
			}
		}
	}
}
