package cache

import (
	"context"
	"time"

	"github.com/treemana/sieve/log"
)

const DefaultSweepInterval = time.Minute

// Run sweeps expired entries every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	var ticker = time.NewTicker(interval)
	defer ticker.Stop()

	log.Sugar.Infof("cache sweep every %s", interval)

	var i uint32
	for {
		select {
		case <-ticker.C:
			i++
			removed := c.Sweep(c.now())
			log.Sugar.Debugf("cache sweep %d removed %d, %d left", i, removed, c.Len())
		case <-ctx.Done():
			log.Sugar.Info("cache sweep stopped")
			return
		}
	}
}
