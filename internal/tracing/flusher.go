package tracing

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Flusher drains buffered tracing events out-of-band. Flushing never happens
// inline after an individual AI call; that caused duplicate emission in the
// past and couples call latency to the tracing backend.
type Flusher struct {
	cache    *ClientCache
	interval time.Duration
	logger   *logrus.Logger
}

func NewFlusher(cache *ClientCache, interval time.Duration, logger *logrus.Logger) *Flusher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Flusher{cache: cache, interval: interval, logger: logger}
}

// Run flushes on a ticker until ctx is cancelled, then performs a final
// best-effort flush so buffered events survive shutdown.
func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.flushOnce(context.Background())
			return
		case <-ticker.C:
			f.flushOnce(ctx)
		}
	}
}

func (f *Flusher) flushOnce(ctx context.Context) {
	client := f.cache.Peek()
	if client == nil || client.Pending() == 0 {
		return
	}

	flushCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := client.Flush(flushCtx); err != nil {
		f.logger.WithError(err).Warn("failed to flush tracing events")
	}
}
