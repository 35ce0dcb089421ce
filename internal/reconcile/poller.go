package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Poller runs reconciliation passes on a fixed interval, independent of
// any single order's lifecycle.
type Poller struct {
	engine   *Engine
	interval time.Duration
}

// NewPoller creates a poller around the given engine.
func NewPoller(engine *Engine, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Poller{engine: engine, interval: interval}
}

// Start begins the reconciliation loop. Blocks until the context is
// cancelled.
func (p *Poller) Start(ctx context.Context) {
	logger := log.With().Str("component", "reconcile_poller").Logger()
	logger.Info().Dur("interval", p.interval).Msg("starting reconciliation poller")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down reconciliation poller")
			return
		case <-ticker.C:
			summary, err := p.engine.Run()
			if err != nil {
				logger.Error().
					Err(err).
					Bool("partial", summary.Partial).
					Int("created", summary.Created).
					Int("updated", summary.Updated).
					Msg("scheduled reconciliation pass failed")
				continue
			}
			logger.Info().
				Int("matched", summary.Matched).
				Int("created", summary.Created).
				Int("updated", summary.Updated).
				Msg("scheduled reconciliation pass complete")
		}
	}
}
