// Package retention runs the periodic TTL and size-based pruning sweep
// against a store, on a fixed tick, until its context is canceled.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Store is the subset of *store.Store the retention controller needs.
type Store interface {
	RunRetention(ttl time.Duration, maxBytes int64) error
}

// Controller runs RunRetention once per tick.
type Controller struct {
	store     Store
	ttl       time.Duration
	maxBytes  int64
	interval  time.Duration
	logger    zerolog.Logger
}

// New builds a Controller. interval is the sweep period; a one-minute
// interval matches otell's default retention cadence.
func New(store Store, ttl time.Duration, maxBytes int64, interval time.Duration, logger zerolog.Logger) *Controller {
	return &Controller{
		store:    store,
		ttl:      ttl,
		maxBytes: maxBytes,
		interval: interval,
		logger:   logger.With().Str("component", "retention").Logger(),
	}
}

// Run blocks, sweeping once per interval, until ctx is canceled.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.store.RunRetention(c.ttl, c.maxBytes); err != nil {
				c.logger.Error().Err(err).Msg("retention sweep failed")
			}
		}
	}
}
