package metrics

import (
	"time"

	"github.com/rs/zerolog"
)

// Metrics collector for replay buffer operations
type Collector struct {
	logger zerolog.Logger
}

func NewCollector(logger zerolog.Logger) *Collector {
	return &Collector{
		logger: logger,
	}
}

// Track transitions written to the buffer
func (c *Collector) TransitionsPushed(received, stored, size int, duration time.Duration) {
	c.logger.Debug().
		Str("metric", "transitions_pushed").
		Int("received", received).
		Int("stored", stored).
		Int("size", size).
		Dur("duration", duration).
		Msg("Push metric")
}

// Track sampled batches
func (c *Collector) BatchSampled(batchSize int, beta float64, duration time.Duration) {
	c.logger.Debug().
		Str("metric", "batch_sampled").
		Int("batch_size", batchSize).
		Float64("beta", beta).
		Dur("duration", duration).
		Msg("Sample metric")
}

// Track priority updates
func (c *Collector) PrioritiesUpdated(count int, maxPriority float64, duration time.Duration) {
	c.logger.Debug().
		Str("metric", "priorities_updated").
		Int("count", count).
		Float64("max_priority", maxPriority).
		Dur("duration", duration).
		Msg("Priority update metric")
}

// Track RPC results
func (c *Collector) RPC(method, code string, duration time.Duration) {
	c.logger.Info().
		Str("metric", "rpc").
		Str("method", method).
		Str("code", code).
		Dur("duration", duration).
		Msg("RPC metric")
}

// Track API request metrics
func (c *Collector) APIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	c.logger.Info().
		Str("metric", "api_request").
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status_code", statusCode).
		Dur("duration", duration).
		Msg("API request metric")
}

// Track checkpoint saves and restores
func (c *Collector) Checkpoint(op, id string, records int, duration time.Duration, err error) {
	event := c.logger.Info()
	if err != nil {
		event = c.logger.Error().Err(err)
	}
	event.
		Str("metric", "checkpoint").
		Str("op", op).
		Str("checkpoint_id", id).
		Int("records", records).
		Dur("duration", duration).
		Msg("Checkpoint metric")
}
