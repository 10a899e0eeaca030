package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// Config controls exponential backoff behavior
type Config struct {
	MaxRetries int           `json:"max_retries"` // retry attempts after the first try (default: 3)
	BaseDelay  time.Duration `json:"base_delay"`  // delay before the first retry (default: 500ms)
	MaxDelay   time.Duration `json:"max_delay"`   // cap on the computed delay (default: 10s)
	Multiplier float64       `json:"multiplier"`  // backoff multiplier (default: 2.0)
	Jitter     bool          `json:"jitter"`      // add random jitter to prevent thundering herd
}

// DefaultConfig returns backoff settings suited to short REST calls
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Do runs the operation, retrying failures the predicate marks retryable.
// The last error is returned once retries are exhausted, the predicate says
// stop, or the context is canceled.
func Do(ctx context.Context, cfg Config, retryable func(error) bool, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			if attempt > 0 {
				log.Debug().Int("attempts", attempt+1).Msg("operation succeeded after retry")
			}
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt >= cfg.MaxRetries {
			break
		}

		delay := calculateDelay(cfg, attempt)
		log.Debug().Err(lastErr).Dur("delay", delay).
			Int("attempt", attempt+1).Int("max", cfg.MaxRetries+1).
			Msg("operation failed, backing off")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

// calculateDelay computes baseDelay * multiplier^attempt, capped at
// MaxDelay, with up to 10% jitter either way
func calculateDelay(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(cfg.BaseDelay)
		}
	}
	return time.Duration(delay)
}
