// Package resilience provides bounded exponential-backoff retry shared by
// the evaluator's LLM calls and the delivery driver.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"github.com/originpress/inkwell/pkg/apierr"
)

// Config configures retry behavior.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0-1, adds randomness
}

// DefaultConfig returns the retry policy used when a caller does not
// override it.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// Retry executes fn with exponential backoff, stopping early if fn returns
// an error that IsRetryable reports as non-retryable or if ctx is done.
func Retry(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return err
		}

		if attempt < cfg.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(addJitter(delay, cfg.Jitter)):
			}
			delay = nextDelay(delay, cfg)
		}
	}
	return lastErr
}

// IsRetryable reports whether err should be retried. Errors that are not a
// tagged *apierr.Error are treated as retryable, a permissive default for
// unclassified failures.
func IsRetryable(err error) bool {
	e := apierr.As(err)
	if e == nil {
		return true
	}
	switch e.Kind {
	case apierr.KindTransientNetwork, apierr.KindThrottled:
		return true
	default:
		return false
	}
}

func nextDelay(current time.Duration, cfg Config) time.Duration {
	next := time.Duration(float64(current) * cfg.Multiplier)
	if cfg.MaxDelay > 0 && next > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return next
}

func addJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	delta := float64(d) * jitter
	return d + time.Duration(rand.Float64()*delta*2-delta)
}
