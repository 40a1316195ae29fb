package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vaidashi/marketplace-orders/pkg/logger"
)

// RetryableFunc defines a function that can be retried
type RetryableFunc func() error

// RetryConfig holds the configuration for retrying operations
type RetryConfig struct {
	MaxAttempts     int
	BackoffStrategy BackoffStrategy
	Logger          logger.Logger

	// RetryableErrors restricts retries to errors matching one of these.
	// Empty means every error is retried unless RetryIf says otherwise.
	RetryableErrors []error
	RetryIf         func(error) bool
}

// Retry runs fn until it succeeds, a non-retryable error is returned,
// attempts are exhausted or ctx is done.
func Retry(ctx context.Context, fn RetryableFunc, cfg *RetryConfig) error {
	var lastErr error

	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled by context: %w", err)
		}

		err := fn()

		if err == nil {
			return nil
		}

		lastErr = err

		if !cfg.retryable(err) {
			log.Debug("Non-retryable error encountered, giving up", "error", err, "attempt", attempt)
			return err
		}

		if attempt == attempts {
			break
		}

		var backoff time.Duration
		if cfg.BackoffStrategy != nil {
			backoff = cfg.BackoffStrategy.NextBackoff(attempt)
		}

		log.Info("Retrying after error",
			"error", err,
			"attempt", attempt,
			"maxAttempts", attempts,
			"backoff", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled by context during backoff: %w", ctx.Err())
		}
	}

	return fmt.Errorf("all %d attempts failed, last error: %w", attempts, lastErr)
}

func (cfg *RetryConfig) retryable(err error) bool {
	if cfg.RetryIf != nil && !cfg.RetryIf(err) {
		return false
	}

	if len(cfg.RetryableErrors) == 0 {
		return true
	}

	for _, target := range cfg.RetryableErrors {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
