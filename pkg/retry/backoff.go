package retry

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy defines how long to wait before the next attempt
type BackoffStrategy interface {
	// NextBackoff returns the wait after the given (1-based) failed attempt
	NextBackoff(attempt int) time.Duration
}

// ConstantBackoff waits the same interval every time
type ConstantBackoff struct {
	Interval time.Duration
}

// NextBackoff returns the constant backoff interval
func (b *ConstantBackoff) NextBackoff(attempt int) time.Duration {
	return b.Interval
}

// ExponentialBackoff grows the wait geometrically with optional jitter
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

// NextBackoff calculates the next exponentially increasing backoff duration with jitter
func (b *ExponentialBackoff) NextBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	backoff := float64(b.InitialInterval) * math.Pow(b.Multiplier, float64(attempt-1))

	if b.JitterFactor > 0 {
		backoff += rand.Float64() * b.JitterFactor * backoff
	}

	if b.MaxInterval > 0 && backoff > float64(b.MaxInterval) {
		backoff = float64(b.MaxInterval)
	}

	return time.Duration(backoff)
}

// NewDefaultExponentialBackoff is tuned for the messaging gateway: 1s, 2s, 4s... capped at 30s
func NewDefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
		JitterFactor:    0.2,
	}
}
