package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Execute while the circuit rejects calls
var ErrOpen = errors.New("circuit breaker is open")

// State represents the state of the circuit breaker
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops calling a failing dependency for ResetTimeout after
// FailureThreshold consecutive failures, then lets HalfOpenMaxCalls probes through.
type CircuitBreaker struct {
	mu sync.Mutex

	state            State
	failureThreshold int
	resetTimeout     time.Duration
	halfOpenMaxCalls int
	failureCount     int
	halfOpenCalls    int
	lastStateChange  time.Time

	now func() time.Time
}

// CircuitBreakerConfig configures a CircuitBreaker
type CircuitBreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenMaxCalls int
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 1
	}

	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: config.FailureThreshold,
		resetTimeout:     config.ResetTimeout,
		halfOpenMaxCalls: config.HalfOpenMaxCalls,
		lastStateChange:  time.Now(),
		now:              time.Now,
	}
}

// Execute runs fn if the circuit allows it and records the result
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrOpen
	}

	if err := fn(); err != nil {
		cb.Failure()
		return err
	}

	cb.Success()
	return nil
}

// Allow reports whether a call may proceed
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.lastStateChange) >= cb.resetTimeout {
		cb.setState(StateHalfOpen)
	}

	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMaxCalls {
			return false
		}
		cb.halfOpenCalls++
		return true
	default:
		return false
	}
}

// Success reports a successful operation
func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.setState(StateClosed)
	case StateClosed:
		cb.failureCount = 0
	}
}

// Failure reports a failed operation
func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
	}
}

// setState must be called with mu held
func (cb *CircuitBreaker) setState(s State) {
	cb.state = s
	cb.failureCount = 0
	cb.halfOpenCalls = 0
	cb.lastStateChange = cb.now()
}

// Reset closes the circuit immediately
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(StateClosed)
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.state
}

// GetMetrics returns a snapshot for health reporting
func (cb *CircuitBreaker) GetMetrics() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return map[string]interface{}{
		"state":             cb.state.String(),
		"failure_count":     cb.failureCount,
		"failure_threshold": cb.failureThreshold,
		"reset_timeout":     cb.resetTimeout.String(),
		"last_state_change": cb.lastStateChange,
	}
}
