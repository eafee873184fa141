// Package resilience protects participant transports from hammering a
// coordinator that is down.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"quorumgate/pkg/metrics"
)

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit
	FailureThreshold int
	// SuccessThreshold is the number of successes needed to close the circuit from half-open
	SuccessThreshold int
	// Timeout is how long the circuit stays open before letting probes through
	Timeout time.Duration
	// MaxRequests is the max number of probes allowed through in half-open state
	MaxRequests int
	// IsFailure decides which errors count against the circuit.
	// Nil counts everything except context cancellation.
	IsFailure func(error) bool
}

// DefaultCircuitBreakerConfig returns defaults tuned for long-polling participants:
// a cancelled wait is not a coordinator failure.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Timeout:          10 * time.Second,
		MaxRequests:      1,
	}
}

func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	clock  clockwork.Clock
	logger *zap.Logger

	mu               sync.Mutex
	state            CircuitState
	failures         int
	successes        int
	halfOpenRequests int
	openedAt         time.Time
}

// NewCircuitBreaker creates a breaker. A nil clock uses wall time, a nil logger discards.
func NewCircuitBreaker(name string, config CircuitBreakerConfig, clock clockwork.Clock, logger *zap.Logger) *CircuitBreaker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.IsFailure == nil {
		config.IsFailure = defaultIsFailure
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}

	cb := &CircuitBreaker{
		name:   name,
		config: config,
		clock:  clock,
		logger: logger.Named("breaker").With(zap.String("breaker", name)),
		state:  CircuitClosed,
	}
	metrics.BreakerState.WithLabelValues(name).Set(float64(CircuitClosed))
	return cb
}

// State returns the current state, promoting an expired open circuit to half-open.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.promote()
	return cb.state
}

// promote moves an open circuit to half-open once its timeout elapsed (must hold lock)
func (cb *CircuitBreaker) promote() {
	if cb.state == CircuitOpen && cb.clock.Since(cb.openedAt) >= cb.config.Timeout {
		cb.transition(CircuitHalfOpen)
	}
}

// Execute runs fn with circuit breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.afterRequest(err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.promote()
	switch cb.state {
	case CircuitOpen:
		return ErrCircuitOpen
	case CircuitHalfOpen:
		if cb.halfOpenRequests >= cb.config.MaxRequests {
			return ErrCircuitOpen
		}
		cb.halfOpenRequests++
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen && cb.halfOpenRequests > 0 {
		cb.halfOpenRequests--
	}
	if cb.config.IsFailure(err) {
		cb.onFailure(err)
	} else {
		cb.onSuccess()
	}
}

func (cb *CircuitBreaker) onFailure(err error) {
	cb.failures++
	cb.successes = 0

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.logger.Warn("circuit opened", zap.Int("failures", cb.failures), zap.Error(err))
			cb.open()
		}
	case CircuitHalfOpen:
		// Any failure in half-open reopens the circuit
		cb.logger.Warn("probe failed, circuit reopened", zap.Error(err))
		cb.open()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.logger.Info("circuit closed")
			cb.reset()
		}
	}
}

func (cb *CircuitBreaker) open() {
	cb.openedAt = cb.clock.Now()
	cb.halfOpenRequests = 0
	cb.transition(CircuitOpen)
}

func (cb *CircuitBreaker) reset() {
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenRequests = 0
	cb.transition(CircuitClosed)
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	if cb.state == to {
		return
	}
	cb.state = to
	metrics.BreakerState.WithLabelValues(cb.name).Set(float64(to))
}

// Metrics returns a summary of the breaker for shutdown and health logs.
func (cb *CircuitBreaker) Metrics() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.promote()
	return map[string]interface{}{
		"name":      cb.name,
		"state":     cb.state.String(),
		"failures":  cb.failures,
		"successes": cb.successes,
		"openedAt":  cb.openedAt,
	}
}
