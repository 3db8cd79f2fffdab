package healing

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrCircuitOpen is returned by Call when the breaker is Open (or HalfOpen
// with its probe budget exhausted) without invoking the wrapped operation.
var ErrCircuitOpen = errors.New("circuit breaker: circuit is open")

// CircuitState enumerates the breaker's three states.
type CircuitState uint32

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig mirrors original_source/src/supervision/
// circuit_breaker.rs's CircuitBreakerConfig defaults.
type CircuitBreakerConfig struct {
	FailureThreshold    uint32
	SuccessThreshold    uint32
	ResetTimeout        time.Duration
	HalfOpenMaxRequests uint32
}

// DefaultCircuitBreakerConfig matches the Rust original's Default impl.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		SuccessThreshold:    3,
		ResetTimeout:        30 * time.Second,
		HalfOpenMaxRequests: 3,
	}
}

// CircuitBreakerMetrics is a snapshot of the breaker's counters.
type CircuitBreakerMetrics struct {
	State        CircuitState
	FailureCount uint32
	SuccessCount uint32
}

// CircuitBreaker guards calls to a flaky external operation (notably the
// LLM endpoint) with a Closed -> Open -> HalfOpen -> Closed state machine.
// Ported near-statement-for-statement from original_source/src/
// supervision/circuit_breaker.rs.
type CircuitBreaker struct {
	state        atomic.Uint32
	failureCount atomic.Uint32
	successCount atomic.Uint32
	config       CircuitBreakerConfig

	mu               sync.RWMutex
	lastFailureTime  time.Time
	lastStateChange  time.Time
}

// NewCircuitBreaker creates a breaker starting Closed.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{config: cfg, lastStateChange: time.Now()}
	cb.state.Store(uint32(StateClosed))
	return cb
}

// CurrentState returns the breaker's current state.
func (cb *CircuitBreaker) CurrentState() CircuitState {
	return CircuitState(cb.state.Load())
}

func (cb *CircuitBreaker) shouldAttemptReset() bool {
	if cb.CurrentState() != StateOpen {
		return false
	}
	cb.mu.RLock()
	last := cb.lastFailureTime
	cb.mu.RUnlock()
	return time.Since(last) >= cb.config.ResetTimeout
}

// Call runs op if the circuit permits it, tracking the result to drive
// state transitions. Returns ErrCircuitOpen without invoking op when the
// circuit is Open (and reset_timeout hasn't elapsed) or HalfOpen with its
// probe budget already spent.
func (cb *CircuitBreaker) Call(op func() error) error {
	switch cb.CurrentState() {
	case StateOpen:
		if cb.shouldAttemptReset() {
			cb.transitionTo(StateHalfOpen)
		} else {
			return ErrCircuitOpen
		}
	case StateHalfOpen:
		if cb.successCount.Load()+cb.failureCount.Load() >= cb.config.HalfOpenMaxRequests {
			return ErrCircuitOpen
		}
	}

	err := op()
	if err != nil {
		cb.onFailure()
		return err
	}
	cb.onSuccess()
	return nil
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.CurrentState() {
	case StateHalfOpen:
		newCount := cb.successCount.Add(1)
		if newCount >= cb.config.SuccessThreshold {
			cb.transitionTo(StateClosed)
		}
	case StateClosed:
		cb.failureCount.Store(0)
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.mu.Lock()
	cb.lastFailureTime = time.Now()
	cb.mu.Unlock()

	switch cb.CurrentState() {
	case StateHalfOpen:
		cb.transitionTo(StateOpen)
	case StateClosed:
		newCount := cb.failureCount.Add(1)
		if newCount >= cb.config.FailureThreshold {
			cb.transitionTo(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	cb.state.Store(uint32(newState))
	cb.failureCount.Store(0)
	cb.successCount.Store(0)
	cb.mu.Lock()
	cb.lastStateChange = time.Now()
	cb.mu.Unlock()
}

// Metrics returns a snapshot of the breaker's counters.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	return CircuitBreakerMetrics{
		State:        cb.CurrentState(),
		FailureCount: cb.failureCount.Load(),
		SuccessCount: cb.successCount.Load(),
	}
}
