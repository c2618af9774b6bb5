package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"persona-chat/backend/pkg/logger"
)

// ErrCircuitOpen is returned while the breaker short-circuits calls
var ErrCircuitOpen = errors.New("circuit open")

// State represents the current state of a circuit breaker
type State string

const (
	// StateClosed means calls pass through
	StateClosed State = "closed"
	// StateOpen means calls are short-circuited
	StateOpen State = "open"
	// StateHalfOpen means a limited number of trial calls are allowed
	StateHalfOpen State = "half-open"
)

// Config holds configuration for a circuit breaker
type Config struct {
	Name             string
	FailureThreshold uint
	SuccessThreshold uint
	// RetryTimeout is how long the breaker stays open before a trial call
	RetryTimeout time.Duration
	// IsFailure decides whether an error counts against the breaker. Nil counts every error.
	IsFailure func(error) bool
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RetryTimeout:     30 * time.Second,
	}
}

// Metrics is a snapshot of breaker counters
type Metrics struct {
	Name              string    `json:"name"`
	State             State     `json:"state"`
	TotalRequests     uint64    `json:"total_requests"`
	TotalFailures     uint64    `json:"total_failures"`
	TotalSuccesses    uint64    `json:"total_successes"`
	ConsecutiveErrors uint64    `json:"consecutive_errors"`
	OpenCircuitCount  uint64    `json:"open_circuit_count"`
	LastFailureTime   time.Time `json:"last_failure_time"`
}

// CircuitBreaker guards calls to an unreliable dependency
type CircuitBreaker struct {
	cfg             Config
	mutex           sync.Mutex
	state           State
	failureCount    uint
	successCount    uint
	inFlightTrials  uint
	nextAttemptTime time.Time
	metrics         Metrics
	log             *logger.Logger
	now             func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(cfg Config, log *logger.Logger) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 1
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &CircuitBreaker{
		cfg:     cfg,
		state:   StateClosed,
		metrics: Metrics{Name: cfg.Name},
		log:     log,
		now:     time.Now,
	}
}

// Execute runs fn through the circuit breaker
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.allowRequest() {
		cb.log.Warn("Circuit breaker preventing request", "name", cb.cfg.Name)
		return ErrCircuitOpen
	}

	start := cb.now()
	err := fn(ctx)

	if err != nil && (cb.cfg.IsFailure == nil || cb.cfg.IsFailure(err)) {
		cb.recordFailure()
		cb.log.Warn("Circuit breaker recorded failure",
			"name", cb.cfg.Name,
			"error", err.Error(),
			"duration", time.Since(start).String(),
		)
		return err
	}

	cb.recordSuccess()
	return err
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.metrics.TotalRequests++

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Before(cb.nextAttemptTime) {
			return false
		}
		cb.toHalfOpen()
		fallthrough
	case StateHalfOpen:
		if cb.inFlightTrials+cb.successCount >= cb.cfg.SuccessThreshold {
			return false
		}
		cb.inFlightTrials++
		return true
	}

	return false
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.metrics.TotalSuccesses++
	cb.metrics.ConsecutiveErrors = 0

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.inFlightTrials--
		cb.successCount++
		if cb.successCount >= cb.cfg.SuccessThreshold {
			cb.toClosed()
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.metrics.TotalFailures++
	cb.metrics.ConsecutiveErrors++
	cb.metrics.LastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.toOpen()
		}
	case StateHalfOpen:
		cb.toOpen()
	}
}

func (cb *CircuitBreaker) toOpen() {
	cb.state = StateOpen
	cb.inFlightTrials = 0
	cb.metrics.OpenCircuitCount++
	cb.nextAttemptTime = cb.now().Add(cb.cfg.RetryTimeout)

	cb.log.Info("Circuit breaker opened",
		"name", cb.cfg.Name,
		"failures", cb.failureCount,
		"nextAttempt", cb.nextAttemptTime.Format(time.RFC3339),
	)
}

func (cb *CircuitBreaker) toHalfOpen() {
	cb.state = StateHalfOpen
	cb.successCount = 0
	cb.inFlightTrials = 0

	cb.log.Info("Circuit breaker half-open", "name", cb.cfg.Name)
}

func (cb *CircuitBreaker) toClosed() {
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.inFlightTrials = 0

	cb.log.Info("Circuit breaker closed", "name", cb.cfg.Name)
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return cb.state
}

// Metrics returns the current counters of the circuit breaker
func (cb *CircuitBreaker) Metrics() Metrics {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	m := cb.metrics
	m.State = cb.state
	return m
}
