// Package faulttolerance provides a circuit breaker for calls into the
// broker, a retryer for establishing store connections at startup and a
// monitor for dependency health.
package faulttolerance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// CircuitBreakerState represents the current state of the circuit breaker
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	MaxFailures      int           // Consecutive failures before opening
	Timeout          time.Duration // Time to wait before moving from Open to Half-Open
	SuccessThreshold int           // Consecutive successes needed to close from Half-Open
	Name             string        // Name for logging
}

// CircuitBreaker fails calls immediately while the protected dependency is
// known to be down. It never retries on its own.
type CircuitBreaker struct {
	config          CircuitBreakerConfig
	state           CircuitBreakerState
	failures        int
	successes       int
	lastFailureTime time.Time
	trialInFlight   bool
	mutex           sync.Mutex
	logger          logrus.FieldLogger
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig, logger logrus.FieldLogger) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	if config.Name == "" {
		config.Name = "CircuitBreaker"
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
		logger: logger,
	}
}

var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	ErrTooManyRequests    = errors.New("too many requests when circuit breaker is half-open")
)

// Execute runs fn unless the breaker is open. Only one trial call is let
// through while half-open. An error returned after ctx is done is the
// caller's abort and is not counted against the dependency.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	trial, err := cb.allow()
	if err != nil {
		return err
	}

	err = fn()
	if err != nil && ctx.Err() != nil {
		cb.release(trial)
		return err
	}
	cb.recordResult(trial, err)
	return err
}

func (cb *CircuitBreaker) allow() (bool, error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailureTime) > cb.config.Timeout {
		cb.setState(StateHalfOpen)
		cb.successes = 0
	}

	switch cb.state {
	case StateOpen:
		return false, ErrCircuitBreakerOpen
	case StateHalfOpen:
		if cb.trialInFlight {
			return false, ErrTooManyRequests
		}
		cb.trialInFlight = true
		return true, nil
	default:
		return false, nil
	}
}

// release frees the half-open trial slot without recording a result.
func (cb *CircuitBreaker) release(trial bool) {
	if !trial {
		return
	}
	cb.mutex.Lock()
	cb.trialInFlight = false
	cb.mutex.Unlock()
}

func (cb *CircuitBreaker) recordResult(trial bool, err error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if trial {
		cb.trialInFlight = false
	}

	if err != nil {
		cb.failures++
		cb.successes = 0
		cb.lastFailureTime = time.Now()

		switch cb.state {
		case StateClosed:
			if cb.failures >= cb.config.MaxFailures {
				cb.setState(StateOpen)
			}
		case StateHalfOpen:
			cb.setState(StateOpen)
		}
		return
	}

	cb.failures = 0
	cb.successes++
	if cb.state == StateHalfOpen && cb.successes >= cb.config.SuccessThreshold {
		cb.setState(StateClosed)
	}
}

// setState must be called with the mutex held.
func (cb *CircuitBreaker) setState(state CircuitBreakerState) {
	if cb.state == state {
		return
	}
	old := cb.state
	cb.state = state
	cb.logger.WithFields(logrus.Fields{
		"breaker":  cb.config.Name,
		"from":     old.String(),
		"to":       state.String(),
		"failures": cb.failures,
	}).Warn("circuit breaker state changed")
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}
