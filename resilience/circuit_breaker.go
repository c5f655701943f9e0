package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/skanga/conductor/core"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed allows all requests through
	StateClosed CircuitState = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen allows a single probe request
	StateHalfOpen
)

// String returns the string representation of the state
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker, typically "provider:model"
	Name string

	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold int

	// OpenDuration is how long to wait before entering half-open state
	OpenDuration time.Duration

	// Logger for circuit breaker events
	Logger core.Logger
}

// DefaultCircuitBreakerConfig returns production-ready defaults
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		OpenDuration:     30 * time.Second,
		Logger:           &core.NoOpLogger{},
	}
}

// CircuitBreaker isolates a failing dependency. State transitions:
// Closed -> (consecutive failures reach threshold) -> Open ->
// (cooldown elapses) -> HalfOpen -> single probe -> Closed on success,
// back to Open on failure.
type CircuitBreaker struct {
	config *CircuitBreakerConfig

	mu             sync.Mutex
	state          CircuitState
	failures       int
	openedAt       time.Time
	probeInFlight  bool
	stateListeners []func(name string, from, to CircuitState)

	// Monitoring counters
	totalExecutions    uint64
	rejectedExecutions uint64
}

// NewCircuitBreaker creates a circuit breaker
func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig("default")
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.OpenDuration <= 0 {
		config.OpenDuration = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = &core.NoOpLogger{}
	}
	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}
}

// SetLogger sets the logger, tagging entries with the resilience component
func (cb *CircuitBreaker) SetLogger(logger core.Logger) {
	if logger == nil {
		cb.config.Logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		cb.config.Logger = cal.WithComponent("framework/resilience")
	} else {
		cb.config.Logger = logger
	}
}

// OnStateChange registers a listener invoked on every state transition
func (cb *CircuitBreaker) OnStateChange(listener func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.stateListeners = append(cb.stateListeners, listener)
}

// Allow reports whether a request may proceed. In half-open state only a
// single probe is admitted at a time.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalExecutions++

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.config.OpenDuration {
			cb.transition(StateHalfOpen)
			cb.probeInFlight = true
			return true
		}
		cb.rejectedExecutions++
		return false
	case StateHalfOpen:
		if cb.probeInFlight {
			cb.rejectedExecutions++
			return false
		}
		cb.probeInFlight = true
		return true
	}
	return false
}

// RecordSuccess records a successful call
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	switch cb.state {
	case StateHalfOpen:
		cb.probeInFlight = false
		cb.transition(StateClosed)
	case StateOpen:
		// Stale success from before the breaker opened; ignore
	}
}

// RecordFailure records a failed call
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.openedAt = time.Now()
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.probeInFlight = false
		cb.openedAt = time.Now()
		cb.transition(StateOpen)
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns execution counters for monitoring
func (cb *CircuitBreaker) Stats() (total, rejected uint64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.totalExecutions, cb.rejectedExecutions
}

// transition changes state and notifies listeners. Callers hold cb.mu.
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == StateClosed {
		cb.failures = 0
	}

	cb.config.Logger.Info("Circuit breaker state change", map[string]interface{}{
		"operation": "circuit_breaker_transition",
		"name":      cb.config.Name,
		"from":      from.String(),
		"to":        to.String(),
	})

	for _, listener := range cb.stateListeners {
		listener(cb.config.Name, from, to)
	}
}

// BreakerRegistry hands out one circuit breaker per key, typically
// "provider:model". Registration is cheap; lookups share breakers across
// provider instances pointing at the same backend.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	template CircuitBreakerConfig
}

// NewBreakerRegistry creates a registry; template supplies the threshold and
// cooldown applied to every breaker it creates.
func NewBreakerRegistry(template CircuitBreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		template: template,
	}
}

// For returns the breaker for the given provider and model, creating it on
// first use.
func (r *BreakerRegistry) For(provider, model string) *CircuitBreaker {
	key := fmt.Sprintf("%s:%s", provider, model)

	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[key]; ok {
		return cb
	}
	config := r.template
	config.Name = key
	cb := NewCircuitBreaker(&config)
	r.breakers[key] = cb
	return cb
}
