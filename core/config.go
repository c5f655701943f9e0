package core

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration options recognized by the conductor core.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := core.NewConfig(
//	    core.WithWorkers(8),
//	    core.WithTaskTimeout(time.Minute),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// Memory holds agent-memory settings
	Memory MemoryConfig

	// Execution holds batch-executor settings
	Execution ExecutionConfig

	// RateLimit holds token-bucket settings applied per provider instance
	RateLimit RateLimitConfig

	// Retry holds provider retry settings
	Retry RetryConfig

	// CircuitBreaker holds circuit breaker settings
	CircuitBreaker CircuitBreakerConfig
}

// MemoryConfig configures agent memory retention
type MemoryConfig struct {
	// Limit is the maximum number of memory entries kept per agent.
	// Older entries are trimmed from the head on append.
	Limit int // env: CONDUCTOR_MEMORY_LIMIT, default 20
}

// ExecutionConfig configures the parallel batch executor
type ExecutionConfig struct {
	// Workers is the size of the bounded worker pool
	Workers int // env: CONDUCTOR_PARALLEL_WORKERS, default 4

	// TaskTimeout bounds a single task execution
	TaskTimeout time.Duration // env: CONDUCTOR_TASK_TIMEOUT_SECONDS, default 30s
}

// RateLimitConfig configures the provider token bucket
type RateLimitConfig struct {
	// Capacity is the burst size of the bucket
	Capacity int // env: CONDUCTOR_RATE_LIMIT_CAPACITY, default 20

	// RefillPerSecond is the steady-state refill rate
	RefillPerSecond float64 // env: CONDUCTOR_RATE_LIMIT_REFILL_PER_SECOND, default 10

	// MaxWait bounds a blocking token acquire
	MaxWait time.Duration // default 30s
}

// RetryConfig configures the provider retry executor
type RetryConfig struct {
	MaxAttempts      int           // env: CONDUCTOR_RETRY_MAX_ATTEMPTS, default 4
	InitialDelay     time.Duration // env: CONDUCTOR_RETRY_INITIAL_DELAY_MS, default 200ms
	MaxDelay         time.Duration // env: CONDUCTOR_RETRY_MAX_DELAY_MS, default 10s
	Multiplier       float64       // env: CONDUCTOR_RETRY_MULTIPLIER, default 2.0
	JitterFactor     float64       // env: CONDUCTOR_RETRY_JITTER_FACTOR, default 0.25
	MaxTotalDuration time.Duration // env: CONDUCTOR_RETRY_MAX_DURATION_MS, default 60s
}

// CircuitBreakerConfig configures circuit breaker thresholds
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker
	FailureThreshold int // env: CONDUCTOR_CIRCUIT_BREAKER_FAILURE_THRESHOLD, default 5

	// OpenDuration is the cooldown before entering half-open
	OpenDuration time.Duration // env: CONDUCTOR_CIRCUIT_BREAKER_OPEN_DURATION_MS, default 30s
}

// Option configures a Config
type Option func(*Config)

// WithMemoryLimit sets the per-agent memory entry limit
func WithMemoryLimit(limit int) Option {
	return func(c *Config) {
		c.Memory.Limit = limit
	}
}

// WithWorkers sets the worker pool size
func WithWorkers(workers int) Option {
	return func(c *Config) {
		c.Execution.Workers = workers
	}
}

// WithTaskTimeout sets the per-task execution timeout
func WithTaskTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Execution.TaskTimeout = timeout
	}
}

// WithRateLimit sets the token-bucket capacity and refill rate
func WithRateLimit(capacity int, refillPerSecond float64) Option {
	return func(c *Config) {
		c.RateLimit.Capacity = capacity
		c.RateLimit.RefillPerSecond = refillPerSecond
	}
}

// WithRetry sets the retry attempt count and delay bounds
func WithRetry(maxAttempts int, initialDelay, maxDelay time.Duration) Option {
	return func(c *Config) {
		c.Retry.MaxAttempts = maxAttempts
		c.Retry.InitialDelay = initialDelay
		c.Retry.MaxDelay = maxDelay
	}
}

// WithCircuitBreaker sets the failure threshold and cooldown window
func WithCircuitBreaker(failureThreshold int, openDuration time.Duration) Option {
	return func(c *Config) {
		c.CircuitBreaker.FailureThreshold = failureThreshold
		c.CircuitBreaker.OpenDuration = openDuration
	}
}

// NewConfig builds a Config by applying defaults, environment variables, and
// options in that order, then validating the result.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()
	cfg.applyEnvironment()

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Memory: MemoryConfig{
			Limit: 20,
		},
		Execution: ExecutionConfig{
			Workers:     4,
			TaskTimeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Capacity:        20,
			RefillPerSecond: 10,
			MaxWait:         30 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:      4,
			InitialDelay:     200 * time.Millisecond,
			MaxDelay:         10 * time.Second,
			Multiplier:       2.0,
			JitterFactor:     0.25,
			MaxTotalDuration: 60 * time.Second,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			OpenDuration:     30 * time.Second,
		},
	}
}

// applyEnvironment overlays CONDUCTOR_* environment variables
func (c *Config) applyEnvironment() {
	if v, ok := envInt("CONDUCTOR_MEMORY_LIMIT"); ok {
		c.Memory.Limit = v
	}
	if v, ok := envInt("CONDUCTOR_PARALLEL_WORKERS"); ok {
		c.Execution.Workers = v
	}
	if v, ok := envInt("CONDUCTOR_TASK_TIMEOUT_SECONDS"); ok {
		c.Execution.TaskTimeout = time.Duration(v) * time.Second
	}
	if v, ok := envInt("CONDUCTOR_RATE_LIMIT_CAPACITY"); ok {
		c.RateLimit.Capacity = v
	}
	if v, ok := envFloat("CONDUCTOR_RATE_LIMIT_REFILL_PER_SECOND"); ok {
		c.RateLimit.RefillPerSecond = v
	}
	if v, ok := envInt("CONDUCTOR_RETRY_MAX_ATTEMPTS"); ok {
		c.Retry.MaxAttempts = v
	}
	if v, ok := envInt("CONDUCTOR_RETRY_INITIAL_DELAY_MS"); ok {
		c.Retry.InitialDelay = time.Duration(v) * time.Millisecond
	}
	if v, ok := envInt("CONDUCTOR_RETRY_MAX_DELAY_MS"); ok {
		c.Retry.MaxDelay = time.Duration(v) * time.Millisecond
	}
	if v, ok := envFloat("CONDUCTOR_RETRY_MULTIPLIER"); ok {
		c.Retry.Multiplier = v
	}
	if v, ok := envFloat("CONDUCTOR_RETRY_JITTER_FACTOR"); ok {
		c.Retry.JitterFactor = v
	}
	if v, ok := envInt("CONDUCTOR_RETRY_MAX_DURATION_MS"); ok {
		c.Retry.MaxTotalDuration = time.Duration(v) * time.Millisecond
	}
	if v, ok := envInt("CONDUCTOR_CIRCUIT_BREAKER_FAILURE_THRESHOLD"); ok {
		c.CircuitBreaker.FailureThreshold = v
	}
	if v, ok := envInt("CONDUCTOR_CIRCUIT_BREAKER_OPEN_DURATION_MS"); ok {
		c.CircuitBreaker.OpenDuration = time.Duration(v) * time.Millisecond
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Memory.Limit < 0 {
		return fmt.Errorf("memory.limit must be >= 0: %w", ErrInvalidConfiguration)
	}
	if c.Execution.Workers < 1 {
		return fmt.Errorf("parallel.workers must be >= 1: %w", ErrInvalidConfiguration)
	}
	if c.Execution.TaskTimeout <= 0 {
		return fmt.Errorf("task.timeout.seconds must be positive: %w", ErrInvalidConfiguration)
	}
	if c.RateLimit.Capacity < 1 {
		return fmt.Errorf("rate.limit.capacity must be >= 1: %w", ErrInvalidConfiguration)
	}
	if c.RateLimit.RefillPerSecond <= 0 {
		return fmt.Errorf("rate.limit.refill.per.second must be positive: %w", ErrInvalidConfiguration)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max.attempts must be >= 1: %w", ErrInvalidConfiguration)
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be >= 1: %w", ErrInvalidConfiguration)
	}
	if c.Retry.JitterFactor < 0 || c.Retry.JitterFactor > 1 {
		return fmt.Errorf("retry.jitter.factor must be within [0, 1]: %w", ErrInvalidConfiguration)
	}
	if c.CircuitBreaker.FailureThreshold < 1 {
		return fmt.Errorf("circuit.breaker.failure.threshold must be >= 1: %w", ErrInvalidConfiguration)
	}
	return nil
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envFloat(name string) (float64, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
