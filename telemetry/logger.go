// Package telemetry provides the concrete observability pieces: a
// structured production logger implementing core.Logger and an
// OpenTelemetry-backed implementation of core.Telemetry.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/skanga/conductor/core"
)

// ProductionLogger is the standard core.Logger implementation. It emits
// JSON when running in Kubernetes (for log aggregation) and text locally,
// and rate-limits error logs to avoid flooding during outages.
//
// Configuration priority:
//  1. Explicit options (highest)
//  2. Environment variables: CONDUCTOR_LOG_LEVEL, CONDUCTOR_LOG_FORMAT,
//     CONDUCTOR_DEBUG
//  3. Auto-detection (Kubernetes environment)
//  4. Defaults (lowest)
type ProductionLogger struct {
	level       string
	debug       bool
	serviceName string
	component   string
	format      string

	// mu serializes writes and is shared by component clones
	mu     *sync.Mutex
	output io.Writer

	errorLimiter *errorRateLimiter
}

// LoggerOption configures a ProductionLogger
type LoggerOption func(*ProductionLogger)

// WithLevel sets the minimum log level (DEBUG, INFO, WARN, ERROR)
func WithLevel(level string) LoggerOption {
	return func(l *ProductionLogger) {
		l.level = strings.ToUpper(level)
		l.debug = l.level == "DEBUG"
	}
}

// WithFormat forces "json" or "text" output
func WithFormat(format string) LoggerOption {
	return func(l *ProductionLogger) {
		l.format = format
	}
}

// WithOutput redirects log output, mainly for tests
func WithOutput(w io.Writer) LoggerOption {
	return func(l *ProductionLogger) {
		l.output = w
	}
}

// NewProductionLogger creates a logger for the given service name
func NewProductionLogger(serviceName string, opts ...LoggerOption) *ProductionLogger {
	level := os.Getenv("CONDUCTOR_LOG_LEVEL")
	if level == "" {
		level = "INFO"
	}
	debug := os.Getenv("CONDUCTOR_DEBUG") == "true" || strings.EqualFold(level, "DEBUG")

	format := "text"
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		format = "json"
	}
	if envFormat := os.Getenv("CONDUCTOR_LOG_FORMAT"); envFormat != "" {
		format = envFormat
	}

	l := &ProductionLogger{
		level:        strings.ToUpper(level),
		debug:        debug,
		serviceName:  serviceName,
		format:       format,
		mu:           &sync.Mutex{},
		output:       os.Stdout,
		errorLimiter: newErrorRateLimiter(time.Second),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WithComponent returns a logger that tags every entry with the component
func (l *ProductionLogger) WithComponent(component string) core.Logger {
	clone := *l
	clone.component = component
	return &clone
}

// Info logs informational messages
func (l *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

// Warn logs warning messages
func (l *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

// Error logs error messages with rate limiting
func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	if l.errorLimiter != nil && !l.errorLimiter.allow() {
		return
	}
	l.log("ERROR", msg, fields)
}

// Debug logs debug messages when debug mode is enabled
func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if !l.debug {
		return
	}
	l.log("DEBUG", msg, fields)
}

func (l *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Info(msg, fields)
}

func (l *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Error(msg, fields)
}

func (l *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Warn(msg, fields)
}

func (l *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Debug(msg, fields)
}

func (l *ProductionLogger) log(level, msg string, fields map[string]interface{}) {
	if !l.levelEnabled(level) && !(level == "DEBUG" && l.debug) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		entry := map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"level":     level,
			"service":   l.serviceName,
			"message":   msg,
		}
		if l.component != "" {
			entry["component"] = l.component
		}
		for k, v := range fields {
			entry[k] = v
		}
		data, err := json.Marshal(entry)
		if err != nil {
			fmt.Fprintf(l.output, "%s [%s] %s (unloggable fields: %v)\n", level, l.serviceName, msg, err)
			return
		}
		fmt.Fprintln(l.output, string(data))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s [%s]", time.Now().Format("2006-01-02 15:04:05"), level, l.serviceName)
	if l.component != "" {
		fmt.Fprintf(&b, " (%s)", l.component)
	}
	b.WriteString(" " + msg)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	fmt.Fprintln(l.output, b.String())
}

func (l *ProductionLogger) levelEnabled(level string) bool {
	rank := map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}
	min, ok := rank[l.level]
	if !ok {
		min = 1
	}
	return rank[level] >= min
}

// errorRateLimiter caps error log volume to one entry per interval
type errorRateLimiter struct {
	interval time.Duration
	lastTime time.Time
	mu       sync.Mutex
}

func newErrorRateLimiter(interval time.Duration) *errorRateLimiter {
	return &errorRateLimiter{interval: interval}
}

func (r *errorRateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastTime) >= r.interval {
		r.lastTime = now
		return true
	}
	return false
}
