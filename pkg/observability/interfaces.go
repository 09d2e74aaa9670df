// Package observability provides unified logging, metrics, and tracing
// for the moneta-core engine. All components take their observability
// dependencies explicitly so tests can substitute fakes.
package observability

import (
	"time"
)

// LogLevel defines log message severity
type LogLevel string

// Log levels
const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// Logger defines the interface for logging
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})

	// WithPrefix returns a derived logger with the given component prefix
	WithPrefix(prefix string) Logger
}

// MetricsClient defines the interface for metrics collection
type MetricsClient interface {
	// RecordCacheOperation records the outcome and latency of a cache operation
	RecordCacheOperation(operation string, success bool, durationSeconds float64)

	// IncrementCounter increments a named counter
	IncrementCounter(name string, value float64)

	// RecordLatency records the latency of a named operation
	RecordLatency(operation string, duration time.Duration)

	// Close flushes and releases any resources held by the client
	Close() error
}
