package observability

import (
	"sync"
	"time"
)

// InMemoryMetricsClient collects metrics in process memory. It is the
// default client for a device-local deployment, where metrics are read
// back by the host application rather than scraped.
type InMemoryMetricsClient struct {
	mu         sync.RWMutex
	counters   map[string]float64
	latencies  map[string][]time.Duration
	operations map[string]int
}

// NewMetricsClient creates the default metrics client
func NewMetricsClient() *InMemoryMetricsClient {
	return &InMemoryMetricsClient{
		counters:   make(map[string]float64),
		latencies:  make(map[string][]time.Duration),
		operations: make(map[string]int),
	}
}

// RecordCacheOperation records the outcome and latency of a cache operation
func (m *InMemoryMetricsClient) RecordCacheOperation(operation string, success bool, durationSeconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.operations["cache."+operation+"."+outcome]++
	m.latencies["cache."+operation] = append(m.latencies["cache."+operation],
		time.Duration(durationSeconds*float64(time.Second)))
}

// IncrementCounter increments a named counter
func (m *InMemoryMetricsClient) IncrementCounter(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += value
}

// RecordLatency records the latency of a named operation
func (m *InMemoryMetricsClient) RecordLatency(operation string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies[operation] = append(m.latencies[operation], duration)
}

// Counter returns the current value of a counter
func (m *InMemoryMetricsClient) Counter(name string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[name]
}

// OperationCount returns how many times an operation outcome was recorded
func (m *InMemoryMetricsClient) OperationCount(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.operations[key]
}

// Close implements MetricsClient.Close
func (m *InMemoryMetricsClient) Close() error {
	return nil
}

// NoopMetricsClient discards all metrics
type NoopMetricsClient struct{}

// NewNoopMetricsClient creates a new NoopMetricsClient
func NewNoopMetricsClient() MetricsClient {
	return &NoopMetricsClient{}
}

// RecordCacheOperation implements MetricsClient.RecordCacheOperation
func (m *NoopMetricsClient) RecordCacheOperation(operation string, success bool, durationSeconds float64) {
}

// IncrementCounter implements MetricsClient.IncrementCounter
func (m *NoopMetricsClient) IncrementCounter(name string, value float64) {}

// RecordLatency implements MetricsClient.RecordLatency
func (m *NoopMetricsClient) RecordLatency(operation string, duration time.Duration) {}

// Close implements MetricsClient.Close
func (m *NoopMetricsClient) Close() error { return nil }
