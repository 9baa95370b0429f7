// Package perf records operation latency and outcome and exposes rolling
// aggregates. A Monitor is embedded by vector store backends and retrievers;
// [Collector] exports it to Prometheus.
package perf

import (
	"runtime"
	"sync"
	"time"
)

// Metrics is a point-in-time copy of the monitor's aggregates.
type Metrics struct {
	// TotalOperations counts every recorded operation.
	TotalOperations uint64 `json:"total_operations"`
	// SuccessfulOperations counts operations recorded with success=true.
	SuccessfulOperations uint64 `json:"successful_operations"`
	// FailedOperations counts operations recorded with success=false.
	FailedOperations uint64 `json:"failed_operations"`
	// AverageResponseTime is the incremental mean of all recorded durations.
	AverageResponseTime time.Duration `json:"average_response_time"`
	// MinResponseTime is the shortest recorded duration.
	MinResponseTime time.Duration `json:"min_response_time"`
	// MaxResponseTime is the longest recorded duration.
	MaxResponseTime time.Duration `json:"max_response_time"`
	// OperationsPerSecond is TotalOperations divided by the time elapsed
	// since the monitor was created or last reset.
	OperationsPerSecond float64 `json:"operations_per_second"`
	// MemoryUsageMB is the Go heap currently in use, in mebibytes.
	MemoryUsageMB float64 `json:"memory_usage_mb"`
}

// Monitor accumulates operation statistics. The zero value is not usable;
// construct with [NewMonitor]. A nil *Monitor is a valid no-op recorder.
type Monitor struct {
	mu    sync.Mutex
	m     Metrics
	since time.Time
	now   func() time.Time
}

// NewMonitor returns an empty Monitor.
func NewMonitor() *Monitor {
	return &Monitor{since: time.Now(), now: time.Now}
}

// RecordOperation folds one observation into the aggregates.
func (m *Monitor) RecordOperation(d time.Duration, success bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.m.TotalOperations++
	if success {
		m.m.SuccessfulOperations++
	} else {
		m.m.FailedOperations++
	}

	n := m.m.TotalOperations
	if n == 1 {
		m.m.MinResponseTime = d
		m.m.MaxResponseTime = d
		m.m.AverageResponseTime = d
		return
	}
	if d < m.m.MinResponseTime {
		m.m.MinResponseTime = d
	}
	if d > m.m.MaxResponseTime {
		m.m.MaxResponseTime = d
	}
	total := float64(m.m.AverageResponseTime.Nanoseconds()) * float64(n-1)
	m.m.AverageResponseTime = time.Duration((total + float64(d.Nanoseconds())) / float64(n))
}

// Observe records the time elapsed since start, counting err == nil as success.
// It is shaped for use with defer:
//
//	defer func() { mon.Observe(start, err) }()
func (m *Monitor) Observe(start time.Time, err error) {
	if m == nil {
		return
	}
	m.RecordOperation(m.now().Sub(start), err == nil)
}

// Metrics returns a copy of the current aggregates.
func (m *Monitor) Metrics() Metrics {
	if m == nil {
		return Metrics{}
	}
	m.mu.Lock()
	out := m.m
	elapsed := m.now().Sub(m.since).Seconds()
	m.mu.Unlock()

	if elapsed > 0 {
		out.OperationsPerSecond = float64(out.TotalOperations) / elapsed
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	out.MemoryUsageMB = float64(ms.HeapAlloc) / (1024 * 1024)

	return out
}

// Reset clears all aggregates and restarts the throughput window.
func (m *Monitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m = Metrics{}
	m.since = m.now()
}
