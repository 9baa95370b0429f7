package perf

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports a Monitor as Prometheus metrics. Values are read once per
// scrape so all series in a scrape come from the same snapshot.
type Collector struct {
	// monitor is the source of all exported values.
	monitor *Monitor

	total       *prometheus.Desc
	failed      *prometheus.Desc
	avgSeconds  *prometheus.Desc
	minSeconds  *prometheus.Desc
	maxSeconds  *prometheus.Desc
	opsPerSec   *prometheus.Desc
	memoryBytes *prometheus.Desc
}

// NewCollector builds a Collector for m. constLabels distinguishes monitors
// when more than one is registered (e.g. {"component": "vectorstore"}).
func NewCollector(namespace string, m *Monitor, constLabels prometheus.Labels) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "perf", name), help, nil, constLabels)
	}
	return &Collector{
		monitor:     m,
		total:       desc("operations_total", "Total operations recorded by the performance monitor."),
		failed:      desc("operations_failed_total", "Operations recorded as failed."),
		avgSeconds:  desc("response_time_avg_seconds", "Incremental mean operation latency."),
		minSeconds:  desc("response_time_min_seconds", "Shortest recorded operation latency."),
		maxSeconds:  desc("response_time_max_seconds", "Longest recorded operation latency."),
		opsPerSec:   desc("operations_per_second", "Operations per second since the monitor was created or reset."),
		memoryBytes: desc("heap_alloc_bytes", "Go heap in use when the monitor was scraped."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.failed
	ch <- c.avgSeconds
	ch <- c.minSeconds
	ch <- c.maxSeconds
	ch <- c.opsPerSec
	ch <- c.memoryBytes
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.monitor.Metrics()
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.CounterValue, float64(m.TotalOperations))
	ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(m.FailedOperations))
	ch <- prometheus.MustNewConstMetric(c.avgSeconds, prometheus.GaugeValue, m.AverageResponseTime.Seconds())
	ch <- prometheus.MustNewConstMetric(c.minSeconds, prometheus.GaugeValue, m.MinResponseTime.Seconds())
	ch <- prometheus.MustNewConstMetric(c.maxSeconds, prometheus.GaugeValue, m.MaxResponseTime.Seconds())
	ch <- prometheus.MustNewConstMetric(c.opsPerSec, prometheus.GaugeValue, m.OperationsPerSecond)
	ch <- prometheus.MustNewConstMetric(c.memoryBytes, prometheus.GaugeValue, m.MemoryUsageMB*1024*1024)
}
