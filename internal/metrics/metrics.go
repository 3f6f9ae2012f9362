// Package metrics exposes replication outcomes to Prometheus.
//
// Exported series:
//
//	replication_instances_total{type,status}      finished instances by final status
//	replication_bytes_copied_total{type}          bytes reported by copy counters
//	replication_instance_duration_seconds{type}   wall time of finished instances
//	replication_snapshots_evicted_total{side}     snapshots removed by eviction
//	replication_active_policies{type}             schedulable policies
//	replication_stages_running                    stages currently executing on this worker
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	instances        *prometheus.CounterVec
	bytesCopied      *prometheus.CounterVec
	instanceDuration *prometheus.HistogramVec
	snapshotsEvicted *prometheus.CounterVec
	activePolicies   *prometheus.GaugeVec
	stagesRunning    prometheus.Gauge
}

// NewCollector creates the collector and registers it with the default registerer.
func NewCollector() *Collector {
	c := &Collector{
		instances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replication_instances_total",
			Help: "Total number of finished policy instances by final status",
		}, []string{"type", "status"}),
		bytesCopied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replication_bytes_copied_total",
			Help: "Total number of bytes copied by replication jobs",
		}, []string{"type"}),
		instanceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "replication_instance_duration_seconds",
			Help:    "Policy instance duration in seconds",
			Buckets: []float64{10, 30, 60, 300, 900, 1800, 3600, 7200, 21600},
		}, []string{"type"}),
		snapshotsEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replication_snapshots_evicted_total",
			Help: "Total number of snapshots deleted by retention",
		}, []string{"side"}),
		activePolicies: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "replication_active_policies",
			Help: "Current number of schedulable policies",
		}, []string{"type"}),
		stagesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replication_stages_running",
			Help: "Current number of job stages running on this worker",
		}),
	}

	prometheus.MustRegister(c.instances)
	prometheus.MustRegister(c.bytesCopied)
	prometheus.MustRegister(c.instanceDuration)
	prometheus.MustRegister(c.snapshotsEvicted)
	prometheus.MustRegister(c.activePolicies)
	prometheus.MustRegister(c.stagesRunning)

	return c
}

// RecordInstance records a finished instance. A nil collector is a no-op.
func (c *Collector) RecordInstance(typ, status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.instances.WithLabelValues(typ, status).Inc()
	c.instanceDuration.WithLabelValues(typ).Observe(elapsed.Seconds())
}

func (c *Collector) AddBytesCopied(typ string, n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.bytesCopied.WithLabelValues(typ).Add(float64(n))
}

func (c *Collector) RecordEvicted(side string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.snapshotsEvicted.WithLabelValues(side).Add(float64(n))
}

func (c *Collector) SetActivePolicies(typ string, n int) {
	if c == nil {
		return
	}
	c.activePolicies.WithLabelValues(typ).Set(float64(n))
}

// StageStarted marks a stage as running and returns the func that ends it.
func (c *Collector) StageStarted() func() {
	if c == nil {
		return func() {}
	}
	c.stagesRunning.Inc()
	return c.stagesRunning.Dec
}

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
