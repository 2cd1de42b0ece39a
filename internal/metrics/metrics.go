// Package metrics exposes the broker's per-function counters as
// Prometheus gauges, grounded on ChuLiYu-raft-recovery's
// internal/metrics package. The broker itself never imports this
// package -- cmd/gearmand periodically calls Collector.Update with a
// broker.Snapshot() to avoid a dependency cycle back into broker.
package metrics

import (
	"github.com/bossjones/gearman-server/internal/broker"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the gauge vectors scraped by a Prometheus endpoint.
type Collector struct {
	workers  *prometheus.GaugeVec
	queued   *prometheus.GaugeVec
	running  *prometheus.GaugeVec
	total    *prometheus.GaugeVec
	maxQueue *prometheus.GaugeVec
}

// NewCollector constructs and registers the gauge vectors against reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		workers:  gaugeVec("gearman_function_worker_count", "Workers currently capable of a function."),
		queued:   gaugeVec("gearman_function_job_queued", "Jobs queued but not yet assigned for a function."),
		running:  gaugeVec("gearman_function_job_running", "Jobs currently assigned to a worker for a function."),
		total:    gaugeVec("gearman_function_job_total", "Jobs of any state currently known for a function."),
		maxQueue: gaugeVec("gearman_function_max_queue_size", "Configured max_queue_size for a function, 0 if unbounded."),
	}
	reg.MustRegister(c.workers, c.queued, c.running, c.total, c.maxQueue)
	return c
}

func gaugeVec(name, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, []string{"function"})
}

// Update replaces every gauge's value from a fresh broker snapshot.
func (c *Collector) Update(stats []broker.FunctionStat) {
	for _, s := range stats {
		c.workers.WithLabelValues(s.Name).Set(float64(s.Worker))
		c.queued.WithLabelValues(s.Name).Set(float64(s.Queued))
		c.running.WithLabelValues(s.Name).Set(float64(s.Running))
		c.total.WithLabelValues(s.Name).Set(float64(s.Total))
		c.maxQueue.WithLabelValues(s.Name).Set(float64(s.MaxQueue))
	}
}
