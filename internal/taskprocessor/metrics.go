package taskprocessor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for the task processing loop.
//
// Follows the nil receiver pattern - all methods handle nil gracefully for
// zero overhead when metrics are disabled.
type Metrics struct {
	// ItemsTotal counts items routed through a processor by outcome
	// (success, failure, no_output).
	ItemsTotal *prometheus.CounterVec

	// SegmentBytes tracks the current uncompressed output segment size per
	// task.
	SegmentBytes *prometheus.GaugeVec

	// RunsTotal counts Run() exits by terminal status (done, paused, error).
	RunsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers task processor metrics.
//
// Pass nil for reg to create metrics without registration (useful for
// testing or when metrics are disabled).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskengine_items_total",
				Help: "Total items routed through a task processor by outcome",
			},
			[]string{"outcome"},
		),
		SegmentBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "taskengine_segment_bytes",
				Help: "Current uncompressed output segment size per task",
			},
			[]string{"task_id"},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskengine_runs_total",
				Help: "Total Run() exits by terminal status",
			},
			[]string{"status"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.ItemsTotal, m.SegmentBytes, m.RunsTotal)
	}

	return m
}

// RecordItem increments the outcome counter. Safe to call on nil receiver.
func (m *Metrics) RecordItem(outcome string) {
	if m == nil {
		return
	}
	m.ItemsTotal.WithLabelValues(outcome).Inc()
}

// SetSegmentBytes records the current segment size for taskID. Safe to call
// on nil receiver.
func (m *Metrics) SetSegmentBytes(taskID string, size int64) {
	if m == nil {
		return
	}
	m.SegmentBytes.WithLabelValues(taskID).Set(float64(size))
}

// RecordRun increments the run-exit counter for status. Safe to call on nil
// receiver.
func (m *Metrics) RecordRun(status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
}

// NullMetrics returns nil, which acts as a no-op metrics collector. All
// Metrics methods handle nil receiver gracefully.
func NullMetrics() *Metrics {
	return nil
}
