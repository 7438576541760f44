// Package metrics exposes Prometheus instruments for cascade and purge
// operations. A nil *Recorder is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeBlocked  = "blocked"
	OutcomeFailed   = "failed"
	OutcomePreview  = "preview"
	OutcomeConflict = "conflict"
)

// Recorder holds the instruments.
type Recorder struct {
	operations *prometheus.CounterVec
	affected   *prometheus.CounterVec
	detached   prometheus.Counter
	issues     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	purged     *prometheus.CounterVec
}

// New registers the instruments with reg under namespace. A nil reg uses
// prometheus.DefaultRegisterer.
func New(namespace string, reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_operations_total",
			Help:      "Total number of cascade operations by kind, root kind and outcome.",
		}, []string{"operation", "kind", "outcome"}),
		affected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_affected_records_total",
			Help:      "Total number of records transitioned by committed cascades.",
		}, []string{"operation", "kind"}),
		detached: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_detached_references_total",
			Help:      "Total number of user references removed by user deletions.",
		}),
		issues: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_issues_total",
			Help:      "Total number of reported issues by severity and code.",
		}, []string{"severity", "code"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cascade_duration_seconds",
			Help:      "Latency distribution of cascade operations.",
			Buckets: []float64{
				0.005, 0.01, 0.025, 0.05,
				0.1, 0.25, 0.5,
				1, 2.5, 5, 10,
			},
		}, []string{"operation"}),
		purged: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purged_records_total",
			Help:      "Total number of tombstoned records physically removed.",
		}, []string{"kind"}),
	}
}

// Operation records the outcome of one cascade call.
func (r *Recorder) Operation(op, kind, outcome string, affected int, took time.Duration) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(op, kind, outcome).Inc()
	r.duration.WithLabelValues(op).Observe(took.Seconds())
	if outcome == OutcomeSuccess && affected > 0 {
		r.affected.WithLabelValues(op, kind).Add(float64(affected))
	}
}

// Detached records removed user references.
func (r *Recorder) Detached(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.detached.Add(float64(n))
}

// Issue records one reported error or warning.
func (r *Recorder) Issue(severity, code string) {
	if r == nil {
		return
	}
	r.issues.WithLabelValues(severity, code).Inc()
}

// Purged records physically removed records of kind.
func (r *Recorder) Purged(kind string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.purged.WithLabelValues(kind).Add(float64(n))
}
