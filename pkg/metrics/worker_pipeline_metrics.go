// Package metrics exposes Prometheus collectors for the complaint pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline groups the pipeline collectors. A nil *Pipeline is a valid no-op.
type Pipeline struct {
	MessagesTotal          *prometheus.CounterVec
	FilterRejectionsTotal  *prometheus.CounterVec
	ClassificationAttempts *prometheus.CounterVec
	ClassificationDuration *prometheus.HistogramVec
	MergeActionsTotal      *prometheus.CounterVec
	PersistenceConflicts   prometheus.Counter
	BatchDuration          prometheus.Histogram
}

// NewPipeline registers the collectors on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	f := promauto.With(reg)
	return &Pipeline{
		MessagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "complaint_messages_total",
				Help: "Messages handled by the pipeline, by outcome",
			},
			[]string{"outcome"},
		),
		FilterRejectionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "complaint_filter_rejections_total",
				Help: "Noise filter rejections, by terminal rule",
			},
			[]string{"rule"},
		),
		ClassificationAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "complaint_classification_attempts_total",
				Help: "Classification calls, by result",
			},
			[]string{"result"},
		),
		ClassificationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "complaint_classification_duration_seconds",
				Help:    "Classification latency including retries",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
			},
			[]string{"status"},
		),
		MergeActionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "complaint_merge_actions_total",
				Help: "Record build outcomes",
			},
			[]string{"action"},
		),
		PersistenceConflicts: f.NewCounter(
			prometheus.CounterOpts{
				Name: "complaint_persistence_conflicts_total",
				Help: "Writes rejected by the store",
			},
		),
		BatchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "complaint_batch_duration_seconds",
				Help:    "Wall time of one pipeline batch",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
	}
}

func (p *Pipeline) Outcome(outcome string) {
	if p == nil {
		return
	}
	p.MessagesTotal.WithLabelValues(outcome).Inc()
}

func (p *Pipeline) FilterRejected(rule string) {
	if p == nil {
		return
	}
	p.FilterRejectionsTotal.WithLabelValues(rule).Inc()
}

func (p *Pipeline) ClassificationAttempt(result string) {
	if p == nil {
		return
	}
	p.ClassificationAttempts.WithLabelValues(result).Inc()
}

func (p *Pipeline) ObserveClassification(status string, d time.Duration) {
	if p == nil {
		return
	}
	p.ClassificationDuration.WithLabelValues(status).Observe(d.Seconds())
}

func (p *Pipeline) MergeAction(action string) {
	if p == nil {
		return
	}
	p.MergeActionsTotal.WithLabelValues(action).Inc()
}

func (p *Pipeline) PersistenceConflict() {
	if p == nil {
		return
	}
	p.PersistenceConflicts.Inc()
}

func (p *Pipeline) ObserveBatch(d time.Duration) {
	if p == nil {
		return
	}
	p.BatchDuration.Observe(d.Seconds())
}
