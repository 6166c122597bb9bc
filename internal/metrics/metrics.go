// Package metrics defines the Prometheus collectors for configuration runs
// and retrieval. A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cuecode"

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
	OutcomeNotFound = "not_found"
)

type Collector struct {
	pipelineRuns       *prometheus.CounterVec
	pipelineDuration   prometheus.Histogram
	embeddingBatchSize prometheus.Histogram
	retrievalRequests  *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		pipelineRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_runs_total",
				Help:      "Total number of configuration pipeline runs",
			},
			[]string{"outcome"},
		),
		pipelineDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_duration_seconds",
				Help:      "Configuration pipeline duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		embeddingBatchSize: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "embedding_batch_size",
				Help:      "Number of selection prompts embedded per batch",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		retrievalRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrieval_requests_total",
				Help:      "Total number of operation retrieval requests",
			},
			[]string{"outcome"},
		),
	}
}

func (c *Collector) ObservePipeline(outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.pipelineRuns.WithLabelValues(outcome).Inc()
	c.pipelineDuration.Observe(elapsed.Seconds())
}

func (c *Collector) ObserveEmbeddingBatch(size int) {
	if c == nil {
		return
	}
	c.embeddingBatchSize.Observe(float64(size))
}

func (c *Collector) ObserveRetrieval(outcome string) {
	if c == nil {
		return
	}
	c.retrievalRequests.WithLabelValues(outcome).Inc()
}

// WriteTextfile dumps every metric gathered by g in the text exposition
// format, for pickup by the node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
