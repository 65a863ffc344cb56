package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FeedMetrics instruments the inbound document feed consumer.
type FeedMetrics struct {
	service string

	batchesTotal   *prometheus.CounterVec
	batchDuration  *prometheus.HistogramVec
	batchSize      prometheus.Histogram
	batchesRunning prometheus.Gauge
}

func NewFeedMetrics(service string, registerer prometheus.Registerer) *FeedMetrics {
	batchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "batches_total",
			Help:      "Document feed batches consumed by status.",
		},
		[]string{"service", "status"},
	)
	batchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "batch_duration_seconds",
			Help:      "Time spent ingesting one feed batch by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	batchSize := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "feed",
			Name:        "batch_documents",
			Help:        "Documents per feed batch.",
			Buckets:     []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	batchesRunning := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "feed",
			Name:        "batches_in_flight",
			Help:        "Feed batches currently being ingested.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)

	registerer.MustRegister(batchesTotal, batchDuration, batchSize, batchesRunning)

	return &FeedMetrics{
		service:        service,
		batchesTotal:   batchesTotal,
		batchDuration:  batchDuration,
		batchSize:      batchSize,
		batchesRunning: batchesRunning,
	}
}

func (m *FeedMetrics) StartBatch(documents int) {
	m.batchesRunning.Inc()
	m.batchSize.Observe(float64(documents))
}

func (m *FeedMetrics) FinishBatch(duration time.Duration, err error) {
	m.batchesRunning.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.batchesTotal.WithLabelValues(m.service, status).Inc()
	m.batchDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}
