package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector exposes the service's Prometheus metrics. Metric writes
// never affect control flow; a training run behaves identically with or
// without a collector attached.
type MetricsCollector struct {
	trainingRounds         prometheus.Counter
	trainingFinalLoss      *prometheus.GaugeVec
	personalizationLatency prometheus.Histogram
	personalizationAgents  prometheus.Histogram
	predictionCacheHits    *prometheus.CounterVec
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		trainingRounds: promauto.NewCounter(prometheus.CounterOpts{
			Name: "affinity_training_rounds_total",
			Help: "Total gradient-descent rounds executed across all fits",
		}),
		trainingFinalLoss: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "affinity_training_final_loss",
			Help: "Final MAE loss of the most recent fit, labeled by flow",
		}, []string{"flow"}),
		personalizationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "affinity_personalization_duration_seconds",
			Help:    "End-to-end latency of personalization requests",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		personalizationAgents: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "affinity_personalization_agents",
			Help:    "Number of new agents per personalization request",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		predictionCacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "affinity_prediction_cache_requests_total",
			Help: "Prediction cache lookups by outcome",
		}, []string{"outcome"}),
	}
}

func (mc *MetricsCollector) ObserveFit(flow string, rounds int, finalLoss float64) {
	mc.trainingRounds.Add(float64(rounds))
	mc.trainingFinalLoss.WithLabelValues(flow).Set(finalLoss)
}

func (mc *MetricsCollector) ObservePersonalization(agents int, duration time.Duration) {
	mc.personalizationAgents.Observe(float64(agents))
	mc.personalizationLatency.Observe(duration.Seconds())
}

func (mc *MetricsCollector) ObserveCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	mc.predictionCacheHits.WithLabelValues(outcome).Inc()
}
