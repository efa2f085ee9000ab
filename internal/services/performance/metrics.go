package performance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors fed by the Monitor
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	KeywordFetches    *prometheus.CounterVec
	KeywordResults    prometheus.Counter
	QueuePending      prometheus.Gauge
}

// NewMetrics registers the collectors on registerer
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "grantpost_operations_total",
			Help: "Total number of timed pipeline operations.",
		}, []string{"operation", "success"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grantpost_operation_duration_seconds",
			Help:    "Duration of timed pipeline operations.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"operation"}),
		KeywordFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "grantpost_keyword_fetches_total",
			Help: "Total number of keyword searches by outcome.",
		}, []string{"status"}),
		KeywordResults: factory.NewCounter(prometheus.CounterOpts{
			Name: "grantpost_keyword_results_total",
			Help: "Total number of search results returned across keywords.",
		}),
		QueuePending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "grantpost_queue_pending",
			Help: "Current number of pending processing queue items.",
		}),
	}
}
