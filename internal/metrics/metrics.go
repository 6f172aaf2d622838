// Package metrics exposes Prometheus collectors for the tracker service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/ramtracker/internal/ram"
)

var (
	labelsParsedTotal          prometheus.Counter
	unparsedFieldsTotal        *prometheus.CounterVec
	observationsTotal          *prometheus.CounterVec
	ingestRunsTotal            *prometheus.CounterVec
	trackedProducts            prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		labelsParsedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ramtracker_labels_parsed_total",
				Help: "Total number of option labels parsed.",
			},
		)

		unparsedFieldsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ramtracker_unparsed_fields_total",
				Help: "Total number of parsed fields that fell back to a sentinel, labeled by field.",
			},
			[]string{"field"},
		)

		observationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ramtracker_observations_total",
				Help: "Total number of price observations written, labeled by series and status.",
			},
			[]string{"series", "status"},
		)

		ingestRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ramtracker_ingest_runs_total",
				Help: "Total number of ingestion runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		trackedProducts = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ramtracker_tracked_products",
				Help: "Number of products promoted to a dedicated series.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLabel counts one parsed label and each field that fell back to a sentinel.
func ObserveLabel(a ram.Attributes) {
	Init()
	labelsParsedTotal.Inc()
	for field, value := range map[string]string{
		"brand":    a.Brand,
		"capacity": a.Capacity,
		"speed":    a.Speed,
		"latency":  a.Latency,
	} {
		if value == ram.Unparsed {
			unparsedFieldsTotal.WithLabelValues(field).Inc()
		}
	}
	if a.Price == ram.PriceUnknown {
		unparsedFieldsTotal.WithLabelValues("price").Inc()
	}
}

// ObserveObservation counts one observation written to series kind.
func ObserveObservation(kind ram.SeriesKind, status ram.Status) {
	Init()
	observationsTotal.WithLabelValues(string(kind), string(status)).Inc()
}

// ObserveIngestRun counts one ingestion run by outcome ("success" or "failure").
func ObserveIngestRun(outcome string) {
	Init()
	ingestRunsTotal.WithLabelValues(outcome).Inc()
}

// SetTrackedProducts records the current membership count.
func SetTrackedProducts(n int) {
	Init()
	trackedProducts.Set(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
