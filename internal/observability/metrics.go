package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpRequestsTotal     *prometheus.CounterVec
	httpLatencySeconds    *prometheus.HistogramVec
	httpErrorsTotal       *prometheus.CounterVec
	extractionTotal       *prometheus.CounterVec
	gradingOutcomesTotal  *prometheus.CounterVec
	batchRecordsHistogram prometheus.Histogram
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradescan_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gradescan_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradescan_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		extractionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradescan_extraction_total",
			Help: "Documents processed by the text extractor, by detected kind.",
		}, []string{"kind"})

		gradingOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradescan_grading_outcomes_total",
			Help: "Grading attempts by terminal record status.",
		}, []string{"outcome"})

		batchRecordsHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gradescan_batch_records",
			Help:    "Number of records produced per uploaded batch.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			extractionTotal,
			gradingOutcomesTotal,
			batchRecordsHistogram,
		)
	})
}

// HTTPRequests exposes the counter for served requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for served requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// ExtractionTotal exposes the counter for extracted documents.
func ExtractionTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return extractionTotal
}

// GradingOutcomes exposes the counter for grading attempt outcomes.
func GradingOutcomes() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingOutcomesTotal
}

// BatchRecords exposes the histogram of records per batch.
func BatchRecords() prometheus.Histogram {
	RegisterMetrics()
	return batchRecordsHistogram
}
