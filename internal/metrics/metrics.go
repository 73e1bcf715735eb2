/**
 * Prometheus metrics for the ZakPOS OCR Worker
 *
 * Metric families mirror the OCR service contract: request counts by
 * outcome, processing duration by model and document type, error counts
 * by kind, and an active-jobs gauge. Recording must never block or fail
 * the pipeline, so all helpers are fire-and-forget.
 */

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocr_requests_total",
			Help: "Total number of OCR requests",
		},
		[]string{"ocr_type", "status"},
	)

	processingTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ocr_processing_time_seconds",
			Help:    "OCR processing time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"model", "ocr_type"},
	)

	errorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocr_errors_total",
			Help: "Total number of OCR errors",
		},
		[]string{"error_type", "model"},
	)

	modelAccuracy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ocr_model_accuracy",
			Help: "OCR model accuracy score",
		},
		[]string{"model", "field"},
	)

	activeJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ocr_active_jobs",
			Help: "Number of active OCR processing jobs",
		},
	)
)

// RecordRequest counts a completed request by document type and outcome
// ("completed", "failed", "cached").
func RecordRequest(ocrType, status string) {
	requestCount.WithLabelValues(ocrType, status).Inc()
}

// RecordProcessingTime records one recognition or pipeline duration.
func RecordProcessingTime(model, ocrType string, seconds float64) {
	processingTime.WithLabelValues(model, ocrType).Observe(seconds)
}

// RecordError counts an error by kind and the model involved.
func RecordError(errorType, model string) {
	errorCount.WithLabelValues(errorType, model).Inc()
}

// RecordModelAccuracy publishes a coarse accuracy score for a model.
func RecordModelAccuracy(model, field string, accuracy float64) {
	modelAccuracy.WithLabelValues(model, field).Set(accuracy)
}

// IncActiveJobs marks the start of a pipeline run.
func IncActiveJobs() {
	activeJobs.Inc()
}

// DecActiveJobs marks the end of a pipeline run.
func DecActiveJobs() {
	activeJobs.Dec()
}
