package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	patientsRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "patients_registered_total",
			Help: "Total number of patients created",
		},
	)

	testResultsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_results_created_total",
			Help: "Total number of pending test results stored",
		},
		[]string{"test_type"},
	)

	reportsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reports_generated_total",
			Help: "Total number of report generation attempts by outcome",
		},
		[]string{"test_type", "outcome"},
	)

	reportFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_fallbacks_total",
			Help: "Reports synthesized because the model reply was unusable",
		},
		[]string{"reason"},
	)

	llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Text-generation request duration in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider", "status"},
	)

	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"driver", "operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := routePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routePattern uses the matched chi route so patient IDs do not become labels
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// --- Business metric helpers ---

// RecordPatientRegistered records a patient creation
func RecordPatientRegistered() {
	patientsRegistered.Inc()
}

// RecordTestResultCreated records a pending test result
func RecordTestResultCreated(testType string) {
	testResultsCreated.WithLabelValues(testType).Inc()
}

// RecordReportGenerated records the outcome of a generation attempt:
// "parsed", "fallback" or "failed".
func RecordReportGenerated(testType, outcome string) {
	reportsGenerated.WithLabelValues(testType, outcome).Inc()
}

// RecordReportFallback records why a fallback report was synthesized
func RecordReportFallback(reason string) {
	reportFallbacks.WithLabelValues(reason).Inc()
}

// RecordLLMRequest records a text-generation round trip
func RecordLLMRequest(provider string, ok bool, duration time.Duration) {
	status := "error"
	if ok {
		status = "ok"
	}
	llmRequestDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
}

// RecordDBQuery records a database query duration
func RecordDBQuery(driver, operation string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(driver, operation).Observe(duration.Seconds())
}
