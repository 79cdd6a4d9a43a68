package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inkwell_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inkwell_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Application metrics
	notesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inkwell_note_operations_total",
			Help: "Total number of note operations",
		},
		[]string{"operation"}, // create, update, trash, restore, archive, pin, duplicate, merge, destroy
	)

	versionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inkwell_note_versions_created_total",
			Help: "Total number of note versions written",
		},
	)

	sharesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inkwell_share_operations_total",
			Help: "Total number of share operations",
		},
		[]string{"operation"}, // create, revoke
	)

	searchQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inkwell_search_queries_total",
			Help: "Total number of full-text search queries",
		},
	)

	sweptNotes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inkwell_swept_notes_total",
			Help: "Total number of stale trashed notes removed by the sweep",
		},
	)

	// Error metrics
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inkwell_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type", "component"}, // auth, database, validation
	)
)

// PrometheusMiddleware creates a Fiber middleware for Prometheus metrics
func PrometheusMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		method := c.Method()
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		statusCode := strconv.Itoa(c.Response().StatusCode())

		httpRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)

		return err
	}
}

// IncrementNoteOperation increments note operation counter
func IncrementNoteOperation(operation string) {
	notesTotal.WithLabelValues(operation).Inc()
}

// IncrementVersionCreated counts a written note version
func IncrementVersionCreated() {
	versionsCreated.Inc()
}

// IncrementShareOperation increments share operation counter
func IncrementShareOperation(operation string) {
	sharesTotal.WithLabelValues(operation).Inc()
}

// IncrementSearchQuery counts an executed full-text search
func IncrementSearchQuery() {
	searchQueries.Inc()
}

// AddSweptNotes counts notes removed by the trash sweep
func AddSweptNotes(count int64) {
	if count > 0 {
		sweptNotes.Add(float64(count))
	}
}

// IncrementError increments error counter
func IncrementError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}
