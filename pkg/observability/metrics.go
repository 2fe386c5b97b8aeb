package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Trust boundary metrics
	SessionVerificationsTotal *prometheus.CounterVec
	SessionsIssuedTotal       *prometheus.CounterVec
	SessionsRevokedTotal      *prometheus.CounterVec
	AuthzDecisionsTotal       *prometheus.CounterVec

	// Storage metrics
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casedesk_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "casedesk_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		SessionVerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casedesk_auth_verifications_total",
				Help: "Session credential verifications by result and internal reason",
			},
			[]string{"result", "reason"},
		),
		SessionsIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casedesk_auth_sessions_issued_total",
				Help: "Session credential exchanges by result",
			},
			[]string{"result"},
		),
		SessionsRevokedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casedesk_auth_sessions_revoked_total",
				Help: "Session revocations by scope and result",
			},
			[]string{"scope", "result"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casedesk_authz_decisions_total",
				Help: "Structure-scoped authorization decisions",
			},
			[]string{"operation", "result"},
		),

		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casedesk_storage_operations_total",
				Help: "Total number of storage operations",
			},
			[]string{"operation", "backend", "status"},
		),
		StorageOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "casedesk_storage_operation_duration_seconds",
				Help:    "Storage operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "backend"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SessionVerificationsTotal,
		m.SessionsIssuedTotal,
		m.SessionsRevokedTotal,
		m.AuthzDecisionsTotal,
		m.StorageOperationsTotal,
		m.StorageOperationDuration,
	)

	return m
}

// ObserveVerification counts one session verification. Safe on a nil receiver.
func (m *Metrics) ObserveVerification(ok bool, reason string) {
	if m == nil {
		return
	}
	m.SessionVerificationsTotal.WithLabelValues(resultLabel(ok), reason).Inc()
}

// ObserveSessionIssued counts one login exchange. Safe on a nil receiver.
func (m *Metrics) ObserveSessionIssued(ok bool) {
	if m == nil {
		return
	}
	m.SessionsIssuedTotal.WithLabelValues(resultLabel(ok)).Inc()
}

// ObserveRevocation counts one revocation attempt. Safe on a nil receiver.
func (m *Metrics) ObserveRevocation(scope string, ok bool) {
	if m == nil {
		return
	}
	m.SessionsRevokedTotal.WithLabelValues(scope, resultLabel(ok)).Inc()
}

// ObserveDecision counts one authorization decision. Safe on a nil receiver.
func (m *Metrics) ObserveDecision(operation string, allowed bool) {
	if m == nil {
		return
	}
	result := "deny"
	if allowed {
		result = "allow"
	}
	m.AuthzDecisionsTotal.WithLabelValues(operation, result).Inc()
}

// ObserveStorage records a storage call. Safe on a nil receiver.
func (m *Metrics) ObserveStorage(operation, backend string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.StorageOperationsTotal.WithLabelValues(operation, backend, resultLabel(err == nil)).Inc()
	m.StorageOperationDuration.WithLabelValues(operation, backend).Observe(time.Since(start).Seconds())
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
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

// routeLabel returns the mux route template so record ids do not explode
// label cardinality.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Register it with router.Use so the matched route is known.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
