// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("record_id", id).Warn("access denied")
//
// Handlers use FromContext to pick up the request ID and verified subject:
//
//	observability.FromContext(r.Context()).Info("record updated")
//
// # Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveDecision("read", decision.Allowed)
//
// # Health
//
// Readiness pings the document database and the Redis revocation store.
// Sessions cannot be verified without Redis, so its outage is reported as
// unhealthy.
package observability
