// Package httputil provides the HTTP plumbing shared by handlers: JSON
// responses, mapping of application errors to status codes, request parsing
// and the outer middleware chain (request ids, access logging, recovery).
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//	)(router)
//
// Error bodies are always {"error": "..."} with a fixed message per error
// kind, so clients never learn why a record was hidden or denied.
package httputil
