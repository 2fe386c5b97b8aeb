// Package middleware provides the request identity propagator and the login
// rate limiter.
//
// IdentityPropagator runs in front of every route. Client-supplied identity
// headers are always stripped; protected paths then require a session
// cookie that passes auth.Verifier, and the verified identity is injected
// into the request context and the trusted X-User-* headers.
//
//	router.Use(middleware.NewIdentityPropagator(verifier, cookies).Handler)
//
// LoginRateLimiter throttles the credential-exchange endpoint per client IP
// with a token bucket from golang.org/x/time/rate.
package middleware
