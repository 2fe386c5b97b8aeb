// Package api is the HTTP surface of casedesk.
//
// Routes are registered on a gorilla/mux router. Every route except the
// session endpoints sits behind the identity propagator, which verifies the
// session cookie and stores the identity in the request context before a
// handler runs. Handlers never decide access themselves: they call the
// record service, which resolves the operator and asks the authorization
// guard.
//
// # Errors
//
// Failures are written with httputil.WriteAppError, which maps the apperr
// kind to a status and a fixed public message:
//
//	{"error": "forbidden"}
//
// Validation errors are the only ones whose message reaches the client.
//
// # Sub-records
//
// Accesses and events are accepted either as a JSON body or as a
// multipart form with the JSON payload in the "data" field and attachments
// in "files" parts.
package api
