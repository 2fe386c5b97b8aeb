// Package apperr defines the error kinds shared by the authentication and
// authorization layers and how each kind maps onto an HTTP response.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure so callers can branch on it without matching
// message strings.
type Kind int

const (
	// KindInternal is any failure that does not fit another kind.
	KindInternal Kind = iota
	// KindUnauthenticated means no credential was presented.
	KindUnauthenticated
	// KindInvalidSession means a session credential was presented but
	// failed signature, expiry or revocation checks.
	KindInvalidSession
	// KindInvalidCredential means a login credential could not be verified
	// against the identity issuer.
	KindInvalidCredential
	// KindNotFound means the operator or record does not exist.
	KindNotFound
	// KindForbidden means identity and resource are valid but the operator
	// shares no structure with the resource.
	KindForbidden
	// KindValidation means the request payload is malformed.
	KindValidation
	// KindUpstreamUnavailable means the identity issuer or a data store
	// could not be reached.
	KindUpstreamUnavailable
)

var kindNames = map[Kind]string{
	KindInternal:            "internal",
	KindUnauthenticated:     "unauthenticated",
	KindInvalidSession:      "invalid_session",
	KindInvalidCredential:   "invalid_credential",
	KindNotFound:            "not_found",
	KindForbidden:           "forbidden",
	KindValidation:          "validation",
	KindUpstreamUnavailable: "upstream_unavailable",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Sentinel errors, one per kind. Compare with errors.Is.
var (
	ErrInternal            = &Error{Kind: KindInternal, Message: "internal server error"}
	ErrUnauthenticated     = &Error{Kind: KindUnauthenticated, Message: "authentication required"}
	ErrInvalidSession      = &Error{Kind: KindInvalidSession, Message: "invalid session"}
	ErrInvalidCredential   = &Error{Kind: KindInvalidCredential, Message: "invalid credential"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden           = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrValidation          = &Error{Kind: KindValidation, Message: "invalid request"}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable, Message: "service unavailable"}
)

// Error is a classified error. Message is safe to show to clients, Err
// carries the internal cause and is only meant for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so a wrapped
// apperr.New(KindNotFound, ...) satisfies errors.Is(err, ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates a classified error with a client-safe message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies cause under kind. The client-facing message is the
// default for that kind.
func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Message: defaultMessage(kind), Err: cause}
}

// Validation creates a validation error carrying a client-facing message.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a kind onto the response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthenticated, KindInvalidSession, KindInvalidCredential:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message that may be shown to a client. Denials
// and lookups use fixed texts so responses never reveal which structures
// would have been required or whether a record exists. Validation messages
// are passed through.
func PublicMessage(err error) string {
	kind := KindOf(err)
	if kind == KindValidation {
		var e *Error
		if errors.As(err, &e) && e.Message != "" {
			return e.Message
		}
	}
	return defaultMessage(kind)
}

func defaultMessage(kind Kind) string {
	switch kind {
	case KindUnauthenticated:
		return ErrUnauthenticated.Message
	case KindInvalidSession:
		return ErrInvalidSession.Message
	case KindInvalidCredential:
		return ErrInvalidCredential.Message
	case KindNotFound:
		return ErrNotFound.Message
	case KindForbidden:
		return ErrForbidden.Message
	case KindValidation:
		return ErrValidation.Message
	case KindUpstreamUnavailable:
		return ErrUpstreamUnavailable.Message
	default:
		return ErrInternal.Message
	}
}
