package audit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/platinummonkey/casedesk/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// LogAuthentication logs a login, logout or revocation
	LogAuthentication(ctx context.Context, eventType EventType, subjectID, email string, status EventStatus, message string) error

	// LogAuthorization logs an authorization decision worth keeping, usually a denial
	LogAuthorization(ctx context.Context, eventType EventType, subjectID string, resourceType ResourceType, resourceID string, status EventStatus, message string) error

	// LogDataMutation logs a data mutation event
	LogDataMutation(ctx context.Context, eventType EventType, subjectID string, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error

	// Close flushes any buffered events
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context, or a no-op logger
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return NoOpLogger{}
}

// Middleware makes logger available to handlers through FromContext
func Middleware(logger Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithLogger(r.Context(), logger)))
		})
	}
}

// newEvent fills the fields every event shares
func newEvent(ctx context.Context, eventType EventType, status EventStatus) *AuditEvent {
	return &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
	}
}

// base implements the typed helpers on top of a Log function
type base struct {
	log func(ctx context.Context, event *AuditEvent) error
}

func (b base) LogAuthentication(ctx context.Context, eventType EventType, subjectID, email string, status EventStatus, message string) error {
	event := newEvent(ctx, eventType, status)
	event.SubjectID = subjectID
	event.Email = email
	event.ResourceType = ResourceTypeSession
	event.Message = message
	return b.log(ctx, event)
}

func (b base) LogAuthorization(ctx context.Context, eventType EventType, subjectID string, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	event := newEvent(ctx, eventType, status)
	event.SubjectID = subjectID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	return b.log(ctx, event)
}

func (b base) LogDataMutation(ctx context.Context, eventType EventType, subjectID string, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error {
	event := newEvent(ctx, eventType, EventStatusSuccess)
	event.SubjectID = subjectID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Changes = changes
	event.Message = message
	return b.log(ctx, event)
}

// NoOpLogger discards every event
type NoOpLogger struct{}

func (NoOpLogger) Log(context.Context, *AuditEvent) error { return nil }

func (NoOpLogger) LogAuthentication(context.Context, EventType, string, string, EventStatus, string) error {
	return nil
}

func (NoOpLogger) LogAuthorization(context.Context, EventType, string, ResourceType, string, EventStatus, string) error {
	return nil
}

func (NoOpLogger) LogDataMutation(context.Context, EventType, string, ResourceType, string, *ChangeDetails, string) error {
	return nil
}

func (NoOpLogger) Close() error { return nil }

// Recorder keeps events in memory
type Recorder struct {
	base
	mu     sync.Mutex
	events []AuditEvent
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	r := &Recorder{}
	r.base = base{log: r.Log}
	return r
}

func (r *Recorder) Log(ctx context.Context, event *AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AuditEvent, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of one type
func (r *Recorder) OfType(eventType EventType) []AuditEvent {
	var out []AuditEvent
	for _, e := range r.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Close() error { return nil }
