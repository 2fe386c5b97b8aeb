package audit

import "time"

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthLogin         EventType = "auth.login"
	EventTypeAuthLoginFailed   EventType = "auth.login_failed"
	EventTypeAuthLogout        EventType = "auth.logout"
	EventTypeAuthSessionRevoke EventType = "auth.session_revoke"

	// Authorization events
	EventTypeAuthzAccessDenied EventType = "authz.access_denied"

	// Data mutation events
	EventTypeDataRecordCreate EventType = "data.record_create"
	EventTypeDataRecordUpdate EventType = "data.record_update"
	EventTypeDataRecordDelete EventType = "data.record_delete"
	EventTypeDataAccessCreate EventType = "data.access_create"
	EventTypeDataEventCreate  EventType = "data.event_create"

	// Admin events
	EventTypeAdminOperatorStructures EventType = "admin.operator_structures"
	EventTypeAdminOperatorDisabled   EventType = "admin.operator_disabled"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceTypeRecord   ResourceType = "anagrafica"
	ResourceTypeAccess   ResourceType = "accesso"
	ResourceTypeEvent    ResourceType = "evento"
	ResourceTypeOperator ResourceType = "operator"
	ResourceTypeSession  ResourceType = "session"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	SubjectID string `json:"subject_id,omitempty"`
	Email     string `json:"email,omitempty"`

	// Resource
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	RequestID string `json:"request_id,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	// Before/after for updates
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}
