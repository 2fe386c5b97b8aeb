package audit

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

// StructuredLogger writes audit events as JSON lines through logrus,
// separate from the application log so the trail can be shipped on its own
type StructuredLogger struct {
	base
	logger *logrus.Logger
}

// NewStructuredLogger creates a logger writing to out
func NewStructuredLogger(out io.Writer) *StructuredLogger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.JSONFormatter{
		DisableTimestamp: true,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyMsg: "message",
		},
	})

	s := &StructuredLogger{logger: l}
	s.base = base{log: s.Log}
	return s
}

func (s *StructuredLogger) Log(ctx context.Context, event *AuditEvent) error {
	fields := logrus.Fields{
		"audit":      true,
		"timestamp":  event.Timestamp,
		"event_type": event.EventType,
		"status":     event.Status,
	}
	if event.SubjectID != "" {
		fields["subject_id"] = event.SubjectID
	}
	if event.Email != "" {
		fields["email"] = event.Email
	}
	if event.ResourceType != "" {
		fields["resource_type"] = event.ResourceType
		fields["resource_id"] = event.ResourceID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.ErrorMessage != "" {
		fields["error_message"] = event.ErrorMessage
	}
	if event.Changes != nil {
		fields["changes"] = event.Changes
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	entry := s.logger.WithFields(fields)
	if event.Status == EventStatusSuccess {
		entry.Info(event.Message)
	} else {
		entry.Warn(event.Message)
	}
	return nil
}

func (s *StructuredLogger) Close() error { return nil }
