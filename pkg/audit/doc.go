// Package audit records security-relevant events: logins and logouts,
// authorization denials, and mutations of case records.
//
// Events go through the Logger interface. StructuredLogger writes them as
// JSON lines through logrus; Recorder keeps them in memory for tests.
//
//	logger := audit.FromContext(ctx)
//	logger.LogAuthorization(ctx, audit.EventTypeAuthzAccessDenied, subjectID,
//		audit.ResourceTypeRecord, recordID, audit.EventStatusDenied, decision.Reason)
package audit
