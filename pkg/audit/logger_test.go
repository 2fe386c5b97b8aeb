package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/casedesk/pkg/contextkeys"
)

func TestFromContext_DefaultsToNoOp(t *testing.T) {
	logger := FromContext(context.Background())
	assert.IsType(t, NoOpLogger{}, logger)
	assert.NoError(t, logger.LogAuthentication(context.Background(), EventTypeAuthLogin, "u1", "a@b.it", EventStatusSuccess, "ok"))
}

func TestMiddleware_InjectsLogger(t *testing.T) {
	rec := NewRecorder()
	handler := Middleware(rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).LogAuthorization(r.Context(), EventTypeAuthzAccessDenied, "u1",
			ResourceTypeRecord, "r1", EventStatusDenied, "no shared structure")
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	events := rec.OfType(EventTypeAuthzAccessDenied)
	require.Len(t, events, 1)
	assert.Equal(t, "r1", events[0].ResourceID)
	assert.Equal(t, EventStatusDenied, events[0].Status)
}

func TestRecorder_CapturesRequestID(t *testing.T) {
	rec := NewRecorder()
	ctx := contextkeys.WithRequestID(context.Background(), "req-42")

	require.NoError(t, rec.LogDataMutation(ctx, EventTypeDataRecordUpdate, "u1", ResourceTypeRecord, "r1",
		&ChangeDetails{Before: map[string]interface{}{"nome": "A"}, After: map[string]interface{}{"nome": "B"}}, "updated"))

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "req-42", events[0].RequestID)
	assert.Equal(t, "B", events[0].Changes.After["nome"])
}

func TestStructuredLogger_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf)

	require.NoError(t, logger.LogAuthentication(context.Background(), EventTypeAuthLoginFailed, "", "", EventStatusFailure, "invalid id token"))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "auth.login_failed", line["event_type"])
	assert.Equal(t, "failure", line["status"])
	assert.Equal(t, "invalid id token", line["message"])
	assert.Equal(t, "warning", line["level"])
	assert.Equal(t, true, line["audit"])
}
