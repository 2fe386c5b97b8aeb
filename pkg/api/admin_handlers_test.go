package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/casedesk/pkg/audit"
)

func TestAdmin_RequiresAdminFlag(t *testing.T) {
	f := newFixture(t)
	f.operator(t, "op-1", false, "verona")
	cookie := f.login(t, "op-1")

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPut, "/api/admin/operators/op-1/structures"},
		{http.MethodPut, "/api/admin/operators/op-2/disabled"},
		{http.MethodPost, "/api/admin/operators/op-2/revoke"},
	}
	for _, p := range paths {
		rec := f.do(t, p.method, p.path, jsonBody(t, map[string]interface{}{"structureIds": []string{"roma"}}), cookie, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, p.path)
	}
	assert.Len(t, f.audit.OfType(audit.EventTypeAuthzAccessDenied), len(paths))
}

func TestAdmin_SetStructures(t *testing.T) {
	f := newFixture(t)
	f.operator(t, "admin", true)
	f.operator(t, "op-1", false, "verona")
	admin := f.login(t, "admin")
	operator := f.login(t, "op-1")

	rec := f.do(t, http.MethodPut, "/api/admin/operators/op-1/structures", jsonBody(t, SetStructuresRequest{}), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// membership is read fresh on every request
	me := f.do(t, http.MethodGet, "/api/auth/me", nil, operator, nil)
	require.Equal(t, http.StatusOK, me.Code)
	user := decodeBody(t, me)["user"].(map[string]interface{})
	assert.Equal(t, []interface{}{}, user["structureIds"])

	rec = f.do(t, http.MethodPut, "/api/admin/operators/ghost/structures", jsonBody(t, SetStructuresRequest{}), admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, f.audit.OfType(audit.EventTypeAdminOperatorStructures), 1)
}

func TestAdmin_RevokeSessions(t *testing.T) {
	f := newFixture(t)
	f.operator(t, "admin", true)
	f.operator(t, "op-1", false, "verona")
	admin := f.login(t, "admin")
	laptop := f.login(t, "op-1")
	phone := f.login(t, "op-1")

	rec := f.do(t, http.MethodPost, "/api/admin/operators/op-1/revoke", nil, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "revoked", decodeBody(t, rec)["status"])

	for _, cookie := range []*http.Cookie{laptop, phone} {
		rec := f.do(t, http.MethodGet, "/api/auth/verify", nil, cookie, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	// the admin's own session is untouched
	rec = f.do(t, http.MethodGet, "/api/auth/verify", nil, admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.audit.OfType(audit.EventTypeAuthSessionRevoke), 1)
}

func TestAdmin_DisableOperator(t *testing.T) {
	f := newFixture(t)
	f.operator(t, "admin", true, "verona")
	f.operator(t, "op-1", false, "verona")
	admin := f.login(t, "admin")
	operator := f.login(t, "op-1")
	id := f.createRecord(t, operator, "verona")

	rec := f.do(t, http.MethodPut, "/api/admin/operators/admin/disabled", jsonBody(t, SetDisabledRequest{Disabled: true}), admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/admin/operators/op-1/disabled", jsonBody(t, SetDisabledRequest{Disabled: true}), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/anagrafica/"+id, nil, operator, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Len(t, f.audit.OfType(audit.EventTypeAdminOperatorDisabled), 1)
}
