package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/casedesk/pkg/audit"
)

func TestGetRecord_StructureScopedAccess(t *testing.T) {
	f := newFixture(t)
	f.operator(t, "registrar", false, "verona", "milano")
	f.operator(t, "op-milano", false, "milano")
	f.operator(t, "op-roma", false, "roma")
	id := f.createRecord(t, f.login(t, "registrar"), "verona", "verona", "milano")

	tests := []struct {
		name       string
		operator   string
		path       string
		wantStatus int
		wantError  string
	}{
		{"shared structure", "op-milano", "/api/anagrafica/" + id, http.StatusOK, ""},
		{"disjoint structures", "op-roma", "/api/anagrafica/" + id, http.StatusForbidden, "forbidden"},
		{"missing record", "op-roma", "/api/anagrafica/missing", http.StatusNotFound, "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.path, nil, f.login(t, tt.operator), nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError != "" {
				assert.Equal(t, map[string]interface{}{"error": tt.wantError}, decodeBody(t, rec))
			}
		})
	}
}

func TestCreateRecord(t *testing.T) {
	f := newFixture(t)
	f.operator(t, "op-1", false, "verona", "milano")
	cookie := f.login(t, "op-1")

	id := f.createRecord(t, cookie, "verona", "milano")

	rec := f.do(t, http.MethodGet, "/api/anagrafica/"+id, nil, cookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, []interface{}{"milano", "verona"}, body["canBeAccessedBy"])
	assert.Equal(t, "verona", body["registeredBy"])
	assert.Equal(t, "op-1", body["createdBy"])
}

func TestCreateRecord_Rejections(t *testing.T) {
	f := newFixture(t)
	f.operator(t, "op-1", false, "verona")
	f.operator(t, "op-none", false)

	valid := map[string]interface{}{
		"cognome":      "Rossi",
		"nome":         "Mario",
		"sesso":        "Maschio",
		"cittadinanza": []string{"Italia"},
		"nucleo":       "singolo",
		"figli":        0,
	}
	foreign := map[string]interface{}{}
	for k, v := range valid {
		foreign[k] = v
	}
	foreign["canBeAccessedBy"] = []string{"roma"}

	tests := []struct {
		name       string
		operator   string
		acting     string
		body       map[string]interface{}
		wantStatus int
	}{
		{"foreign structure granted", "op-1", "verona", foreign, http.StatusForbidden},
		{"acting for foreign structure", "op-1", "roma", valid, http.StatusForbidden},
		{"operator without structures", "op-none", "verona", valid, http.StatusForbidden},
		{"invalid payload", "op-1", "verona", map[string]interface{}{"nome": "Mario"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/anagrafica", jsonBody(t, tt.body), f.login(t, tt.operator), map[string]string{HeaderStructureID: tt.acting})
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestUpdateRecord(t *testing.T) {
	f := newFixture(t)
	f.operator(t, "op-1", false, "verona", "milano")
	f.operator(t, "op-roma", false, "roma")
	cookie := f.login(t, "op-1")
	id := f.createRecord(t, cookie, "verona")

	rec := f.do(t, http.MethodPatch, "/api/anagrafica/"+id, jsonBody(t, map[string]interface{}{
		"telefono":        "+39 045 000000",
		"canBeAccessedBy": []string{"verona", "milano"},
	}), cookie, map[string]string{HeaderStructureID: "verona"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "+39 045 000000", body["telefono"])
	assert.Equal(t, []interface{}{"milano", "verona"}, body["canBeAccessedBy"])
	assert.Equal(t, "op-1", body["updatedBy"])
	assert.Equal(t, "verona", body["updatedByStructure"])

	// granting a structure the operator does not belong to
	rec = f.do(t, http.MethodPatch, "/api/anagrafica/"+id, jsonBody(t, map[string]interface{}{
		"canBeAccessedBy": []string{"verona", "roma"},
	}), cookie, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// an outsider cannot patch, whatever the body says
	rec = f.do(t, http.MethodPatch, "/api/anagrafica/"+id, jsonBody(t, map[string]interface{}{
		"canBeAccessedBy": []string{"roma"},
	}), f.login(t, "op-roma"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteRecord(t *testing.T) {
	f := newFixture(t)
	f.operator(t, "op-1", false, "verona")
	f.operator(t, "op-roma", false, "roma")
	cookie := f.login(t, "op-1")
	id := f.createRecord(t, cookie, "verona")

	rec := f.do(t, http.MethodDelete, "/api/anagrafica/"+id, nil, f.login(t, "op-roma"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/anagrafica/"+id, nil, cookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["success"])

	rec = f.do(t, http.MethodGet, "/api/anagrafica/"+id, nil, cookie, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, f.audit.OfType(audit.EventTypeDataRecordDelete), 1)
}

func TestListRecords(t *testing.T) {
	f := newFixture(t)
	f.operator(t, "op-1", false, "verona", "milano")
	f.operator(t, "op-roma", false, "roma")
	cookie := f.login(t, "op-1")
	f.createRecord(t, cookie, "verona")
	f.createRecord(t, cookie, "verona", "milano")
	f.createRecord(t, cookie, "milano")

	rec := f.do(t, http.MethodGet, "/api/structures/verona/anagrafica", nil, cookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["count"])

	rec = f.do(t, http.MethodGet, "/api/structures/verona/anagrafica", nil, f.login(t, "op-roma"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
