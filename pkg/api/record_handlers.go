package api

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/casedesk/pkg/httputil"
	"github.com/platinummonkey/casedesk/pkg/records"
)

// HeaderStructureID names the structure an operator acts for
const HeaderStructureID = "X-Structure-Id"

// actingStructure reads the acting structure from the header or the
// structureId query parameter
func actingStructure(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(HeaderStructureID)); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("structureId"))
}

// createRecord handles POST /api/anagrafica
func (s *Server) createRecord(w http.ResponseWriter, r *http.Request) {
	identity, err := requestIdentity(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var input records.Input
	if err := httputil.ParseJSON(r, &input); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	rec, err := s.deps.Records.Create(r.Context(), identity, actingStructure(r), &input)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	httputil.WriteCreated(w, rec)
}

// getRecord handles GET /api/anagrafica/{id}
func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	identity, err := requestIdentity(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	rec, err := s.deps.Records.Get(r.Context(), identity, id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, rec)
}

// updateRecord handles PATCH /api/anagrafica/{id}
func (s *Server) updateRecord(w http.ResponseWriter, r *http.Request) {
	identity, err := requestIdentity(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var patch records.Patch
	if err := httputil.ParseJSON(r, &patch); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	rec, err := s.deps.Records.Update(r.Context(), identity, id, actingStructure(r), patch)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, rec)
}

// deleteRecord handles DELETE /api/anagrafica/{id}
func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	identity, err := requestIdentity(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := s.deps.Records.Delete(r.Context(), identity, id); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, map[string]bool{"success": true})
}

// listRecords handles GET /api/structures/{structureId}/anagrafica
func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	identity, err := requestIdentity(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	structureID, err := httputil.ParsePathString(r, "structureId")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	list, err := s.deps.Records.ListByStructure(r.Context(), identity, structureID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"anagrafica": list,
		"count":      len(list),
	})
}
