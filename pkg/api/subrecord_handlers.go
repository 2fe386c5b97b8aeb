package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/casedesk/pkg/apperr"
	"github.com/platinummonkey/casedesk/pkg/auth"
	"github.com/platinummonkey/casedesk/pkg/httputil"
	"github.com/platinummonkey/casedesk/pkg/observability"
	"github.com/platinummonkey/casedesk/pkg/records"
)

// multipartMemory is how much of a multipart form is kept in memory before
// spilling to temporary files
const multipartMemory = 8 << 20

// parseSubRecordRequest decodes a sub-record payload into dest, from either
// a JSON body or a multipart form with a "data" field and "files" parts
func parseSubRecordRequest(w http.ResponseWriter, r *http.Request, dest interface{}) ([]records.Upload, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return nil, httputil.ParseJSON(r, dest)
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, apperr.Validation(fmt.Sprintf("invalid multipart form: %v", err))
	}

	data := r.FormValue("data")
	if data == "" {
		return nil, apperr.Validation("missing data field")
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return nil, apperr.Validation(fmt.Sprintf("invalid JSON in data field: %v", err))
	}

	headers := r.MultipartForm.File["files"]
	uploads := make([]records.Upload, 0, len(headers))
	for _, fh := range headers {
		uploads = append(uploads, upload(fh))
	}
	return uploads, nil
}

func upload(fh *multipart.FileHeader) records.Upload {
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return records.Upload{
		Name:        fh.Filename,
		ContentType: contentType,
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// createSubRecord handles POST /api/anagrafica/{id}/{accessi|eventi}
func (s *Server) createSubRecord(w http.ResponseWriter, r *http.Request) {
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
	kind, ok := records.KindByFolder(mux.Vars(r)["kind"])
	if !ok {
		httputil.WriteAppError(w, r, apperr.ErrNotFound)
		return
	}
	created, err := s.createOfKind(w, r, identity, id, kind)
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	httputil.WriteCreated(w, created)
}

func (s *Server) createOfKind(w http.ResponseWriter, r *http.Request, identity *auth.Identity, id string, kind records.Kind) (interface{}, error) {
	if kind == records.KindAccess {
		var input records.AccessInput
		uploads, err := parseSubRecordRequest(w, r, &input)
		if err != nil {
			return nil, err
		}
		if input.StructureID == "" {
			input.StructureID = actingStructure(r)
		}
		return s.deps.Records.CreateAccess(r.Context(), identity, id, &input, uploads)
	}

	var input records.EventInput
	uploads, err := parseSubRecordRequest(w, r, &input)
	if err != nil {
		return nil, err
	}
	if input.StructureID == "" {
		input.StructureID = actingStructure(r)
	}
	return s.deps.Records.CreateEvent(r.Context(), identity, id, &input, uploads)
}

// listSubRecords handles GET /api/anagrafica/{id}/{accessi|eventi}
func (s *Server) listSubRecords(w http.ResponseWriter, r *http.Request) {
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
	kind, ok := records.KindByFolder(mux.Vars(r)["kind"])
	if !ok {
		httputil.WriteAppError(w, r, apperr.ErrNotFound)
		return
	}

	var list interface{}
	count := 0
	if kind == records.KindAccess {
		accesses, lerr := s.deps.Records.ListAccesses(r.Context(), identity, id)
		list, count, err = accesses, len(accesses), lerr
	} else {
		events, lerr := s.deps.Records.ListEvents(r.Context(), identity, id)
		list, count, err = events, len(events), lerr
	}
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		kind.Folder(): list,
		"count":       count,
	})
}

// downloadAttachment handles
// GET /api/anagrafica/{id}/{accessi|eventi}/{subId}/files/{name}
func (s *Server) downloadAttachment(w http.ResponseWriter, r *http.Request) {
	identity, err := requestIdentity(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	kind, ok := records.KindByFolder(vars["kind"])
	if !ok {
		httputil.WriteAppError(w, r, apperr.ErrNotFound)
		return
	}

	content, file, err := s.deps.Records.OpenAttachment(r.Context(), identity, vars["id"], kind, vars["subId"], vars["name"])
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if file.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, content); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("Attachment download interrupted")
	}
}
