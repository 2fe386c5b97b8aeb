package api

import (
	"net/http"

	"github.com/platinummonkey/casedesk/pkg/apperr"
	"github.com/platinummonkey/casedesk/pkg/audit"
	"github.com/platinummonkey/casedesk/pkg/httputil"
	"github.com/platinummonkey/casedesk/pkg/observability"
	"github.com/platinummonkey/casedesk/pkg/operators"
	"github.com/platinummonkey/casedesk/pkg/structures"
)

// SetStructuresRequest is the body of PUT /api/admin/operators/{uid}/structures
type SetStructuresRequest struct {
	StructureIDs structures.Set `json:"structureIds"`
}

// SetDisabledRequest is the body of PUT /api/admin/operators/{uid}/disabled
type SetDisabledRequest struct {
	Disabled bool `json:"disabled"`
}

// requireAdmin resolves the caller and checks the admin flag. Denials are
// audited like any other authorization failure.
func (s *Server) requireAdmin(r *http.Request) (*operators.Operator, error) {
	identity, err := requestIdentity(r)
	if err != nil {
		return nil, err
	}
	ctx := r.Context()
	op, err := s.deps.Operators.Resolve(ctx, identity.SubjectID)
	if err != nil {
		return nil, err
	}
	if !op.Admin {
		audit.FromContext(ctx).LogAuthorization(ctx, audit.EventTypeAuthzAccessDenied, op.SubjectID,
			audit.ResourceTypeOperator, r.URL.Path, audit.EventStatusDenied, "admin flag required")
		s.deps.Metrics.ObserveDecision("admin", false)
		return nil, apperr.New(apperr.KindForbidden, "operator "+op.SubjectID+" is not an admin")
	}
	s.deps.Metrics.ObserveDecision("admin", true)
	return op, nil
}

// setOperatorStructures handles PUT /api/admin/operators/{uid}/structures
func (s *Server) setOperatorStructures(w http.ResponseWriter, r *http.Request) {
	admin, err := s.requireAdmin(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	uid, err := httputil.ParsePathString(r, "uid")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var req SetStructuresRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	ctx := r.Context()
	op, err := s.deps.Operators.SetStructures(ctx, uid, req.StructureIDs)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	audit.FromContext(ctx).LogDataMutation(ctx, audit.EventTypeAdminOperatorStructures, admin.SubjectID,
		audit.ResourceTypeOperator, uid,
		&audit.ChangeDetails{After: map[string]interface{}{"structureIds": op.StructureIDs.Slice()}},
		"operator structures replaced")

	httputil.WriteSuccess(w, op)
}

// setOperatorDisabled handles PUT /api/admin/operators/{uid}/disabled.
// Disabling also revokes every session of the operator.
func (s *Server) setOperatorDisabled(w http.ResponseWriter, r *http.Request) {
	admin, err := s.requireAdmin(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	uid, err := httputil.ParsePathString(r, "uid")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if uid == admin.SubjectID {
		httputil.WriteAppError(w, r, apperr.Validation("cannot disable yourself"))
		return
	}

	var req SetDisabledRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	ctx := r.Context()
	if err := s.deps.Operators.SetDisabled(ctx, uid, req.Disabled); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if req.Disabled {
		if err := s.deps.Sessions.RevokeSubject(ctx, uid); err != nil {
			// the operator already resolves as not found everywhere
			observability.FromContext(ctx).WithError(err).WithField("operator_id", uid).Warn("Session revocation after disable failed")
		}
	}

	audit.FromContext(ctx).LogDataMutation(ctx, audit.EventTypeAdminOperatorDisabled, admin.SubjectID,
		audit.ResourceTypeOperator, uid,
		&audit.ChangeDetails{After: map[string]interface{}{"disabled": req.Disabled}},
		"operator disabled flag changed")

	httputil.WriteSuccess(w, map[string]interface{}{"uid": uid, "disabled": req.Disabled})
}

// revokeOperatorSessions handles POST /api/admin/operators/{uid}/revoke
func (s *Server) revokeOperatorSessions(w http.ResponseWriter, r *http.Request) {
	admin, err := s.requireAdmin(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	uid, err := httputil.ParsePathString(r, "uid")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	ctx := r.Context()
	if err := s.deps.Sessions.RevokeSubject(ctx, uid); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	audit.FromContext(ctx).LogAuthentication(ctx, audit.EventTypeAuthSessionRevoke, uid, "", audit.EventStatusSuccess,
		"all sessions revoked by "+admin.SubjectID)

	httputil.WriteSuccess(w, map[string]string{"status": "revoked"})
}
