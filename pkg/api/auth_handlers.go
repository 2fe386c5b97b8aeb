package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/casedesk/pkg/apperr"
	"github.com/platinummonkey/casedesk/pkg/audit"
	"github.com/platinummonkey/casedesk/pkg/auth"
	"github.com/platinummonkey/casedesk/pkg/httputil"
	"github.com/platinummonkey/casedesk/pkg/structures"
)

// SessionLoginRequest is the body of POST /api/auth/sessionLogin
type SessionLoginRequest struct {
	IDToken string `json:"idToken"`
}

// UserResponse describes the signed-in operator
type UserResponse struct {
	UID           string         `json:"uid"`
	Email         string         `json:"email,omitempty"`
	EmailVerified bool           `json:"emailVerified"`
	DisplayName   string         `json:"displayName,omitempty"`
	StructureIDs  structures.Set `json:"structureIds"`
	Admin         bool           `json:"admin,omitempty"`
}

// UpdateProfileRequest is the body of PATCH /api/auth/me
type UpdateProfileRequest struct {
	DisplayName string `json:"displayName"`
}

func requestIdentity(r *http.Request) (*auth.Identity, error) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil, apperr.ErrUnauthenticated
	}
	return identity, nil
}

// sessionLogin handles POST /api/auth/sessionLogin
func (s *Server) sessionLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SessionLoginRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	cred, err := s.deps.Sessions.CreateSession(ctx, req.IDToken)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindValidation {
			audit.FromContext(ctx).LogAuthentication(ctx, audit.EventTypeAuthLoginFailed, "", "", audit.EventStatusFailure, "id token rejected")
		}
		httputil.WriteAppError(w, r, err)
		return
	}

	s.deps.Cookies.Set(w, cred.Token, cred.MaxAge)
	audit.FromContext(ctx).LogAuthentication(ctx, audit.EventTypeAuthLogin, cred.Identity.SubjectID, cred.Identity.Email, audit.EventStatusSuccess, "session login")

	httputil.WriteSuccess(w, map[string]string{"status": "success"})
}

// sessionLogout handles POST /api/auth/sessionLogout. It always succeeds
// and always clears the cookie.
func (s *Server) sessionLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if raw := s.deps.Cookies.Read(r); raw != "" {
		if subjectID := s.deps.Sessions.DestroySession(ctx, raw); subjectID != "" {
			audit.FromContext(ctx).LogAuthentication(ctx, audit.EventTypeAuthLogout, subjectID, "", audit.EventStatusSuccess, "session logout")
		}
	}

	s.deps.Cookies.Clear(w)
	httputil.WriteSuccess(w, map[string]string{"status": "logged_out"})
}

// verify handles GET /api/auth/verify
func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	identity, err := requestIdentity(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"user": map[string]interface{}{
			"uid":            identity.SubjectID,
			"email":          identity.Email,
			"email_verified": identity.EmailVerified,
		},
	})
}

// me handles GET /api/auth/me
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	identity, err := requestIdentity(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	user := UserResponse{
		UID:           identity.SubjectID,
		Email:         identity.Email,
		EmailVerified: identity.EmailVerified,
		StructureIDs:  structures.New(),
	}

	op, err := s.deps.Operators.Resolve(r.Context(), identity.SubjectID)
	switch {
	case err == nil:
		user.DisplayName = op.DisplayName
		user.StructureIDs = op.StructureIDs
		user.Admin = op.Admin
	case errors.Is(err, apperr.ErrNotFound):
		// not provisioned yet: a valid session with no structures
	default:
		httputil.WriteAppError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"user": user})
}

// updateMe handles PATCH /api/auth/me
func (s *Server) updateMe(w http.ResponseWriter, r *http.Request) {
	identity, err := requestIdentity(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var req UpdateProfileRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	op, err := s.deps.Operators.UpdateProfile(r.Context(), identity.SubjectID, strings.TrimSpace(req.DisplayName))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"user": UserResponse{
		UID:           identity.SubjectID,
		Email:         identity.Email,
		EmailVerified: identity.EmailVerified,
		DisplayName:   op.DisplayName,
		StructureIDs:  op.StructureIDs,
		Admin:         op.Admin,
	}})
}
