package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/casedesk/pkg/audit"
	"github.com/platinummonkey/casedesk/pkg/httputil"
	"github.com/platinummonkey/casedesk/pkg/middleware"
	"github.com/platinummonkey/casedesk/pkg/observability"
	"github.com/platinummonkey/casedesk/pkg/operators"
	"github.com/platinummonkey/casedesk/pkg/records"
	"github.com/platinummonkey/casedesk/pkg/session"
	"github.com/platinummonkey/casedesk/pkg/structures"
)

// maxUploadBody bounds multipart sub-record requests
const maxUploadBody = 64 << 20

// OperatorDirectory is the part of the operator directory the API uses
type OperatorDirectory interface {
	Resolve(ctx context.Context, subjectID string) (*operators.Operator, error)
	SetStructures(ctx context.Context, subjectID string, set structures.Set) (*operators.Operator, error)
	UpdateProfile(ctx context.Context, subjectID, displayName string) (*operators.Operator, error)
	SetDisabled(ctx context.Context, subjectID string, disabled bool) error
}

// Dependencies are the collaborators of the API server
type Dependencies struct {
	Sessions   *session.Manager
	Cookies    session.CookiePolicy
	Propagator *middleware.IdentityPropagator
	Records    *records.Service
	Operators  OperatorDirectory

	// LoginLimiter throttles session logins per client; nil disables it
	LoginLimiter *middleware.LoginRateLimiter

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Audit   audit.Logger
}

// Server represents the API server
type Server struct {
	deps   Dependencies
	router *mux.Router
}

// NewServer creates the API server and registers its routes
func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.GetLogger(context.Background())
	}
	if deps.Audit == nil {
		deps.Audit = audit.NoOpLogger{}
	}
	s := &Server{
		deps:   deps,
		router: mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// Router exposes the router so other handler groups (OIDC, health) can
// register on it
func (s *Server) Router() *mux.Router {
	return s.router
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	if s.deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.deps.Metrics))
	}

	api := s.router.PathPrefix("/api").Subrouter()

	// Session routes
	login := http.Handler(http.HandlerFunc(s.sessionLogin))
	if s.deps.LoginLimiter != nil {
		login = s.deps.LoginLimiter.Handler(login)
	}
	api.Handle("/auth/sessionLogin", login).Methods(http.MethodPost)
	api.HandleFunc("/auth/sessionLogout", s.sessionLogout).Methods(http.MethodPost)
	api.HandleFunc("/auth/verify", s.verify).Methods(http.MethodGet)
	api.HandleFunc("/auth/me", s.me).Methods(http.MethodGet)
	api.HandleFunc("/auth/me", s.updateMe).Methods(http.MethodPatch)

	// Record routes
	api.HandleFunc("/anagrafica", s.createRecord).Methods(http.MethodPost)
	api.HandleFunc("/anagrafica/{id}", s.getRecord).Methods(http.MethodGet)
	api.HandleFunc("/anagrafica/{id}", s.updateRecord).Methods(http.MethodPatch)
	api.HandleFunc("/anagrafica/{id}", s.deleteRecord).Methods(http.MethodDelete)
	api.HandleFunc("/structures/{structureId}/anagrafica", s.listRecords).Methods(http.MethodGet)

	// Sub-record routes
	api.HandleFunc("/anagrafica/{id}/{kind:accessi|eventi}", s.createSubRecord).Methods(http.MethodPost)
	api.HandleFunc("/anagrafica/{id}/{kind:accessi|eventi}", s.listSubRecords).Methods(http.MethodGet)
	api.HandleFunc("/anagrafica/{id}/{kind:accessi|eventi}/{subId}/files/{name}", s.downloadAttachment).Methods(http.MethodGet)

	// Admin routes
	api.HandleFunc("/admin/operators/{uid}/structures", s.setOperatorStructures).Methods(http.MethodPut)
	api.HandleFunc("/admin/operators/{uid}/disabled", s.setOperatorDisabled).Methods(http.MethodPut)
	api.HandleFunc("/admin/operators/{uid}/revoke", s.revokeOperatorSessions).Methods(http.MethodPost)
}

// Handler returns the router wrapped in the request pipeline. The
// propagator runs after request ids, logging and audit are in the context
// and before any route.
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.deps.Logger),
		httputil.RecoveryMiddleware,
	}
	middlewares = append(middlewares, audit.Middleware(s.deps.Audit))
	if s.deps.Propagator != nil {
		middlewares = append(middlewares, s.deps.Propagator.Handler)
	}
	return httputil.Chain(middlewares...)(s.router)
}
