package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/platinummonkey/casedesk/pkg/apperr"
	"github.com/platinummonkey/casedesk/pkg/auth"
	"github.com/platinummonkey/casedesk/pkg/contextkeys"
	"github.com/platinummonkey/casedesk/pkg/httputil"
	"github.com/platinummonkey/casedesk/pkg/observability"
	"github.com/platinummonkey/casedesk/pkg/session"
)

// DefaultPublicPaths bypass session checks. Entries ending in "/" match a
// whole subtree; the others match the exact path or its subpaths.
var DefaultPublicPaths = []string{
	"/login",
	"/api/auth/sessionLogin",
	"/api/auth/sessionLogout",
	"/auth/oidc/",
	"/static/",
	"/_next/",
	"/favicon.ico",
	"/healthz",
	"/readyz",
	"/metrics",
}

// DefaultLoginPath is where browser navigations are redirected
const DefaultLoginPath = "/login"

// SessionVerifier checks a raw session credential
type SessionVerifier interface {
	Verify(ctx context.Context, raw string) (*auth.Identity, error)
}

// PropagatorOption configures an IdentityPropagator
type PropagatorOption func(*IdentityPropagator)

// WithPublicPaths replaces the public allowlist
func WithPublicPaths(paths ...string) PropagatorOption {
	return func(p *IdentityPropagator) { p.publicPaths = paths }
}

// WithLoginPath sets the login page browsers are redirected to
func WithLoginPath(path string) PropagatorOption {
	return func(p *IdentityPropagator) { p.loginPath = path }
}

// IdentityPropagator authenticates requests before any handler runs
type IdentityPropagator struct {
	verifier    SessionVerifier
	cookies     session.CookiePolicy
	publicPaths []string
	loginPath   string
}

// NewIdentityPropagator creates the propagator
func NewIdentityPropagator(verifier SessionVerifier, cookies session.CookiePolicy, opts ...PropagatorOption) *IdentityPropagator {
	p := &IdentityPropagator{
		verifier:    verifier,
		cookies:     cookies,
		publicPaths: DefaultPublicPaths,
		loginPath:   DefaultLoginPath,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsPublic reports whether path bypasses session checks
func (p *IdentityPropagator) IsPublic(path string) bool {
	for _, public := range p.publicPaths {
		if strings.HasSuffix(public, "/") {
			if strings.HasPrefix(path, public) {
				return true
			}
			continue
		}
		if path == public || strings.HasPrefix(path, public+"/") {
			return true
		}
	}
	return false
}

func isAPI(path string) bool {
	return strings.HasPrefix(path, "/api/")
}

// Handler wraps next with identity propagation
func (p *IdentityPropagator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		r = r.Clone(ctx)

		// identity headers are only ever set by this middleware
		r.Header.Del(contextkeys.HeaderUserUID)
		r.Header.Del(contextkeys.HeaderUserEmail)

		if p.IsPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		raw := p.cookies.Read(r)
		if raw == "" {
			p.reject(w, r, apperr.ErrUnauthenticated)
			return
		}

		identity, err := p.verifier.Verify(ctx, raw)
		if err != nil {
			p.cookies.Clear(w)
			p.reject(w, r, err)
			return
		}

		r.Header.Set(contextkeys.HeaderUserUID, identity.SubjectID)
		if identity.Email != "" {
			r.Header.Set(contextkeys.HeaderUserEmail, identity.Email)
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(ctx, identity)))
	})
}

// reject answers API calls with 401 JSON and sends browsers to the login
// page, remembering where they were going
func (p *IdentityPropagator) reject(w http.ResponseWriter, r *http.Request, err error) {
	observability.FromContext(r.Context()).
		WithFields(map[string]interface{}{"path": r.URL.Path, "reason": apperr.KindOf(err).String()}).
		Debug("Request rejected by identity propagator")

	if isAPI(r.URL.Path) {
		if apperr.KindOf(err) != apperr.KindUnauthenticated {
			err = apperr.ErrInvalidSession
		}
		httputil.WriteAppError(w, r, err)
		return
	}

	target := p.loginPath + "?from=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusFound)
}
