package sso

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/casedesk/pkg/apperr"
	"github.com/platinummonkey/casedesk/pkg/audit"
	"github.com/platinummonkey/casedesk/pkg/httputil"
	"github.com/platinummonkey/casedesk/pkg/observability"
	"github.com/platinummonkey/casedesk/pkg/session"
)

const (
	stateCookieName = "oidc_state"
	fromCookieName  = "oidc_from"
	flowCookiePath  = "/auth/oidc/"
	flowCookieTTL   = 600 // seconds
)

// Handlers serves the browser authorization-code login
type Handlers struct {
	provider *OIDCProvider
	sessions *session.Manager
	cookies  session.CookiePolicy
}

// NewHandlers creates the code-flow handlers
func NewHandlers(provider *OIDCProvider, sessions *session.Manager, cookies session.CookiePolicy) *Handlers {
	return &Handlers{provider: provider, sessions: sessions, cookies: cookies}
}

// RegisterRoutes registers the OIDC login routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/oidc/login", h.initiateLogin).Methods(http.MethodGet)
	router.HandleFunc("/auth/oidc/callback", h.handleCallback).Methods(http.MethodGet)
}

func (h *Handlers) flowCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     flowCookiePath,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}
}

// initiateLogin handles GET /auth/oidc/login
func (h *Handlers) initiateLogin(w http.ResponseWriter, r *http.Request) {
	state, err := newState()
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	http.SetCookie(w, h.flowCookie(stateCookieName, state, flowCookieTTL))
	if from := r.URL.Query().Get("from"); httputil.IsSafeRedirect(from) {
		http.SetCookie(w, h.flowCookie(fromCookieName, base64.RawURLEncoding.EncodeToString([]byte(from)), flowCookieTTL))
	}

	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// handleCallback handles GET /auth/oidc/callback
func (h *Handlers) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		httputil.WriteAppError(w, r, apperr.Validation("missing state cookie"))
		return
	}
	if subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(r.URL.Query().Get("state"))) != 1 {
		httputil.WriteAppError(w, r, apperr.Validation("invalid state parameter"))
		return
	}
	http.SetCookie(w, h.flowCookie(stateCookieName, "", -1))

	if issuerErr := r.URL.Query().Get("error"); issuerErr != "" {
		logger.WithField("oidc_error", issuerErr).Info("Issuer refused the login")
		audit.FromContext(ctx).LogAuthentication(ctx, audit.EventTypeAuthLoginFailed, "", "", audit.EventStatusFailure, "issuer error: "+issuerErr)
		httputil.WriteAppError(w, r, apperr.ErrInvalidCredential)
		return
	}

	rawIDToken, err := h.provider.Exchange(ctx, r.URL.Query().Get("code"))
	if err != nil {
		audit.FromContext(ctx).LogAuthentication(ctx, audit.EventTypeAuthLoginFailed, "", "", audit.EventStatusFailure, "code exchange failed")
		httputil.WriteAppError(w, r, apperr.Wrap(apperr.KindInvalidCredential, err))
		return
	}

	cred, err := h.sessions.CreateSession(ctx, rawIDToken)
	if err != nil {
		audit.FromContext(ctx).LogAuthentication(ctx, audit.EventTypeAuthLoginFailed, "", "", audit.EventStatusFailure, "id token rejected")
		httputil.WriteAppError(w, r, err)
		return
	}

	h.cookies.Set(w, cred.Token, cred.MaxAge)
	audit.FromContext(ctx).LogAuthentication(ctx, audit.EventTypeAuthLogin, cred.Identity.SubjectID, cred.Identity.Email, audit.EventStatusSuccess, "oidc code flow")

	target := "/"
	if c, err := r.Cookie(fromCookieName); err == nil {
		http.SetCookie(w, h.flowCookie(fromCookieName, "", -1))
		if decoded, err := base64.RawURLEncoding.DecodeString(c.Value); err == nil && httputil.IsSafeRedirect(string(decoded)) {
			target = string(decoded)
		}
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
