package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/casedesk/pkg/apperr"
	"github.com/platinummonkey/casedesk/pkg/auth"
	"github.com/platinummonkey/casedesk/pkg/observability"
)

// LoginClaims is what a verified login credential says about its subject
type LoginClaims struct {
	SubjectID     string
	Email         string
	EmailVerified bool
}

// LoginVerifier checks a login credential against the identity issuer
type LoginVerifier interface {
	VerifyLoginCredential(ctx context.Context, raw string) (*LoginClaims, error)
}

// Provisioner creates the operator profile of a freshly logged-in subject
type Provisioner interface {
	Provision(ctx context.Context, identity *auth.Identity) error
}

// Credential is a freshly minted session credential
type Credential struct {
	Token    string
	Identity *auth.Identity
	MaxAge   time.Duration
}

// Options configures a Manager
type Options struct {
	// Lifetime of issued credentials, clamped to auth.MaxSessionLifetime
	Lifetime time.Duration
	// RevokeAllOnLogout revokes every session of the subject on logout
	// instead of only the presented one
	RevokeAllOnLogout bool
	Provisioner       Provisioner
	Metrics           *observability.Metrics
	Now               func() time.Time
}

// Manager owns the lifecycle of session credentials
type Manager struct {
	login       LoginVerifier
	signer      *auth.TokenSigner
	revocations auth.RevocationStore
	lifetime    time.Duration
	revokeAll   bool
	provisioner Provisioner
	metrics     *observability.Metrics
	now         func() time.Time
}

// NewManager creates a session manager
func NewManager(login LoginVerifier, signer *auth.TokenSigner, revocations auth.RevocationStore, opts Options) *Manager {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		login:       login,
		signer:      signer,
		revocations: revocations,
		lifetime:    auth.ClampLifetime(opts.Lifetime),
		revokeAll:   opts.RevokeAllOnLogout,
		provisioner: opts.Provisioner,
		metrics:     opts.Metrics,
		now:         now,
	}
}

// Lifetime returns the lifetime of issued credentials
func (m *Manager) Lifetime() time.Duration {
	return m.lifetime
}

// CreateSession exchanges a login credential for a session credential.
// A missing credential is a validation error; one that fails verification
// is apperr.ErrInvalidCredential.
func (m *Manager) CreateSession(ctx context.Context, loginCredential string) (*Credential, error) {
	loginCredential = strings.TrimSpace(loginCredential)
	if loginCredential == "" {
		return nil, apperr.Validation("missing idToken")
	}

	logger := observability.FromContext(ctx)

	claims, err := m.login.VerifyLoginCredential(ctx, loginCredential)
	if err != nil {
		m.metrics.ObserveSessionIssued(false)
		logger.WithError(err).Info("Login credential rejected")
		return nil, apperr.Wrap(apperr.KindInvalidCredential, err)
	}

	token, identity, err := m.signer.Sign(auth.Identity{
		SubjectID:     claims.SubjectID,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
	}, m.lifetime)
	if err != nil {
		m.metrics.ObserveSessionIssued(false)
		return nil, fmt.Errorf("failed to sign session: %w", err)
	}

	if m.provisioner != nil {
		if err := m.provisioner.Provision(ctx, identity); err != nil {
			// The operator simply has no structures until provisioning
			// succeeds on a later login.
			logger.WithError(err).WithField("subject_id", identity.SubjectID).Warn("Operator provisioning failed")
		}
	}

	m.metrics.ObserveSessionIssued(true)
	logger.WithField("subject_id", identity.SubjectID).Info("Session created")

	return &Credential{Token: token, Identity: identity, MaxAge: m.lifetime}, nil
}

// DestroySession revokes raw server-side and returns its subject, or "" when
// raw does not carry a valid signature. Revocation is best effort: the
// caller must discard the local copy whatever happens, so failures are only
// logged.
func (m *Manager) DestroySession(ctx context.Context, raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	logger := observability.FromContext(ctx)

	identity, err := m.signer.ParseIgnoringExpiry(raw)
	if err != nil {
		logger.WithField("reason", auth.ReasonOf(err)).Debug("Logout with unusable credential")
		return ""
	}

	if m.revokeAll {
		err = m.RevokeSubject(ctx, identity.SubjectID)
	} else {
		err = m.revokeSession(ctx, identity)
	}
	if err != nil {
		logger.WithError(err).WithField("subject_id", identity.SubjectID).Warn("Session revocation failed, clearing cookie anyway")
		return identity.SubjectID
	}
	logger.WithField("subject_id", identity.SubjectID).Info("Session destroyed")
	return identity.SubjectID
}

func (m *Manager) revokeSession(ctx context.Context, identity *auth.Identity) error {
	if !identity.ExpiresAt.After(m.now()) {
		return nil
	}
	err := m.revocations.RevokeSession(ctx, identity.SessionID, identity.ExpiresAt)
	m.metrics.ObserveRevocation("session", err == nil)
	return err
}

// RevokeSubject invalidates every credential issued to subjectID so far
func (m *Manager) RevokeSubject(ctx context.Context, subjectID string) error {
	if strings.TrimSpace(subjectID) == "" {
		return apperr.Validation("subject is required")
	}
	err := m.revocations.RevokeSubject(ctx, subjectID, m.now())
	m.metrics.ObserveRevocation("subject", err == nil)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamUnavailable, err)
	}
	return nil
}
