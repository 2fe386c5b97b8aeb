package auth

import (
	"context"
	"time"

	"github.com/platinummonkey/casedesk/pkg/contextkeys"
)

// Identity is the verified subject of a request
type Identity struct {
	SubjectID     string    `json:"uid"`
	Email         string    `json:"email,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	// SessionID is the credential's unique id, used for per-session revocation
	SessionID string `json:"-"`
}

// WithIdentity stores a verified identity in ctx
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	ctx = contextkeys.WithIdentity(ctx, identity)
	return contextkeys.WithSubjectID(ctx, identity.SubjectID)
}

// IdentityFromContext returns the identity set by the request propagator
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(contextkeys.IdentityKey).(*Identity)
	if !ok || identity == nil || identity.SubjectID == "" {
		return nil, false
	}
	return identity, true
}
