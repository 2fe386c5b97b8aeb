package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/casedesk/pkg/apperr"
	"github.com/platinummonkey/casedesk/pkg/observability"
)

// DefaultRevocationTimeout bounds each revocation-store lookup
const DefaultRevocationTimeout = 2 * time.Second

// Verifier turns a raw session credential into a verified Identity
type Verifier struct {
	signer      *TokenSigner
	revocations RevocationStore
	timeout     time.Duration
	metrics     *observability.Metrics
}

// VerifierOption configures a Verifier
type VerifierOption func(*Verifier)

// WithRevocationTimeout sets the revocation lookup timeout
func WithRevocationTimeout(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithMetrics records verification outcomes
func WithMetrics(m *observability.Metrics) VerifierOption {
	return func(v *Verifier) { v.metrics = m }
}

// NewVerifier creates a verifier backed by signer and the revocation store
func NewVerifier(signer *TokenSigner, revocations RevocationStore, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		signer:      signer,
		revocations: revocations,
		timeout:     DefaultRevocationTimeout,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify validates raw and returns its identity. An empty credential fails
// with apperr.ErrUnauthenticated without any check. Every other failure,
// including an unreachable or slow revocation store, fails with
// apperr.ErrInvalidSession.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	if raw == "" {
		return nil, apperr.ErrUnauthenticated
	}

	identity, err := v.signer.Parse(raw)
	if err != nil {
		return nil, v.reject(ctx, ReasonOf(err), err)
	}

	reason, err := v.checkRevocation(ctx, identity)
	if reason != "" {
		return nil, v.reject(ctx, reason, err)
	}

	v.metrics.ObserveVerification(true, ReasonOK)
	return identity, nil
}

func (v *Verifier) checkRevocation(ctx context.Context, identity *Identity) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	revoked, err := v.revocations.IsSessionRevoked(ctx, identity.SessionID)
	if err != nil {
		return ReasonUnavailable, fmt.Errorf("session revocation lookup: %w", err)
	}
	if revoked {
		return ReasonRevoked, nil
	}

	cutoff, err := v.revocations.SubjectRevokedAt(ctx, identity.SubjectID)
	if err != nil {
		return ReasonUnavailable, fmt.Errorf("subject revocation lookup: %w", err)
	}
	// iat has second precision, so anything issued within the revocation
	// second is rejected too.
	if !cutoff.IsZero() && !identity.IssuedAt.After(cutoff.Truncate(time.Second)) {
		return ReasonSubjectCut, nil
	}

	return "", nil
}

func (v *Verifier) reject(ctx context.Context, reason string, cause error) error {
	v.metrics.ObserveVerification(false, reason)

	entry := observability.FromContext(ctx).WithField("reason", reason)
	if cause != nil {
		entry = entry.WithError(cause)
	}
	if reason == ReasonUnavailable {
		entry.Warn("Session verification failed closed")
	} else {
		entry.Debug("Session rejected")
	}

	return apperr.Wrap(apperr.KindInvalidSession, errors.New(reason))
}
