package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// Issuer is the iss claim of every session credential
	Issuer = "casedesk"

	// MaxSessionLifetime is the upper bound for any session credential
	MaxSessionLifetime = 14 * 24 * time.Hour

	// DefaultSessionLifetime applies when no lifetime is configured
	DefaultSessionLifetime = 5 * 24 * time.Hour

	minSecretLength = 32
)

// Internal failure reasons. They are logged and counted, never returned to
// clients.
const (
	ReasonMissing     = "missing"
	ReasonMalformed   = "malformed"
	ReasonSignature   = "bad_signature"
	ReasonExpired     = "expired"
	ReasonClaims      = "bad_claims"
	ReasonRevoked     = "revoked"
	ReasonSubjectCut  = "subject_revoked"
	ReasonUnavailable = "revocation_unavailable"
	ReasonOK          = "ok"
)

// sessionClaims is the JWT payload of a session credential
type sessionClaims struct {
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// tokenError carries the internal reason of a parse failure
type tokenError struct {
	reason string
	err    error
}

func (e *tokenError) Error() string { return e.reason + ": " + e.err.Error() }

func (e *tokenError) Unwrap() error { return e.err }

// ReasonOf extracts the internal failure reason from a TokenSigner error
func ReasonOf(err error) string {
	var te *tokenError
	if errors.As(err, &te) {
		return te.reason
	}
	return ReasonMalformed
}

// issuedAtSkew is how far in the future an issued-at claim may lie
const issuedAtSkew = 5 * time.Second

// TokenSigner mints and parses session credentials
type TokenSigner struct {
	secret []byte
	now    func() time.Time
}

// NewTokenSigner creates a signer for the given HMAC secret
func NewTokenSigner(secret []byte) (*TokenSigner, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", minSecretLength)
	}
	return &TokenSigner{secret: secret, now: time.Now}, nil
}

// WithClock replaces the time source. Intended for tests.
func (s *TokenSigner) WithClock(now func() time.Time) *TokenSigner {
	s.now = now
	return s
}

// ClampLifetime bounds ttl to (0, MaxSessionLifetime], using
// DefaultSessionLifetime for non-positive values
func ClampLifetime(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultSessionLifetime
	}
	if ttl > MaxSessionLifetime {
		return MaxSessionLifetime
	}
	return ttl
}

// Sign mints a credential for subject. The returned identity carries the
// issued-at, expiry and session id embedded in the credential.
func (s *TokenSigner) Sign(subject Identity, ttl time.Duration) (string, *Identity, error) {
	subjectID := strings.TrimSpace(subject.SubjectID)
	if subjectID == "" {
		return "", nil, errors.New("subject is required")
	}

	now := s.now().UTC().Truncate(time.Second)
	expires := now.Add(ClampLifetime(ttl))
	sessionID := uuid.NewString()

	claims := sessionClaims{
		Email:         subject.Email,
		EmailVerified: subject.EmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        sessionID,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign session: %w", err)
	}

	return signed, &Identity{
		SubjectID:     subjectID,
		Email:         subject.Email,
		EmailVerified: subject.EmailVerified,
		IssuedAt:      now,
		ExpiresAt:     expires,
		SessionID:     sessionID,
	}, nil
}

// Parse checks signature, issuer, expiry and issued-at of raw. It does not
// consult the revocation store. Expiry is exact: revocation entries live
// only until exp, so a credential must never outlive them. Clock skew is
// tolerated on issued-at alone.
func (s *TokenSigner) Parse(raw string) (*Identity, error) {
	identity, err := s.parse(raw,
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	if identity.IssuedAt.After(s.now().Add(issuedAtSkew)) {
		return nil, &tokenError{reason: ReasonClaims, err: jwt.ErrTokenUsedBeforeIssued}
	}
	return identity, nil
}

// ParseIgnoringExpiry checks only the signature and issuer. Logout uses it
// to revoke a credential that has already expired locally.
func (s *TokenSigner) ParseIgnoringExpiry(raw string) (*Identity, error) {
	identity, err := s.parse(raw, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}
	return identity, nil
}

func (s *TokenSigner) parse(raw string, opts ...jwt.ParserOption) (*Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &tokenError{reason: ReasonMissing, err: errors.New("empty credential")}
	}

	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, &tokenError{reason: parseReason(err), err: err}
	}

	if claims.Issuer != Issuer || strings.TrimSpace(claims.Subject) == "" ||
		claims.ID == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, &tokenError{reason: ReasonClaims, err: errors.New("required claims missing")}
	}

	return &Identity{
		SubjectID:     claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		IssuedAt:      claims.IssuedAt.Time.UTC(),
		ExpiresAt:     claims.ExpiresAt.Time.UTC(),
		SessionID:     claims.ID,
	}, nil
}

func parseReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ReasonSignature
	case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenRequiredClaimMissing),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ReasonClaims
	default:
		return ReasonMalformed
	}
}
