package sso

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/platinummonkey/casedesk/pkg/session"
)

// OIDCProvider verifies ID tokens issued for this client
type OIDCProvider struct {
	config       Config
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

var _ session.LoginVerifier = (*OIDCProvider)(nil)

// NewOIDCProvider discovers the issuer and builds the token verifier
func NewOIDCProvider(ctx context.Context, config Config) (*OIDCProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid OIDC config: %w", err)
	}

	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return NewOIDCProviderWithVerifier(config,
		provider.Verifier(&oidc.Config{ClientID: config.ClientID}),
		provider.Endpoint(),
	), nil
}

// NewOIDCProviderWithVerifier builds a provider from an existing verifier
// and token endpoint, skipping discovery
func NewOIDCProviderWithVerifier(config Config, verifier *oidc.IDTokenVerifier, endpoint oauth2.Endpoint) *OIDCProvider {
	return &OIDCProvider{
		config:   config,
		verifier: verifier,
		oauth2Config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  config.RedirectURL,
			Scopes:       config.scopes(),
		},
	}
}

type idTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// VerifyLoginCredential checks signature, issuer, audience and expiry of an
// ID token and returns its subject
func (p *OIDCProvider) VerifyLoginCredential(ctx context.Context, raw string) (*session.LoginClaims, error) {
	idToken, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	if idToken.Subject == "" {
		return nil, errors.New("missing subject in ID token")
	}
	if p.config.RequireVerifiedEmail && !claims.EmailVerified {
		return nil, errors.New("email not verified")
	}

	return &session.LoginClaims{
		SubjectID:     idToken.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
	}, nil
}

// AuthCodeURL returns the issuer URL the browser is sent to
func (p *OIDCProvider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

// Exchange trades an authorization code for the raw ID token
func (p *OIDCProvider) Exchange(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", errors.New("missing authorization code")
	}
	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange token: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", errors.New("missing id_token in response")
	}
	return rawIDToken, nil
}
