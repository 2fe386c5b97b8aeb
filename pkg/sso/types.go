package sso

import (
	"fmt"
	"strings"
)

// Config describes the OIDC client registration
type Config struct {
	IssuerURL    string   `yaml:"issuer_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
	// RequireVerifiedEmail rejects ID tokens whose email is not verified
	RequireVerifiedEmail bool `yaml:"require_verified_email"`
}

// DefaultScopes are requested when none are configured
var DefaultScopes = []string{"openid", "email", "profile"}

// Validate checks the registration is usable for both token verification
// and the code flow
func (c Config) Validate() error {
	if c.IssuerURL == "" {
		return fmt.Errorf("issuer_url is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.RedirectURL != "" && c.ClientSecret == "" {
		return fmt.Errorf("client_secret is required for the code flow")
	}
	for _, scope := range c.scopes() {
		if scope == "openid" {
			return nil
		}
	}
	return fmt.Errorf("'openid' scope is required for OIDC")
}

// CodeFlowEnabled reports whether the browser login flow is configured
func (c Config) CodeFlowEnabled() bool {
	return c.RedirectURL != ""
}

func (c Config) scopes() []string {
	if len(c.Scopes) == 0 {
		return DefaultScopes
	}
	out := make([]string, 0, len(c.Scopes))
	for _, s := range c.Scopes {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
