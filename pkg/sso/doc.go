// Package sso connects casedesk to the OpenID Connect identity issuer.
//
// OIDCProvider verifies ID tokens (the login credential exchanged at
// /api/auth/sessionLogin) and drives the browser authorization-code flow at
// /auth/oidc/login and /auth/oidc/callback. Both paths end in
// session.Manager.CreateSession, so a browser login and a client-side login
// produce the same session credential.
package sso
