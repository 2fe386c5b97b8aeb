// Package session issues and destroys session credentials.
//
// A login credential (an OpenID Connect ID token) is exchanged for a signed
// session credential stored in an HTTP-only cookie. Logout revokes the
// credential server-side on a best-effort basis and always clears the cookie.
package session
