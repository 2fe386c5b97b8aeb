// Package auth verifies session credentials.
//
// A session credential is an HS256-signed JWT minted by the session manager.
// Verification checks signature, issuer and expiry locally, then performs a
// hard check against the revocation store so that logout and administrative
// revocation take effect before the credential expires. Every failure is
// reported to callers as apperr.ErrInvalidSession; the specific reason is only
// logged and counted.
package auth
