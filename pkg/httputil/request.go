package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/casedesk/pkg/apperr"
)

// MaxJSONBody bounds JSON request bodies
const MaxJSONBody = 1 << 20

// ParseJSON decodes the request body into dest. Malformed or oversized
// bodies are validation errors.
func ParseJSON(r *http.Request, dest interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxJSONBody))
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is empty")
		}
		return apperr.Validation(fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}

// ParsePathString extracts a string path parameter
func ParsePathString(r *http.Request, key string) (string, error) {
	str := strings.TrimSpace(mux.Vars(r)[key])
	if str == "" {
		return "", apperr.Validation("missing path parameter: " + key)
	}
	return str, nil
}

// TrustedClientIP returns the caller address as seen by the outermost of
// trustedHops reverse proxies. Each proxy appends the address it received
// the request from, so the entry trustedHops from the right was written by
// infrastructure and cannot be chosen by the client. With no trusted hops
// the header is ignored and the peer address is used.
func TrustedClientIP(r *http.Request, trustedHops int) string {
	if trustedHops > 0 {
		var hops []string
		for _, h := range r.Header.Values("X-Forwarded-For") {
			for _, part := range strings.Split(h, ",") {
				if ip := strings.TrimSpace(part); ip != "" {
					hops = append(hops, ip)
				}
			}
		}
		if len(hops) > 0 {
			i := len(hops) - trustedHops
			if i < 0 {
				i = 0
			}
			return hops[i]
		}
	}
	return peerIP(r)
}

func peerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientIP returns the caller address for logging, preferring the first hop
// of X-Forwarded-For. The value is client controlled; use TrustedClientIP
// for anything that enforces limits.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peerIP(r)
}

// IsSafeRedirect reports whether target is a same-origin absolute path
func IsSafeRedirect(target string) bool {
	if !strings.HasPrefix(target, "/") {
		return false
	}
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return false
	}
	return !strings.ContainsAny(target, "\r\n")
}
