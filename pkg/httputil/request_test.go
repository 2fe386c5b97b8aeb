package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/casedesk/pkg/apperr"
)

func TestParseJSON(t *testing.T) {
	var dest struct {
		IDToken string `json:"idToken"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"idToken":"abc"}`))
	require.NoError(t, ParseJSON(r, &dest))
	assert.Equal(t, "abc", dest.IDToken)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"idToken":`))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(ParseJSON(r, &dest)))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	err := ParseJSON(r, &dest)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, "request body is empty", apperr.PublicMessage(err))
}

func TestParsePathString(t *testing.T) {
	r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "r1"})
	id, err := ParsePathString(r, "id")
	require.NoError(t, err)
	assert.Equal(t, "r1", id)

	_, err = ParsePathString(r, "structureId")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:52100"
	assert.Equal(t, "10.0.0.7", ClientIP(r))

	r.Header.Set("X-Real-IP", "192.0.2.4")
	assert.Equal(t, "192.0.2.4", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(r))
}

func TestTrustedClientIP(t *testing.T) {
	tests := []struct {
		name string
		xff  []string
		hops int
		want string
	}{
		{"no proxies ignores header", []string{"198.51.100.1"}, 0, "10.0.0.7"},
		{"no header uses peer", nil, 1, "10.0.0.7"},
		{"one proxy takes last entry", []string{"198.51.100.1, 203.0.113.9"}, 1, "203.0.113.9"},
		{"two proxies", []string{"198.51.100.1, 203.0.113.9, 10.0.0.1"}, 2, "203.0.113.9"},
		{"repeated headers are joined", []string{"198.51.100.1", "203.0.113.9"}, 1, "203.0.113.9"},
		{"short chain falls back to first entry", []string{"203.0.113.9"}, 3, "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = "10.0.0.7:52100"
			for _, v := range tt.xff {
				r.Header.Add("X-Forwarded-For", v)
			}
			assert.Equal(t, tt.want, TrustedClientIP(r, tt.hops))
		})
	}
}

func TestIsSafeRedirect(t *testing.T) {
	assert.True(t, IsSafeRedirect("/anagrafica/r1?tab=eventi"))
	assert.True(t, IsSafeRedirect("/"))
	assert.False(t, IsSafeRedirect("https://evil.example"))
	assert.False(t, IsSafeRedirect("//evil.example/path"))
	assert.False(t, IsSafeRedirect("/\\evil.example"))
	assert.False(t, IsSafeRedirect(""))
	assert.False(t, IsSafeRedirect("/ok\r\nSet-Cookie: x=y"))
}
