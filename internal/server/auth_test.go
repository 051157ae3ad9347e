package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		apiKey    string
		header    string
		wantCode  int
		challenge string
	}{
		{name: "disabled", apiKey: "", header: "", wantCode: http.StatusOK},
		{name: "missing header", apiKey: "secret", header: "", wantCode: http.StatusUnauthorized, challenge: `Bearer realm="raga"`},
		{name: "wrong token", apiKey: "secret", header: "Bearer nope", wantCode: http.StatusUnauthorized, challenge: `Bearer realm="raga" error="invalid_token"`},
		{name: "prefix of key", apiKey: "secret", header: "Bearer sec", wantCode: http.StatusUnauthorized, challenge: `Bearer realm="raga" error="invalid_token"`},
		{name: "basic scheme", apiKey: "secret", header: "Basic dXNlcjpwYXNz", wantCode: http.StatusUnauthorized, challenge: `Bearer realm="raga"`},
		{name: "valid", apiKey: "secret", header: "Bearer secret", wantCode: http.StatusOK},
		{name: "lowercase scheme", apiKey: "secret", header: "bearer secret", wantCode: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			authMiddleware(tc.apiKey, okHandler).ServeHTTP(w, req)

			require.Equal(t, tc.wantCode, w.Code)
			if tc.wantCode != http.StatusUnauthorized {
				return
			}
			assert.Equal(t, tc.challenge, w.Header().Get("WWW-Authenticate"))
			var body errorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, kindUnauthorized, body.Kind)
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	for header, want := range map[string]string{
		"Bearer abc":      "abc",
		"BEARER abc":      "abc",
		"Bearer  padded ": "padded",
		"Bearer":          "",
		"Token abc":       "",
		"":                "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		assert.Equal(t, want, bearerToken(req), "header %q", header)
	}
}
