package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/raga-go/internal/logging"
)

// authMiddleware requires "Authorization: Bearer <apiKey>" on the wrapped
// handler. An empty apiKey disables the check; the server warns once at
// startup instead of per request.
//
// Rejections are 401 with a Bearer challenge and the standard error body.
// Presented tokens are never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		switch {
		case token == "":
			reject(w, r, `Bearer realm="raga"`, "authorization required")
		case subtle.ConstantTimeCompare([]byte(token), want) != 1:
			reject(w, r, `Bearer realm="raga" error="invalid_token"`, "invalid token")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func reject(w http.ResponseWriter, r *http.Request, challenge, msg string) {
	logging.FromContext(r.Context()).Warn("auth: request rejected",
		slog.String("path", r.URL.Path),
		slog.String("reason", msg),
	)
	w.Header().Set("WWW-Authenticate", challenge)
	writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{Error: msg, Kind: kindUnauthorized})
}

// bearerToken returns the credential of a Bearer Authorization header, or ""
// when the header is missing or uses another scheme.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
