package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/ragcore-go/internal/logging"
)

// apiKeyHeader is accepted as an alternative to a Bearer token, for clients
// that already send vector-database style credentials.
const apiKeyHeader = "X-API-Key"

// authMiddleware enforces the API key on every request it wraps. An empty
// apiKey disables authentication; the server warns about that once at
// startup.
//
// Clients present the key as either of:
//
//	Authorization: Bearer <apiKey>
//	X-API-Key: <apiKey>
//
// Rejections are 401 with a WWW-Authenticate challenge and the usual JSON
// error body. The presented value is never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token := requestToken(r)
		if token == "" {
			log.Warn("auth: missing credentials", slog.String("path", r.URL.Path))
			w.Header().Set("WWW-Authenticate", `Bearer realm="ragcore"`)
			writeJSON(w, r, http.StatusUnauthorized, errorResponse{Error: "authorization required", Code: "unauthorized"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			log.Warn("auth: invalid credentials", slog.String("path", r.URL.Path), slog.Bool("token_present", true))
			w.Header().Set("WWW-Authenticate", `Bearer realm="ragcore" error="invalid_token"`)
			writeJSON(w, r, http.StatusUnauthorized, errorResponse{Error: "invalid token", Code: "unauthorized"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestToken returns the Bearer token, falling back to the X-API-Key
// header. Empty when neither is present or the Authorization header is
// malformed.
func requestToken(r *http.Request) string {
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		scheme, token, ok := strings.Cut(hdr, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.Header.Get(apiKeyHeader))
}
