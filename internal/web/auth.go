package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// RequireToken rejects requests without the bearer token. An empty token
// disables the admin API entirely.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				http.Error(w, `{"error":"admin api disabled"}`, http.StatusServiceUnavailable)
				return
			}
			if !validToken(r, token) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validToken(r *http.Request, token string) bool {
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		// browsers cannot set headers on websocket upgrades
		got = r.URL.Query().Get("token")
	}
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}
