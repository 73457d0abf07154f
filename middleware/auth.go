// Package middleware holds the HTTP middleware shared by all routes.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"slices"
	"strings"
)

// PublicPaths skip bearer auth. The WebSocket endpoint authenticates with
// its first JSON-RPC request instead.
var PublicPaths = []string{"/health", "/ws"}

func Auth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(PublicPaths, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			scheme, credential, ok := strings.Cut(authHeader, " ")
			if !ok || scheme != "Bearer" {
				http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(credential), []byte(token)) != 1 {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
