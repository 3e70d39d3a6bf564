package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// exempt paths never require a token so probes and scrapers keep working.
var authExempt = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

// TokenAuth requires a bearer token from the allowed set on every request.
// With no tokens configured the API is open, which suits local development.
func TokenAuth(next http.Handler, tokens []string) http.Handler {
	allowed := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			allowed = append(allowed, t)
		}
	}
	if len(allowed) == 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authExempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || !tokenAllowed(presented, allowed) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func tokenAllowed(presented string, allowed []string) bool {
	for _, t := range allowed {
		if subtle.ConstantTimeCompare([]byte(presented), []byte(t)) == 1 {
			return true
		}
	}
	return false
}
