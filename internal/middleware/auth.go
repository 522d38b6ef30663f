package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/longmans/prompt-agent/internal/metrics"
)

const (
	// APIKeyHeader carries the caller's API key.
	APIKeyHeader = "X-API-Key"

	// apiKeyQueryParam lets browser WebSocket clients, which cannot set
	// headers, authenticate on /ws routes.
	apiKeyQueryParam = "api_key"
)

// protectedPrefixes are the routes that require a key.
var protectedPrefixes = []string{"/api/", "/ws/"}

// APIKeyAuth requires one of keys on protected routes, taken from the
// X-API-Key header or an "Authorization: Bearer" token. An empty key list
// disables the check.
func APIKeyAuth(keys []string) func(http.Handler) http.Handler {
	digests := make([][sha256.Size]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}

	return func(next http.Handler) http.Handler {
		if len(digests) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isProtected(r.URL.Path) || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if !keyAllowed(digests, presentedKey(r)) {
				metrics.UnauthorizedTotal.Inc()
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="prompt-agent"`)
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"missing or invalid API key"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isProtected(path string) bool {
	for _, prefix := range protectedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func presentedKey(r *http.Request) string {
	if k := r.Header.Get(APIKeyHeader); k != "" {
		return k
	}
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if strings.HasPrefix(r.URL.Path, "/ws/") {
		return r.URL.Query().Get(apiKeyQueryParam)
	}
	return ""
}

// keyAllowed compares digests in constant time and checks every key.
func keyAllowed(digests [][sha256.Size]byte, key string) bool {
	if key == "" {
		return false
	}
	got := sha256.Sum256([]byte(key))
	ok := 0
	for i := range digests {
		ok |= subtle.ConstantTimeCompare(got[:], digests[i][:])
	}
	return ok == 1
}
