package middleware

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type AuthMiddleware struct {
	// apiKeyHash is the bcrypt hash the bearer token must match. Empty
	// disables authentication entirely.
	apiKeyHash string
}

func NewAuthMiddleware(apiKeyHash string) *AuthMiddleware {
	return &AuthMiddleware{apiKeyHash: apiKeyHash}
}

// Enabled reports whether requests will actually be checked.
func (m *AuthMiddleware) Enabled() bool {
	return m.apiKeyHash != ""
}

// RequireAPIKey ensures the request carries a valid API key in the
// Authorization header ("Bearer <key>"). When no hash is configured the
// middleware is a no-op, which keeps local development friction-free.
func (m *AuthMiddleware) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.apiKeyHash == "" {
			next.ServeHTTP(w, r)
			return
		}

		key, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
			http.Error(w, "missing API key", http.StatusUnauthorized)
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(m.apiKeyHash), []byte(key)); err != nil {
			http.Error(w, "invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from an "Authorization: Bearer x" header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}
