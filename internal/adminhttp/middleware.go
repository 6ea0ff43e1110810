package adminhttp

import (
	"encoding/json"
	"net/http"
	"strings"
)

// AuthError represents an authentication error, mirroring the shape a
// thin admin surface needs: just enough to tell a caller why it was
// rejected, without the session/role machinery a full API would carry.
type AuthError struct {
	StatusCode int    `json:"-"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"error_message"`
}

func (e *AuthError) Error() string { return e.Message }

var (
	errMissingToken = &AuthError{StatusCode: http.StatusUnauthorized, ErrorCode: "MISSING_TOKEN", Message: "missing Authorization bearer token"}
	errInvalidToken = &AuthError{StatusCode: http.StatusUnauthorized, ErrorCode: "INVALID_TOKEN", Message: "invalid Authorization bearer token"}
)

// TokenMiddleware guards the admin surface with a single static bearer
// token, adapted from the teacher's auth.Middleware: a skip-path set for
// the unauthenticated probes, one Handler wrapper for everything else.
type TokenMiddleware struct {
	token     string
	skipPaths map[string]bool
}

// NewTokenMiddleware builds a TokenMiddleware. If token is empty, every
// request is let through unauthenticated — the operator is expected to
// bind the admin surface to a loopback or private address in that case.
func NewTokenMiddleware(token string) *TokenMiddleware {
	return &TokenMiddleware{
		token: token,
		skipPaths: map[string]bool{
			"/healthz": true,
			"/readyz":  true,
		},
	}
}

// Handler wraps next with bearer-token authentication.
func (m *TokenMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.token == "" || m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			writeAuthError(w, errMissingToken)
			return
		}
		if header[len(prefix):] != m.token {
			writeAuthError(w, errInvalidToken)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeAuthError(w http.ResponseWriter, e *AuthError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	json.NewEncoder(w).Encode(e)
}
