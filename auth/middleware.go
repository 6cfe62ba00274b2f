package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type claimsKey struct{}

// Middleware returns an http.Handler middleware that extracts a JWT from the
// Authorization Bearer header. If valid, the parsed AdminClaims are injected
// into the request context. Invalid or missing tokens are silently ignored;
// use RequireAdmin to enforce.
func Middleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := ValidateToken(secret, strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims retrieves the AdminClaims from the context, or nil if absent.
func GetClaims(ctx context.Context) *AdminClaims {
	c, _ := ctx.Value(claimsKey{}).(*AdminClaims)
	return c
}

// RequireAdmin is an http.Handler middleware that rejects requests without a
// valid admin token. It checks for AdminClaims with role "admin" in context.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := GetClaims(r.Context())
		if c == nil {
			writeAuthError(w, http.StatusUnauthorized, "admin token required")
			return
		}
		if c.Role != "admin" {
			writeAuthError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeAuthError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
