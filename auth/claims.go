// Package auth issues and validates the JWT bearer tokens protecting the
// gateway's admin endpoints (route overrides, maintenance flag).
package auth

import "github.com/golang-jwt/jwt/v5"

// AdminClaims is the claims structure carried by gateway admin tokens.
// It embeds jwt.RegisteredClaims for standard fields (exp, iat, etc.).
type AdminClaims struct {
	jwt.RegisteredClaims
	Operator string `json:"operator,omitempty"` // operator name, informational
	Role     string `json:"role"`               // only "admin" is honoured
}
