// Package shield provides the HTTP middleware stack shared by the gateway's
// REST and MCP surfaces: security headers, CORS, rate limiting, body limits,
// request tracing, maintenance mode, and HEAD method handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
//	r.Use(shield.MaxJSONBody(1 << 20))
//	r.Use(shield.TraceID)
//	r.Use(shield.NewRateLimiter(db, 60).Middleware)
//
// Or apply the default stack in one call:
//
//	stack, mm, rl := shield.DefaultStack(db, 60, origins)
//	mm.StartReloader(done)
//	rl.StartReloader(done)
//	for _, mw := range stack {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// DefaultStack returns the standard middleware stack for the gateway.
// Ordered: Maintenance → HeadToGet → SecurityHeaders → CORS → MaxJSONBody →
// TraceID → RateLimiter. defaultPerMinute is the per-IP request budget when
// no endpoint-specific rule exists; 0 disables the default limit. Health
// checks (/health) bypass both maintenance and rate limiting. The returned
// handles allow callers to start the reload goroutines.
func DefaultStack(db *sql.DB, defaultPerMinute int, corsOrigins []string) ([]func(http.Handler) http.Handler, *MaintenanceMode, *RateLimiter) {
	rl := NewRateLimiter(db, defaultPerMinute, "/health")
	mm := NewMaintenanceMode(db, "/health")
	return []func(http.Handler) http.Handler{
		mm.Middleware,
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		CORS(corsOrigins),
		MaxJSONBody(1 << 20),
		TraceID,
		rl.Middleware,
	}, mm, rl
}
