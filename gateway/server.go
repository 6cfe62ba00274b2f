// Package gateway exposes the tool router over HTTP: the MCP streamable
// endpoint, a REST convenience surface, an SSE streaming surface, and the
// JWT-protected admin endpoints for route overrides.
package gateway

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pixivmcp/auth"
	"github.com/hazyhaar/pixivmcp/dispatch"
	"github.com/hazyhaar/pixivmcp/dualpath"
	"github.com/hazyhaar/pixivmcp/observability"
	"github.com/hazyhaar/pixivmcp/shield"
	"github.com/hazyhaar/pixivmcp/stream"
)

// TokenStatus reports credential state for the status endpoint.
type TokenStatus interface {
	ExpiresAt() time.Time
}

// Deps carries everything the gateway serves. Router, Routes, DB and MCP are
// required; the rest degrade gracefully when absent.
type Deps struct {
	Router        *dispatch.Router
	Routes        *dualpath.RouteTable
	DB            *sql.DB // shield tables: rate_limits, maintenance
	MCP           *mcp.Server
	Tokens        TokenStatus
	Recorder      *observability.CallRecorder
	Heartbeat     *observability.HeartbeatWriter
	JWTSecret     []byte
	CORSOrigins   []string
	RateLimit     int // default per-IP requests per minute, 0 = unlimited
	BatchSize     int // SSE collection batch size
	BypassEnabled bool
	Version       string
	Logger        *slog.Logger
}

// Server is the assembled HTTP surface.
type Server struct {
	deps    Deps
	emitter *stream.Emitter
	mm      *shield.MaintenanceMode
	rl      *shield.RateLimiter
	handler http.Handler
	started time.Time
}

// New assembles the gateway. The admin routes are only mounted when a JWT
// secret is configured.
func New(d Deps) (*Server, error) {
	if d.Router == nil || d.Routes == nil || d.DB == nil || d.MCP == nil {
		return nil, errors.New("gateway: router, routes, db and mcp server are required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	var emitterOpts []stream.Option
	if d.BatchSize > 0 {
		emitterOpts = append(emitterOpts, stream.WithBatchSize(d.BatchSize))
	}
	emitterOpts = append(emitterOpts, stream.WithLogger(d.Logger))

	s := &Server{
		deps:    d,
		emitter: stream.NewEmitter(emitterOpts...),
		started: time.Now(),
	}
	s.handler = s.buildRouter()
	return s, nil
}

// Handler returns the assembled http.Handler.
func (s *Server) Handler() http.Handler { return s.handler }

// StartReloaders launches the background refresh goroutines of the shield
// middlewares (maintenance flag, rate limit rules). They stop when done is
// closed.
func (s *Server) StartReloaders(done <-chan struct{}) {
	s.mm.StartReloader(done)
	s.rl.StartReloader(done)
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	stack, mm, rl := shield.DefaultStack(s.deps.DB, s.deps.RateLimit, s.deps.CORSOrigins)
	s.mm = mm
	s.rl = rl
	for _, mw := range stack {
		r.Use(mw)
	}

	r.Get("/", s.handleInfo)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", s.handleStatus)

	// MCP streamable transport: POST for calls, GET for the event stream,
	// DELETE for session teardown, all on one endpoint.
	mcpHandler := mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return s.deps.MCP }, nil)
	r.Handle("/mcp", mcpHandler)

	// Direct tool invocation, bypassing the MCP session protocol.
	r.Get("/mcp/tools", s.handleToolCatalog)
	r.Post("/mcp/tools/{tool}", s.handleTool)
	r.Post("/mcp/tools/{tool}/stream", s.handleToolStream)

	// REST convenience surface over the same dispatch path.
	r.Route("/api", func(r chi.Router) {
		r.Post("/search", s.restKindJSON(dispatch.KindSearchIllust))
		r.Post("/search/novel", s.restKindJSON(dispatch.KindSearchNovel))
		r.Post("/search/user", s.restKindJSON(dispatch.KindSearchUser))
		r.Get("/ranking", s.handleRanking)
		r.Get("/illust/{id}", s.restDetail(dispatch.KindIllustDetail, "illust_id"))
		r.Get("/user/{id}", s.restDetail(dispatch.KindUserDetail, "user_id"))
		r.Get("/user/{id}/illusts", s.restDetail(dispatch.KindUserIllusts, "user_id"))
		r.Get("/user/{id}/novels", s.restDetail(dispatch.KindUserNovels, "user_id"))
		r.Get("/novel/{id}", s.restDetail(dispatch.KindNovelDetail, "novel_id"))
		r.Get("/novel/{id}/text", s.restDetail(dispatch.KindNovelText, "novel_id"))
		r.Get("/trending-tags", s.handleTrendingTags)
		r.Post("/download", s.restKindJSON(dispatch.KindDownloadIllust))
	})

	if len(s.deps.JWTSecret) > 0 {
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.Middleware(s.deps.JWTSecret))
			r.Use(auth.RequireAdmin)
			r.Get("/routes", s.handleRoutesGet)
			r.Put("/routes/{kind}", s.handleRoutePut)
			r.Delete("/routes/{kind}", s.handleRouteDelete)
		})
	}

	return r
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "pixivmcp",
		"version": s.deps.Version,
		"tools":   len(dispatch.Kinds()),
		"endpoints": map[string]string{
			"mcp":    "/mcp",
			"tools":  "/mcp/tools",
			"rest":   "/api",
			"status": "/status",
		},
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"bypass_enabled": s.deps.BypassEnabled,
		"routes":         s.deps.Routes.Snapshot(),
	}
	if s.deps.Tokens != nil {
		exp := s.deps.Tokens.ExpiresAt()
		out["auth"] = map[string]any{
			"token_valid": time.Now().Before(exp),
			"expires_at":  exp,
		}
	}
	if s.deps.Recorder != nil {
		stats, err := s.deps.Recorder.Snapshot(r.Context(), time.Now().Add(-24*time.Hour))
		if err != nil {
			s.deps.Logger.WarnContext(r.Context(), "status: call snapshot failed", "error", err)
		} else {
			out["calls_24h"] = stats
		}
	}
	if s.deps.Heartbeat != nil {
		hb, err := s.deps.Heartbeat.Status(r.Context())
		switch {
		case err != nil:
			s.deps.Logger.WarnContext(r.Context(), "status: heartbeat lookup failed", "error", err)
		case hb != nil:
			out["worker"] = hb
		}
	}
	writeJSON(w, http.StatusOK, out)
}
