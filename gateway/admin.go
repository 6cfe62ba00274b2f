package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/pixivmcp/dualpath"
	"github.com/hazyhaar/pixivmcp/shield"
)

// handleRoutesGet returns the effective route table: defaults merged with
// the persisted overrides, plus the tunable path-status set.
func (s *Server) handleRoutesGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"routes": s.deps.Routes.Snapshot(),
	})
}

func (s *Server) handleRoutePut(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	var req struct {
		Primary    string `json:"primary"`
		FallbackOK bool   `json:"fallback_ok"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	route := dualpath.Route{Primary: dualpath.Path(req.Primary), FallbackOK: req.FallbackOK}
	if err := s.deps.Routes.SetOverride(r.Context(), kind, route); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	shield.GetLogger(r.Context()).Info("admin: route override set",
		"kind", kind, "primary", req.Primary, "fallback_ok", req.FallbackOK)
	writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "route": route})
}

func (s *Server) handleRouteDelete(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	if err := s.deps.Routes.DeleteOverride(r.Context(), kind); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	shield.GetLogger(r.Context()).Info("admin: route override cleared", "kind", kind)
	writeJSON(w, http.StatusOK, map[string]string{"kind": kind, "status": "cleared"})
}
