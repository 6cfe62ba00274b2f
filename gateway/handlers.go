package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/pixivmcp/dispatch"
	"github.com/hazyhaar/pixivmcp/kit"
	"github.com/hazyhaar/pixivmcp/safeio"
	"github.com/hazyhaar/pixivmcp/shield"
	"github.com/hazyhaar/pixivmcp/stream"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// failureStatus maps the uniform failure taxonomy onto HTTP statuses:
// bad arguments are the caller's problem (400), everything else means the
// gateway could not get an answer from Pixiv (401 for credential trouble,
// 503 while both connection paths are blocked, 502 otherwise).
func failureStatus(f *dispatch.Failure) int {
	switch f.Kind {
	case dispatch.FailureValidation:
		return http.StatusBadRequest
	case dispatch.FailureAuth:
		return http.StatusUnauthorized
	case dispatch.FailurePath:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeFailure(w http.ResponseWriter, f *dispatch.Failure) {
	writeJSON(w, failureStatus(f), f)
}

// toolKind resolves the {tool} URL parameter, accepting both the bare kind
// ("search_illust") and the prefixed MCP tool name ("pixiv_search_illust").
func toolKind(r *http.Request) string {
	return strings.TrimPrefix(chi.URLParam(r, "tool"), dispatch.ToolPrefix)
}

func readArgs(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	if r.Body == nil || r.ContentLength == 0 {
		return nil, true
	}
	body, err := safeio.LimitedReadAll(r.Body, 1<<20)
	if err != nil {
		writeFailure(w, &dispatch.Failure{
			Kind:    dispatch.FailureValidation,
			Message: "request body: " + err.Error(),
		})
		return nil, false
	}
	if len(body) == 0 {
		return nil, true
	}
	return json.RawMessage(body), true
}

func (s *Server) handleToolCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, dispatch.ToolCatalog())
}

func (s *Server) handleTool(w http.ResponseWriter, r *http.Request) {
	args, ok := readArgs(w, r)
	if !ok {
		return
	}
	ctx := kit.WithTransport(r.Context(), "http")
	res, failure := s.deps.Router.Handle(ctx, dispatch.Kind(toolKind(r)), args)
	if failure != nil {
		writeFailure(w, failure)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleToolStream runs the operation to completion, then emits the result
// as an ordered SSE chunk stream: data chunks (collections in batches), then
// one terminal done or error event.
func (s *Server) handleToolStream(w http.ResponseWriter, r *http.Request) {
	args, ok := readArgs(w, r)
	if !ok {
		return
	}

	ctx := kit.WithTransport(r.Context(), "sse")
	res, failure := s.deps.Router.Handle(ctx, dispatch.Kind(toolKind(r)), args)

	sink, err := stream.NewSSESink(w)
	if err != nil {
		shield.GetLogger(ctx).Error("stream: sink setup failed", "error", err)
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	s.emitter.Emit(ctx, sink, res, failure)
}

// restKindJSON serves kinds whose arguments arrive as a JSON body.
func (s *Server) restKindJSON(kind dispatch.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		args, ok := readArgs(w, r)
		if !ok {
			return
		}
		ctx := kit.WithTransport(r.Context(), "http")
		res, failure := s.deps.Router.Handle(ctx, kind, args)
		if failure != nil {
			writeFailure(w, failure)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// restDetail serves kinds keyed by a single numeric ID in the URL path.
// limit, type, quality and path hints pass through as query parameters.
func (s *Server) restDetail(kind dispatch.Kind, idField string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		args := map[string]any{idField: json.Number(id)}
		copyQuery(r, args, "limit", "type", "quality", "path")
		s.dispatchArgs(w, r, kind, args)
	}
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	args := map[string]any{}
	copyQuery(r, args, "mode", "date", "limit", "path")
	kind := dispatch.KindIllustRanking
	if r.URL.Query().Get("content") == "novel" {
		kind = dispatch.KindNovelRanking
	}
	s.dispatchArgs(w, r, kind, args)
}

func (s *Server) handleTrendingTags(w http.ResponseWriter, r *http.Request) {
	args := map[string]any{}
	copyQuery(r, args, "limit", "path")
	s.dispatchArgs(w, r, dispatch.KindTrendingTags, args)
}

// dispatchArgs marshals loosely-typed args and routes them through Handle so
// the REST surface shares the dispatch layer's validation.
func (s *Server) dispatchArgs(w http.ResponseWriter, r *http.Request, kind dispatch.Kind, args map[string]any) {
	raw, err := json.Marshal(args)
	if err != nil {
		writeFailure(w, &dispatch.Failure{
			Kind:    dispatch.FailureValidation,
			Message: "encode arguments: " + err.Error(),
		})
		return
	}
	ctx := kit.WithTransport(r.Context(), "http")
	res, failure := s.deps.Router.Handle(ctx, kind, raw)
	if failure != nil {
		writeFailure(w, failure)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// copyQuery lifts the named query parameters into args. Numeric-looking
// values are passed as json.Number so integer fields decode.
func copyQuery(r *http.Request, args map[string]any, keys ...string) {
	q := r.URL.Query()
	for _, k := range keys {
		v := q.Get(k)
		if v == "" {
			continue
		}
		if isNumeric(v) {
			args[k] = json.Number(v)
		} else {
			args[k] = v
		}
	}
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}
