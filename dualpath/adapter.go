package dualpath

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/pixivmcp/pixivapi"
)

// Invoke runs one operation against a concrete API client with a bearer
// token. The adapter supplies whichever client the routing decision picked;
// the closure must not care which.
type Invoke func(ctx context.Context, api pixivapi.API, tok string) (any, error)

// TokenSource is the credential dependency. Satisfied by *token.Manager.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// Recorder receives per-attempt observations. Satisfied by
// *observability.Metrics; nil disables recording.
type Recorder interface {
	RecordCall(kind string, path string, outcome string, elapsed time.Duration)
}

// Adapter executes operations with the retry algorithm:
//
//  1. primary attempt (per-attempt timeout)
//  2. auth failure: one forced token refresh, retry the same path
//  3. path-related failure: one attempt on the other path, if the route
//     allows fallback and a secondary client exists
//  4. anything else, or an exhausted budget: fail with the LAST error
//
// Success payloads are identical regardless of which path produced them.
type Adapter struct {
	standard pixivapi.API
	bypass   pixivapi.API // nil when the bypass path is not configured
	tokens   TokenSource
	routes   *RouteTable
	timeout  time.Duration
	logger   *slog.Logger
	recorder Recorder
}

// AdapterOption customises Adapter construction.
type AdapterOption func(*Adapter)

// WithTimeout sets the per-attempt timeout. Default: 30s.
func WithTimeout(d time.Duration) AdapterOption {
	return func(a *Adapter) { a.timeout = d }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) AdapterOption {
	return func(a *Adapter) { a.logger = l }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) AdapterOption {
	return func(a *Adapter) { a.recorder = r }
}

// NewAdapter builds the adapter. bypass may be nil — requests routed to the
// bypass path then degrade to standard, and fallback is never attempted.
func NewAdapter(standard, bypass pixivapi.API, tokens TokenSource, routes *RouteTable, opts ...AdapterOption) (*Adapter, error) {
	if standard == nil {
		return nil, fmt.Errorf("dualpath: standard client is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("dualpath: token source is required")
	}
	if routes == nil {
		return nil, fmt.Errorf("dualpath: route table is required")
	}
	a := &Adapter{
		standard: standard,
		bypass:   bypass,
		tokens:   tokens,
		routes:   routes,
		timeout:  30 * time.Second,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// BypassEnabled reports whether a secondary path exists.
func (a *Adapter) BypassEnabled() bool { return a.bypass != nil }

// Classify exposes the failure classification for callers that normalize
// errors into user-facing shapes.
func (a *Adapter) Classify(err error) Class { return a.routes.classify(err) }

// Do executes fn for the named operation. hint overrides the route's
// primary path; PathAuto defers to the table.
func (a *Adapter) Do(ctx context.Context, kind string, hint Path, fn Invoke) (any, error) {
	route, ok := a.routes.Route(kind)
	if !ok {
		return nil, fmt.Errorf("dualpath: no route for operation %q", kind)
	}

	path := route.Primary
	if hint == PathStandard || hint == PathBypass {
		path = hint
	}
	if path == PathBypass && a.bypass == nil {
		a.logger.DebugContext(ctx, "dualpath: bypass not configured, using standard",
			"kind", kind)
		path = PathStandard
	}

	authRetried := false
	fellBack := false

	for {
		tok, err := a.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}

		res, err := a.attempt(ctx, kind, path, tok, fn)
		if err == nil {
			return res, nil
		}

		class := a.routes.classify(err)
		a.logger.WarnContext(ctx, "dualpath: attempt failed",
			"kind", kind, "path", path, "class", class.String(), "error", err)

		switch class {
		case ClassAuth:
			if authRetried {
				return nil, err
			}
			authRetried = true
			if _, rerr := a.tokens.ForceRefresh(ctx); rerr != nil {
				return nil, rerr
			}
			a.logger.InfoContext(ctx, "dualpath: credential refreshed, retrying",
				"kind", kind, "path", path)
			continue

		case ClassPath:
			if fellBack || !route.FallbackOK || a.bypass == nil {
				return nil, err
			}
			fellBack = true
			path = otherPath(path)
			a.logger.InfoContext(ctx, "dualpath: falling back",
				"kind", kind, "path", path)
			continue

		default:
			// Upstream and fatal-auth failures: no retry budget applies.
			return nil, err
		}
	}
}

// attempt runs one upstream call through the middleware pipeline: panic
// recovery, attempt logging, metrics, then the operation itself under the
// per-attempt timeout.
func (a *Adapter) attempt(ctx context.Context, kind string, path Path, tok string, fn Invoke) (any, error) {
	api := a.standard
	if path == PathBypass {
		api = a.bypass
	}

	actx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	ep := func(ctx context.Context, _ any) (any, error) {
		return fn(ctx, api, tok)
	}
	return a.pipeline(kind, path)(ep)(actx, nil)
}

func otherPath(p Path) Path {
	if p == PathStandard {
		return PathBypass
	}
	return PathStandard
}
