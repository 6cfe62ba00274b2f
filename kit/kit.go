// Package kit holds the small shared vocabulary of the pixivmcp service:
// the Endpoint function shape, middleware composition, request-scoped
// context keys, and the MCP tool registration helper.
package kit

import "context"

// Endpoint is the transport-agnostic unit of work: a typed request in,
// a typed response out. HTTP handlers and MCP tools both terminate here.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint, adding cross-cutting behaviour
// (logging, metrics, recovery) without changing the signature.
type Middleware func(next Endpoint) Endpoint

// Chain composes middlewares left-to-right: the first middleware in the
// slice is the outermost wrapper (executed first on the request path).
//
//	wrapped := Chain(logging, recovery)(endpoint)
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
