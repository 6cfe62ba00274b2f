package dualpath

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/pixivmcp/kit"
)

// pipeline is the per-attempt middleware chain: recovery outermost, then
// request logging, then metrics closest to the upstream call so recorded
// durations exclude the other layers.
func (a *Adapter) pipeline(kind string, path Path) kit.Middleware {
	return kit.Chain(
		a.recoverPanics(kind, path),
		a.logAttempt(kind, path),
		a.recordAttempt(kind, path),
	)
}

// recoverPanics converts a panicking upstream call into an error so one bad
// response cannot take down the whole server.
func (a *Adapter) recoverPanics(kind string, path Path) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (res any, err error) {
			defer func() {
				if p := recover(); p != nil {
					a.logger.ErrorContext(ctx, "dualpath: recovered panic",
						"kind", kind, "path", string(path), "panic", p)
					res, err = nil, fmt.Errorf("dualpath: %s panicked on %s path: %v", kind, path, p)
				}
			}()
			return next(ctx, req)
		}
	}
}

// logAttempt emits one debug line per attempt with the request-scoped
// identity the transports stashed in the context.
func (a *Adapter) logAttempt(kind string, path Path) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			a.logger.DebugContext(ctx, "dualpath: attempt",
				"kind", kind,
				"path", string(path),
				"transport", kit.GetTransport(ctx),
				"tool", kit.GetTool(ctx),
				"trace_id", kit.GetTraceID(ctx),
				"remote", kit.GetRemoteAddr(ctx))
			return next(ctx, req)
		}
	}
}

// recordAttempt reports kind, path, classified outcome and elapsed time to
// the recorder, when one is attached.
func (a *Adapter) recordAttempt(kind string, path Path) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			res, err := next(ctx, req)
			if a.recorder != nil {
				outcome := "ok"
				if err != nil {
					outcome = a.routes.classify(err).String()
				}
				a.recorder.RecordCall(kind, string(path), outcome, time.Since(start))
			}
			return res, err
		}
	}
}
