package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/pixivmcp/dualpath"
	"github.com/hazyhaar/pixivmcp/kit"
	"github.com/hazyhaar/pixivmcp/pixivapi"
)

// Failure is the uniform error shape every caller sees, regardless of which
// internal stage failed.
type Failure struct {
	Kind    string `json:"kind"` // validation | auth | path | upstream
	Message string `json:"message"`
}

const (
	FailureValidation = "validation"
	FailureAuth       = "auth"
	FailurePath       = "path"
	FailureUpstream   = "upstream"
)

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Router is the stateless coordination point: validate, execute through the
// adapter, normalize failures. It holds no per-request state.
type Router struct {
	adapter *dualpath.Adapter
	logger  *slog.Logger
}

// RouterOption customises Router construction.
type RouterOption func(*Router)

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// NewRouter builds the router and verifies every operation kind has a route,
// so misconfiguration surfaces at startup rather than on first call.
func NewRouter(adapter *dualpath.Adapter, opts ...RouterOption) *Router {
	r := &Router{adapter: adapter, logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// hintArgs extracts the optional per-call path hint shared by all kinds.
type hintArgs struct {
	Path string `json:"path"`
}

// Handle validates and executes one operation. The returned Failure is nil
// exactly when the result is non-nil.
func (r *Router) Handle(ctx context.Context, kind Kind, args json.RawMessage) (any, *Failure) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, r.fail(ctx, kind, err)
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	var h hintArgs
	if err := json.Unmarshal(args, &h); err != nil {
		return nil, r.fail(ctx, kind, &ValidationError{Msg: "malformed arguments: " + err.Error()})
	}
	var hint dualpath.Path
	switch h.Path {
	case "":
		hint = dualpath.PathAuto
	case string(dualpath.PathStandard):
		hint = dualpath.PathStandard
	case string(dualpath.PathBypass):
		hint = dualpath.PathBypass
	default:
		return nil, r.fail(ctx, kind, &ValidationError{Field: "path", Msg: "must be standard or bypass"})
	}

	fn, err := r.invoke(kind, args)
	if err != nil {
		return nil, r.fail(ctx, kind, err)
	}

	ctx = kit.WithTool(ctx, ToolPrefix+string(kind))
	res, err := r.adapter.Do(ctx, string(kind), hint, fn)
	if err != nil {
		return nil, r.fail(ctx, kind, err)
	}
	return res, nil
}

// invoke decodes and validates arguments, returning the adapter closure for
// the operation. Validation failures surface before any backend contact.
func (r *Router) invoke(kind Kind, args json.RawMessage) (dualpath.Invoke, error) {
	decode := func(dst any) error {
		if err := json.Unmarshal(args, dst); err != nil {
			return &ValidationError{Msg: "malformed arguments: " + err.Error()}
		}
		return nil
	}

	switch kind {
	case KindSearchIllust:
		var a searchIllustArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		p, err := a.validate()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, api pixivapi.API, tok string) (any, error) {
			return api.SearchIllust(ctx, tok, p)
		}, nil

	case KindSearchNovel:
		var a searchNovelArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		p, err := a.validate()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, api pixivapi.API, tok string) (any, error) {
			return api.SearchNovel(ctx, tok, p)
		}, nil

	case KindSearchUser:
		var a searchUserArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		p, err := a.validate()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, api pixivapi.API, tok string) (any, error) {
			return api.SearchUser(ctx, tok, p)
		}, nil

	case KindIllustRanking:
		var a rankingArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		p, err := a.validate()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, api pixivapi.API, tok string) (any, error) {
			return api.IllustRanking(ctx, tok, p)
		}, nil

	case KindNovelRanking:
		var a rankingArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		p, err := a.validate()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, api pixivapi.API, tok string) (any, error) {
			return api.NovelRanking(ctx, tok, p)
		}, nil

	case KindIllustDetail:
		var a idArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		id, err := a.requireIllust()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, api pixivapi.API, tok string) (any, error) {
			return api.IllustDetail(ctx, tok, id)
		}, nil

	case KindUserDetail:
		var a idArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		id, err := a.requireUser()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, api pixivapi.API, tok string) (any, error) {
			return api.UserDetail(ctx, tok, id)
		}, nil

	case KindNovelDetail:
		var a idArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		id, err := a.requireNovel()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, api pixivapi.API, tok string) (any, error) {
			return api.NovelDetail(ctx, tok, id)
		}, nil

	case KindNovelText:
		var a idArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		id, err := a.requireNovel()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, api pixivapi.API, tok string) (any, error) {
			return api.NovelText(ctx, tok, id)
		}, nil

	case KindDownloadIllust:
		var a downloadArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		p, err := a.validate()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, api pixivapi.API, tok string) (any, error) {
			return api.Download(ctx, tok, p)
		}, nil

	case KindUserIllusts:
		var a userWorksArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		p, err := a.validate()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, api pixivapi.API, tok string) (any, error) {
			return api.UserIllusts(ctx, tok, p)
		}, nil

	case KindUserNovels:
		var a userWorksArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		p, err := a.validate()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, api pixivapi.API, tok string) (any, error) {
			return api.UserNovels(ctx, tok, p)
		}, nil

	case KindTrendingTags:
		var a trendingTagsArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		limit, err := a.validate()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, api pixivapi.API, tok string) (any, error) {
			return api.TrendingTags(ctx, tok, limit)
		}, nil
	}

	return nil, &ValidationError{Field: "kind", Msg: fmt.Sprintf("unknown operation %q", kind)}
}

// fail converts any error into the uniform Failure shape. Unclassified
// errors become upstream failures with the original message preserved.
func (r *Router) fail(ctx context.Context, kind Kind, err error) *Failure {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return &Failure{Kind: FailureValidation, Message: ve.Error()}
	}

	var f *Failure
	switch r.adapter.Classify(err) {
	case dualpath.ClassAuth, dualpath.ClassFatalAuth:
		f = &Failure{Kind: FailureAuth, Message: err.Error()}
	case dualpath.ClassPath:
		f = &Failure{Kind: FailurePath, Message: err.Error()}
	default:
		f = &Failure{Kind: FailureUpstream, Message: err.Error()}
	}
	r.logger.ErrorContext(ctx, "dispatch: operation failed",
		"kind", kind, "failure", f.Kind, "error", err)
	return f
}
