package model

import (
	"context"
	"strings"
)

// RequestContext carries tracing and presentation information for the
// lifetime of one request. It is immutable after construction and safe for
// concurrent reads.
type RequestContext struct {
	CorrelationID  string
	TraceID        string
	SpanID         string
	Locale         string
	IdempotencyKey string
}

// LocaleOr returns the primary language tag of the request locale, or def
// when none was negotiated. "pt-BR,pt;q=0.9" yields "pt-BR".
func (rc *RequestContext) LocaleOr(def string) string {
	if rc == nil || rc.Locale == "" {
		return def
	}
	tag := rc.Locale
	if i := strings.IndexAny(tag, ",;"); i >= 0 {
		tag = tag[:i]
	}
	tag = strings.TrimSpace(tag)
	if tag == "" || tag == "*" {
		return def
	}
	return tag
}

type contextKey struct{}

// WithRequestContext attaches a RequestContext to the given context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom extracts the RequestContext from the context, or returns nil
// if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}

// MustRequestContext extracts the RequestContext from the context, panicking if
// it is not present. Handlers mounted behind the request-context middleware may
// call it safely.
func MustRequestContext(ctx context.Context) *RequestContext {
	rctx := RequestContextFrom(ctx)
	if rctx == nil {
		panic("model: RequestContext not found in context")
	}
	return rctx
}
