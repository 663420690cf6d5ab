package scheduler

import (
	"context"
	"log/slog"

	"github.com/karupanerura/handle-cache/logging"
)

type requestContextKey struct{}

func withRequestContext(ctx context.Context, reqCtx any) context.Context {
	return context.WithValue(ctx, requestContextKey{}, reqCtx)
}

// RequestContext returns the request context of the work that ctx was handed to.
func RequestContext(ctx context.Context) (any, bool) {
	v := ctx.Value(requestContextKey{})
	return v, v != nil
}

// RequestContextExtractor adds the request context as a "request" attribute.
// Pass it to logging.NewHandler.
func RequestContextExtractor(ctx context.Context) (slog.Attr, bool) {
	v, ok := RequestContext(ctx)
	if !ok {
		return slog.Attr{}, false
	}
	return slog.Any("request", v), true
}

var _ logging.ContextExtractor = RequestContextExtractor
