package api

import (
	"context"
	"time"
)

// QueryTimeout is the default timeout for store calls made by a handler
const QueryTimeout = 10 * time.Second

// WithQueryTimeout bounds store work started from parent. A parent that
// already expires sooner keeps its own deadline.
func WithQueryTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if dl, ok := parent.Deadline(); ok && time.Until(dl) < QueryTimeout {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, QueryTimeout)
}

type requestIDKey struct{}

// WithRequestID stores the request id on ctx
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the id assigned by RequestLogger, or ""
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
