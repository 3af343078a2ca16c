package databases

import (
	"context"
	"time"
)

// QueryObserver is told about every collection call made with a context that
// carries it
type QueryObserver func(operation, collection string, took time.Duration, err error)

type queryObserverKey struct{}

// WithQueryObserver returns a context whose collection calls report to fn
func WithQueryObserver(ctx context.Context, fn QueryObserver) context.Context {
	return context.WithValue(ctx, queryObserverKey{}, fn)
}

// ObserveQuery reports a collection call that started at start to the
// observer on ctx, if any
func ObserveQuery(ctx context.Context, operation, collection string, start time.Time, err error) {
	fn, ok := ctx.Value(queryObserverKey{}).(QueryObserver)
	if !ok || fn == nil {
		return
	}
	fn(operation, collection, time.Since(start), err)
}
