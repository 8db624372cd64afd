package transport

import "context"

type retryKey struct{}

// WithoutRefresh marks requests made with ctx as already retried, so a 401
// is returned as-is instead of triggering a refresh.
func WithoutRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, retryKey{}, true)
}

func isRetry(ctx context.Context) bool {
	v, _ := ctx.Value(retryKey{}).(bool)
	return v
}
