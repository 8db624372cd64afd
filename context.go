package authclient

import (
	"context"

	"github.com/MrEthical07/authclient/internal/logger"
)

// WithCorrelationID attaches id to ctx. Requests sent with ctx carry it in
// the X-Correlation-ID header and log lines include it.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return logger.WithCorrelationID(ctx, id)
}

// CorrelationID returns the id attached by WithCorrelationID.
func CorrelationID(ctx context.Context) string {
	return logger.CorrelationIDFromContext(ctx)
}
