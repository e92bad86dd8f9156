package utils

import (
	"context"
	"time"
)

// ShortTimeout bounds quick Redis round trips such as rate-limit counters
// and health checks.
const ShortTimeout = 2 * time.Second

// WithShortTimeout derives a context that expires after ShortTimeout.
func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ShortTimeout)
}
