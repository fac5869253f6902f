package middleware

import (
	"context"
	"time"

	"github.com/xraph/conductor/workload"
)

// Timeout returns middleware that enforces an execution deadline on
// every item. A non-positive duration disables the deadline. Keep it
// below the lease duration: a handler still running when its lease
// expires is racing whichever agent claims the item next.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, item *workload.Item, next Handler) error {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
