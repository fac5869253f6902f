package middleware

import (
	"context"

	"github.com/xraph/conductor/scope"
	"github.com/xraph/conductor/workload"
)

// Scope returns middleware that restores the item's tenant into the
// context. This ensures handlers see the same tenant scope as the
// caller that enqueued the item.
func Scope() Middleware {
	return func(ctx context.Context, item *workload.Item, next Handler) error {
		ctx = scope.WithTenant(ctx, item.TenantID)
		return next(ctx)
	}
}
