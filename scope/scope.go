// Package scope carries tenant identity on context.Context.
//
// The identity/session provider that resolves an opaque caller token into
// a tenant identifier lives outside this module; the transport layer is
// expected to call WithTenant once per request, and the engine trusts the
// context from there on. It never re-derives the mapping.
package scope

import (
	"context"

	"github.com/xraph/conductor/id"
)

type ctxKey struct{}

// WithTenant attaches a tenant identifier to the context.
func WithTenant(ctx context.Context, tenantID id.TenantID) context.Context {
	return context.WithValue(ctx, ctxKey{}, tenantID)
}

// TenantFrom extracts the tenant identifier from the context.
// The second return value is false if no tenant scope is present.
func TenantFrom(ctx context.Context) (id.TenantID, bool) {
	t, ok := ctx.Value(ctxKey{}).(id.TenantID)
	if !ok || t.IsNil() {
		return id.Nil, false
	}
	return t, true
}
