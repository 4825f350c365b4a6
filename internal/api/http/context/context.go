package context

import (
	"context"

	"github.com/bizboard/auth-server/internal/model"
)

type principalKey struct{}

// Manager stores and retrieves the request principal in a plain context
// value.
type Manager struct{}

// NewManager creates a new HTTP context manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// SetPrincipal returns a child context carrying the principal.
func (m *Manager) SetPrincipal(ctx context.Context, principal model.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// GetPrincipal retrieves the principal from the context.
// Returns the principal and a boolean indicating if one was set.
func (m *Manager) GetPrincipal(ctx context.Context) (model.Principal, bool) {
	principal, ok := ctx.Value(principalKey{}).(model.Principal)
	return principal, ok
}
