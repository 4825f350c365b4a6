package model

import (
	"context"

	"github.com/google/uuid"
)

// Principal is the verified identity attached to a request.
type Principal struct {
	UserID    uuid.UUID
	SessionID string
	Roles     []string
}

// HasRole reports whether the principal carries the given role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ContextManager stores and retrieves the request principal.
type ContextManager interface {
	SetPrincipal(ctx context.Context, principal Principal) context.Context
	GetPrincipal(ctx context.Context) (Principal, bool)
}
