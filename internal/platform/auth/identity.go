package auth

import (
	"context"
	"strings"

	domain "github.com/craftfolio/api/internal/domain"
)

// Identity captures the authenticated principal details extracted from a
// verified bearer token. It is the transport-level view of a principal;
// services receive the richer domain.Principal resolved from storage.
type Identity struct {
	ID        string
	Email     string
	Role      domain.Role
	Superuser bool
}

// HasRole reports whether the identity carries the requested role.
func (i *Identity) HasRole(role domain.Role) bool {
	if i == nil {
		return false
	}
	return i.Role == role
}

// HasAnyRole reports whether the identity carries any of the provided roles.
func (i *Identity) HasAnyRole(roles ...domain.Role) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// IsStaff reports whether the identity may use staff surfaces.
func (i *Identity) IsStaff() bool {
	if i == nil {
		return false
	}
	return i.Superuser || i.Role.IsStaff()
}

// Principal converts the identity into a domain principal for authorization.
// Active status is asserted by the verifier; deactivated accounts never get
// this far.
func (i *Identity) Principal() *domain.Principal {
	if i == nil {
		return nil
	}
	return &domain.Principal{
		ID:        i.ID,
		Email:     strings.TrimSpace(i.Email),
		Role:      i.Role,
		Superuser: i.Superuser,
		IsActive:  true,
	}
}

type contextKey string

const identityContextKey contextKey = "github.com/craftfolio/api/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
