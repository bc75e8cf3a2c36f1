package common

import (
	"servicehub/internal/models"

	"github.com/google/uuid"
)

// RequireRole fails with Forbidden unless the caller holds one of the allowed roles.
func RequireRole(identity *models.Identity, allowed ...models.Role) error {
	if identity == nil {
		return NewAuthError(Unauthenticated, "authentication required")
	}
	for _, r := range allowed {
		if identity.Role == r {
			return nil
		}
	}
	return NewAuthError(Forbidden, "role not permitted for this operation")
}

// RequireAdmin fails with Forbidden unless the caller is an administrator.
func RequireAdmin(identity *models.Identity) error {
	if identity == nil {
		return NewAuthError(Unauthenticated, "authentication required")
	}
	if !identity.IsAdmin {
		return NewAuthError(Forbidden, "administrator access required")
	}
	return nil
}

// RequireOwnerOrAdmin fails with Forbidden unless the caller owns the resource
// or is an administrator.
func RequireOwnerOrAdmin(identity *models.Identity, ownerID uuid.UUID) error {
	if identity == nil {
		return NewAuthError(Unauthenticated, "authentication required")
	}
	if identity.IsAdmin || (identity.ID != uuid.Nil && identity.ID == ownerID) {
		return nil
	}
	return NewAuthError(Forbidden, "only the owner or an administrator may do this")
}
