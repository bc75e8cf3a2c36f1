package models

import "github.com/google/uuid"

// Identity is the caller resolved from an access token. It carries everything
// authorization checks need so they never have to hit the store.
type Identity struct {
	ID      uuid.UUID `json:"id"`
	Email   string    `json:"email"`
	Name    string    `json:"name"`
	Role    Role      `json:"role"`
	IsAdmin bool      `json:"is_admin"`
}
