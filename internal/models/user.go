package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleConsumer Role = "consumer"
	RoleProvider Role = "provider"
)

// Roles lists every assignable role.
var Roles = []Role{RoleConsumer, RoleProvider}

func (r Role) Valid() bool {
	return r == RoleConsumer || r == RoleProvider
}

type User struct {
	ID              uuid.UUID `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	Email           string    `json:"email" db:"email"`
	PasswordHash    string    `json:"-" db:"password_hash"` // Never serialize in JSON
	Role            Role      `json:"role" db:"role"`
	IsAdmin         bool      `json:"is_admin" db:"is_admin"`
	Location        string    `json:"location" db:"location"`
	ContactNumber   *string   `json:"contact_number,omitempty" db:"contact_number"`
	ProfileImage    string    `json:"profile_image" db:"profile_image"`
	Bio             string    `json:"bio" db:"bio"`
	IsActive        bool      `json:"is_active" db:"is_active"`
	IsEmailVerified bool      `json:"is_email_verified" db:"is_email_verified"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`

	// Only populated by the sensitive projection.
	RefreshToken          *string    `json:"-" db:"refresh_token"`
	RefreshTokenExpiresAt *time.Time `json:"-" db:"refresh_token_expires_at"`

	// pendingPassword holds a plaintext password until the credential store hashes it.
	pendingPassword string
}

// SetPassword stages a new plaintext password. The stored hash is only
// recomputed when a password has been staged.
func (u *User) SetPassword(plain string) {
	u.pendingPassword = plain
}

// PendingPassword returns the staged plaintext password, if any.
func (u *User) PendingPassword() (string, bool) {
	return u.pendingPassword, u.pendingPassword != ""
}

// ClearPendingPassword drops the staged plaintext once it has been hashed.
func (u *User) ClearPendingPassword() {
	u.pendingPassword = ""
}

func (u *User) IsProvider() bool {
	return u.Role == RoleProvider
}

// Identity returns the token-facing view of the user.
func (u *User) Identity() Identity {
	return Identity{
		ID:      u.ID,
		Email:   u.Email,
		Name:    u.Name,
		Role:    u.Role,
		IsAdmin: u.IsAdmin,
	}
}

// ProviderProfile is the public view of a provider with its derived listing count.
type ProviderProfile struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Location      string    `json:"location"`
	ContactNumber *string   `json:"contact_number,omitempty"`
	ProfileImage  string    `json:"profile_image"`
	Bio           string    `json:"bio"`
	ServicesCount int       `json:"services_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// RegisterInput is the set of fields accepted at registration.
type RegisterInput struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	Role          Role   `json:"role"`
	Location      string `json:"location"`
	ContactNumber string `json:"contact_number"`
	Bio           string `json:"bio"`
}
