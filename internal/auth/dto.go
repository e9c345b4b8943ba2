package auth

import (
	"github.com/civicconnect/civic-backend/internal/users"
	"github.com/civicconnect/civic-backend/pkg/enums"
)

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest creates a citizen account.
type RegisterRequest struct {
	Name     string  `json:"name" validate:"required,max=100"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=20"`
}

// RefreshRequest rotates a session. The access token may be expired.
type RefreshRequest struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// CreateStaffRequest provisions a municipal account from the admin console.
// A temporary password is generated when Password is empty.
type CreateStaffRequest struct {
	Name     string         `json:"name" validate:"required,max=100"`
	Email    string         `json:"email" validate:"required,email"`
	Role     enums.UserRole `json:"role" validate:"required"`
	Phone    *string        `json:"phone,omitempty" validate:"omitempty,max=20"`
	Password string         `json:"password,omitempty" validate:"omitempty,min=8"`
}

// TokenResponse contains the tokens and user produced by login, register and refresh.
type TokenResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	User         *users.UserDTO `json:"user"`
}

// CreateStaffResponse returns the new account and, once, its temporary password.
type CreateStaffResponse struct {
	User              *users.UserDTO `json:"user"`
	TemporaryPassword string         `json:"temporary_password,omitempty"`
}
