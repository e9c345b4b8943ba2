package auth

import (
	"github.com/civicconnect/civic-backend/pkg/enums"
	"github.com/google/uuid"
)

// Actor is the authenticated identity performing a request.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// IsAdmin reports whether the actor may use admin surfaces.
func (a Actor) IsAdmin() bool {
	return a.Role.IsAdmin()
}

// IsStaff reports whether the actor holds any municipal role.
func (a Actor) IsStaff() bool {
	return a.Role.IsStaff()
}

// Valid is false for the zero Actor.
func (a Actor) Valid() bool {
	return a.UserID != uuid.Nil && a.Role.IsValid()
}
