package enums

import "fmt"

// UserRole represents the platform-wide role stored on a user.
type UserRole string

const (
	UserRoleCitizen      UserRole = "citizen"
	UserRoleAdmin        UserRole = "admin"
	UserRoleGuest        UserRole = "guest"
	UserRoleEmployee     UserRole = "employee"
	UserRoleFieldStaff   UserRole = "field-staff"
	UserRoleSupervisor   UserRole = "supervisor"
	UserRoleCommissioner UserRole = "commissioner"
)

var validUserRoles = []UserRole{
	UserRoleCitizen,
	UserRoleAdmin,
	UserRoleGuest,
	UserRoleEmployee,
	UserRoleFieldStaff,
	UserRoleSupervisor,
	UserRoleCommissioner,
}

// String implements fmt.Stringer.
func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the role may use admin surfaces.
func (r UserRole) IsAdmin() bool {
	return r == UserRoleAdmin
}

// IsStaff is true for every municipal role; citizens and guests are not staff.
func (r UserRole) IsStaff() bool {
	return r.IsValid() && r != UserRoleCitizen && r != UserRoleGuest
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
