package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/civicconnect/civic-backend/pkg/db/models"
	"github.com/civicconnect/civic-backend/pkg/enums"
	"github.com/civicconnect/civic-backend/pkg/pagination"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID                 uuid.UUID      `json:"id"`
	Name               string         `json:"name"`
	Email              string         `json:"email"`
	Phone              *string        `json:"phone,omitempty"`
	Role               enums.UserRole `json:"role"`
	IsActive           bool           `json:"is_active"`
	EmailNotifications bool           `json:"email_notifications"`
	LastLoginAt        *time.Time     `json:"last_login_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Summary is the compact user shape embedded in issues and comments.
type Summary struct {
	ID   uuid.UUID      `json:"id"`
	Name string         `json:"name"`
	Role enums.UserRole `json:"role"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Name         string
	Email        string
	PasswordHash string
	Phone        *string
	Role         enums.UserRole
	IsActive     *bool

	// EmailNotifications defaults to true.
	EmailNotifications *bool
}

// UpdateUserDTO carries a partial update; nil fields are left untouched.
type UpdateUserDTO struct {
	Name               *string
	Phone              *string
	EmailNotifications *bool
	Role               *enums.UserRole
	IsActive           *bool
}

// ListFilter narrows the admin user listing.
type ListFilter struct {
	Role     *enums.UserRole
	IsActive *bool
	Search   string
	Page     int
	Limit    int
}

func (f ListFilter) window() pagination.Window {
	return pagination.NewWindow(f.Page, f.Limit, defaultPageSize, maxPageSize)
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}

	return &UserDTO{
		ID:                 u.ID,
		Name:               u.Name,
		Email:              u.Email,
		Phone:              u.Phone,
		Role:               u.Role,
		IsActive:           u.IsActive,
		EmailNotifications: u.EmailNotifications,
		LastLoginAt:        u.LastLoginAt,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}

// SummaryFromModel trims a user down to its public identity.
func SummaryFromModel(u *models.User) *Summary {
	if u == nil {
		return nil
	}
	return &Summary{ID: u.ID, Name: u.Name, Role: u.Role}
}

func (c CreateUserDTO) ToModel() *models.User {
	isActive := true
	if c.IsActive != nil {
		isActive = *c.IsActive
	}
	role := c.Role
	if role == "" {
		role = enums.UserRoleCitizen
	}
	emailNotifications := true
	if c.EmailNotifications != nil {
		emailNotifications = *c.EmailNotifications
	}

	return &models.User{
		Name:               c.Name,
		Email:              c.Email,
		PasswordHash:       c.PasswordHash,
		Phone:              c.Phone,
		Role:               role,
		IsActive:           isActive,
		EmailNotifications: emailNotifications,
	}
}

func (u UpdateUserDTO) columns() map[string]any {
	cols := map[string]any{}
	if u.Name != nil {
		cols["name"] = *u.Name
	}
	if u.Phone != nil {
		cols["phone"] = *u.Phone
	}
	if u.EmailNotifications != nil {
		cols["email_notifications"] = *u.EmailNotifications
	}
	if u.Role != nil {
		cols["role"] = *u.Role
	}
	if u.IsActive != nil {
		cols["is_active"] = *u.IsActive
	}
	return cols
}
