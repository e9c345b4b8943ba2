package models

import (
	"time"

	"github.com/civicconnect/civic-backend/pkg/enums"
	"github.com/google/uuid"
)

// User represents the canonical identity entity.
type User struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name               string         `gorm:"column:name;not null"`
	Email              string         `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash       string         `gorm:"column:password_hash;not null"`
	Phone              *string        `gorm:"column:phone"`
	Role               enums.UserRole `gorm:"column:role;type:text;not null;default:citizen"`
	IsActive           bool           `gorm:"column:is_active;not null"`
	EmailNotifications bool           `gorm:"column:email_notifications;not null"`
	LastLoginAt        *time.Time     `gorm:"column:last_login_at"`
	CreatedAt          time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// WantsEmail reports whether transactional mail may be sent to the user.
func (u User) WantsEmail() bool {
	return u.IsActive && u.EmailNotifications && u.Email != "" && u.Role != enums.UserRoleGuest
}
