package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/civicconnect/civic-backend/pkg/enums"
)

// Notification is the durable per-recipient record of a domain event. Delivery
// bookkeeping for the realtime and email channels is tracked independently.
type Notification struct {
	ID          uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	RecipientID uuid.UUID              `gorm:"type:uuid;not null;index"`
	Kind        enums.NotificationKind `gorm:"type:text;not null"`
	Title       string                 `gorm:"type:text;not null"`
	Message     string                 `gorm:"type:text;not null"`
	IssueID     *uuid.UUID             `gorm:"type:uuid"`
	CommentID   *uuid.UUID             `gorm:"type:uuid"`
	ActorID     *uuid.UUID             `gorm:"type:uuid"`
	Metadata    datatypes.JSONMap      `gorm:"type:jsonb"`
	IsRead      bool                   `gorm:"not null"`
	ReadAt      *time.Time             `gorm:"type:timestamptz"`
	Priority    enums.Priority         `gorm:"type:text;not null;default:medium"`

	RealtimeAttempted   bool       `gorm:"not null"`
	RealtimeAttemptedAt *time.Time `gorm:"type:timestamptz"`
	RealtimeError       *string    `gorm:"type:text"`
	EmailAttempted      bool       `gorm:"not null"`
	EmailAttemptedAt    *time.Time `gorm:"type:timestamptz"`
	EmailError          *string    `gorm:"type:text"`

	ExpiresAt *time.Time `gorm:"type:timestamptz"`
	Active    bool       `gorm:"not null"`
	CreatedAt time.Time  `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
}
