package models

import (
	"time"

	"github.com/civicconnect/civic-backend/pkg/enums"
	"github.com/google/uuid"
)

// Issue is a citizen-reported civic problem.
type Issue struct {
	ID                   uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Title                string              `gorm:"type:text;not null"`
	Description          string              `gorm:"type:text;not null"`
	Category             enums.IssueCategory `gorm:"type:text;not null"`
	Status               enums.IssueStatus   `gorm:"type:text;not null;default:reported"`
	Priority             enums.Priority      `gorm:"type:text;not null;default:medium"`
	ReportedBy           uuid.UUID           `gorm:"type:uuid;not null"`
	AssignedTo           *uuid.UUID          `gorm:"type:uuid"`
	AssignedBy           *uuid.UUID          `gorm:"type:uuid"`
	AssignedAt           *time.Time          `gorm:"type:timestamptz"`
	LocationName         string              `gorm:"column:location_name;type:text;not null"`
	Latitude             float64             `gorm:"not null"`
	Longitude            float64             `gorm:"not null"`
	Address              *string             `gorm:"type:text"`
	Upvotes              int                 `gorm:"not null;default:0"`
	ResolvedAt           *time.Time          `gorm:"type:timestamptz"`
	ClosedAt             *time.Time          `gorm:"type:timestamptz"`
	ActualResolutionDays *int                `gorm:"column:actual_resolution_days"`
	CreatedAt            time.Time           `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"type:timestamptz;autoUpdateTime"`

	StatusHistory []IssueStatusHistory `gorm:"foreignKey:IssueID"`
}

// IssueStatusHistory is the append-only status log for an issue.
type IssueStatusHistory struct {
	ID        uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	IssueID   uuid.UUID         `gorm:"type:uuid;not null;index"`
	Status    enums.IssueStatus `gorm:"type:text;not null"`
	ChangedBy uuid.UUID         `gorm:"type:uuid;not null"`
	Reason    *string           `gorm:"type:text"`
	CreatedAt time.Time         `gorm:"type:timestamptz;autoCreateTime"`
}

func (IssueStatusHistory) TableName() string { return "issue_status_history" }

// IssueUpvote is one member of an issue's voter set. The composite primary key
// enforces at most one vote per user.
type IssueUpvote struct {
	IssueID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}
