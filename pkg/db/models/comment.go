package models

import (
	"time"

	"github.com/google/uuid"
)

// DeletedCommentContent replaces the body of a soft-deleted comment.
const DeletedCommentContent = "[This comment has been deleted]"

// Comment is a remark on an issue with one level of threading.
type Comment struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	IssueID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	AuthorID    uuid.UUID  `gorm:"type:uuid;not null"`
	Content     string     `gorm:"type:text;not null"`
	IsInternal  bool       `gorm:"not null"`
	IsFromStaff bool       `gorm:"not null"`
	ParentID    *uuid.UUID `gorm:"type:uuid"`
	IsEdited    bool       `gorm:"not null"`
	EditedAt    *time.Time `gorm:"type:timestamptz"`
	IsDeleted   bool       `gorm:"not null"`
	DeletedAt   *time.Time `gorm:"type:timestamptz"`
	CreatedAt   time.Time  `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
}
