package comments

import (
	"time"

	"github.com/civicconnect/civic-backend/internal/users"
	"github.com/civicconnect/civic-backend/pkg/db/models"
	"github.com/civicconnect/civic-backend/pkg/pagination"
	"github.com/google/uuid"
)

const (
	maxContentLength = 1000
	defaultPageSize  = 50
	maxPageSize      = 100
)

// CreateCommentRequest is the body for POST /issues/{id}/comments.
type CreateCommentRequest struct {
	Content    string     `json:"content" validate:"required,max=1000"`
	IsInternal bool       `json:"is_internal"`
	ParentID   *uuid.UUID `json:"parent_id,omitempty"`
}

// UpdateCommentRequest replaces the comment body.
type UpdateCommentRequest struct {
	Content string `json:"content" validate:"required,max=1000"`
}

// ListParams pages through an issue's comments.
type ListParams struct {
	Page  int
	Limit int
}

func (p ListParams) window() pagination.Window {
	return pagination.NewWindow(p.Page, p.Limit, defaultPageSize, maxPageSize)
}

// CommentDTO is the transport shape of a comment.
type CommentDTO struct {
	ID          uuid.UUID      `json:"id"`
	IssueID     uuid.UUID      `json:"issue_id"`
	Author      *users.Summary `json:"author,omitempty"`
	AuthorID    uuid.UUID      `json:"author_id"`
	Content     string         `json:"content"`
	IsInternal  bool           `json:"is_internal"`
	IsFromStaff bool           `json:"is_from_staff"`
	ParentID    *uuid.UUID     `json:"parent_id,omitempty"`
	IsEdited    bool           `json:"is_edited"`
	EditedAt    *time.Time     `json:"edited_at,omitempty"`
	IsDeleted   bool           `json:"is_deleted"`
	DeletedAt   *time.Time     `json:"deleted_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Page is a page of comments.
type Page struct {
	Items []CommentDTO `json:"items"`
	Total int64        `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}

func fromModel(c *models.Comment, author *models.User) CommentDTO {
	return CommentDTO{
		ID:          c.ID,
		IssueID:     c.IssueID,
		Author:      users.SummaryFromModel(author),
		AuthorID:    c.AuthorID,
		Content:     c.Content,
		IsInternal:  c.IsInternal,
		IsFromStaff: c.IsFromStaff,
		ParentID:    c.ParentID,
		IsEdited:    c.IsEdited,
		EditedAt:    c.EditedAt,
		IsDeleted:   c.IsDeleted,
		DeletedAt:   c.DeletedAt,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}
