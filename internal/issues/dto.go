package issues

import (
	"strings"
	"time"

	"github.com/civicconnect/civic-backend/internal/users"
	"github.com/civicconnect/civic-backend/pkg/db/models"
	"github.com/civicconnect/civic-backend/pkg/enums"
	"github.com/civicconnect/civic-backend/pkg/pagination"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	maxTitleLength       = 200
	maxDescriptionLength = 1000
)

// CreateIssueRequest is the body accepted when a citizen reports an issue.
type CreateIssueRequest struct {
	Title        string              `json:"title" validate:"required,max=200"`
	Description  string              `json:"description" validate:"required,max=1000"`
	Category     enums.IssueCategory `json:"category" validate:"required"`
	Priority     enums.Priority      `json:"priority,omitempty"`
	LocationName string              `json:"location_name" validate:"required,max=200"`
	Latitude     float64             `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude    float64             `json:"longitude" validate:"gte=-180,lte=180"`
	Address      *string             `json:"address,omitempty" validate:"omitempty,max=300"`
}

// UpdateIssueRequest edits the descriptive fields. Nil fields are untouched.
type UpdateIssueRequest struct {
	Title       *string              `json:"title,omitempty" validate:"omitempty,max=200"`
	Description *string              `json:"description,omitempty" validate:"omitempty,max=1000"`
	Category    *enums.IssueCategory `json:"category,omitempty"`
	Priority    *enums.Priority      `json:"priority,omitempty"`
}

// StatusChangeRequest is the admin body for PUT /admin/issues/{id}/status.
type StatusChangeRequest struct {
	Status enums.IssueStatus `json:"status" validate:"required"`
	Reason *string           `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// AssignRequest is the admin body for PUT /admin/issues/{id}/assign.
type AssignRequest struct {
	AssigneeID uuid.UUID `json:"assignee_id" validate:"required"`
	Note       *string   `json:"note,omitempty" validate:"omitempty,max=500"`
}

// SortField enumerates the supported list orderings.
type SortField string

const (
	SortCreatedAt SortField = "created_at"
	SortUpvotes   SortField = "upvotes"
	SortPriority  SortField = "priority"
)

// ListFilter narrows issue listings.
type ListFilter struct {
	Status     *enums.IssueStatus
	Category   *enums.IssueCategory
	Priority   *enums.Priority
	AssignedTo *uuid.UUID
	ReportedBy *uuid.UUID
	Search     string
	Sort       SortField
	Ascending  bool
	Page       int
	Limit      int
}

func (f ListFilter) window() pagination.Window {
	return pagination.NewWindow(f.Page, f.Limit, defaultPageSize, maxPageSize)
}

func (f ListFilter) searchPattern() string {
	term := strings.ToLower(strings.TrimSpace(f.Search))
	if term == "" {
		return ""
	}
	return "%" + term + "%"
}

// NearbyQuery looks up issues around a point.
type NearbyQuery struct {
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
	Limit        int
}

// IssueDTO is the transport shape of an issue.
type IssueDTO struct {
	ID                   uuid.UUID           `json:"id"`
	Title                string              `json:"title"`
	Description          string              `json:"description"`
	Category             enums.IssueCategory `json:"category"`
	Status               enums.IssueStatus   `json:"status"`
	Priority             enums.Priority      `json:"priority"`
	ReportedBy           uuid.UUID           `json:"reported_by"`
	Reporter             *users.Summary      `json:"reporter,omitempty"`
	AssignedTo           *uuid.UUID          `json:"assigned_to,omitempty"`
	Assignee             *users.Summary      `json:"assignee,omitempty"`
	AssignedBy           *uuid.UUID          `json:"assigned_by,omitempty"`
	AssignedAt           *time.Time          `json:"assigned_at,omitempty"`
	Location             LocationDTO         `json:"location"`
	Upvotes              int                 `json:"upvotes"`
	HasUpvoted           bool                `json:"has_upvoted"`
	ResolvedAt           *time.Time          `json:"resolved_at,omitempty"`
	ClosedAt             *time.Time          `json:"closed_at,omitempty"`
	ActualResolutionDays *int                `json:"actual_resolution_days,omitempty"`
	StatusHistory        []HistoryDTO        `json:"status_history,omitempty"`
	DistanceMeters       *float64            `json:"distance_meters,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// LocationDTO groups the geotag of an issue.
type LocationDTO struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   *string `json:"address,omitempty"`
}

// HistoryDTO is one status-history entry.
type HistoryDTO struct {
	Status    enums.IssueStatus `json:"status"`
	ChangedBy uuid.UUID         `json:"changed_by"`
	Reason    *string           `json:"reason,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Page is a page of issues plus paging metadata.
type Page struct {
	Items []IssueDTO `json:"items"`
	Total int64      `json:"total"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
}

// UpvoteResult reports the counter after an upvote toggle.
type UpvoteResult struct {
	Upvotes    int  `json:"upvotes"`
	HasUpvoted bool `json:"has_upvoted"`
}

// Stats aggregates the admin dashboard counters.
type Stats struct {
	Total                 int64                         `json:"total"`
	ByStatus              map[enums.IssueStatus]int64   `json:"by_status"`
	ByCategory            map[enums.IssueCategory]int64 `json:"by_category"`
	AverageResolutionDays *float64                      `json:"average_resolution_days,omitempty"`
}

// FromModel converts an issue row into its DTO.
func FromModel(issue *models.Issue) IssueDTO {
	dto := IssueDTO{
		ID:          issue.ID,
		Title:       issue.Title,
		Description: issue.Description,
		Category:    issue.Category,
		Status:      issue.Status,
		Priority:    issue.Priority,
		ReportedBy:  issue.ReportedBy,
		AssignedTo:  issue.AssignedTo,
		AssignedBy:  issue.AssignedBy,
		AssignedAt:  issue.AssignedAt,
		Location: LocationDTO{
			Name:      issue.LocationName,
			Latitude:  issue.Latitude,
			Longitude: issue.Longitude,
			Address:   issue.Address,
		},
		Upvotes:              issue.Upvotes,
		ResolvedAt:           issue.ResolvedAt,
		ClosedAt:             issue.ClosedAt,
		ActualResolutionDays: issue.ActualResolutionDays,
		CreatedAt:            issue.CreatedAt,
		UpdatedAt:            issue.UpdatedAt,
	}
	for _, h := range issue.StatusHistory {
		dto.StatusHistory = append(dto.StatusHistory, HistoryDTO{
			Status:    h.Status,
			ChangedBy: h.ChangedBy,
			Reason:    h.Reason,
			CreatedAt: h.CreatedAt,
		})
	}
	return dto
}
