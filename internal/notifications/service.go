package notifications

import (
	"context"
	"time"

	"github.com/civicconnect/civic-backend/pkg/db/models"
	"github.com/civicconnect/civic-backend/pkg/enums"
	pkgerrors "github.com/civicconnect/civic-backend/pkg/errors"
	"github.com/civicconnect/civic-backend/pkg/pagination"
	"github.com/google/uuid"
)

const (
	defaultAdminPageSize = 20
	maxAdminPageSize     = 100
)

// Service defines the notification record operations used by the API.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error)
	Stats(ctx context.Context, recipientID uuid.UUID) (*Stats, error)
	AdminList(ctx context.Context, filter AdminListFilter) (*AdminPage, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// ListParams configures pagination for a user's notifications.
type ListParams struct {
	RecipientID uuid.UUID
	Limit       int
	Cursor      string
	UnreadOnly  bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []NotificationDTO `json:"items"`
	Cursor string            `json:"cursor"`
}

// Stats summarises a user's active notifications.
type Stats struct {
	Total  int64                            `json:"total"`
	Unread int64                            `json:"unread"`
	ByKind map[enums.NotificationKind]int64 `json:"by_kind"`
}

// AdminListFilter narrows the administrative record listing.
type AdminListFilter struct {
	Kind        *enums.NotificationKind
	RecipientID *uuid.UUID
	FailedOnly  bool
	Page        int
	Limit       int
}

func (f AdminListFilter) window() pagination.Window {
	return pagination.NewWindow(f.Page, f.Limit, defaultAdminPageSize, maxAdminPageSize)
}

// AdminPage is a page of records including delivery bookkeeping.
type AdminPage struct {
	Items []NotificationDTO `json:"items"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

// NotificationDTO is the transport shape of a notification record.
type NotificationDTO struct {
	ID          uuid.UUID              `json:"id"`
	RecipientID uuid.UUID              `json:"recipient_id"`
	Kind        enums.NotificationKind `json:"kind"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	IssueID     *uuid.UUID             `json:"issue_id,omitempty"`
	CommentID   *uuid.UUID             `json:"comment_id,omitempty"`
	ActorID     *uuid.UUID             `json:"actor_id,omitempty"`
	Metadata    map[string]any         `json:"metadata,omitempty"`
	IsRead      bool                   `json:"is_read"`
	ReadAt      *time.Time             `json:"read_at,omitempty"`
	Priority    enums.Priority         `json:"priority"`
	Delivery    DeliveryDTO            `json:"delivery"`
	ExpiresAt   *time.Time             `json:"expires_at,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// DeliveryDTO exposes per-channel bookkeeping.
type DeliveryDTO struct {
	Realtime ChannelStatusDTO `json:"realtime"`
	Email    ChannelStatusDTO `json:"email"`
}

// ChannelStatusDTO is the outcome of one channel attempt.
type ChannelStatusDTO struct {
	Attempted   bool       `json:"attempted"`
	AttemptedAt *time.Time `json:"attempted_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
}

// FromModel converts a record into its DTO.
func FromModel(n *models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Kind:        n.Kind,
		Title:       n.Title,
		Message:     n.Message,
		IssueID:     n.IssueID,
		CommentID:   n.CommentID,
		ActorID:     n.ActorID,
		Metadata:    n.Metadata,
		IsRead:      n.IsRead,
		ReadAt:      n.ReadAt,
		Priority:    n.Priority,
		Delivery: DeliveryDTO{
			Realtime: ChannelStatusDTO{Attempted: n.RealtimeAttempted, AttemptedAt: n.RealtimeAttemptedAt, Error: n.RealtimeError},
			Email:    ChannelStatusDTO{Attempted: n.EmailAttempted, AttemptedAt: n.EmailAttemptedAt, Error: n.EmailError},
		},
		ExpiresAt: n.ExpiresAt,
		CreatedAt: n.CreatedAt,
	}
}

func fromModels(rows []models.Notification) []NotificationDTO {
	out := make([]NotificationDTO, len(rows))
	for i := range rows {
		out[i] = FromModel(&rows[i])
	}
	return out
}

// NewService wires notifications dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{repo: repo, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.RecipientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	query := listNotificationsParams{
		RecipientID: params.RecipientID,
		Limit:       params.Limit,
		UnreadOnly:  params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}

	return &ListResult{
		Items:  fromModels(rows),
		Cursor: cursor,
	}, nil
}

func (s *service) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error {
	if recipientID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, recipientID, notificationID, s.now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	if recipientID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	count, err := s.repo.MarkAllRead(ctx, recipientID, s.now())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

func (s *service) Stats(ctx context.Context, recipientID uuid.UUID) (*Stats, error) {
	if recipientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	stats, err := s.repo.Stats(ctx, recipientID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "notification stats")
	}
	return stats, nil
}

func (s *service) AdminList(ctx context.Context, filter AdminListFilter) (*AdminPage, error) {
	if filter.Kind != nil && !filter.Kind.IsValid() {
		return nil, pkgerrors.Validationf("invalid notification kind %q", *filter.Kind)
	}
	rows, total, err := s.repo.AdminList(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	w := filter.window()
	return &AdminPage{
		Items: fromModels(rows),
		Total: total,
		Page:  w.Page,
		Limit: w.Limit,
	}, nil
}
