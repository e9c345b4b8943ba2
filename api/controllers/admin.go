package controllers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/civicconnect/civic-backend/api/responses"
	"github.com/civicconnect/civic-backend/api/validators"
	"github.com/civicconnect/civic-backend/internal/auth"
	"github.com/civicconnect/civic-backend/internal/issues"
	"github.com/civicconnect/civic-backend/internal/notifications"
	"github.com/civicconnect/civic-backend/internal/users"
	"github.com/civicconnect/civic-backend/pkg/enums"
	pkgerrors "github.com/civicconnect/civic-backend/pkg/errors"
	"github.com/civicconnect/civic-backend/pkg/logger"
)

// EventEnqueuer hands a notification event to the async dispatcher.
type EventEnqueuer interface {
	Enqueue(ctx context.Context, e notifications.Event) bool
}

type announcementRequest struct {
	Title     string                   `json:"title" validate:"required,max=200"`
	Message   string                   `json:"message" validate:"required,max=500"`
	Target    enums.AnnouncementTarget `json:"target_group" validate:"required"`
	Priority  enums.Priority           `json:"priority,omitempty"`
	ExpiresAt *time.Time               `json:"expires_at,omitempty"`
}

type directMessageRequest struct {
	Title    string         `json:"title" validate:"required,max=200"`
	Message  string         `json:"message" validate:"required,max=500"`
	Priority enums.Priority `json:"priority,omitempty"`
}

type queuedResponse struct {
	Status string `json:"status"`
}

// AdminAssignIssue assigns an issue to a staff member.
func AdminAssignIssue(svc issues.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "issues service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := uuidParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body issues.AssignRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		issue, err := svc.Assign(r.Context(), actor, id, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, issue)
	}
}

// AdminChangeIssueStatus moves an issue through its lifecycle.
func AdminChangeIssueStatus(svc issues.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "issues service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := uuidParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body issues.StatusChangeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		issue, err := svc.ChangeStatus(r.Context(), actor, id, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, issue)
	}
}

func AdminListUsers(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "users service unavailable"))
			return
		}

		var filter users.ListFilter
		var err error
		if filter.Role, err = validators.OptionalQuery(r, "role", enums.ParseUserRole); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.IsActive, err = validators.OptionalQuery(r, "isActive", strconv.ParseBool); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.Search = validators.SanitizeString(r.URL.Query().Get("search"), 100)
		if filter.Page, err = validators.ParseQueryInt(r, "page", 1, 1, 10000); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.Limit, err = validators.ParseQueryInt(r, "limit", 0, 1, 100); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// AdminUpdateUser changes a user's role or active flag.
func AdminUpdateUser(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "users service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := uuidParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body users.AdminUpdate
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		user, err := svc.AdminUpdate(r.Context(), actor.UserID, userID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, user)
	}
}

// AdminCreateStaff provisions a staff account. A generated password is
// returned once in the response.
func AdminCreateStaff(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body auth.CreateStaffRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		body.Name = validators.SanitizeString(body.Name, 100)

		result, err := svc.CreateStaff(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// AdminSendMessage queues a direct admin message to one user.
func AdminSendMessage(queue EventEnqueuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if queue == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification queue unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := uuidParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body directMessageRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		msg := notifications.DirectMessage{
			RecipientID: userID,
			Title:       validators.SanitizeString(body.Title, 200),
			Message:     validators.SanitizeString(body.Message, 500),
			Priority:    body.Priority,
		}
		if err := msg.Validate(); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if !queue.Enqueue(r.Context(), notifications.AdminMessage(actor.UserID, msg)) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "notification queue is full"))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, queuedResponse{Status: "queued"})
	}
}

// AdminBroadcastAnnouncement queues a system announcement for a target group.
func AdminBroadcastAnnouncement(queue EventEnqueuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if queue == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification queue unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body announcementRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		announcement := notifications.Announcement{
			Title:     validators.SanitizeString(body.Title, 200),
			Message:   validators.SanitizeString(body.Message, 500),
			Target:    body.Target,
			Priority:  body.Priority,
			ExpiresAt: body.ExpiresAt,
		}
		if err := announcement.Validate(); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if announcement.ExpiresAt != nil && !announcement.ExpiresAt.After(time.Now()) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "expires_at must be in the future"))
			return
		}

		if !queue.Enqueue(r.Context(), notifications.AnnouncementBroadcast(actor.UserID, announcement)) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "notification queue is full"))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, queuedResponse{Status: "queued"})
	}
}

// AdminListNotifications exposes every record, including delivery outcomes.
func AdminListNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}

		var filter notifications.AdminListFilter
		var err error
		if filter.Kind, err = validators.OptionalQuery(r, "kind", enums.ParseNotificationKind); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.RecipientID, err = validators.OptionalQuery(r, "recipientId", uuid.Parse); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		failed, err := validators.OptionalQuery(r, "failedOnly", strconv.ParseBool)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.FailedOnly = failed != nil && *failed
		if filter.Page, err = validators.ParseQueryInt(r, "page", 1, 1, 10000); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.Limit, err = validators.ParseQueryInt(r, "limit", 0, 1, 100); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.AdminList(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
