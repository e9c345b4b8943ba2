package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/civicconnect/civic-backend/internal/realtime"
	"github.com/civicconnect/civic-backend/pkg/db/models"
	"github.com/civicconnect/civic-backend/pkg/email"
	"github.com/civicconnect/civic-backend/pkg/enums"
	pkgerrors "github.com/civicconnect/civic-backend/pkg/errors"
	"github.com/civicconnect/civic-backend/pkg/logger"
	"github.com/civicconnect/civic-backend/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type userDirectory interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error)
	ListActiveByRoles(ctx context.Context, roles []enums.UserRole) ([]models.User, error)
}

// DispatcherParams wires the dispatcher collaborators. Publisher and Email are
// optional; a missing channel is counted as skipped.
type DispatcherParams struct {
	Repo         Repository
	Users        userDirectory
	Publisher    Publisher
	Email        email.Sender
	EmailEnabled bool
	LinkBase     string
	Metrics      *metrics.DispatchMetrics
	Logger       *logger.Logger
	Now          func() time.Time
}

// Dispatcher turns domain events into notification records and attempts
// delivery of each record. It never notifies the actor of their own action and
// creates at most one record per recipient per event.
type Dispatcher struct {
	repo     Repository
	users    userDirectory
	delivery *deliverer
	metrics  *metrics.DispatchMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewDispatcher(p DispatcherParams) (*Dispatcher, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if p.Users == nil {
		return nil, fmt.Errorf("user directory required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Dispatcher{
		repo:    p.Repo,
		users:   p.Users,
		metrics: p.Metrics,
		logg:    p.Logger,
		now:     p.Now,
		delivery: &deliverer{
			recorder:     p.Repo,
			publisher:    p.Publisher,
			sender:       p.Email,
			emailEnabled: p.EmailEnabled,
			linkBase:     p.LinkBase,
			metrics:      p.Metrics,
			logg:         p.Logger,
			now:          p.Now,
		},
	}, nil
}

// draft is a record waiting to be persisted for one recipient.
type draft struct {
	recipient models.User
	content   content
	priority  enums.Priority
	metadata  map[string]any
}

// batch carries the fields shared by every record created for one event.
type batch struct {
	kind      enums.NotificationKind
	actorID   uuid.UUID
	issueID   *uuid.UUID
	commentID *uuid.UUID
	expiresAt *time.Time

	// sharedRoom replaces per-user realtime delivery with a single publish.
	sharedRoom    string
	sharedPayload any

	// adminEcho is published once to the admin room after per-user delivery.
	adminEcho        string
	adminEchoPayload any
}

// issueFrame is the realtime payload for issue-level broadcasts.
type issueFrame struct {
	IssueID   uuid.UUID           `json:"issue_id"`
	Title     string              `json:"title"`
	Category  enums.IssueCategory `json:"category"`
	Priority  enums.Priority      `json:"priority"`
	Status    enums.IssueStatus   `json:"status"`
	OldStatus enums.IssueStatus   `json:"old_status,omitempty"`
	ActorID   uuid.UUID           `json:"actor_id"`
	CommentID *uuid.UUID          `json:"comment_id,omitempty"`
}

func newIssueFrame(issue *models.Issue, actorID uuid.UUID) issueFrame {
	return issueFrame{
		IssueID:  issue.ID,
		Title:    issue.Title,
		Category: issue.Category,
		Priority: issue.Priority,
		Status:   issue.Status,
		ActorID:  actorID,
	}
}

// Handle resolves the users referenced by e and routes it to the matching
// operation.
func (d *Dispatcher) Handle(ctx context.Context, e Event) error {
	ctx = d.logg.WithEvent(ctx, string(e.Type))
	if id := e.IssueID(); id != uuid.Nil {
		ctx = d.logg.WithIssueID(ctx, id.String())
	}

	var err error
	switch e.Type {
	case EventIssueCreated:
		_, err = d.OnIssueCreated(ctx, e.Issue, d.actor(ctx, e.ActorID))
	case EventIssueAssigned:
		_, err = d.OnIssueAssigned(ctx, e.Issue, d.actor(ctx, e.ActorID))
	case EventIssueStatusChanged:
		_, err = d.OnIssueStatusChanged(ctx, e.Issue, e.OldStatus, e.NewStatus, d.actor(ctx, e.ActorID))
	case EventCommentAdded:
		_, err = d.OnCommentAdded(ctx, e.Issue, e.Comment, d.actor(ctx, e.ActorID))
	case EventUpvoteReceived:
		_, err = d.OnUpvoteReceived(ctx, e.Issue, d.actor(ctx, e.ActorID))
	case EventAdminMessage:
		if e.Message == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "admin message payload missing")
		}
		_, err = d.SendAdminMessage(ctx, e.ActorID, *e.Message)
	case EventAnnouncement:
		if e.Broadcast == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "announcement payload missing")
		}
		_, err = d.BroadcastAnnouncement(ctx, e.ActorID, *e.Broadcast)
	default:
		return pkgerrors.Validationf("unknown event type %q", e.Type)
	}
	return err
}

// OnIssueCreated notifies every active administrator.
func (d *Dispatcher) OnIssueCreated(ctx context.Context, issue *models.Issue, reporter *models.User) (int, error) {
	if issue == nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "issue required")
	}
	admins, err := d.users.ListActiveByRoles(ctx, []enums.UserRole{enums.UserRoleAdmin})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list administrators")
	}

	priority := enums.PriorityMedium
	if issue.Priority == enums.PriorityUrgent {
		priority = enums.PriorityUrgent
	}
	text := newIssueContent(issue, reporter)
	meta := map[string]any{
		"reporterName": displayName(reporter),
		"category":     string(issue.Category),
		"priority":     string(issue.Priority),
	}

	drafts := make([]draft, 0, len(admins))
	for _, admin := range admins {
		drafts = append(drafts, draft{recipient: admin, content: text, priority: priority, metadata: meta})
	}

	actorID := idOf(reporter, issue.ReportedBy)
	return d.dispatch(ctx, batch{
		kind:          enums.NotificationKindIssueCreated,
		actorID:       actorID,
		issueID:       &issue.ID,
		sharedRoom:    realtime.AdminRoom,
		sharedPayload: newIssueFrame(issue, actorID),
	}, drafts)
}

// OnIssueAssigned notifies the assignee.
func (d *Dispatcher) OnIssueAssigned(ctx context.Context, issue *models.Issue, assigner *models.User) (int, error) {
	if issue == nil || issue.AssignedTo == nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "assigned issue required")
	}
	recipients, err := d.activeRecipients(ctx, *issue.AssignedTo)
	if err != nil {
		return 0, err
	}

	assignedBy := "Admin"
	if assigner != nil && assigner.Name != "" {
		assignedBy = assigner.Name
	}
	drafts := make([]draft, 0, 1)
	if assignee, ok := recipients[*issue.AssignedTo]; ok {
		drafts = append(drafts, draft{
			recipient: assignee,
			content:   assignedContent(issue),
			priority:  enums.PriorityHigh,
			metadata:  map[string]any{"assignedBy": assignedBy},
		})
	}

	return d.dispatch(ctx, batch{
		kind:    enums.NotificationKindIssueAssigned,
		actorID: idOf(assigner, derefID(issue.AssignedBy)),
		issueID: &issue.ID,
	}, drafts)
}

// OnIssueStatusChanged notifies the reporter and the assignee with distinct
// wording and echoes the change to the admin room.
func (d *Dispatcher) OnIssueStatusChanged(ctx context.Context, issue *models.Issue, oldStatus, newStatus enums.IssueStatus, changedBy *models.User) (int, error) {
	if issue == nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "issue required")
	}
	actorID := idOf(changedBy, uuid.Nil)
	recipients, err := d.activeRecipients(ctx, issue.ReportedBy, derefID(issue.AssignedTo))
	if err != nil {
		return 0, err
	}

	priority := enums.PriorityMedium
	if newStatus == enums.IssueStatusResolved {
		priority = enums.PriorityHigh
	}
	meta := map[string]any{
		"oldStatus": string(oldStatus),
		"newStatus": string(newStatus),
		"changedBy": actorID.String(),
	}

	var drafts []draft
	if reporter, ok := recipients[issue.ReportedBy]; ok {
		drafts = append(drafts, draft{
			recipient: reporter,
			content:   statusChangedContent(issue, newStatus, true),
			priority:  priority,
			metadata:  meta,
		})
	}
	if issue.AssignedTo != nil && *issue.AssignedTo != issue.ReportedBy {
		if assignee, ok := recipients[*issue.AssignedTo]; ok {
			drafts = append(drafts, draft{
				recipient: assignee,
				content:   statusChangedContent(issue, newStatus, false),
				priority:  priority,
				metadata:  meta,
			})
		}
	}

	frame := newIssueFrame(issue, actorID)
	frame.Status = newStatus
	frame.OldStatus = oldStatus
	return d.dispatch(ctx, batch{
		kind:             enums.NotificationKindIssueStatusChanged,
		actorID:          actorID,
		issueID:          &issue.ID,
		adminEcho:        realtime.EventIssueStatusChanged,
		adminEchoPayload: frame,
	}, drafts)
}

// OnCommentAdded notifies the reporter and the assignee. Internal comments
// reach the assignee only.
func (d *Dispatcher) OnCommentAdded(ctx context.Context, issue *models.Issue, comment *models.Comment, commenter *models.User) (int, error) {
	if issue == nil || comment == nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "issue and comment required")
	}
	recipients, err := d.activeRecipients(ctx, issue.ReportedBy, derefID(issue.AssignedTo))
	if err != nil {
		return 0, err
	}

	meta := map[string]any{
		"commentContent": truncate(comment.Content, maxCommentExcerpt),
		"commenterName":  displayName(commenter),
	}

	var drafts []draft
	if reporter, ok := recipients[issue.ReportedBy]; ok && !comment.IsInternal {
		drafts = append(drafts, draft{
			recipient: reporter,
			content:   commentContent(issue, commenter, true),
			priority:  enums.PriorityMedium,
			metadata:  meta,
		})
	}
	if issue.AssignedTo != nil && (*issue.AssignedTo != issue.ReportedBy || comment.IsInternal) {
		if assignee, ok := recipients[*issue.AssignedTo]; ok {
			drafts = append(drafts, draft{
				recipient: assignee,
				content:   commentContent(issue, commenter, false),
				priority:  enums.PriorityMedium,
				metadata:  meta,
			})
		}
	}

	actorID := idOf(commenter, comment.AuthorID)
	frame := newIssueFrame(issue, actorID)
	frame.CommentID = &comment.ID
	return d.dispatch(ctx, batch{
		kind:             enums.NotificationKindCommentAdded,
		actorID:          actorID,
		issueID:          &issue.ID,
		commentID:        &comment.ID,
		adminEcho:        realtime.EventNewComment,
		adminEchoPayload: frame,
	}, drafts)
}

// OnUpvoteReceived notifies the reporter unless they voted themselves.
func (d *Dispatcher) OnUpvoteReceived(ctx context.Context, issue *models.Issue, upvoter *models.User) (int, error) {
	if issue == nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "issue required")
	}
	recipients, err := d.activeRecipients(ctx, issue.ReportedBy)
	if err != nil {
		return 0, err
	}

	var drafts []draft
	if reporter, ok := recipients[issue.ReportedBy]; ok {
		drafts = append(drafts, draft{
			recipient: reporter,
			content:   upvoteContent(issue, upvoter),
			priority:  enums.PriorityLow,
			metadata:  map[string]any{"upvoterName": displayName(upvoter)},
		})
	}

	return d.dispatch(ctx, batch{
		kind:    enums.NotificationKindUpvoteReceived,
		actorID: idOf(upvoter, uuid.Nil),
		issueID: &issue.ID,
	}, drafts)
}

// SendAdminMessage delivers a direct message to a single active user.
func (d *Dispatcher) SendAdminMessage(ctx context.Context, senderID uuid.UUID, msg DirectMessage) (int, error) {
	if err := msg.Validate(); err != nil {
		return 0, err
	}
	recipients, err := d.activeRecipients(ctx, msg.RecipientID)
	if err != nil {
		return 0, err
	}

	var drafts []draft
	if user, ok := recipients[msg.RecipientID]; ok {
		drafts = append(drafts, draft{
			recipient: user,
			content:   content{Title: msg.Title, Message: msg.Message},
			priority:  priorityOrDefault(msg.Priority),
		})
	}
	return d.dispatch(ctx, batch{kind: enums.NotificationKindAdminMessage, actorID: senderID}, drafts)
}

// BroadcastAnnouncement creates one record per active user in the target group
// in a single batch write.
func (d *Dispatcher) BroadcastAnnouncement(ctx context.Context, senderID uuid.UUID, a Announcement) (int, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	users, err := d.users.ListActiveByRoles(ctx, a.Target.Roles())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list announcement audience")
	}

	text := content{Title: a.Title, Message: a.Message}
	priority := priorityOrDefault(a.Priority)
	meta := map[string]any{"target": string(a.Target)}
	drafts := make([]draft, 0, len(users))
	for _, u := range users {
		drafts = append(drafts, draft{recipient: u, content: text, priority: priority, metadata: meta})
	}
	return d.dispatch(ctx, batch{
		kind:      enums.NotificationKindSystemAnnouncement,
		actorID:   senderID,
		expiresAt: a.ExpiresAt,
	}, drafts)
}

// dispatch persists one record per distinct recipient, excluding the actor,
// then attempts delivery on each channel.
func (d *Dispatcher) dispatch(ctx context.Context, b batch, drafts []draft) (int, error) {
	now := d.now()
	seen := make(map[uuid.UUID]struct{}, len(drafts))
	records := make([]models.Notification, 0, len(drafts))
	kept := make([]draft, 0, len(drafts))
	for _, dr := range drafts {
		id := dr.recipient.ID
		if id == uuid.Nil || !dr.recipient.IsActive {
			continue
		}
		if b.actorID != uuid.Nil && id == b.actorID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		text := dr.content.bounded()
		record := models.Notification{
			ID:          uuid.New(),
			RecipientID: id,
			Kind:        b.kind,
			Title:       text.Title,
			Message:     text.Message,
			IssueID:     b.issueID,
			CommentID:   b.commentID,
			Priority:    dr.priority,
			ExpiresAt:   b.expiresAt,
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if b.actorID != uuid.Nil {
			actor := b.actorID
			record.ActorID = &actor
		}
		if len(dr.metadata) > 0 {
			record.Metadata = datatypes.JSONMap(dr.metadata)
		}
		records = append(records, record)
		kept = append(kept, dr)
	}

	if len(records) > 0 {
		if err := d.repo.CreateBatch(ctx, records); err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notifications")
		}
		d.metrics.AddCreated(string(b.kind), len(records))
	}

	var sharedErr error
	if b.sharedRoom != "" && d.delivery.publisher != nil {
		if n := d.delivery.publisher.Publish(b.sharedRoom, eventFor(b.kind), b.sharedPayload); n == 0 {
			sharedErr = ErrNoSubscribers
		}
	}

	for i := range records {
		if b.sharedRoom != "" {
			if d.delivery.publisher == nil {
				d.metrics.IncDelivery(string(ChannelRealtime), metrics.OutcomeSkipped)
			} else {
				d.delivery.record(ctx, &records[i], ChannelRealtime, sharedErr)
			}
		} else {
			d.delivery.deliverRealtime(ctx, &records[i])
		}
		d.delivery.deliverEmail(ctx, &records[i], &kept[i].recipient)
	}

	if b.adminEcho != "" && d.delivery.publisher != nil {
		d.delivery.publisher.Publish(realtime.AdminRoom, b.adminEcho, b.adminEchoPayload)
	}

	if len(records) > 0 {
		d.logg.Info(d.logg.WithFields(ctx, map[string]any{
			"kind":       string(b.kind),
			"recipients": len(records),
		}), "notifications dispatched")
	}
	return len(records), nil
}

// activeRecipients loads the given users and keeps the active ones.
func (d *Dispatcher) activeRecipients(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]models.User, error) {
	wanted := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id != uuid.Nil {
			wanted = append(wanted, id)
		}
	}
	out := make(map[uuid.UUID]models.User, len(wanted))
	if len(wanted) == 0 {
		return out, nil
	}
	users, err := d.users.FindByIDs(ctx, wanted)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recipients")
	}
	for _, u := range users {
		if u.IsActive {
			out[u.ID] = u
		}
	}
	return out, nil
}

// actor loads the acting user for display purposes. Lookup failures degrade to
// an anonymous actor that still carries the id.
func (d *Dispatcher) actor(ctx context.Context, id uuid.UUID) *models.User {
	if id == uuid.Nil {
		return nil
	}
	users, err := d.users.FindByIDs(ctx, []uuid.UUID{id})
	if err != nil {
		d.logg.Warn(d.logg.WithField(ctx, "actor_lookup_error", err.Error()), "notification actor lookup failed")
		return &models.User{ID: id}
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i]
		}
	}
	return &models.User{ID: id}
}

func idOf(u *models.User, fallback uuid.UUID) uuid.UUID {
	if u != nil && u.ID != uuid.Nil {
		return u.ID
	}
	return fallback
}

func derefID(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

func priorityOrDefault(p enums.Priority) enums.Priority {
	if p.IsValid() {
		return p
	}
	return enums.PriorityMedium
}
