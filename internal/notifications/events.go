package notifications

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/civicconnect/civic-backend/pkg/db/models"
	"github.com/civicconnect/civic-backend/pkg/enums"
	pkgerrors "github.com/civicconnect/civic-backend/pkg/errors"
	"github.com/google/uuid"
)

// EventType names a domain event the dispatcher reacts to.
type EventType string

const (
	EventIssueCreated       EventType = "issue.created"
	EventIssueAssigned      EventType = "issue.assigned"
	EventIssueStatusChanged EventType = "issue.status_changed"
	EventCommentAdded       EventType = "comment.added"
	EventUpvoteReceived     EventType = "issue.upvoted"
	EventAdminMessage       EventType = "admin.message"
	EventAnnouncement       EventType = "admin.announcement"
)

// Event is a committed domain change handed to the dispatcher. Issue and
// Comment are snapshots taken after the triggering transaction committed.
type Event struct {
	Type       EventType
	ActorID    uuid.UUID
	Issue      *models.Issue
	Comment    *models.Comment
	OldStatus  enums.IssueStatus
	NewStatus  enums.IssueStatus
	Message    *DirectMessage
	Broadcast  *Announcement
	OccurredAt time.Time
}

// DirectMessage is an admin message addressed to a single user.
type DirectMessage struct {
	RecipientID uuid.UUID
	Title       string
	Message     string
	Priority    enums.Priority
}

// Announcement is a system-wide broadcast to a target group.
type Announcement struct {
	Title     string
	Message   string
	Target    enums.AnnouncementTarget
	Priority  enums.Priority
	ExpiresAt *time.Time
}

// Validate checks an admin message before it is queued.
func (m DirectMessage) Validate() error {
	if m.RecipientID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient required")
	}
	return validateText(m.Title, m.Message, m.Priority)
}

// Validate checks an announcement before it is queued.
func (a Announcement) Validate() error {
	if !a.Target.IsValid() {
		return pkgerrors.Validationf("invalid announcement target %q", a.Target)
	}
	return validateText(a.Title, a.Message, a.Priority)
}

func validateText(title, message string, priority enums.Priority) error {
	switch {
	case strings.TrimSpace(title) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "title required")
	case strings.TrimSpace(message) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "message required")
	case utf8.RuneCountInString(title) > maxTitleLength:
		return pkgerrors.Validationf("title must be at most %d characters", maxTitleLength)
	case utf8.RuneCountInString(message) > maxMessageLength:
		return pkgerrors.Validationf("message must be at most %d characters", maxMessageLength)
	case priority != "" && !priority.IsValid():
		return pkgerrors.Validationf("invalid priority %q", priority)
	}
	return nil
}

func IssueCreated(issue *models.Issue, reporterID uuid.UUID) Event {
	return Event{Type: EventIssueCreated, ActorID: reporterID, Issue: issue, OccurredAt: time.Now().UTC()}
}

func IssueAssigned(issue *models.Issue, assignerID uuid.UUID) Event {
	return Event{Type: EventIssueAssigned, ActorID: assignerID, Issue: issue, OccurredAt: time.Now().UTC()}
}

func IssueStatusChanged(issue *models.Issue, oldStatus, newStatus enums.IssueStatus, changedBy uuid.UUID) Event {
	return Event{
		Type:       EventIssueStatusChanged,
		ActorID:    changedBy,
		Issue:      issue,
		OldStatus:  oldStatus,
		NewStatus:  newStatus,
		OccurredAt: time.Now().UTC(),
	}
}

func CommentAdded(issue *models.Issue, comment *models.Comment, commenterID uuid.UUID) Event {
	return Event{Type: EventCommentAdded, ActorID: commenterID, Issue: issue, Comment: comment, OccurredAt: time.Now().UTC()}
}

func UpvoteReceived(issue *models.Issue, upvoterID uuid.UUID) Event {
	return Event{Type: EventUpvoteReceived, ActorID: upvoterID, Issue: issue, OccurredAt: time.Now().UTC()}
}

func AdminMessage(senderID uuid.UUID, msg DirectMessage) Event {
	return Event{Type: EventAdminMessage, ActorID: senderID, Message: &msg, OccurredAt: time.Now().UTC()}
}

func AnnouncementBroadcast(senderID uuid.UUID, a Announcement) Event {
	return Event{Type: EventAnnouncement, ActorID: senderID, Broadcast: &a, OccurredAt: time.Now().UTC()}
}

// IssueID returns the triggering issue id, or uuid.Nil.
func (e Event) IssueID() uuid.UUID {
	if e.Issue == nil {
		return uuid.Nil
	}
	return e.Issue.ID
}
