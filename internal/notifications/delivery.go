package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/civicconnect/civic-backend/internal/realtime"
	"github.com/civicconnect/civic-backend/pkg/db/models"
	"github.com/civicconnect/civic-backend/pkg/email"
	"github.com/civicconnect/civic-backend/pkg/enums"
	"github.com/civicconnect/civic-backend/pkg/logger"
	"github.com/civicconnect/civic-backend/pkg/metrics"
	"github.com/google/uuid"
)

// Channel names a delivery mechanism with its own bookkeeping.
type Channel string

const (
	ChannelRealtime Channel = "realtime"
	ChannelEmail    Channel = "email"
)

// ErrNoSubscribers is recorded when a realtime publish reached nobody.
var ErrNoSubscribers = errors.New("no active subscribers")

// Publisher is the realtime broker surface used for delivery.
type Publisher interface {
	Publish(room, event string, payload any) int
}

type deliveryRecorder interface {
	RecordDelivery(ctx context.Context, id uuid.UUID, channel Channel, at time.Time, deliveryErr error) error
}

// realtimePayload is the data frame pushed to clients for one record.
type realtimePayload struct {
	NotificationID uuid.UUID              `json:"notification_id"`
	Kind           enums.NotificationKind `json:"kind"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	Priority       enums.Priority         `json:"priority"`
	IssueID        *uuid.UUID             `json:"issue_id,omitempty"`
	CommentID      *uuid.UUID             `json:"comment_id,omitempty"`
	Metadata       map[string]any         `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// deliverer attempts each channel once per record and records the outcome.
// A failure on one channel never blocks the other.
type deliverer struct {
	recorder     deliveryRecorder
	publisher    Publisher
	sender       email.Sender
	emailEnabled bool
	linkBase     string
	metrics      *metrics.DispatchMetrics
	logg         *logger.Logger
	now          func() time.Time
}

func (d *deliverer) deliverRealtime(ctx context.Context, record *models.Notification) {
	if d.publisher == nil {
		d.metrics.IncDelivery(string(ChannelRealtime), metrics.OutcomeSkipped)
		return
	}
	var err error
	if n := d.publisher.Publish(realtime.UserRoom(record.RecipientID), eventFor(record.Kind), payloadFor(record)); n == 0 {
		err = ErrNoSubscribers
	}
	d.record(ctx, record, ChannelRealtime, err)
}

func (d *deliverer) deliverEmail(ctx context.Context, record *models.Notification, recipient *models.User) {
	if !d.emailEnabled || d.sender == nil || recipient == nil || !recipient.WantsEmail() {
		d.metrics.IncDelivery(string(ChannelEmail), metrics.OutcomeSkipped)
		return
	}

	msg, err := email.RenderNotification(recipient.Email, email.NotificationContent{
		Title:   record.Title,
		Message: record.Message,
		Link:    d.linkFor(record),
	})
	if err == nil {
		err = d.sender.Send(ctx, msg)
	}
	if errors.Is(err, email.ErrDisabled) {
		d.metrics.IncDelivery(string(ChannelEmail), metrics.OutcomeSkipped)
		return
	}
	d.record(ctx, record, ChannelEmail, err)
}

func (d *deliverer) record(ctx context.Context, record *models.Notification, channel Channel, deliveryErr error) {
	outcome := metrics.OutcomeDelivered
	if deliveryErr != nil {
		outcome = metrics.OutcomeFailed
	}
	d.metrics.IncDelivery(string(channel), outcome)

	logCtx := d.logg.WithFields(ctx, map[string]any{
		"notification_id": record.ID.String(),
		"channel":         string(channel),
	})
	if deliveryErr != nil && !errors.Is(deliveryErr, ErrNoSubscribers) {
		d.logg.Warn(d.logg.WithField(logCtx, "delivery_error", deliveryErr.Error()), "notification delivery failed")
	}

	// bookkeeping uses a fresh context so a timed-out send is still recorded
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.recorder.RecordDelivery(writeCtx, record.ID, channel, d.now(), deliveryErr); err != nil {
		d.logg.Error(logCtx, "record delivery outcome", err)
	}
}

func (d *deliverer) linkFor(record *models.Notification) string {
	if d.linkBase == "" || record.IssueID == nil {
		return ""
	}
	return d.linkBase + "/issues/" + record.IssueID.String()
}

func payloadFor(record *models.Notification) realtimePayload {
	return realtimePayload{
		NotificationID: record.ID,
		Kind:           record.Kind,
		Title:          record.Title,
		Message:        record.Message,
		Priority:       record.Priority,
		IssueID:        record.IssueID,
		CommentID:      record.CommentID,
		Metadata:       record.Metadata,
		CreatedAt:      record.CreatedAt,
	}
}

// eventFor maps a record kind onto the realtime event name clients listen for.
func eventFor(kind enums.NotificationKind) string {
	switch kind {
	case enums.NotificationKindIssueCreated:
		return realtime.EventNewIssueReported
	case enums.NotificationKindIssueAssigned:
		return realtime.EventIssueAssigned
	case enums.NotificationKindIssueStatusChanged, enums.NotificationKindIssueResolved:
		return realtime.EventIssueStatusChanged
	case enums.NotificationKindCommentAdded:
		return realtime.EventNewComment
	case enums.NotificationKindUpvoteReceived:
		return realtime.EventIssueUpdated
	default:
		return realtime.EventNotification
	}
}
