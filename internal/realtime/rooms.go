package realtime

import (
	"errors"
	"strings"

	"github.com/civicconnect/civic-backend/pkg/auth"
	"github.com/google/uuid"
)

const (
	// AdminRoom is shared by every connected administrator.
	AdminRoom = "admin-room"

	userRoomPrefix = "user-"
)

// Server event names.
const (
	EventNewIssueReported   = "new-issue-reported"
	EventIssueAssigned      = "issue-assigned"
	EventIssueStatusChanged = "issue-status-changed"
	EventIssueUpdated       = "issue-updated"
	EventNewComment         = "new-comment"
	EventNotification       = "notification"

	EventJoined = "joined"
	EventLeft   = "left"
	EventError  = "error"
)

var (
	ErrUnknownRoom   = errors.New("unknown room")
	ErrRoomForbidden = errors.New("room not permitted for this connection")
	ErrHubStopped    = errors.New("realtime hub is not running")
)

// UserRoom returns the personal room of a user.
func UserRoom(userID uuid.UUID) string {
	return userRoomPrefix + userID.String()
}

// parseUserRoom extracts the owner of a personal room.
func parseUserRoom(room string) (uuid.UUID, bool) {
	raw, ok := strings.CutPrefix(room, userRoomPrefix)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// authorize checks that actor may subscribe to room. Personal rooms belong to
// their owner and the admin room to administrators.
func authorize(actor auth.Actor, room string) error {
	if !actor.Valid() {
		return ErrRoomForbidden
	}
	if room == AdminRoom {
		if !actor.IsAdmin() {
			return ErrRoomForbidden
		}
		return nil
	}
	owner, ok := parseUserRoom(room)
	if !ok {
		return ErrUnknownRoom
	}
	if owner != actor.UserID {
		return ErrRoomForbidden
	}
	return nil
}
