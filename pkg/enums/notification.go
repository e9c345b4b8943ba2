package enums

import "fmt"

// NotificationKind maps to the notification_kind column.
type NotificationKind string

const (
	NotificationKindIssueCreated       NotificationKind = "issue_created"
	NotificationKindIssueAssigned      NotificationKind = "issue_assigned"
	NotificationKindIssueStatusChanged NotificationKind = "issue_status_changed"
	NotificationKindIssueResolved      NotificationKind = "issue_resolved"
	NotificationKindCommentAdded       NotificationKind = "comment_added"
	NotificationKindUpvoteReceived     NotificationKind = "upvote_received"
	NotificationKindAdminMessage       NotificationKind = "admin_message"
	NotificationKindSystemAnnouncement NotificationKind = "system_announcement"
)

var validNotificationKinds = []NotificationKind{
	NotificationKindIssueCreated,
	NotificationKindIssueAssigned,
	NotificationKindIssueStatusChanged,
	NotificationKindIssueResolved,
	NotificationKindCommentAdded,
	NotificationKindUpvoteReceived,
	NotificationKindAdminMessage,
	NotificationKindSystemAnnouncement,
}

// String implements fmt.Stringer.
func (n NotificationKind) String() string {
	return string(n)
}

// IsValid checks whether the given kind matches the canonical enum.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw strings into NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}

// AnnouncementTarget selects the audience of a broadcast announcement.
type AnnouncementTarget string

const (
	AnnouncementTargetAll      AnnouncementTarget = "all"
	AnnouncementTargetCitizens AnnouncementTarget = "citizens"
	AnnouncementTargetAdmins   AnnouncementTarget = "admins"
)

var validAnnouncementTargets = []AnnouncementTarget{
	AnnouncementTargetAll,
	AnnouncementTargetCitizens,
	AnnouncementTargetAdmins,
}

// IsValid reports whether the value is a known AnnouncementTarget.
func (a AnnouncementTarget) IsValid() bool {
	for _, candidate := range validAnnouncementTargets {
		if candidate == a {
			return true
		}
	}
	return false
}

// Roles returns the user roles addressed by the target. A nil slice means
// every role.
func (a AnnouncementTarget) Roles() []UserRole {
	switch a {
	case AnnouncementTargetCitizens:
		return []UserRole{UserRoleCitizen}
	case AnnouncementTargetAdmins:
		return []UserRole{UserRoleAdmin}
	default:
		return nil
	}
}

// ParseAnnouncementTarget converts raw input into an AnnouncementTarget.
func ParseAnnouncementTarget(value string) (AnnouncementTarget, error) {
	for _, candidate := range validAnnouncementTargets {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid announcement target %q", value)
}
