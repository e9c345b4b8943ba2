package notifications

import (
	"fmt"
	"unicode/utf8"

	"github.com/civicconnect/civic-backend/pkg/db/models"
	"github.com/civicconnect/civic-backend/pkg/enums"
)

const (
	maxTitleLength         = 200
	maxMessageLength       = 500
	maxDeliveryErrorLength = 500
	maxCommentExcerpt      = 200
)

// content is the rendered text of one notification record.
type content struct {
	Title   string
	Message string
}

func (c content) bounded() content {
	return content{
		Title:   truncate(c.Title, maxTitleLength),
		Message: truncate(c.Message, maxMessageLength),
	}
}

func newIssueContent(issue *models.Issue, reporter *models.User) content {
	return content{
		Title:   "New Issue Reported",
		Message: fmt.Sprintf("New issue %q reported by %s", issue.Title, displayName(reporter)),
	}
}

func assignedContent(issue *models.Issue) content {
	return content{
		Title:   "Issue Assigned to You",
		Message: fmt.Sprintf("You have been assigned to issue %q", issue.Title),
	}
}

func statusChangedContent(issue *models.Issue, newStatus enums.IssueStatus, forReporter bool) content {
	if forReporter {
		return content{
			Title:   "Issue Status Updated",
			Message: fmt.Sprintf("Your issue %q status has been changed to %s", issue.Title, newStatus),
		}
	}
	return content{
		Title:   "Assigned Issue Status Updated",
		Message: fmt.Sprintf("Issue %q status has been changed to %s", issue.Title, newStatus),
	}
}

func commentContent(issue *models.Issue, commenter *models.User, forReporter bool) content {
	if forReporter {
		return content{
			Title:   "New Comment on Your Issue",
			Message: fmt.Sprintf("%s commented on your issue %q", displayName(commenter), issue.Title),
		}
	}
	return content{
		Title:   "New Comment on Assigned Issue",
		Message: fmt.Sprintf("%s commented on issue %q", displayName(commenter), issue.Title),
	}
}

func upvoteContent(issue *models.Issue, upvoter *models.User) content {
	return content{
		Title:   "Your Issue Received Support",
		Message: fmt.Sprintf("%s upvoted your issue %q", displayName(upvoter), issue.Title),
	}
}

func displayName(u *models.User) string {
	if u == nil || u.Name == "" {
		return "Someone"
	}
	return u.Name
}

// truncate cuts s to at most max runes, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 3 {
		return string([]rune(s)[:max])
	}
	return string([]rune(s)[:max-3]) + "..."
}
