package issues

import (
	"math"
	"time"

	"github.com/civicconnect/civic-backend/pkg/db/models"
	"github.com/civicconnect/civic-backend/pkg/enums"
	pkgerrors "github.com/civicconnect/civic-backend/pkg/errors"
)

var allowedTransitions = map[enums.IssueStatus][]enums.IssueStatus{
	enums.IssueStatusReported:   {enums.IssueStatusInProgress, enums.IssueStatusResolved, enums.IssueStatusClosed},
	enums.IssueStatusInProgress: {enums.IssueStatusReported, enums.IssueStatusResolved, enums.IssueStatusClosed},
	enums.IssueStatusResolved:   {enums.IssueStatusInProgress, enums.IssueStatusClosed},
	enums.IssueStatusClosed:     {enums.IssueStatusReported},
}

// TransitionPolicy decides whether a status change is allowed.
type TransitionPolicy struct {
	Strict bool
}

// Check returns a validation error when strict mode forbids from → to.
// Permissive mode accepts any known status.
func (p TransitionPolicy) Check(from, to enums.IssueStatus) error {
	if !to.IsValid() {
		return pkgerrors.Validationf("invalid status %q", to)
	}
	if !p.Strict || from == to {
		return nil
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return nil
		}
	}
	return pkgerrors.Validationf("cannot change status from %s to %s", from, to).
		WithDetails(map[string]any{"from": from, "to": to, "allowed": allowedTransitions[from]})
}

// applyStatus mutates issue for a move to next and returns the changed columns.
func applyStatus(issue *models.Issue, next enums.IssueStatus, now time.Time) map[string]any {
	cols := map[string]any{"status": next}
	issue.Status = next

	switch next {
	case enums.IssueStatusResolved:
		days := resolutionDays(issue.CreatedAt, now)
		issue.ResolvedAt = &now
		issue.ActualResolutionDays = &days
		issue.ClosedAt = nil
		cols["resolved_at"] = now
		cols["actual_resolution_days"] = days
		cols["closed_at"] = nil
	case enums.IssueStatusClosed:
		issue.ClosedAt = &now
		cols["closed_at"] = now
	default:
		issue.ResolvedAt = nil
		issue.ClosedAt = nil
		issue.ActualResolutionDays = nil
		cols["resolved_at"] = nil
		cols["closed_at"] = nil
		cols["actual_resolution_days"] = nil
	}
	return cols
}

func resolutionDays(createdAt, resolvedAt time.Time) int {
	if resolvedAt.Before(createdAt) {
		return 0
	}
	return int(math.Floor(resolvedAt.Sub(createdAt).Hours() / 24))
}
