package enums

import "fmt"

// IssueStatus tracks where an issue sits in its lifecycle.
type IssueStatus string

const (
	IssueStatusReported   IssueStatus = "reported"
	IssueStatusInProgress IssueStatus = "in-progress"
	IssueStatusResolved   IssueStatus = "resolved"
	IssueStatusClosed     IssueStatus = "closed"
)

var validIssueStatuses = []IssueStatus{
	IssueStatusReported,
	IssueStatusInProgress,
	IssueStatusResolved,
	IssueStatusClosed,
}

// IssueStatuses returns every status in lifecycle order.
func IssueStatuses() []IssueStatus {
	out := make([]IssueStatus, len(validIssueStatuses))
	copy(out, validIssueStatuses)
	return out
}

// String implements fmt.Stringer.
func (s IssueStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known IssueStatus.
func (s IssueStatus) IsValid() bool {
	for _, candidate := range validIssueStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsOpen reports whether the issue still needs work.
func (s IssueStatus) IsOpen() bool {
	return s == IssueStatusReported || s == IssueStatusInProgress
}

// ParseIssueStatus converts raw input into an IssueStatus.
func ParseIssueStatus(value string) (IssueStatus, error) {
	for _, candidate := range validIssueStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid issue status %q", value)
}

// IssueCategory is the closed set of departments an issue can be filed under.
type IssueCategory string

const (
	IssueCategoryRoadTraffic       IssueCategory = "Road & Traffic"
	IssueCategoryWaterDrainage     IssueCategory = "Water & Drainage"
	IssueCategoryElectricity       IssueCategory = "Electricity"
	IssueCategoryGarbageSanitation IssueCategory = "Garbage & Sanitation"
	IssueCategoryStreetLighting    IssueCategory = "Street Lighting"
	IssueCategoryPublicSafety      IssueCategory = "Public Safety"
	IssueCategoryParksRecreation   IssueCategory = "Parks & Recreation"
	IssueCategoryOther             IssueCategory = "Other"
)

var validIssueCategories = []IssueCategory{
	IssueCategoryRoadTraffic,
	IssueCategoryWaterDrainage,
	IssueCategoryElectricity,
	IssueCategoryGarbageSanitation,
	IssueCategoryStreetLighting,
	IssueCategoryPublicSafety,
	IssueCategoryParksRecreation,
	IssueCategoryOther,
}

// String implements fmt.Stringer.
func (c IssueCategory) String() string {
	return string(c)
}

// IsValid reports whether the value is a known IssueCategory.
func (c IssueCategory) IsValid() bool {
	for _, candidate := range validIssueCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseIssueCategory converts raw input into an IssueCategory.
func ParseIssueCategory(value string) (IssueCategory, error) {
	for _, candidate := range validIssueCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid issue category %q", value)
}

// Priority is shared by issues and notification records.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var validPriorities = []Priority{
	PriorityLow,
	PriorityMedium,
	PriorityHigh,
	PriorityUrgent,
}

// String implements fmt.Stringer.
func (p Priority) String() string {
	return string(p)
}

// IsValid reports whether the value is a known Priority.
func (p Priority) IsValid() bool {
	for _, candidate := range validPriorities {
		if candidate == p {
			return true
		}
	}
	return false
}

// Rank orders priorities for sorting; unknown values rank lowest.
func (p Priority) Rank() int {
	for i, candidate := range validPriorities {
		if candidate == p {
			return i + 1
		}
	}
	return 0
}

// ParsePriority converts raw input into a Priority.
func ParsePriority(value string) (Priority, error) {
	for _, candidate := range validPriorities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid priority %q", value)
}
