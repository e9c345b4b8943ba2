package enums

import "testing"

func TestParseIssueStatus(t *testing.T) {
	cases := map[string]bool{
		"reported":    true,
		"in-progress": true,
		"resolved":    true,
		"closed":      true,
		"in_progress": false,
		"":            false,
	}
	for input, ok := range cases {
		_, err := ParseIssueStatus(input)
		if (err == nil) != ok {
			t.Fatalf("ParseIssueStatus(%q) err=%v want ok=%v", input, err, ok)
		}
	}
}

func TestIssueStatusIsOpen(t *testing.T) {
	if !IssueStatusReported.IsOpen() || !IssueStatusInProgress.IsOpen() {
		t.Fatal("reported and in-progress should be open")
	}
	if IssueStatusResolved.IsOpen() || IssueStatusClosed.IsOpen() {
		t.Fatal("resolved and closed should not be open")
	}
}

func TestIssueCategoryAcceptsDisplayNames(t *testing.T) {
	got, err := ParseIssueCategory("Road & Traffic")
	if err != nil || got != IssueCategoryRoadTraffic {
		t.Fatalf("unexpected parse result %q err=%v", got, err)
	}
	if IssueCategory("Roads").IsValid() {
		t.Fatal("unknown category should be invalid")
	}
}

func TestPriorityRank(t *testing.T) {
	if !(PriorityLow.Rank() < PriorityMedium.Rank() &&
		PriorityMedium.Rank() < PriorityHigh.Rank() &&
		PriorityHigh.Rank() < PriorityUrgent.Rank()) {
		t.Fatal("priority ranks out of order")
	}
	if Priority("nope").Rank() != 0 {
		t.Fatal("unknown priority should rank zero")
	}
}

func TestUserRoleStaff(t *testing.T) {
	staff := []UserRole{UserRoleAdmin, UserRoleEmployee, UserRoleFieldStaff, UserRoleSupervisor, UserRoleCommissioner}
	for _, r := range staff {
		if !r.IsStaff() {
			t.Fatalf("%s should be staff", r)
		}
	}
	for _, r := range []UserRole{UserRoleCitizen, UserRoleGuest, UserRole("x")} {
		if r.IsStaff() {
			t.Fatalf("%s should not be staff", r)
		}
	}
	if UserRoleSupervisor.IsAdmin() {
		t.Fatal("only admin is admin")
	}
}

func TestAnnouncementTargetRoles(t *testing.T) {
	if roles := AnnouncementTargetAll.Roles(); roles != nil {
		t.Fatalf("all should not filter roles, got %v", roles)
	}
	if roles := AnnouncementTargetCitizens.Roles(); len(roles) != 1 || roles[0] != UserRoleCitizen {
		t.Fatalf("unexpected citizen roles %v", roles)
	}
	if roles := AnnouncementTargetAdmins.Roles(); len(roles) != 1 || roles[0] != UserRoleAdmin {
		t.Fatalf("unexpected admin roles %v", roles)
	}
	if _, err := ParseAnnouncementTarget("staff"); err == nil {
		t.Fatal("expected error for unknown target")
	}
}

func TestParseNotificationKind(t *testing.T) {
	for _, k := range validNotificationKinds {
		got, err := ParseNotificationKind(string(k))
		if err != nil || got != k {
			t.Fatalf("round trip failed for %s", k)
		}
	}
	if _, err := ParseNotificationKind("issue-created"); err == nil {
		t.Fatal("hyphenated kind should be rejected")
	}
}
