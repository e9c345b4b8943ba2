package issues

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/civicconnect/civic-backend/internal/notifications"
	"github.com/civicconnect/civic-backend/internal/users"
	pkgAuth "github.com/civicconnect/civic-backend/pkg/auth"
	"github.com/civicconnect/civic-backend/pkg/db/dbtest"
	"github.com/civicconnect/civic-backend/pkg/db/models"
	"github.com/civicconnect/civic-backend/pkg/enums"
	pkgerrors "github.com/civicconnect/civic-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notifications.Event
	reject bool
}

func (p *recordingPublisher) Enqueue(ctx context.Context, event notifications.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reject {
		return false
	}
	p.events = append(p.events, event)
	return true
}

func (p *recordingPublisher) types() []notifications.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notifications.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type serviceFixture struct {
	conn   *gorm.DB
	svc    Service
	events *recordingPublisher
	clock  *time.Time
}

func newServiceFixture(t *testing.T, strict bool) *serviceFixture {
	t.Helper()
	conn := dbtest.Open(t)
	clock := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	fx := &serviceFixture{conn: conn, events: &recordingPublisher{}, clock: &clock}
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(conn),
		Tx:     dbtest.TxRunner{DB: conn},
		Users:  users.NewRepository(conn),
		Events: fx.events,
		Policy: TransitionPolicy{Strict: strict},
		Now:    func() time.Time { return *fx.clock },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	fx.svc = svc
	return fx
}

func actorFor(u *models.User) pkgAuth.Actor {
	return pkgAuth.Actor{UserID: u.ID, Role: u.Role}
}

func validCreateRequest() CreateIssueRequest {
	return CreateIssueRequest{
		Title:        "Streetlight out",
		Description:  "The light at the corner has been off for a week",
		Category:     enums.IssueCategoryStreetLighting,
		LocationName: "MG Road corner",
		Latitude:     12.9716,
		Longitude:    77.5946,
	}
}

func TestServiceCreateDefaultsAndDispatches(t *testing.T) {
	fx := newServiceFixture(t, false)
	citizen := dbtest.SeedUser(t, fx.conn, enums.UserRoleCitizen)

	dto, err := fx.svc.Create(context.Background(), actorFor(citizen), validCreateRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if dto.Status != enums.IssueStatusReported || dto.Priority != enums.PriorityMedium {
		t.Fatalf("unexpected defaults: %+v", dto)
	}
	if len(dto.StatusHistory) != 1 {
		t.Fatalf("expected initial history entry, got %d", len(dto.StatusHistory))
	}
	if dto.Reporter == nil || dto.Reporter.ID != citizen.ID {
		t.Fatalf("expected reporter summary, got %+v", dto.Reporter)
	}
	got := fx.events.types()
	if len(got) != 1 || got[0] != notifications.EventIssueCreated {
		t.Fatalf("expected one issue.created event, got %v", got)
	}
}

func TestServiceCreateValidation(t *testing.T) {
	fx := newServiceFixture(t, false)
	citizen := dbtest.SeedUser(t, fx.conn, enums.UserRoleCitizen)

	bad := validCreateRequest()
	bad.Category = "Potholes"
	if _, err := fx.svc.Create(context.Background(), actorFor(citizen), bad); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for category, got %v", err)
	}

	bad = validCreateRequest()
	bad.Latitude = 91
	if _, err := fx.svc.Create(context.Background(), actorFor(citizen), bad); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for latitude, got %v", err)
	}
	if len(fx.events.types()) != 0 {
		t.Fatal("rejected create must not dispatch")
	}
}

func TestServiceLengthLimitsCountCharacters(t *testing.T) {
	fx := newServiceFixture(t, false)
	citizen := dbtest.SeedUser(t, fx.conn, enums.UserRoleCitizen)
	ctx := context.Background()

	// Devanagari letters are three bytes each in UTF-8.
	req := validCreateRequest()
	req.Title = strings.Repeat("\u0928", maxTitleLength)
	req.Description = strings.Repeat("\u0938", maxDescriptionLength)
	created, err := fx.svc.Create(ctx, actorFor(citizen), req)
	if err != nil {
		t.Fatalf("multi-byte text within limits must be accepted: %v", err)
	}

	req.Title = strings.Repeat("\u0928", maxTitleLength+1)
	if _, err := fx.svc.Create(ctx, actorFor(citizen), req); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error past %d characters, got %v", maxTitleLength, err)
	}

	title := strings.Repeat("\u00fc", maxTitleLength)
	if _, err := fx.svc.Update(ctx, actorFor(citizen), created.ID, UpdateIssueRequest{Title: &title}); err != nil {
		t.Fatalf("update with multi-byte title: %v", err)
	}
	long := strings.Repeat("\u00fc", maxDescriptionLength+1)
	if _, err := fx.svc.Update(ctx, actorFor(citizen), created.ID, UpdateIssueRequest{Description: &long}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for long description, got %v", err)
	}
}

func TestServiceCreateSucceedsWhenQueueRejects(t *testing.T) {
	fx := newServiceFixture(t, false)
	fx.events.reject = true
	citizen := dbtest.SeedUser(t, fx.conn, enums.UserRoleCitizen)

	if _, err := fx.svc.Create(context.Background(), actorFor(citizen), validCreateRequest()); err != nil {
		t.Fatalf("primary action must succeed when dispatch is unavailable: %v", err)
	}
}

func TestServiceResolveDirectlyFromReported(t *testing.T) {
	fx := newServiceFixture(t, true)
	citizen := dbtest.SeedUser(t, fx.conn, enums.UserRoleCitizen)
	admin := dbtest.SeedUser(t, fx.conn, enums.UserRoleAdmin)
	ctx := context.Background()

	created, err := fx.svc.Create(ctx, actorFor(citizen), validCreateRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	*fx.clock = fx.clock.Add(3*24*time.Hour + 5*time.Hour)
	resolved, err := fx.svc.ChangeStatus(ctx, actorFor(admin), created.ID, StatusChangeRequest{Status: enums.IssueStatusResolved})
	if err != nil {
		t.Fatalf("change status: %v", err)
	}
	if resolved.ActualResolutionDays == nil || *resolved.ActualResolutionDays != 3 {
		t.Fatalf("expected 3 resolution days, got %v", resolved.ActualResolutionDays)
	}
	if resolved.ResolvedAt == nil {
		t.Fatal("expected resolved_at to be set")
	}
	if len(resolved.StatusHistory) != 2 || resolved.StatusHistory[1].Status != enums.IssueStatusResolved {
		t.Fatalf("expected exactly one appended history entry, got %+v", resolved.StatusHistory)
	}

	var statusEvents []notifications.Event
	for _, e := range fx.events.events {
		if e.Type == notifications.EventIssueStatusChanged {
			statusEvents = append(statusEvents, e)
		}
	}
	if len(statusEvents) != 1 {
		t.Fatalf("expected one status event, got %d", len(statusEvents))
	}
	if statusEvents[0].OldStatus != enums.IssueStatusReported || statusEvents[0].NewStatus != enums.IssueStatusResolved {
		t.Fatalf("unexpected transition in event: %+v", statusEvents[0])
	}
}

func TestServiceChangeStatusSameStatusIsNoop(t *testing.T) {
	fx := newServiceFixture(t, false)
	citizen := dbtest.SeedUser(t, fx.conn, enums.UserRoleCitizen)
	admin := dbtest.SeedUser(t, fx.conn, enums.UserRoleAdmin)
	ctx := context.Background()

	created, _ := fx.svc.Create(ctx, actorFor(citizen), validCreateRequest())
	dto, err := fx.svc.ChangeStatus(ctx, actorFor(admin), created.ID, StatusChangeRequest{Status: enums.IssueStatusReported})
	if err != nil {
		t.Fatalf("change status: %v", err)
	}
	if len(dto.StatusHistory) != 1 {
		t.Fatalf("no-op must not append history, got %d entries", len(dto.StatusHistory))
	}
	if got := fx.events.types(); len(got) != 1 {
		t.Fatalf("no-op must not dispatch, got %v", got)
	}
}

func TestServiceStrictTransitionRejected(t *testing.T) {
	fx := newServiceFixture(t, true)
	citizen := dbtest.SeedUser(t, fx.conn, enums.UserRoleCitizen)
	admin := dbtest.SeedUser(t, fx.conn, enums.UserRoleAdmin)
	ctx := context.Background()

	created, _ := fx.svc.Create(ctx, actorFor(citizen), validCreateRequest())
	if _, err := fx.svc.ChangeStatus(ctx, actorFor(admin), created.ID, StatusChangeRequest{Status: enums.IssueStatusClosed}); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err := fx.svc.ChangeStatus(ctx, actorFor(admin), created.ID, StatusChangeRequest{Status: enums.IssueStatusResolved})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if _, err := fx.svc.ChangeStatus(ctx, actorFor(citizen), created.ID, StatusChangeRequest{Status: enums.IssueStatusReported}); !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("citizen status change should be forbidden, got %v", err)
	}
}

func TestServiceAssignMovesToInProgress(t *testing.T) {
	fx := newServiceFixture(t, false)
	citizen := dbtest.SeedUser(t, fx.conn, enums.UserRoleCitizen)
	admin := dbtest.SeedUser(t, fx.conn, enums.UserRoleAdmin)
	staff := dbtest.SeedUser(t, fx.conn, enums.UserRoleFieldStaff)
	ctx := context.Background()

	created, _ := fx.svc.Create(ctx, actorFor(citizen), validCreateRequest())
	dto, err := fx.svc.Assign(ctx, actorFor(admin), created.ID, AssignRequest{AssigneeID: staff.ID})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if dto.Status != enums.IssueStatusInProgress {
		t.Fatalf("expected in-progress, got %s", dto.Status)
	}
	if dto.AssignedTo == nil || *dto.AssignedTo != staff.ID || dto.AssignedBy == nil || *dto.AssignedBy != admin.ID {
		t.Fatalf("unexpected assignment fields %+v", dto)
	}
	if dto.Assignee == nil || dto.Assignee.ID != staff.ID {
		t.Fatalf("expected assignee summary")
	}
	if len(dto.StatusHistory) != 2 {
		t.Fatalf("expected history entry for in-progress, got %d", len(dto.StatusHistory))
	}

	got := fx.events.types()
	want := []notifications.EventType{notifications.EventIssueCreated, notifications.EventIssueAssigned}
	if len(got) != len(want) || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if _, err := fx.svc.Assign(ctx, actorFor(admin), created.ID, AssignRequest{AssigneeID: citizen.ID}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("assigning to a citizen should fail validation, got %v", err)
	}
	if _, err := fx.svc.Assign(ctx, actorFor(admin), created.ID, AssignRequest{AssigneeID: uuid.New()}); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("unknown assignee should be not found, got %v", err)
	}
}

func TestServiceUpvoteRules(t *testing.T) {
	fx := newServiceFixture(t, false)
	reporter := dbtest.SeedUser(t, fx.conn, enums.UserRoleCitizen)
	voter := dbtest.SeedUser(t, fx.conn, enums.UserRoleCitizen)
	ctx := context.Background()

	created, _ := fx.svc.Create(ctx, actorFor(reporter), validCreateRequest())

	if _, err := fx.svc.Upvote(ctx, actorFor(reporter), created.ID); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("self upvote should be a validation error, got %v", err)
	}

	res, err := fx.svc.Upvote(ctx, actorFor(voter), created.ID)
	if err != nil {
		t.Fatalf("upvote: %v", err)
	}
	if res.Upvotes != 1 || !res.HasUpvoted {
		t.Fatalf("unexpected result %+v", res)
	}

	if _, err := fx.svc.Upvote(ctx, actorFor(voter), created.ID); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("duplicate upvote should be a validation error, got %v", err)
	}

	upvoteEvents := 0
	for _, typ := range fx.events.types() {
		if typ == notifications.EventUpvoteReceived {
			upvoteEvents++
		}
	}
	if upvoteEvents != 1 {
		t.Fatalf("expected exactly one upvote event, got %d", upvoteEvents)
	}

	res, err = fx.svc.RemoveUpvote(ctx, actorFor(voter), created.ID)
	if err != nil {
		t.Fatalf("remove upvote: %v", err)
	}
	if res.Upvotes != 0 || res.HasUpvoted {
		t.Fatalf("unexpected result after removal %+v", res)
	}
}

func TestServiceUpdateAndDeletePermissions(t *testing.T) {
	fx := newServiceFixture(t, false)
	reporter := dbtest.SeedUser(t, fx.conn, enums.UserRoleCitizen)
	stranger := dbtest.SeedUser(t, fx.conn, enums.UserRoleCitizen)
	admin := dbtest.SeedUser(t, fx.conn, enums.UserRoleAdmin)
	ctx := context.Background()

	created, _ := fx.svc.Create(ctx, actorFor(reporter), validCreateRequest())
	title := "Streetlight flickering"

	if _, err := fx.svc.Update(ctx, actorFor(stranger), created.ID, UpdateIssueRequest{Title: &title}); !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	updated, err := fx.svc.Update(ctx, actorFor(reporter), created.ID, UpdateIssueRequest{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != title {
		t.Fatalf("title not updated: %q", updated.Title)
	}

	if err := fx.svc.Delete(ctx, actorFor(stranger), created.ID); !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden delete, got %v", err)
	}
	if err := fx.svc.Delete(ctx, actorFor(admin), created.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := fx.svc.Get(ctx, actorFor(admin), created.ID); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestServiceNearbyOrdersByDistance(t *testing.T) {
	fx := newServiceFixture(t, false)
	citizen := dbtest.SeedUser(t, fx.conn, enums.UserRoleCitizen)
	ctx := context.Background()

	far := validCreateRequest()
	far.Latitude, far.Longitude = 12.9900, 77.5946 // ~2 km north
	near := validCreateRequest()
	near.Latitude, near.Longitude = 12.9720, 77.5950
	outside := validCreateRequest()
	outside.Latitude, outside.Longitude = 13.2000, 77.5946

	for _, req := range []CreateIssueRequest{far, near, outside} {
		if _, err := fx.svc.Create(ctx, actorFor(citizen), req); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	items, err := fx.svc.Nearby(ctx, actorFor(citizen), NearbyQuery{Latitude: 12.9716, Longitude: 77.5946})
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 issues within default radius, got %d", len(items))
	}
	if *items[0].DistanceMeters > *items[1].DistanceMeters {
		t.Fatal("expected ascending distance")
	}
	if items[0].Location.Latitude != near.Latitude {
		t.Fatalf("closest issue should come first, got %+v", items[0].Location)
	}
}

func TestServiceListByReporterRequiresOwnership(t *testing.T) {
	fx := newServiceFixture(t, false)
	reporter := dbtest.SeedUser(t, fx.conn, enums.UserRoleCitizen)
	stranger := dbtest.SeedUser(t, fx.conn, enums.UserRoleCitizen)
	ctx := context.Background()
	_, _ = fx.svc.Create(ctx, actorFor(reporter), validCreateRequest())

	if _, err := fx.svc.ListByReporter(ctx, actorFor(stranger), reporter.ID, ListFilter{}); !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	page, err := fx.svc.ListByReporter(ctx, actorFor(reporter), reporter.ID, ListFilter{})
	if err != nil {
		t.Fatalf("list mine: %v", err)
	}
	if page.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
}
