package issues

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/civicconnect/civic-backend/internal/notifications"
	"github.com/civicconnect/civic-backend/internal/users"
	pkgAuth "github.com/civicconnect/civic-backend/pkg/auth"
	"github.com/civicconnect/civic-backend/pkg/db/models"
	"github.com/civicconnect/civic-backend/pkg/enums"
	pkgerrors "github.com/civicconnect/civic-backend/pkg/errors"
	"github.com/civicconnect/civic-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultNearbyRadius = 5000
	defaultNearbyLimit  = 20
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type userLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error)
}

type eventPublisher interface {
	Enqueue(ctx context.Context, event notifications.Event) bool
}

// Service defines issue operations exposed to controllers.
type Service interface {
	Create(ctx context.Context, actor pkgAuth.Actor, req CreateIssueRequest) (*IssueDTO, error)
	Get(ctx context.Context, actor pkgAuth.Actor, id uuid.UUID) (*IssueDTO, error)
	List(ctx context.Context, actor pkgAuth.Actor, filter ListFilter) (*Page, error)
	ListByReporter(ctx context.Context, actor pkgAuth.Actor, reporterID uuid.UUID, filter ListFilter) (*Page, error)
	Nearby(ctx context.Context, actor pkgAuth.Actor, query NearbyQuery) ([]IssueDTO, error)
	Update(ctx context.Context, actor pkgAuth.Actor, id uuid.UUID, req UpdateIssueRequest) (*IssueDTO, error)
	Delete(ctx context.Context, actor pkgAuth.Actor, id uuid.UUID) error
	Stats(ctx context.Context) (*Stats, error)
	Upvote(ctx context.Context, actor pkgAuth.Actor, id uuid.UUID) (*UpvoteResult, error)
	RemoveUpvote(ctx context.Context, actor pkgAuth.Actor, id uuid.UUID) (*UpvoteResult, error)
	Assign(ctx context.Context, actor pkgAuth.Actor, id uuid.UUID, req AssignRequest) (*IssueDTO, error)
	ChangeStatus(ctx context.Context, actor pkgAuth.Actor, id uuid.UUID, req StatusChangeRequest) (*IssueDTO, error)
}

// ServiceParams bundles issue service dependencies.
type ServiceParams struct {
	Repo               Repository
	Tx                 txRunner
	Users              userLookup
	Events             eventPublisher
	Policy             TransitionPolicy
	NearbyRadiusMeters float64
	NearbyLimit        int
	Logger             *logger.Logger
	Now                func() time.Time
}

type service struct {
	repo         Repository
	tx           txRunner
	users        userLookup
	events       eventPublisher
	policy       TransitionPolicy
	nearbyRadius float64
	nearbyLimit  int
	logg         *logger.Logger
	now          func() time.Time
}

// NewService wires the issue service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("issues repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user lookup required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event publisher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	radius := params.NearbyRadiusMeters
	if radius <= 0 {
		radius = defaultNearbyRadius
	}
	limit := params.NearbyLimit
	if limit <= 0 {
		limit = defaultNearbyLimit
	}
	return &service{
		repo:         params.Repo,
		tx:           params.Tx,
		users:        params.Users,
		events:       params.Events,
		policy:       params.Policy,
		nearbyRadius: radius,
		nearbyLimit:  limit,
		logg:         logg,
		now:          now,
	}, nil
}

func (s *service) Create(ctx context.Context, actor pkgAuth.Actor, req CreateIssueRequest) (*IssueDTO, error) {
	if !actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	issue, err := newIssue(req, actor.UserID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	issue.CreatedAt = now
	issue.UpdatedAt = now
	issue.StatusHistory = []models.IssueStatusHistory{{
		Status:    enums.IssueStatusReported,
		ChangedBy: actor.UserID,
		CreatedAt: now,
	}}

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Create(ctx, issue)
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create issue")
	}

	s.publish(ctx, notifications.IssueCreated(snapshot(issue), actor.UserID))
	return s.decorateOne(ctx, actor, issue)
}

func newIssue(req CreateIssueRequest, reporterID uuid.UUID) (*models.Issue, error) {
	title := strings.TrimSpace(req.Title)
	description := strings.TrimSpace(req.Description)
	location := strings.TrimSpace(req.LocationName)
	switch {
	case title == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	case utf8.RuneCountInString(title) > maxTitleLength:
		return nil, pkgerrors.Validationf("title must be at most %d characters", maxTitleLength)
	case description == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description is required")
	case utf8.RuneCountInString(description) > maxDescriptionLength:
		return nil, pkgerrors.Validationf("description must be at most %d characters", maxDescriptionLength)
	case location == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "location name is required")
	case !req.Category.IsValid():
		return nil, pkgerrors.Validationf("invalid category %q", req.Category)
	case req.Latitude < -90 || req.Latitude > 90:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "latitude must be between -90 and 90")
	case req.Longitude < -180 || req.Longitude > 180:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "longitude must be between -180 and 180")
	}

	priority := req.Priority
	if priority == "" {
		priority = enums.PriorityMedium
	}
	if !priority.IsValid() {
		return nil, pkgerrors.Validationf("invalid priority %q", priority)
	}

	return &models.Issue{
		Title:        title,
		Description:  description,
		Category:     req.Category,
		Status:       enums.IssueStatusReported,
		Priority:     priority,
		ReportedBy:   reporterID,
		LocationName: location,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		Address:      req.Address,
	}, nil
}

func (s *service) Get(ctx context.Context, actor pkgAuth.Actor, id uuid.UUID) (*IssueDTO, error) {
	issue, err := s.repo.FindWithHistory(ctx, id)
	if err != nil {
		return nil, mapLookupErr(err)
	}
	return s.decorateOne(ctx, actor, issue)
}

func (s *service) List(ctx context.Context, actor pkgAuth.Actor, filter ListFilter) (*Page, error) {
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list issues")
	}
	items, err := s.decorate(ctx, actor, rows)
	if err != nil {
		return nil, err
	}
	w := filter.window()
	return &Page{Items: items, Total: total, Page: w.Page, Limit: w.Limit}, nil
}

func (s *service) ListByReporter(ctx context.Context, actor pkgAuth.Actor, reporterID uuid.UUID, filter ListFilter) (*Page, error) {
	if actor.UserID != reporterID && !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot list another user's issues")
	}
	filter.ReportedBy = &reporterID
	return s.List(ctx, actor, filter)
}

func (s *service) Nearby(ctx context.Context, actor pkgAuth.Actor, query NearbyQuery) ([]IssueDTO, error) {
	if query.Latitude < -90 || query.Latitude > 90 || query.Longitude < -180 || query.Longitude > 180 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coordinates out of range")
	}
	radius := query.RadiusMeters
	if radius <= 0 {
		radius = s.nearbyRadius
	}
	limit := query.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = s.nearbyLimit
	}

	candidates, err := s.repo.ListInBox(ctx, boxAround(query.Latitude, query.Longitude, radius))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "nearby issues")
	}

	type hit struct {
		issue    models.Issue
		distance float64
	}
	hits := make([]hit, 0, len(candidates))
	for _, c := range candidates {
		d := haversineMeters(query.Latitude, query.Longitude, c.Latitude, c.Longitude)
		if d <= radius {
			hits = append(hits, hit{issue: c, distance: d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].distance < hits[j].distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	rows := make([]models.Issue, len(hits))
	for i := range hits {
		rows[i] = hits[i].issue
	}
	items, err := s.decorate(ctx, actor, rows)
	if err != nil {
		return nil, err
	}
	for i := range items {
		d := hits[i].distance
		items[i].DistanceMeters = &d
	}
	return items, nil
}

func (s *service) Update(ctx context.Context, actor pkgAuth.Actor, id uuid.UUID, req UpdateIssueRequest) (*IssueDTO, error) {
	cols, err := req.columns()
	if err != nil {
		return nil, err
	}

	var updated *models.Issue
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		issue, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return mapLookupErr(err)
		}
		if issue.ReportedBy != actor.UserID && !actor.IsAdmin() {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the reporter or an admin may edit this issue")
		}
		if err := repo.UpdateColumns(ctx, id, cols); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update issue")
		}
		updated, err = repo.FindWithHistory(ctx, id)
		return err
	})
	if err != nil {
		return nil, asServiceErr(err, "update issue")
	}
	return s.decorateOne(ctx, actor, updated)
}

func (r UpdateIssueRequest) columns() (map[string]any, error) {
	cols := map[string]any{}
	if r.Title != nil {
		title := strings.TrimSpace(*r.Title)
		if title == "" || utf8.RuneCountInString(title) > maxTitleLength {
			return nil, pkgerrors.Validationf("title must be 1-%d characters", maxTitleLength)
		}
		cols["title"] = title
	}
	if r.Description != nil {
		description := strings.TrimSpace(*r.Description)
		if description == "" || utf8.RuneCountInString(description) > maxDescriptionLength {
			return nil, pkgerrors.Validationf("description must be 1-%d characters", maxDescriptionLength)
		}
		cols["description"] = description
	}
	if r.Category != nil {
		if !r.Category.IsValid() {
			return nil, pkgerrors.Validationf("invalid category %q", *r.Category)
		}
		cols["category"] = *r.Category
	}
	if r.Priority != nil {
		if !r.Priority.IsValid() {
			return nil, pkgerrors.Validationf("invalid priority %q", *r.Priority)
		}
		cols["priority"] = *r.Priority
	}
	if len(cols) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no fields to update")
	}
	return cols, nil
}

func (s *service) Delete(ctx context.Context, actor pkgAuth.Actor, id uuid.UUID) error {
	issue, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return mapLookupErr(err)
	}
	if issue.ReportedBy != actor.UserID && !actor.IsAdmin() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the reporter or an admin may delete this issue")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return asServiceErr(mapLookupErr(err), "delete issue")
	}
	return nil
}

func (s *service) Stats(ctx context.Context) (*Stats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue stats")
	}
	return stats, nil
}

func (s *service) Upvote(ctx context.Context, actor pkgAuth.Actor, id uuid.UUID) (*UpvoteResult, error) {
	issue, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupErr(err)
	}
	if issue.ReportedBy == actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "you cannot upvote your own issue")
	}

	added, err := s.repo.AddUpvote(ctx, id, actor.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upvote issue")
	}
	if !added {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "you have already upvoted this issue")
	}

	fresh, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupErr(err)
	}
	s.publish(ctx, notifications.UpvoteReceived(fresh, actor.UserID))
	return &UpvoteResult{Upvotes: fresh.Upvotes, HasUpvoted: true}, nil
}

func (s *service) RemoveUpvote(ctx context.Context, actor pkgAuth.Actor, id uuid.UUID) (*UpvoteResult, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, mapLookupErr(err)
	}
	removed, err := s.repo.RemoveUpvote(ctx, id, actor.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove upvote")
	}
	if !removed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "you have not upvoted this issue")
	}
	fresh, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupErr(err)
	}
	return &UpvoteResult{Upvotes: fresh.Upvotes, HasUpvoted: false}, nil
}

func (s *service) Assign(ctx context.Context, actor pkgAuth.Actor, id uuid.UUID, req AssignRequest) (*IssueDTO, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if req.AssigneeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "assignee_id is required")
	}
	assignee, err := s.users.FindByID(ctx, req.AssigneeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "assignee not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup assignee")
	}
	if !assignee.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "assignee is not active")
	}
	if !assignee.Role.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "issues can only be assigned to staff")
	}

	var updated *models.Issue
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		issue, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return mapLookupErr(err)
		}

		now := s.now()
		cols := map[string]any{
			"assigned_to": assignee.ID,
			"assigned_by": actor.UserID,
			"assigned_at": now,
		}
		if issue.Status != enums.IssueStatusInProgress {
			if err := s.policy.Check(issue.Status, enums.IssueStatusInProgress); err != nil {
				return err
			}
			for k, v := range applyStatus(issue, enums.IssueStatusInProgress, now) {
				cols[k] = v
			}
			if err := repo.AppendHistory(ctx, &models.IssueStatusHistory{
				IssueID:   id,
				Status:    enums.IssueStatusInProgress,
				ChangedBy: actor.UserID,
				Reason:    req.Note,
				CreatedAt: now,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
			}
		}
		if err := repo.UpdateColumns(ctx, id, cols); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign issue")
		}
		updated, err = repo.FindWithHistory(ctx, id)
		return err
	})
	if err != nil {
		return nil, asServiceErr(err, "assign issue")
	}

	s.publish(ctx, notifications.IssueAssigned(snapshot(updated), actor.UserID))
	return s.decorateOne(ctx, actor, updated)
}

func (s *service) ChangeStatus(ctx context.Context, actor pkgAuth.Actor, id uuid.UUID, req StatusChangeRequest) (*IssueDTO, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if !req.Status.IsValid() {
		return nil, pkgerrors.Validationf("invalid status %q", req.Status)
	}

	var (
		updated   *models.Issue
		oldStatus enums.IssueStatus
		changed   bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		issue, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return mapLookupErr(err)
		}
		oldStatus = issue.Status
		if oldStatus != req.Status {
			if err := s.policy.Check(oldStatus, req.Status); err != nil {
				return err
			}
			now := s.now()
			cols := applyStatus(issue, req.Status, now)
			if err := repo.UpdateColumns(ctx, id, cols); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update status")
			}
			if err := repo.AppendHistory(ctx, &models.IssueStatusHistory{
				IssueID:   id,
				Status:    req.Status,
				ChangedBy: actor.UserID,
				Reason:    req.Reason,
				CreatedAt: now,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
			}
			changed = true
		}
		updated, err = repo.FindWithHistory(ctx, id)
		return err
	})
	if err != nil {
		return nil, asServiceErr(err, "change issue status")
	}

	if changed {
		s.publish(ctx, notifications.IssueStatusChanged(snapshot(updated), oldStatus, req.Status, actor.UserID))
	}
	return s.decorateOne(ctx, actor, updated)
}

// publish hands the event to the dispatcher queue. The primary action has
// already committed, so a rejected event is only logged.
func (s *service) publish(ctx context.Context, event notifications.Event) {
	if !s.events.Enqueue(ctx, event) {
		logCtx := s.logg.WithIssueID(ctx, event.IssueID().String())
		s.logg.Warn(s.logg.WithEvent(logCtx, string(event.Type)), "notification event not queued")
	}
}

func (s *service) decorateOne(ctx context.Context, actor pkgAuth.Actor, issue *models.Issue) (*IssueDTO, error) {
	items, err := s.decorate(ctx, actor, []models.Issue{*issue})
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}

// decorate converts rows to DTOs with reporter/assignee summaries and the
// actor's upvote flag.
func (s *service) decorate(ctx context.Context, actor pkgAuth.Actor, rows []models.Issue) ([]IssueDTO, error) {
	items := make([]IssueDTO, len(rows))
	if len(rows) == 0 {
		return items, nil
	}

	ids := make([]uuid.UUID, 0, len(rows))
	userIDs := make([]uuid.UUID, 0, len(rows)*2)
	seen := map[uuid.UUID]struct{}{}
	addUser := func(id uuid.UUID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		userIDs = append(userIDs, id)
	}
	for i := range rows {
		ids = append(ids, rows[i].ID)
		addUser(rows[i].ReportedBy)
		if rows[i].AssignedTo != nil {
			addUser(*rows[i].AssignedTo)
		}
	}

	people, err := s.users.FindByIDs(ctx, userIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load issue users")
	}
	byID := make(map[uuid.UUID]*models.User, len(people))
	for i := range people {
		byID[people[i].ID] = &people[i]
	}

	voted, err := s.repo.UpvotedBy(ctx, actor.UserID, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load upvotes")
	}

	for i := range rows {
		dto := FromModel(&rows[i])
		dto.Reporter = users.SummaryFromModel(byID[rows[i].ReportedBy])
		if rows[i].AssignedTo != nil {
			dto.Assignee = users.SummaryFromModel(byID[*rows[i].AssignedTo])
		}
		dto.HasUpvoted = voted[rows[i].ID]
		items[i] = dto
	}
	return items, nil
}

// snapshot copies the issue for the dispatcher so the queued event does not
// share memory with the response.
func snapshot(issue *models.Issue) *models.Issue {
	cp := *issue
	cp.StatusHistory = nil
	return &cp
}

func mapLookupErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "issue not found")
	}
	return err
}

func asServiceErr(err error, action string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
