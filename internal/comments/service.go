package comments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/civicconnect/civic-backend/internal/notifications"
	pkgAuth "github.com/civicconnect/civic-backend/pkg/auth"
	"github.com/civicconnect/civic-backend/pkg/db/models"
	pkgerrors "github.com/civicconnect/civic-backend/pkg/errors"
	"github.com/civicconnect/civic-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type issueLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Issue, error)
}

type userLookup interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error)
}

type eventPublisher interface {
	Enqueue(ctx context.Context, event notifications.Event) bool
}

// Service defines comment operations.
type Service interface {
	Add(ctx context.Context, actor pkgAuth.Actor, issueID uuid.UUID, req CreateCommentRequest) (*CommentDTO, error)
	List(ctx context.Context, actor pkgAuth.Actor, issueID uuid.UUID, params ListParams) (*Page, error)
	Update(ctx context.Context, actor pkgAuth.Actor, commentID uuid.UUID, req UpdateCommentRequest) (*CommentDTO, error)
	Delete(ctx context.Context, actor pkgAuth.Actor, commentID uuid.UUID) error
}

// ServiceParams bundles comment service dependencies.
type ServiceParams struct {
	Repo   Repository
	Issues issueLookup
	Users  userLookup
	Events eventPublisher
	Logger *logger.Logger
	Now    func() time.Time
}

type service struct {
	repo   Repository
	issues issueLookup
	users  userLookup
	events eventPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// NewService wires the comment service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("comments repository required")
	}
	if params.Issues == nil {
		return nil, fmt.Errorf("issue lookup required")
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
	return &service{
		repo:   params.Repo,
		issues: params.Issues,
		users:  params.Users,
		events: params.Events,
		logg:   logg,
		now:    now,
	}, nil
}

func (s *service) Add(ctx context.Context, actor pkgAuth.Actor, issueID uuid.UUID, req CreateCommentRequest) (*CommentDTO, error) {
	content, err := normalizeContent(req.Content)
	if err != nil {
		return nil, err
	}
	if req.IsInternal && !actor.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only staff can post internal comments")
	}

	issue, err := s.issues.FindByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "issue not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup issue")
	}

	if req.ParentID != nil {
		parent, err := s.repo.FindByID(ctx, *req.ParentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "parent comment not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup parent comment")
		}
		if parent.IssueID != issueID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "parent comment belongs to another issue")
		}
		if parent.ParentID != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "replies cannot be nested")
		}
	}

	now := s.now()
	comment := &models.Comment{
		IssueID:     issueID,
		AuthorID:    actor.UserID,
		Content:     content,
		IsInternal:  req.IsInternal,
		IsFromStaff: actor.IsStaff(),
		ParentID:    req.ParentID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, comment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create comment")
	}

	// The queued event must not alias the rows returned to the caller.
	issueCopy, commentCopy := *issue, *comment
	issueCopy.StatusHistory = nil
	event := notifications.CommentAdded(&issueCopy, &commentCopy, actor.UserID)
	if !s.events.Enqueue(ctx, event) {
		s.logg.Warn(s.logg.WithIssueID(ctx, issueID.String()), "comment notification not queued")
	}

	dtos, err := s.withAuthors(ctx, []models.Comment{*comment})
	if err != nil {
		return nil, err
	}
	return &dtos[0], nil
}

func (s *service) List(ctx context.Context, actor pkgAuth.Actor, issueID uuid.UUID, params ListParams) (*Page, error) {
	if _, err := s.issues.FindByID(ctx, issueID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "issue not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup issue")
	}

	w := params.window()
	rows, total, err := s.repo.ListByIssue(ctx, issueID, actor.IsStaff(), w.Limit, w.Offset())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list comments")
	}
	items, err := s.withAuthors(ctx, rows)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Total: total, Page: w.Page, Limit: w.Limit}, nil
}

func (s *service) Update(ctx context.Context, actor pkgAuth.Actor, commentID uuid.UUID, req UpdateCommentRequest) (*CommentDTO, error) {
	content, err := normalizeContent(req.Content)
	if err != nil {
		return nil, err
	}
	comment, err := s.load(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if comment.AuthorID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the author may edit this comment")
	}
	if comment.IsDeleted {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deleted comments cannot be edited")
	}

	if err := s.repo.UpdateContent(ctx, commentID, content, s.now()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "comment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update comment")
	}
	fresh, err := s.load(ctx, commentID)
	if err != nil {
		return nil, err
	}
	dtos, err := s.withAuthors(ctx, []models.Comment{*fresh})
	if err != nil {
		return nil, err
	}
	return &dtos[0], nil
}

func (s *service) Delete(ctx context.Context, actor pkgAuth.Actor, commentID uuid.UUID) error {
	comment, err := s.load(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.AuthorID != actor.UserID && !actor.IsAdmin() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the author or an admin may delete this comment")
	}
	if comment.IsDeleted {
		return nil
	}
	if err := s.repo.SoftDelete(ctx, commentID, s.now()); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete comment")
	}
	return nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	comment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "comment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup comment")
	}
	return comment, nil
}

func (s *service) withAuthors(ctx context.Context, rows []models.Comment) ([]CommentDTO, error) {
	out := make([]CommentDTO, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]uuid.UUID, 0, len(rows))
	seen := map[uuid.UUID]struct{}{}
	for _, c := range rows {
		if _, ok := seen[c.AuthorID]; !ok {
			seen[c.AuthorID] = struct{}{}
			ids = append(ids, c.AuthorID)
		}
	}
	authors, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load comment authors")
	}
	byID := make(map[uuid.UUID]*models.User, len(authors))
	for i := range authors {
		byID[authors[i].ID] = &authors[i]
	}
	for i := range rows {
		out[i] = fromModel(&rows[i], byID[rows[i].AuthorID])
	}
	return out, nil
}

func normalizeContent(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "content is required")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return "", pkgerrors.Validationf("content must be at most %d characters", maxContentLength)
	}
	return content, nil
}
