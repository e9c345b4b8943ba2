package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/civicconnect/civic-backend/pkg/db/models"
	"github.com/civicconnect/civic-backend/pkg/enums"
	pkgerrors "github.com/civicconnect/civic-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type store interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	List(ctx context.Context, filter ListFilter) ([]models.User, int64, error)
	Update(ctx context.Context, id uuid.UUID, patch UpdateUserDTO) (bool, error)
}

// Page is a page of users plus the total match count.
type Page struct {
	Users []UserDTO `json:"users"`
	Total int64     `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
}

// ProfileUpdate is the self-service profile patch.
type ProfileUpdate struct {
	Name               *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Phone              *string `json:"phone,omitempty" validate:"omitempty,max=20"`
	EmailNotifications *bool   `json:"email_notifications,omitempty"`
}

// AdminUpdate is the admin-only patch for a user's role and active flag.
type AdminUpdate struct {
	Role     *enums.UserRole `json:"role,omitempty"`
	IsActive *bool           `json:"is_active,omitempty"`
}

// Service covers profile reads/writes and admin user management.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*UserDTO, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, input ProfileUpdate) (*UserDTO, error)
	List(ctx context.Context, filter ListFilter) (*Page, error)
	AdminUpdate(ctx context.Context, actorID, id uuid.UUID, input AdminUpdate) (*UserDTO, error)
}

type service struct {
	repo store
}

func NewService(repo store) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*UserDTO, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return FromModel(user), nil
}

func (s *service) UpdateProfile(ctx context.Context, id uuid.UUID, input ProfileUpdate) (*UserDTO, error) {
	patch := UpdateUserDTO{
		Phone:              input.Phone,
		EmailNotifications: input.EmailNotifications,
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		patch.Name = &name
	}
	return s.apply(ctx, id, patch)
}

func (s *service) List(ctx context.Context, filter ListFilter) (*Page, error) {
	if filter.Role != nil && !filter.Role.IsValid() {
		return nil, pkgerrors.Validationf("invalid role %q", *filter.Role)
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
	}
	out := make([]UserDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	w := filter.window()
	return &Page{Users: out, Total: total, Page: w.Page, Limit: w.Limit}, nil
}

func (s *service) AdminUpdate(ctx context.Context, actorID, id uuid.UUID, input AdminUpdate) (*UserDTO, error) {
	if input.Role != nil && !input.Role.IsValid() {
		return nil, pkgerrors.Validationf("invalid role %q", *input.Role)
	}
	if actorID == id && input.IsActive != nil && !*input.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "admins cannot deactivate themselves")
	}
	return s.apply(ctx, id, UpdateUserDTO{Role: input.Role, IsActive: input.IsActive})
}

func (s *service) apply(ctx context.Context, id uuid.UUID, patch UpdateUserDTO) (*UserDTO, error) {
	found, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update user")
	}
	if !found {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return s.Get(ctx, id)
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
}
