package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campus-tic/projector-loan-api/internal/models"
	appErrors "github.com/campus-tic/projector-loan-api/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	UpdateProfile(ctx context.Context, id, grade, group string, shift models.Shift) error
	UpdateTheme(ctx context.Context, id, theme string) error
}

// CompleteProfileRequest fills in the academic metadata on a user.
type CompleteProfileRequest struct {
	Grade string       `json:"grade" validate:"required,max=20"`
	Group string       `json:"group" validate:"required,max=20"`
	Shift models.Shift `json:"shift" validate:"required"`
}

// UpdateThemeRequest changes the user's UI theme preference.
type UpdateThemeRequest struct {
	Theme string `json:"theme" validate:"required,oneof=light dark"`
}

// UserService manages user profiles.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates a user service instance.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// List returns paginated users for admin views.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return users, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// CompleteProfile sets grade, group and shift on a user. Admins may edit
// anyone; standard users only themselves.
func (s *UserService) CompleteProfile(ctx context.Context, claims *models.JWTClaims, id string, req CompleteProfileRequest) (*models.User, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !claims.IsAdmin() && claims.UserID != id {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	if !models.ValidShift(req.Shift) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown shift")
	}

	if err := s.repo.UpdateProfile(ctx, id, req.Grade, req.Group, req.Shift); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	return s.Get(ctx, id)
}

// UpdateTheme stores the user's own theme preference.
func (s *UserService) UpdateTheme(ctx context.Context, claims *models.JWTClaims, id string, req UpdateThemeRequest) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if claims.UserID != id {
		return appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid theme payload")
	}

	if err := s.repo.UpdateTheme(ctx, id, req.Theme); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update theme")
	}
	return nil
}
