package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campus-tic/projector-loan-api/internal/models"
	"github.com/campus-tic/projector-loan-api/internal/repository"
	appErrors "github.com/campus-tic/projector-loan-api/pkg/errors"
)

type projectorRepository interface {
	List(ctx context.Context, filter models.ProjectorFilter) ([]models.Projector, int, error)
	ListAvailable(ctx context.Context, shift *models.Shift) ([]models.Projector, error)
	FindByID(ctx context.Context, id string) (*models.Projector, error)
	Create(ctx context.Context, projector *models.Projector) error
	Update(ctx context.Context, projector *models.Projector) error
	Delete(ctx context.Context, id string) error
}

// CreateProjectorRequest describes the payload for registering a unit.
type CreateProjectorRequest struct {
	Code  string       `json:"code" validate:"required,max=50"`
	Grade string       `json:"grade" validate:"required,max=20"`
	Group string       `json:"group" validate:"required,max=20"`
	Shift models.Shift `json:"shift" validate:"required"`
}

// UpdateProjectorRequest updates descriptive fields and may set the
// status to MAINTENANCE or back to AVAILABLE. IN_USE is reserved for the
// loan lifecycle and rejected here.
type UpdateProjectorRequest struct {
	Code   string                 `json:"code" validate:"required,max=50"`
	Grade  string                 `json:"grade" validate:"required,max=20"`
	Group  string                 `json:"group" validate:"required,max=20"`
	Shift  models.Shift           `json:"shift" validate:"required"`
	Status models.ProjectorStatus `json:"status" validate:"required"`
}

// ProjectorService manages the projector inventory.
type ProjectorService struct {
	repo      projectorRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProjectorService creates a projector service instance.
func NewProjectorService(repo projectorRepository, validate *validator.Validate, logger *zap.Logger) *ProjectorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectorService{repo: repo, validator: validate, logger: logger}
}

// List returns paginated projectors for admin views.
func (s *ProjectorService) List(ctx context.Context, filter models.ProjectorFilter) ([]models.Projector, *models.Pagination, error) {
	projectors, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list projectors")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return projectors, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListAvailable returns the units currently free to assign.
func (s *ProjectorService) ListAvailable(ctx context.Context, shift *models.Shift) ([]models.Projector, error) {
	if shift != nil && !models.ValidShift(*shift) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown shift")
	}
	projectors, err := s.repo.ListAvailable(ctx, shift)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available projectors")
	}
	return projectors, nil
}

// Get returns a projector by id.
func (s *ProjectorService) Get(ctx context.Context, id string) (*models.Projector, error) {
	projector, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "projector not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load projector")
	}
	return projector, nil
}

// Create registers a new unit, born AVAILABLE.
func (s *ProjectorService) Create(ctx context.Context, req CreateProjectorRequest) (*models.Projector, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid projector payload")
	}
	if !models.ValidShift(req.Shift) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown shift")
	}

	projector := &models.Projector{
		Code:   req.Code,
		Grade:  req.Grade,
		Group:  req.Group,
		Shift:  req.Shift,
		Status: models.ProjectorAvailable,
	}
	if err := s.repo.Create(ctx, projector); err != nil {
		if errors.Is(err, repository.ErrDuplicateCode) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a projector with this code already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create projector")
	}

	s.logger.Info("projector created", zap.String("projector_id", projector.ID), zap.String("code", projector.Code))
	return projector, nil
}

// Update edits a unit. Status changes here are the admin override path
// (maintenance); the loan lifecycle owns the AVAILABLE/IN_USE flips.
func (s *ProjectorService) Update(ctx context.Context, id string, req UpdateProjectorRequest) (*models.Projector, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid projector payload")
	}
	if !models.ValidShift(req.Shift) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown shift")
	}
	if !models.ValidProjectorStatus(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown projector status")
	}
	if req.Status == models.ProjectorInUse {
		return nil, appErrors.Clone(appErrors.ErrValidation, "IN_USE is set by the loan lifecycle, not by edits")
	}

	projector, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if projector.Status == models.ProjectorInUse && req.Status != projector.Status {
		return nil, appErrors.Clone(appErrors.ErrConflict, "projector is currently loaned out, finalize the loan first")
	}

	projector.Code = req.Code
	projector.Grade = req.Grade
	projector.Group = req.Group
	projector.Shift = req.Shift
	projector.Status = req.Status

	if err := s.repo.Update(ctx, projector); err != nil {
		if errors.Is(err, repository.ErrDuplicateCode) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a projector with this code already exists")
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "projector not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update projector")
	}
	return projector, nil
}

// Delete removes a unit that is not currently loaned out.
func (s *ProjectorService) Delete(ctx context.Context, id string) error {
	projector, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if projector.Status == models.ProjectorInUse {
		return appErrors.Clone(appErrors.ErrConflict, "projector is currently loaned out, finalize the loan first")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "projector not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete projector")
	}
	return nil
}
