package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-tic/projector-loan-api/internal/models"
	"github.com/campus-tic/projector-loan-api/internal/repository"
	appErrors "github.com/campus-tic/projector-loan-api/pkg/errors"
)

type mockProjectorRepo struct {
	projectors map[string]*models.Projector
	createErr  error
	updateErr  error
	deleted    []string
}

func newMockProjectorRepo(projectors ...*models.Projector) *mockProjectorRepo {
	repo := &mockProjectorRepo{projectors: make(map[string]*models.Projector)}
	for _, p := range projectors {
		repo.projectors[p.ID] = p
	}
	return repo
}

func (m *mockProjectorRepo) List(_ context.Context, _ models.ProjectorFilter) ([]models.Projector, int, error) {
	var out []models.Projector
	for _, p := range m.projectors {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (m *mockProjectorRepo) ListAvailable(_ context.Context, shift *models.Shift) ([]models.Projector, error) {
	var out []models.Projector
	for _, p := range m.projectors {
		if p.Status != models.ProjectorAvailable {
			continue
		}
		if shift != nil && p.Shift != *shift {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockProjectorRepo) FindByID(_ context.Context, id string) (*models.Projector, error) {
	p, ok := m.projectors[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m *mockProjectorRepo) Create(_ context.Context, projector *models.Projector) error {
	if m.createErr != nil {
		return m.createErr
	}
	if projector.ID == "" {
		projector.ID = "proj-generated"
	}
	cp := *projector
	m.projectors[projector.ID] = &cp
	return nil
}

func (m *mockProjectorRepo) Update(_ context.Context, projector *models.Projector) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.projectors[projector.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *projector
	m.projectors[projector.ID] = &cp
	return nil
}

func (m *mockProjectorRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.projectors[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.projectors, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func TestProjectorServiceCreate(t *testing.T) {
	repo := newMockProjectorRepo()
	svc := NewProjectorService(repo, nil, nil)

	projector, err := svc.Create(context.Background(), CreateProjectorRequest{
		Code: "PRJ-01", Grade: "5", Group: "A", Shift: models.ShiftMorning,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectorAvailable, projector.Status)
	assert.Equal(t, "PRJ-01", projector.Code)
}

func TestProjectorServiceCreateDuplicateCode(t *testing.T) {
	repo := newMockProjectorRepo()
	repo.createErr = repository.ErrDuplicateCode
	svc := NewProjectorService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateProjectorRequest{
		Code: "PRJ-01", Grade: "5", Group: "A", Shift: models.ShiftMorning,
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestProjectorServiceListAvailableFiltersByShift(t *testing.T) {
	repo := newMockProjectorRepo(
		&models.Projector{ID: "p1", Code: "PRJ-01", Shift: models.ShiftMorning, Status: models.ProjectorAvailable},
		&models.Projector{ID: "p2", Code: "PRJ-02", Shift: models.ShiftAfternoon, Status: models.ProjectorAvailable},
		&models.Projector{ID: "p3", Code: "PRJ-03", Shift: models.ShiftMorning, Status: models.ProjectorInUse},
	)
	svc := NewProjectorService(repo, nil, nil)

	shift := models.ShiftMorning
	available, err := svc.ListAvailable(context.Background(), &shift)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, "p1", available[0].ID)
}

func TestProjectorServiceUpdateRejectsInUseStatus(t *testing.T) {
	repo := newMockProjectorRepo(&models.Projector{ID: "p1", Code: "PRJ-01", Grade: "5", Group: "A", Shift: models.ShiftMorning, Status: models.ProjectorAvailable})
	svc := NewProjectorService(repo, nil, nil)

	_, err := svc.Update(context.Background(), "p1", UpdateProjectorRequest{
		Code: "PRJ-01", Grade: "5", Group: "A", Shift: models.ShiftMorning, Status: models.ProjectorInUse,
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestProjectorServiceUpdateMaintenanceOverride(t *testing.T) {
	repo := newMockProjectorRepo(&models.Projector{ID: "p1", Code: "PRJ-01", Grade: "5", Group: "A", Shift: models.ShiftMorning, Status: models.ProjectorAvailable})
	svc := NewProjectorService(repo, nil, nil)

	projector, err := svc.Update(context.Background(), "p1", UpdateProjectorRequest{
		Code: "PRJ-01", Grade: "5", Group: "A", Shift: models.ShiftMorning, Status: models.ProjectorMaintenance,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectorMaintenance, projector.Status)
}

func TestProjectorServiceUpdateLoanedUnitConflict(t *testing.T) {
	repo := newMockProjectorRepo(&models.Projector{ID: "p1", Code: "PRJ-01", Grade: "5", Group: "A", Shift: models.ShiftMorning, Status: models.ProjectorInUse})
	svc := NewProjectorService(repo, nil, nil)

	_, err := svc.Update(context.Background(), "p1", UpdateProjectorRequest{
		Code: "PRJ-01", Grade: "5", Group: "A", Shift: models.ShiftMorning, Status: models.ProjectorMaintenance,
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestProjectorServiceDeleteLoanedUnitConflict(t *testing.T) {
	repo := newMockProjectorRepo(&models.Projector{ID: "p1", Code: "PRJ-01", Status: models.ProjectorInUse})
	svc := NewProjectorService(repo, nil, nil)

	err := svc.Delete(context.Background(), "p1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Empty(t, repo.deleted)
}

func TestProjectorServiceDelete(t *testing.T) {
	repo := newMockProjectorRepo(&models.Projector{ID: "p1", Code: "PRJ-01", Status: models.ProjectorAvailable})
	svc := NewProjectorService(repo, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), "p1"))
	assert.Equal(t, []string{"p1"}, repo.deleted)
}
