package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campus-tic/projector-loan-api/internal/models"
)

// ProjectorRepository handles persistence for physical projector units.
type ProjectorRepository struct {
	db *sqlx.DB
}

// NewProjectorRepository instantiates a projector repository.
func NewProjectorRepository(db *sqlx.DB) *ProjectorRepository {
	return &ProjectorRepository{db: db}
}

const projectorColumns = "id, code, grade, group_name, shift, status, created_at, updated_at"

// List returns projectors matching the provided filters.
func (r *ProjectorRepository) List(ctx context.Context, filter models.ProjectorFilter) ([]models.Projector, int, error) {
	base := "FROM projectors WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Grade != "" {
		conditions = append(conditions, fmt.Sprintf("grade = $%d", len(args)+1))
		args = append(args, filter.Grade)
	}
	if filter.Group != "" {
		conditions = append(conditions, fmt.Sprintf("group_name = $%d", len(args)+1))
		args = append(args, filter.Group)
	}
	if filter.Shift != nil {
		conditions = append(conditions, fmt.Sprintf("shift = $%d", len(args)+1))
		args = append(args, *filter.Shift)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY code ASC LIMIT %d OFFSET %d", projectorColumns, base, size, offset)

	var projectors []models.Projector
	if err := r.db.SelectContext(ctx, &projectors, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list projectors: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count projectors: %w", err)
	}

	return projectors, total, nil
}

// ListAvailable returns all units currently free to assign, optionally
// narrowed by shift.
func (r *ProjectorRepository) ListAvailable(ctx context.Context, shift *models.Shift) ([]models.Projector, error) {
	query := fmt.Sprintf("SELECT %s FROM projectors WHERE status = $1", projectorColumns)
	args := []interface{}{models.ProjectorAvailable}
	if shift != nil {
		query += " AND shift = $2"
		args = append(args, *shift)
	}
	query += " ORDER BY code ASC"

	var projectors []models.Projector
	if err := r.db.SelectContext(ctx, &projectors, query, args...); err != nil {
		return nil, fmt.Errorf("list available projectors: %w", err)
	}
	return projectors, nil
}

// FindByID loads a projector by identifier.
func (r *ProjectorRepository) FindByID(ctx context.Context, id string) (*models.Projector, error) {
	query := fmt.Sprintf("SELECT %s FROM projectors WHERE id = $1", projectorColumns)
	var projector models.Projector
	if err := r.db.GetContext(ctx, &projector, query, id); err != nil {
		return nil, err
	}
	return &projector, nil
}

// Create inserts a new projector record.
func (r *ProjectorRepository) Create(ctx context.Context, projector *models.Projector) error {
	if projector.ID == "" {
		projector.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if projector.CreatedAt.IsZero() {
		projector.CreatedAt = now
	}
	projector.UpdatedAt = now

	const query = `INSERT INTO projectors (id, code, grade, group_name, shift, status, created_at, updated_at)
		VALUES (:id, :code, :grade, :group_name, :shift, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, projector); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("create projector: %w", err)
	}
	return nil
}

// Update modifies the descriptive fields and admin-set status of a unit.
func (r *ProjectorRepository) Update(ctx context.Context, projector *models.Projector) error {
	projector.UpdatedAt = time.Now().UTC()
	const query = `UPDATE projectors SET code = :code, grade = :grade, group_name = :group_name, shift = :shift, status = :status, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, projector)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("update projector: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a projector permanently.
func (r *ProjectorRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projectors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete projector: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountByStatus aggregates unit counts per status for the dashboard.
func (r *ProjectorRepository) CountByStatus(ctx context.Context) (map[models.ProjectorStatus]int, error) {
	rows := []struct {
		Status models.ProjectorStatus `db:"status"`
		Count  int                    `db:"count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM projectors GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count projectors by status: %w", err)
	}
	counts := make(map[models.ProjectorStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
