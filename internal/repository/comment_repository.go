package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-tic/projector-loan-api/internal/models"
)

// CommentRepository persists post-return incident reports.
type CommentRepository struct {
	db *sqlx.DB
}

// NewCommentRepository instantiates a comment repository.
func NewCommentRepository(db *sqlx.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

const commentColumns = "id, loan_id, projector_id, user_id, tags, comment, status, created_at, resolved_at"

// Append inserts a new incident report with status PENDING.
func (r *CommentRepository) Append(ctx context.Context, comment *models.ProjectorComment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	comment.Status = models.CommentPending

	const query = `INSERT INTO projector_comments (id, loan_id, projector_id, user_id, tags, comment, status, created_at)
		VALUES (:id, :loan_id, :projector_id, :user_id, :tags, :comment, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, comment); err != nil {
		return fmt.Errorf("append comment: %w", err)
	}
	return nil
}

// FindByID loads a comment by identifier.
func (r *CommentRepository) FindByID(ctx context.Context, id string) (*models.ProjectorComment, error) {
	query := fmt.Sprintf("SELECT %s FROM projector_comments WHERE id = $1", commentColumns)
	var comment models.ProjectorComment
	if err := r.db.GetContext(ctx, &comment, query, id); err != nil {
		return nil, err
	}
	return &comment, nil
}

// List returns incident reports matching the provided filters.
func (r *CommentRepository) List(ctx context.Context, filter models.CommentFilter) ([]models.ProjectorComment, int, error) {
	base := "FROM projector_comments WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.ProjectorID != "" {
		conditions = append(conditions, fmt.Sprintf("projector_id = $%d", len(args)+1))
		args = append(args, filter.ProjectorID)
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", commentColumns, base, size, offset)

	var comments []models.ProjectorComment
	if err := r.db.SelectContext(ctx, &comments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list comments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count comments: %w", err)
	}

	return comments, total, nil
}

// Resolve flips a PENDING comment to RESOLVED.
func (r *CommentRepository) Resolve(ctx context.Context, id string) error {
	const query = `UPDATE projector_comments SET status = $2, resolved_at = $3 WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, models.CommentResolved, time.Now().UTC(), models.CommentPending)
	if err != nil {
		return fmt.Errorf("resolve comment: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountOpen returns the number of comments still awaiting resolution.
func (r *CommentRepository) CountOpen(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM projector_comments WHERE status = $1`, models.CommentPending)
	if err != nil {
		return 0, fmt.Errorf("count open comments: %w", err)
	}
	return count, nil
}

// ExistsForLoan reports whether the user already filed a report on the loan.
func (r *CommentRepository) ExistsForLoan(ctx context.Context, loanID, userID string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists,
		`SELECT 1 FROM projector_comments WHERE loan_id = $1 AND user_id = $2 LIMIT 1`, loanID, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check comment existence: %w", err)
	}
	return true, nil
}
