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

// LoanRepository handles persistence for loan requests, including the
// multi-entity transitions that must commit atomically.
type LoanRepository struct {
	db *sqlx.DB
}

// NewLoanRepository instantiates a loan repository.
func NewLoanRepository(db *sqlx.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

const loanColumns = "id, user_id, starts_at, ends_at, reason, shift, status, projector_id, feedback_requested, calendar_event_id, created_at, updated_at"

// List returns loan requests matching the provided filters.
func (r *LoanRepository) List(ctx context.Context, filter models.LoanFilter) ([]models.LoanRequest, int, error) {
	base := "FROM loan_requests WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("starts_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("ends_at <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"starts_at":  true,
		"ends_at":    true,
		"status":     true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "starts_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", loanColumns, base, sortBy, order, size, offset)

	var loans []models.LoanRequest
	if err := r.db.SelectContext(ctx, &loans, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list loans: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count loans: %w", err)
	}

	return loans, total, nil
}

// FindByID loads a loan request by identifier.
func (r *LoanRepository) FindByID(ctx context.Context, id string) (*models.LoanRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM loan_requests WHERE id = $1", loanColumns)
	var loan models.LoanRequest
	if err := r.db.GetContext(ctx, &loan, query, id); err != nil {
		return nil, err
	}
	return &loan, nil
}

// Create inserts a new loan request in its initial PENDING state.
func (r *LoanRepository) Create(ctx context.Context, loan *models.LoanRequest) error {
	if loan.ID == "" {
		loan.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if loan.CreatedAt.IsZero() {
		loan.CreatedAt = now
	}
	loan.UpdatedAt = now
	loan.Status = models.LoanPending

	const query = `INSERT INTO loan_requests (id, user_id, starts_at, ends_at, reason, shift, status, projector_id, feedback_requested, calendar_event_id, created_at, updated_at)
		VALUES (:id, :user_id, :starts_at, :ends_at, :reason, :shift, :status, :projector_id, :feedback_requested, :calendar_event_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, loan); err != nil {
		return fmt.Errorf("create loan: %w", err)
	}
	return nil
}

// UpdateWindow rewrites the time window and reason of a loan that is
// still PENDING. The status guard keeps approved windows immutable.
func (r *LoanRepository) UpdateWindow(ctx context.Context, id string, startsAt, endsAt time.Time, reason string) error {
	const query = `UPDATE loan_requests SET starts_at = $2, ends_at = $3, reason = $4, updated_at = $5
		WHERE id = $1 AND status = $6`
	res, err := r.db.ExecContext(ctx, query, id, startsAt, endsAt, reason, time.Now().UTC(), models.LoanPending)
	if err != nil {
		return fmt.Errorf("update loan window: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return ErrLoanNotPending
	}
	return nil
}

// Withdraw deletes a loan the requester gave up on while it was PENDING.
func (r *LoanRepository) Withdraw(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM loan_requests WHERE id = $1 AND status = $2`, id, models.LoanPending)
	if err != nil {
		return fmt.Errorf("withdraw loan: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return ErrLoanNotPending
	}
	return nil
}

// Reject moves a PENDING loan to REJECTED.
func (r *LoanRepository) Reject(ctx context.Context, id string) error {
	const query = `UPDATE loan_requests SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, models.LoanRejected, time.Now().UTC(), models.LoanPending)
	if err != nil {
		return fmt.Errorf("reject loan: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return ErrLoanNotPending
	}
	return nil
}

// AssignProjector executes the PENDING -> APPROVED transition as one
// transaction across loan_requests and projectors. Both updates are
// conditional on the expected prior state, so two admins racing over the
// same unit (or the same request) cannot commit partial results: the
// loser's conditional update matches zero rows and the whole transaction
// rolls back.
func (r *LoanRepository) AssignProjector(ctx context.Context, loanID, projectorID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assign tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()

	res, err := tx.ExecContext(ctx,
		`UPDATE projectors SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`,
		projectorID, models.ProjectorInUse, now, models.ProjectorAvailable)
	if err != nil {
		return fmt.Errorf("claim projector: %w", err)
	}
	if rows, rowsErr := res.RowsAffected(); rowsErr == nil && rows == 0 {
		err = ErrProjectorUnavailable
		return err
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE loan_requests SET status = $2, projector_id = $3, updated_at = $4 WHERE id = $1 AND status = $5`,
		loanID, models.LoanApproved, projectorID, now, models.LoanPending)
	if err != nil {
		return fmt.Errorf("approve loan: %w", err)
	}
	if rows, rowsErr := res.RowsAffected(); rowsErr == nil && rows == 0 {
		err = ErrLoanNotPending
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit assign tx: %w", err)
	}
	return nil
}

// Finalize executes the APPROVED -> FINALIZED transition, releasing the
// assigned projector back to AVAILABLE in the same transaction. The
// projector id comes from the loan row itself, never from the caller.
func (r *LoanRepository) Finalize(ctx context.Context, loanID string, feedbackRequested bool) (projectorID string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin finalize tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()

	row := tx.QueryRowxContext(ctx,
		`UPDATE loan_requests SET status = $2, feedback_requested = $3, updated_at = $4
		 WHERE id = $1 AND status = $5 RETURNING projector_id`,
		loanID, models.LoanFinalized, feedbackRequested, now, models.LoanApproved)

	var assigned sql.NullString
	if err = row.Scan(&assigned); err != nil {
		if err == sql.ErrNoRows {
			err = ErrLoanNotApproved
		}
		return "", err
	}
	if !assigned.Valid {
		// An APPROVED loan always carries a projector; a NULL here means
		// the invariant was broken outside this code path.
		err = fmt.Errorf("approved loan %s has no projector assigned", loanID)
		return "", err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE projectors SET status = $2, updated_at = $3 WHERE id = $1`,
		assigned.String, models.ProjectorAvailable, now); err != nil {
		return "", fmt.Errorf("release projector: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit finalize tx: %w", err)
	}
	return assigned.String, nil
}

// ExistsOverlapping reports whether the user already holds a PENDING or
// APPROVED request whose window overlaps [startsAt, endsAt).
func (r *LoanRepository) ExistsOverlapping(ctx context.Context, userID string, startsAt, endsAt time.Time, excludeID string) (bool, error) {
	query := `SELECT 1 FROM loan_requests
		WHERE user_id = $1 AND status IN ($2, $3) AND starts_at < $5 AND ends_at > $4`
	args := []interface{}{userID, models.LoanPending, models.LoanApproved, startsAt, endsAt}
	if excludeID != "" {
		query += " AND id <> $6"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check overlapping loans: %w", err)
	}
	return true, nil
}

// CountByStatus aggregates request counts per status for the dashboard.
func (r *LoanRepository) CountByStatus(ctx context.Context) (map[models.LoanStatus]int, error) {
	rows := []struct {
		Status models.LoanStatus `db:"status"`
		Count  int               `db:"count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM loan_requests GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count loans by status: %w", err)
	}
	counts := make(map[models.LoanStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// ListHistory returns flattened loan rows joined with requester and
// projector identity, bounded by the optional window and status filters.
func (r *LoanRepository) ListHistory(ctx context.Context, from, to *time.Time, status *models.LoanStatus) ([]models.LoanHistoryRow, error) {
	query := `SELECT l.id, u.full_name AS requester_name, p.code AS projector_code,
			l.starts_at, l.ends_at, l.shift, l.status, l.reason, l.created_at
		FROM loan_requests l
		JOIN users u ON u.id = l.user_id
		LEFT JOIN projectors p ON p.id = l.projector_id
		WHERE 1=1`
	var args []interface{}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND l.starts_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND l.ends_at <= $%d", len(args))
	}
	if status != nil {
		args = append(args, *status)
		query += fmt.Sprintf(" AND l.status = $%d", len(args))
	}
	query += " ORDER BY l.starts_at ASC"

	var rows []models.LoanHistoryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list loan history: %w", err)
	}
	return rows, nil
}

// SetCalendarEventID stores the opaque external calendar correlation id.
func (r *LoanRepository) SetCalendarEventID(ctx context.Context, id string, eventID *string) error {
	const query = `UPDATE loan_requests SET calendar_event_id = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, eventID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set calendar event id: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
