package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/campus-tic/projector-loan-api/internal/models"
)

func newCommentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestCommentRepositoryAppend(t *testing.T) {
	db, mock, cleanup := newCommentRepoMock(t)
	defer cleanup()
	repo := NewCommentRepository(db)

	mock.ExpectExec("INSERT INTO projector_comments").
		WillReturnResult(sqlmock.NewResult(0, 1))

	comment := &models.ProjectorComment{
		LoanID:      "loan-1",
		ProjectorID: "proj-1",
		UserID:      "user-1",
		Tags:        models.IssueTagList{models.IssueHDMI},
		Comment:     "loose port",
	}
	require.NoError(t, repo.Append(context.Background(), comment))
	require.NotEmpty(t, comment.ID)
	require.Equal(t, models.CommentPending, comment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newCommentRepoMock(t)
	defer cleanup()
	repo := NewCommentRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "loan_id", "projector_id", "user_id", "tags", "comment", "status", "created_at", "resolved_at"}).
		AddRow("comment-1", "loan-1", "proj-1", "user-1", []byte(`["hdmi","focus"]`), "loose port", models.CommentPending, now, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, loan_id, projector_id, user_id, tags, comment, status, created_at, resolved_at FROM projector_comments WHERE id = $1")).
		WithArgs("comment-1").
		WillReturnRows(rows)

	comment, err := repo.FindByID(context.Background(), "comment-1")
	require.NoError(t, err)
	require.Equal(t, models.IssueTagList{models.IssueHDMI, models.IssueFocus}, comment.Tags)
	require.Nil(t, comment.ResolvedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepositoryResolveAlreadyResolved(t *testing.T) {
	db, mock, cleanup := newCommentRepoMock(t)
	defer cleanup()
	repo := NewCommentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE projector_comments SET status = $2, resolved_at = $3 WHERE id = $1 AND status = $4")).
		WithArgs("comment-1", models.CommentResolved, sqlmock.AnyArg(), models.CommentPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Resolve(context.Background(), "comment-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepositoryCountOpen(t *testing.T) {
	db, mock, cleanup := newCommentRepoMock(t)
	defer cleanup()
	repo := NewCommentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM projector_comments WHERE status = $1")).
		WithArgs(models.CommentPending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountOpen(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepositoryExistsForLoan(t *testing.T) {
	db, mock, cleanup := newCommentRepoMock(t)
	defer cleanup()
	repo := NewCommentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM projector_comments WHERE loan_id = $1 AND user_id = $2 LIMIT 1")).
		WithArgs("loan-1", "user-1").
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.ExistsForLoan(context.Background(), "loan-1", "user-1")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}
