package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/campus-tic/projector-loan-api/internal/models"
)

func newReportJobRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestReportJobRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newReportJobRepoMock(t)
	defer cleanup()
	repo := NewReportJobRepository(db)

	mock.ExpectExec("INSERT INTO report_jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	job := &models.ReportJob{
		Params:    models.ReportJobParams{Format: models.ReportFormatCSV},
		CreatedBy: "admin-1",
	}
	require.NoError(t, repo.Create(context.Background(), job))
	require.NotEmpty(t, job.ID)
	require.Equal(t, models.ReportStatusQueued, job.Status)
	require.False(t, job.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportJobRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newReportJobRepoMock(t)
	defer cleanup()
	repo := NewReportJobRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "params", "status", "result_path", "created_by", "created_at", "finished_at", "error_message"}).
		AddRow("job-1", []byte(`{"format":"pdf"}`), models.ReportStatusProcessing, nil, "admin-1", now, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, params, status, result_path, created_by, created_at, finished_at, error_message FROM report_jobs WHERE id = $1")).
		WithArgs("job-1").
		WillReturnRows(rows)

	job, err := repo.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, models.ReportFormatPDF, job.Params.Format)
	require.Equal(t, models.ReportStatusProcessing, job.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportJobRepositoryUpdatePartial(t *testing.T) {
	db, mock, cleanup := newReportJobRepoMock(t)
	defer cleanup()
	repo := NewReportJobRepository(db)

	status := models.ReportStatusFinished
	resultPath := "loan_history_20260301_100000.csv"
	finishedAt := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE report_jobs SET status = $2, result_path = $3, finished_at = $4 WHERE id = $1")).
		WithArgs("job-1", status, resultPath, finishedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "job-1", UpdateReportJobParams{
		Status:     &status,
		ResultPath: &resultPath,
		FinishedAt: &finishedAt,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportJobRepositoryUpdateNoFields(t *testing.T) {
	db, mock, cleanup := newReportJobRepoMock(t)
	defer cleanup()
	repo := NewReportJobRepository(db)

	// Nothing to set means no query at all.
	require.NoError(t, repo.Update(context.Background(), "job-1", UpdateReportJobParams{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportJobRepositoryListQueued(t *testing.T) {
	db, mock, cleanup := newReportJobRepoMock(t)
	defer cleanup()
	repo := NewReportJobRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "params", "status", "result_path", "created_by", "created_at", "finished_at", "error_message"}).
		AddRow("job-1", []byte(`{"format":"csv"}`), models.ReportStatusQueued, nil, "admin-1", now, nil, nil)
	mock.ExpectQuery("SELECT id, params, status, result_path, created_by, created_at, finished_at, error_message").
		WithArgs(models.ReportStatusQueued).
		WillReturnRows(rows)

	jobs, err := repo.ListQueued(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, "job-1", jobs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
