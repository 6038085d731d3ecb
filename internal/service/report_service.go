package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campus-tic/projector-loan-api/internal/models"
	"github.com/campus-tic/projector-loan-api/internal/repository"
	appErrors "github.com/campus-tic/projector-loan-api/pkg/errors"
	"github.com/campus-tic/projector-loan-api/pkg/export"
	"github.com/campus-tic/projector-loan-api/pkg/jobs"
	"github.com/campus-tic/projector-loan-api/pkg/storage"
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
}

type loanHistoryLister interface {
	ListHistory(ctx context.Context, from, to *time.Time, status *models.LoanStatus) ([]models.LoanHistoryRow, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type reportFileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// CreateReportRequest describes a loan-history export to build.
type CreateReportRequest struct {
	Format models.ReportFormat `json:"format" binding:"required"`
	From   *time.Time          `json:"from,omitempty"`
	To     *time.Time          `json:"to,omitempty"`
	Status *models.LoanStatus  `json:"status,omitempty"`
}

// ReportStatusResponse exposes job progress to clients. DownloadURL is
// populated only while the job is FINISHED and the result still exists.
type ReportStatusResponse struct {
	ID          string              `json:"id"`
	Status      models.ReportStatus `json:"status"`
	Format      models.ReportFormat `json:"format"`
	DownloadURL *string             `json:"download_url,omitempty"`
	ExpiresAt   *time.Time          `json:"expires_at,omitempty"`
	Error       *string             `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	FinishedAt  *time.Time          `json:"finished_at,omitempty"`
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// ReportServiceConfig governs result retention and cleanup cadence.
type ReportServiceConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ReportService owns the asynchronous loan-history export lifecycle:
// job creation, queue dispatch, download token resolution, and expiry.
type ReportService struct {
	repo    reportJobStore
	loans   loanHistoryLister
	queue   jobDispatcher
	storage reportFileStorage
	signer  *storage.SignedURLSigner
	csv     csvRenderer
	pdf     pdfRenderer
	logger  *zap.Logger
	cfg     ReportServiceConfig
}

// NewReportService constructs the report service with default renderers.
func NewReportService(repo reportJobStore, loans loanHistoryLister, queue jobDispatcher, fileStore reportFileStorage, signer *storage.SignedURLSigner, cfg ReportServiceConfig, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &ReportService{
		repo:    repo,
		loans:   loans,
		queue:   queue,
		storage: fileStore,
		signer:  signer,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
		cfg:     cfg,
	}
}

// CreateJob validates the request, persists the job, and enqueues processing.
func (s *ReportService) CreateJob(ctx context.Context, claims *models.JWTClaims, req CreateReportRequest) (*ReportStatusResponse, error) {
	if !claims.IsAdmin() {
		return nil, appErrors.ErrForbidden
	}
	if req.Format != models.ReportFormatCSV && req.Format != models.ReportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}
	if req.From != nil && req.To != nil && !req.From.Before(*req.To) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "from must precede to")
	}
	if req.Status != nil && !models.ValidLoanStatus(*req.Status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown status filter")
	}

	job := &models.ReportJob{
		Params:    models.ReportJobParams{Format: req.Format, From: req.From, To: req.To, Status: req.Status},
		Status:    models.ReportStatusQueued,
		CreatedBy: claims.UserID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "loan_history"}); err != nil {
		status := models.ReportStatusFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		_ = s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
			Status:       &status,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	return s.statusResponse(job), nil
}

// Status exposes job metadata, enforcing ownership for non-admins.
func (s *ReportService) Status(ctx context.Context, claims *models.JWTClaims, id string) (*ReportStatusResponse, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if !claims.IsAdmin() && job.CreatedBy != claims.UserID {
		return nil, appErrors.ErrForbidden
	}
	return s.statusResponse(job), nil
}

// ResolveDownload validates a signed token and opens the stored file.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	jobID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.Status != models.ReportStatusFinished || job.ResultPath == nil || *job.ResultPath != relPath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not available")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ReportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// RecoverPendingJobs replays queued jobs after a process restart.
func (s *ReportService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued report jobs", "error", err)
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "loan_history"}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending job", "job_id", job.ID, "error", err)
		}
	}
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *ReportService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	expired, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
	if err != nil {
		s.logger.Sugar().Warnw("cleanup list failed", "error", err)
		return
	}
	for _, job := range expired {
		if job.ResultPath == nil {
			continue
		}
		if err := s.storage.Delete(*job.ResultPath); err != nil {
			s.logger.Sugar().Warnw("cleanup delete failed", "job_id", job.ID, "error", err)
		}
	}
	if _, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL); err != nil {
		s.logger.Sugar().Warnw("filesystem cleanup failed", "error", err)
	}
}

func (s *ReportService) statusResponse(job *models.ReportJob) *ReportStatusResponse {
	resp := &ReportStatusResponse{
		ID:         job.ID,
		Status:     job.Status,
		Format:     job.Params.Format,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	if job.Status == models.ReportStatusFinished && job.ResultPath != nil {
		token, expiresAt, err := s.signer.Generate(job.ID, *job.ResultPath)
		if err != nil {
			s.logger.Sugar().Warnw("failed to sign download token", "job_id", job.ID, "error", err)
			return resp
		}
		url := fmt.Sprintf("%s/reports/download/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token)
		resp.DownloadURL = &url
		resp.ExpiresAt = &expiresAt
	}
	return resp
}

// ReportWorker bridges queue jobs to dataset generation and rendering.
type ReportWorker struct {
	repo       reportJobStore
	loans      loanHistoryLister
	storage    reportFileStorage
	csv        csvRenderer
	pdf        pdfRenderer
	logger     *zap.Logger
	maxRetries int
}

// NewReportWorker constructs a worker with default renderers.
func NewReportWorker(repo reportJobStore, loans loanHistoryLister, fileStore reportFileStorage, maxRetries int, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ReportWorker{
		repo:       repo,
		loans:      loans,
		storage:    fileStore,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Handle processes a queue job end to end.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.FindByID(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.ReportStatusProcessing
	if err := w.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{Status: &processing}); err != nil {
		return err
	}

	relPath, err := w.generate(ctx, record)
	if err != nil {
		msg := err.Error()
		if job.Attempt >= w.maxRetries {
			failed := models.ReportStatusFailed
			now := time.Now().UTC()
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
				Status:       &failed,
				ErrorMessage: &msg,
				FinishedAt:   &now,
			}); updateErr != nil {
				w.logger.Sugar().Warnw("failed to mark job failed", "job_id", job.ID, "error", updateErr)
			}
		} else {
			queued := models.ReportStatusQueued
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
				Status:       &queued,
				ErrorMessage: &msg,
			}); updateErr != nil {
				w.logger.Sugar().Warnw("failed to mark job queued", "job_id", job.ID, "error", updateErr)
			}
		}
		return err
	}

	finished := models.ReportStatusFinished
	now := time.Now().UTC()
	clear := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
		Status:       &finished,
		ResultPath:   &relPath,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark job finished", "job_id", job.ID, "error", err)
		return err
	}
	return nil
}

func (w *ReportWorker) generate(ctx context.Context, job *models.ReportJob) (string, error) {
	rows, err := w.loans.ListHistory(ctx, job.Params.From, job.Params.To, job.Params.Status)
	if err != nil {
		return "", err
	}
	dataset := buildLoanHistoryDataset(rows)

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = w.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = w.pdf.Render(dataset, loanHistoryTitle(job.Params))
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("loan_history_%s.%s", time.Now().UTC().Format("20060102_150405"), job.Params.Format)
	return w.storage.Save(filename, payload)
}

func buildLoanHistoryDataset(rows []models.LoanHistoryRow) export.Dataset {
	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		projector := ""
		if row.ProjectorCode != nil {
			projector = *row.ProjectorCode
		}
		dataRows = append(dataRows, map[string]string{
			"Requester": row.RequesterName,
			"Projector": projector,
			"Starts At": row.StartsAt.UTC().Format(time.RFC3339),
			"Ends At":   row.EndsAt.UTC().Format(time.RFC3339),
			"Shift":     string(row.Shift),
			"Status":    string(row.Status),
			"Reason":    row.Reason,
		})
	}
	return export.Dataset{
		Headers: []string{"Requester", "Projector", "Starts At", "Ends At", "Shift", "Status", "Reason"},
		Rows:    dataRows,
	}
}

func loanHistoryTitle(params models.ReportJobParams) string {
	title := "Loan History"
	if params.From != nil && params.To != nil {
		title = fmt.Sprintf("%s %s to %s", title, params.From.UTC().Format("2006-01-02"), params.To.UTC().Format("2006-01-02"))
	}
	return title
}
