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

type commentRepository interface {
	Append(ctx context.Context, comment *models.ProjectorComment) error
	FindByID(ctx context.Context, id string) (*models.ProjectorComment, error)
	List(ctx context.Context, filter models.CommentFilter) ([]models.ProjectorComment, int, error)
	Resolve(ctx context.Context, id string) error
	ExistsForLoan(ctx context.Context, loanID, userID string) (bool, error)
}

type commentLoanFinder interface {
	FindByID(ctx context.Context, id string) (*models.LoanRequest, error)
}

// CreateCommentRequest describes the payload for an incident report.
type CreateCommentRequest struct {
	Tags    []models.IssueTag `json:"tags" validate:"required,min=1"`
	Comment string            `json:"comment" validate:"max=500"`
}

// CommentService handles post-return incident reports. Reports may only
// be filed by the requester of a FINALIZED loan whose finalization
// solicited feedback; filing never changes the loan's state.
type CommentService struct {
	repo      commentRepository
	loans     commentLoanFinder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCommentService creates a comment service instance.
func NewCommentService(repo commentRepository, loans commentLoanFinder, validate *validator.Validate, logger *zap.Logger) *CommentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentService{repo: repo, loans: loans, validator: validate, logger: logger}
}

// Create appends an incident report to a finalized loan of the principal.
func (s *CommentService) Create(ctx context.Context, claims *models.JWTClaims, loanID string, req CreateCommentRequest) (*models.ProjectorComment, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}
	for _, tag := range req.Tags {
		if !models.ValidIssueTag(tag) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown issue tag: "+string(tag))
		}
	}

	loan, err := s.loans.FindByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "loan request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load loan request")
	}
	if loan.UserID != claims.UserID {
		return nil, appErrors.ErrForbidden
	}
	if loan.Status != models.LoanFinalized {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "comments can only be filed on finalized loans")
	}
	if !loan.FeedbackRequested {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "feedback was not requested for this loan")
	}
	if loan.ProjectorID == nil {
		return nil, appErrors.Wrap(nil, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "loan state is inconsistent")
	}

	exists, err := s.repo.ExistsForLoan(ctx, loanID, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing comments")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a report was already filed for this loan")
	}

	comment := &models.ProjectorComment{
		LoanID:      loanID,
		ProjectorID: *loan.ProjectorID,
		UserID:      claims.UserID,
		Tags:        models.IssueTagList(req.Tags),
		Comment:     req.Comment,
	}
	if err := s.repo.Append(ctx, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save comment")
	}

	s.logger.Info("projector comment filed",
		zap.String("comment_id", comment.ID),
		zap.String("loan_id", loanID),
		zap.String("projector_id", comment.ProjectorID))
	return comment, nil
}

// List returns incident reports for admin review.
func (s *CommentService) List(ctx context.Context, filter models.CommentFilter) ([]models.ProjectorComment, *models.Pagination, error) {
	comments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list comments")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return comments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Resolve marks an incident report as handled.
func (s *CommentService) Resolve(ctx context.Context, id string) (*models.ProjectorComment, error) {
	if err := s.repo.Resolve(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pending comment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve comment")
	}
	comment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load comment")
	}
	return comment, nil
}
