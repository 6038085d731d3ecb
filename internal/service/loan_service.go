package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campus-tic/projector-loan-api/internal/models"
	"github.com/campus-tic/projector-loan-api/internal/qr"
	"github.com/campus-tic/projector-loan-api/internal/repository"
	appErrors "github.com/campus-tic/projector-loan-api/pkg/errors"
)

type loanRepository interface {
	List(ctx context.Context, filter models.LoanFilter) ([]models.LoanRequest, int, error)
	FindByID(ctx context.Context, id string) (*models.LoanRequest, error)
	Create(ctx context.Context, loan *models.LoanRequest) error
	UpdateWindow(ctx context.Context, id string, startsAt, endsAt time.Time, reason string) error
	Withdraw(ctx context.Context, id string) error
	Reject(ctx context.Context, id string) error
	AssignProjector(ctx context.Context, loanID, projectorID string) error
	Finalize(ctx context.Context, loanID string, feedbackRequested bool) (string, error)
	ExistsOverlapping(ctx context.Context, userID string, startsAt, endsAt time.Time, excludeID string) (bool, error)
	SetCalendarEventID(ctx context.Context, id string, eventID *string) error
}

type projectorFinder interface {
	FindByID(ctx context.Context, id string) (*models.Projector, error)
}

// notifier is the outbound fire-and-forget channel. Dispatch never
// returns an error to the lifecycle engine; delivery failure must not
// affect the transition that triggered it.
type notifier interface {
	Dispatch(userID string, kind models.NotificationKind, message string, loanID *string)
}

// BookingRules bounds the windows a request may occupy.
type BookingRules struct {
	HorizonWeeks  int
	AllowWeekends bool
	MaxDuration   time.Duration
}

// CreateLoanRequest describes the payload for submitting a new request.
type CreateLoanRequest struct {
	StartsAt        time.Time `json:"starts_at" validate:"required"`
	EndsAt          time.Time `json:"ends_at" validate:"required"`
	Reason          string    `json:"reason" validate:"required,max=300"`
	CalendarEventID *string   `json:"calendar_event_id,omitempty"`
}

// UpdateLoanRequest rewrites the window of a still-pending request.
type UpdateLoanRequest struct {
	StartsAt time.Time `json:"starts_at" validate:"required"`
	EndsAt   time.Time `json:"ends_at" validate:"required"`
	Reason   string    `json:"reason" validate:"required,max=300"`
	// CalendarEventID, when present, replaces the stored correlation
	// id; an empty string clears it. Stored opaquely, never interpreted.
	CalendarEventID *string `json:"calendar_event_id,omitempty"`
}

// ApproveLoanRequest names the projector an admin picked.
type ApproveLoanRequest struct {
	ProjectorID string `json:"projector_id" validate:"required"`
}

// FinalizeLoanRequest carries the feedback opt-in flag.
type FinalizeLoanRequest struct {
	RequestFeedback bool `json:"request_feedback"`
}

// ScanRequest carries the raw text read from a QR image.
type ScanRequest struct {
	Payload string `json:"payload" validate:"required"`
}

// ScanResolution tells the scanner UI what the token refers to. The
// projector id inside a return token is advisory; ProjectorID here is
// re-derived from the loan record.
type ScanResolution struct {
	Action      string              `json:"action"`
	Loan        *models.LoanRequest `json:"loan"`
	ProjectorID *string             `json:"projector_id,omitempty"`
}

const (
	// ScanActionApprove directs the client to the approval screen.
	ScanActionApprove = "approve"
	// ScanActionFinalize directs the client to the confirm-return screen.
	ScanActionFinalize = "finalize"
)

// LoanService owns the request lifecycle state machine: creation,
// window edits, withdrawal, approval (projector assignment), rejection,
// finalization and handoff token issuance.
type LoanService struct {
	repo       loanRepository
	projectors projectorFinder
	notify     notifier
	rules      BookingRules
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewLoanService creates a loan service instance.
func NewLoanService(repo loanRepository, projectors projectorFinder, notify notifier, rules BookingRules, validate *validator.Validate, logger *zap.Logger) *LoanService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if rules.HorizonWeeks <= 0 {
		rules.HorizonWeeks = 2
	}
	if rules.MaxDuration <= 0 {
		rules.MaxDuration = 8 * time.Hour
	}
	return &LoanService{
		repo:       repo,
		projectors: projectors,
		notify:     notify,
		rules:      rules,
		validator:  validate,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create submits a new request on behalf of the principal. The request
// starts PENDING; an assignment handoff token can be issued right away.
func (s *LoanService) Create(ctx context.Context, claims *models.JWTClaims, req CreateLoanRequest) (*models.LoanRequest, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid loan payload")
	}
	if err := s.checkWindow(req.StartsAt, req.EndsAt); err != nil {
		return nil, err
	}

	overlap, err := s.repo.ExistsOverlapping(ctx, claims.UserID, req.StartsAt, req.EndsAt, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check overlapping requests")
	}
	if overlap {
		return nil, appErrors.Clone(appErrors.ErrConflict, "you already have an active request overlapping this window")
	}

	loan := &models.LoanRequest{
		UserID:          claims.UserID,
		StartsAt:        req.StartsAt.UTC(),
		EndsAt:          req.EndsAt.UTC(),
		Reason:          req.Reason,
		Shift:           shiftForWindow(req.StartsAt),
		CalendarEventID: req.CalendarEventID,
	}
	if err := s.repo.Create(ctx, loan); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create loan request")
	}

	s.logger.Info("loan request created",
		zap.String("loan_id", loan.ID),
		zap.String("user_id", loan.UserID),
		zap.Time("starts_at", loan.StartsAt))
	return loan, nil
}

// List returns requests visible to the principal: admins see everything,
// standard users only their own.
func (s *LoanService) List(ctx context.Context, claims *models.JWTClaims, filter models.LoanFilter) ([]models.LoanRequest, *models.Pagination, error) {
	if claims == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if !claims.IsAdmin() {
		filter.UserID = claims.UserID
	}

	loans, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list loan requests")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return loans, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single request if the principal may see it.
func (s *LoanService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.LoanRequest, error) {
	loan, err := s.findVisible(ctx, claims, id)
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// Update rewrites the window of the principal's own PENDING request.
func (s *LoanService) Update(ctx context.Context, claims *models.JWTClaims, id string, req UpdateLoanRequest) (*models.LoanRequest, error) {
	loan, err := s.findOwned(ctx, claims, id)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid loan payload")
	}
	if loan.Status != models.LoanPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only pending requests can be edited")
	}
	if err := s.checkWindow(req.StartsAt, req.EndsAt); err != nil {
		return nil, err
	}

	overlap, err := s.repo.ExistsOverlapping(ctx, claims.UserID, req.StartsAt, req.EndsAt, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check overlapping requests")
	}
	if overlap {
		return nil, appErrors.Clone(appErrors.ErrConflict, "you already have an active request overlapping this window")
	}

	if err := s.repo.UpdateWindow(ctx, id, req.StartsAt.UTC(), req.EndsAt.UTC(), req.Reason); err != nil {
		if errors.Is(err, repository.ErrLoanNotPending) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only pending requests can be edited")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update loan request")
	}

	if req.CalendarEventID != nil {
		eventID := req.CalendarEventID
		if *eventID == "" {
			eventID = nil
		}
		if err := s.repo.SetCalendarEventID(ctx, id, eventID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update calendar correlation id")
		}
	}
	return s.reload(ctx, id)
}

// Withdraw removes the principal's own PENDING request.
func (s *LoanService) Withdraw(ctx context.Context, claims *models.JWTClaims, id string) error {
	if _, err := s.findOwned(ctx, claims, id); err != nil {
		return err
	}
	if err := s.repo.Withdraw(ctx, id); err != nil {
		if errors.Is(err, repository.ErrLoanNotPending) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "only pending requests can be withdrawn")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw loan request")
	}
	return nil
}

// Approve executes the PENDING -> APPROVED transition, binding the
// chosen projector and flipping it to IN_USE atomically. A projector
// that lost its AVAILABLE status to a concurrent approval surfaces as a
// conflict the admin can retry with a different unit; a request that is
// no longer PENDING is an invalid transition.
func (s *LoanService) Approve(ctx context.Context, claims *models.JWTClaims, loanID string, req ApproveLoanRequest) (*models.LoanRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid approval payload")
	}

	loan, err := s.reload(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("request is %s, only pending requests can be approved", loan.Status))
	}

	if _, err := s.projectors.FindByID(ctx, req.ProjectorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "projector not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load projector")
	}

	if err := s.repo.AssignProjector(ctx, loanID, req.ProjectorID); err != nil {
		switch {
		case errors.Is(err, repository.ErrProjectorUnavailable):
			return nil, appErrors.Clone(appErrors.ErrConflict, "projector is no longer available, pick a different unit")
		case errors.Is(err, repository.ErrLoanNotPending):
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request was already decided by another admin")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign projector")
		}
	}

	loan, err = s.reload(ctx, loanID)
	if err != nil {
		return nil, err
	}

	s.notify.Dispatch(loan.UserID, models.NotificationSuccess,
		fmt.Sprintf("Your projector request for %s was approved.", loan.StartsAt.Format("2006-01-02 15:04")),
		&loan.ID)
	s.logger.Info("loan approved",
		zap.String("loan_id", loan.ID),
		zap.String("projector_id", req.ProjectorID),
		zap.String("admin_id", adminID(claims)))
	return loan, nil
}

// Reject executes the PENDING -> REJECTED transition. Rejecting an
// already APPROVED request is intentionally not supported.
func (s *LoanService) Reject(ctx context.Context, claims *models.JWTClaims, loanID string) (*models.LoanRequest, error) {
	loan, err := s.reload(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("request is %s, only pending requests can be rejected", loan.Status))
	}

	if err := s.repo.Reject(ctx, loanID); err != nil {
		if errors.Is(err, repository.ErrLoanNotPending) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request was already decided by another admin")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject loan request")
	}

	loan, err = s.reload(ctx, loanID)
	if err != nil {
		return nil, err
	}

	s.notify.Dispatch(loan.UserID, models.NotificationWarning,
		"Your projector request was rejected.", &loan.ID)
	s.logger.Info("loan rejected",
		zap.String("loan_id", loan.ID),
		zap.String("admin_id", adminID(claims)))
	return loan, nil
}

// Finalize executes the APPROVED -> FINALIZED transition upon physical
// return, releasing the projector. When the admin opted to solicit
// feedback, the requester gets a comment_request notification.
func (s *LoanService) Finalize(ctx context.Context, claims *models.JWTClaims, loanID string, req FinalizeLoanRequest) (*models.LoanRequest, error) {
	loan, err := s.reload(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("request is %s, only approved requests can be finalized", loan.Status))
	}

	if _, err := s.repo.Finalize(ctx, loanID, req.RequestFeedback); err != nil {
		if errors.Is(err, repository.ErrLoanNotApproved) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request was already finalized")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize loan request")
	}

	loan, err = s.reload(ctx, loanID)
	if err != nil {
		return nil, err
	}

	if req.RequestFeedback {
		s.notify.Dispatch(loan.UserID, models.NotificationCommentRequest,
			"How did the projector work? Please report any issues.", &loan.ID)
	}
	s.logger.Info("loan finalized",
		zap.String("loan_id", loan.ID),
		zap.Bool("feedback_requested", req.RequestFeedback),
		zap.String("admin_id", adminID(claims)))
	return loan, nil
}

// Token derives the handoff token matching the request's current state:
// an assignment token while PENDING, a return token once APPROVED.
// Tokens are re-issuable at any time; nothing is stored.
func (s *LoanService) Token(ctx context.Context, claims *models.JWTClaims, loanID string) (string, error) {
	loan, err := s.findVisible(ctx, claims, loanID)
	if err != nil {
		return "", err
	}

	var tok qr.Token
	switch loan.Status {
	case models.LoanPending:
		tok = qr.NewAssignmentToken(loan.ID, loan.UserID)
	case models.LoanApproved:
		if loan.ProjectorID == nil {
			return "", appErrors.Wrap(fmt.Errorf("approved loan %s has no projector", loan.ID),
				appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "loan state is inconsistent")
		}
		tok = qr.NewReturnToken(loan.ID, *loan.ProjectorID, loan.UserID)
	default:
		return "", appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("no handoff token exists for a %s request", loan.Status))
	}

	encoded, err := tok.Encode()
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode handoff token")
	}
	return encoded, nil
}

// Scan resolves scanned text to the lifecycle action it refers to. The
// projector id embedded in a return token is never trusted for state
// mutation; the resolution carries the projector from the loan record.
func (s *LoanService) Scan(ctx context.Context, claims *models.JWTClaims, req ScanRequest) (*ScanResolution, error) {
	tok, err := qr.Decode(req.Payload)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrMalformedToken, "")
	}

	loan, err := s.reload(ctx, tok.LoanID)
	if err != nil {
		return nil, err
	}

	resolution := &ScanResolution{Loan: loan}
	switch tok.Kind {
	case qr.KindAssignment:
		resolution.Action = ScanActionApprove
	case qr.KindReturn:
		resolution.Action = ScanActionFinalize
		resolution.ProjectorID = loan.ProjectorID
		if loan.ProjectorID != nil && tok.ProjectorID != *loan.ProjectorID {
			s.logger.Warn("scanned token projector differs from loan record",
				zap.String("loan_id", loan.ID),
				zap.String("token_projector", tok.ProjectorID),
				zap.String("assigned_projector", *loan.ProjectorID))
		}
	}
	return resolution, nil
}

func (s *LoanService) reload(ctx context.Context, id string) (*models.LoanRequest, error) {
	loan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "loan request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load loan request")
	}
	return loan, nil
}

func (s *LoanService) findVisible(ctx context.Context, claims *models.JWTClaims, id string) (*models.LoanRequest, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	loan, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	if !claims.IsAdmin() && loan.UserID != claims.UserID {
		return nil, appErrors.ErrForbidden
	}
	return loan, nil
}

func (s *LoanService) findOwned(ctx context.Context, claims *models.JWTClaims, id string) (*models.LoanRequest, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	loan, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	if loan.UserID != claims.UserID {
		return nil, appErrors.ErrForbidden
	}
	return loan, nil
}

// checkWindow enforces the booking rules: chronological order, a single
// calendar day, the configured weekday restriction, the booking horizon
// and the duration cap.
func (s *LoanService) checkWindow(startsAt, endsAt time.Time) error {
	if !startsAt.Before(endsAt) {
		return appErrors.Clone(appErrors.ErrValidation, "starts_at must be before ends_at")
	}

	start := startsAt.UTC()
	end := endsAt.UTC()
	if start.Year() != end.Year() || start.YearDay() != end.YearDay() {
		return appErrors.Clone(appErrors.ErrValidation, "the time window must fall within a single day")
	}
	if end.Sub(start) > s.rules.MaxDuration {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("the time window may not exceed %s", s.rules.MaxDuration))
	}
	if !s.rules.AllowWeekends {
		if wd := start.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return appErrors.Clone(appErrors.ErrValidation, "weekend bookings are not allowed")
		}
	}

	now := s.now()
	if start.Before(now) {
		return appErrors.Clone(appErrors.ErrValidation, "the time window must be in the future")
	}
	horizonEnd := startOfWeek(now).AddDate(0, 0, 7*s.rules.HorizonWeeks)
	if !start.Before(horizonEnd) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("bookings are only open %d weeks ahead", s.rules.HorizonWeeks))
	}
	return nil
}

// startOfWeek returns the Monday 00:00 UTC of the week containing t.
func startOfWeek(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset)
}

// shiftForWindow buckets a window into the morning or afternoon shift.
func shiftForWindow(startsAt time.Time) models.Shift {
	if startsAt.UTC().Hour() < 13 {
		return models.ShiftMorning
	}
	return models.ShiftAfternoon
}

func adminID(claims *models.JWTClaims) string {
	if claims == nil {
		return ""
	}
	return claims.UserID
}
