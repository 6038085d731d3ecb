package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campus-tic/projector-loan-api/internal/models"
	"github.com/campus-tic/projector-loan-api/internal/qr"
	"github.com/campus-tic/projector-loan-api/internal/repository"
	appErrors "github.com/campus-tic/projector-loan-api/pkg/errors"
)

type loanRepoMock struct {
	loans        map[string]*models.LoanRequest
	overlap      bool
	overlapErr   error
	createErr    error
	assignErr    error
	rejectErr    error
	finalizeErr  error
	withdrawErr  error
	updateErr    error
	assignCalls  int
	withdrawnIDs []string
}

func newLoanRepoMock() *loanRepoMock {
	return &loanRepoMock{loans: make(map[string]*models.LoanRequest)}
}

func (m *loanRepoMock) List(_ context.Context, filter models.LoanFilter) ([]models.LoanRequest, int, error) {
	var out []models.LoanRequest
	for _, loan := range m.loans {
		if filter.UserID != "" && loan.UserID != filter.UserID {
			continue
		}
		out = append(out, *loan)
	}
	return out, len(out), nil
}

func (m *loanRepoMock) FindByID(_ context.Context, id string) (*models.LoanRequest, error) {
	loan, ok := m.loans[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *loan
	return &cp, nil
}

func (m *loanRepoMock) Create(_ context.Context, loan *models.LoanRequest) error {
	if m.createErr != nil {
		return m.createErr
	}
	if loan.ID == "" {
		loan.ID = "loan-generated"
	}
	loan.Status = models.LoanPending
	cp := *loan
	m.loans[loan.ID] = &cp
	return nil
}

func (m *loanRepoMock) UpdateWindow(_ context.Context, id string, startsAt, endsAt time.Time, reason string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	loan, ok := m.loans[id]
	if !ok || loan.Status != models.LoanPending {
		return repository.ErrLoanNotPending
	}
	loan.StartsAt, loan.EndsAt, loan.Reason = startsAt, endsAt, reason
	return nil
}

func (m *loanRepoMock) Withdraw(_ context.Context, id string) error {
	if m.withdrawErr != nil {
		return m.withdrawErr
	}
	loan, ok := m.loans[id]
	if !ok || loan.Status != models.LoanPending {
		return repository.ErrLoanNotPending
	}
	delete(m.loans, id)
	m.withdrawnIDs = append(m.withdrawnIDs, id)
	return nil
}

func (m *loanRepoMock) Reject(_ context.Context, id string) error {
	if m.rejectErr != nil {
		return m.rejectErr
	}
	loan, ok := m.loans[id]
	if !ok || loan.Status != models.LoanPending {
		return repository.ErrLoanNotPending
	}
	loan.Status = models.LoanRejected
	return nil
}

func (m *loanRepoMock) AssignProjector(_ context.Context, loanID, projectorID string) error {
	m.assignCalls++
	if m.assignErr != nil {
		return m.assignErr
	}
	loan, ok := m.loans[loanID]
	if !ok || loan.Status != models.LoanPending {
		return repository.ErrLoanNotPending
	}
	loan.Status = models.LoanApproved
	loan.ProjectorID = &projectorID
	return nil
}

func (m *loanRepoMock) Finalize(_ context.Context, loanID string, feedbackRequested bool) (string, error) {
	if m.finalizeErr != nil {
		return "", m.finalizeErr
	}
	loan, ok := m.loans[loanID]
	if !ok || loan.Status != models.LoanApproved {
		return "", repository.ErrLoanNotApproved
	}
	released := *loan.ProjectorID
	loan.Status = models.LoanFinalized
	loan.FeedbackRequested = feedbackRequested
	return released, nil
}

func (m *loanRepoMock) ExistsOverlapping(_ context.Context, _ string, _, _ time.Time, _ string) (bool, error) {
	if m.overlapErr != nil {
		return false, m.overlapErr
	}
	return m.overlap, nil
}

func (m *loanRepoMock) SetCalendarEventID(_ context.Context, id string, eventID *string) error {
	loan, ok := m.loans[id]
	if !ok {
		return sql.ErrNoRows
	}
	loan.CalendarEventID = eventID
	return nil
}

type projectorFinderMock struct {
	projectors map[string]*models.Projector
	err        error
}

func (m *projectorFinderMock) FindByID(_ context.Context, id string) (*models.Projector, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.projectors[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

type dispatched struct {
	userID string
	kind   models.NotificationKind
	loanID *string
}

type notifierMock struct {
	sent []dispatched
}

func (m *notifierMock) Dispatch(userID string, kind models.NotificationKind, _ string, loanID *string) {
	m.sent = append(m.sent, dispatched{userID: userID, kind: kind, loanID: loanID})
}

// fixedNow is a Monday morning; windows in tests are placed relative to it.
var fixedNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func newLoanServiceForTest(repo *loanRepoMock, projectors *projectorFinderMock, notify *notifierMock) *LoanService {
	if projectors == nil {
		projectors = &projectorFinderMock{projectors: map[string]*models.Projector{}}
	}
	if notify == nil {
		notify = &notifierMock{}
	}
	svc := NewLoanService(repo, projectors, notify, BookingRules{HorizonWeeks: 2, MaxDuration: 8 * time.Hour}, nil, zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func userClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStandard}
}

func seedLoan(repo *loanRepoMock, id, userID string, status models.LoanStatus, projectorID *string) *models.LoanRequest {
	loan := &models.LoanRequest{
		ID:          id,
		UserID:      userID,
		StartsAt:    fixedNow.Add(2 * time.Hour),
		EndsAt:      fixedNow.Add(4 * time.Hour),
		Reason:      "physics lecture",
		Shift:       models.ShiftMorning,
		Status:      status,
		ProjectorID: projectorID,
	}
	repo.loans[id] = loan
	return loan
}

func TestLoanServiceCreate(t *testing.T) {
	repo := newLoanRepoMock()
	svc := newLoanServiceForTest(repo, nil, nil)

	loan, err := svc.Create(context.Background(), userClaims("user-1"), CreateLoanRequest{
		StartsAt: fixedNow.Add(2 * time.Hour),
		EndsAt:   fixedNow.Add(4 * time.Hour),
		Reason:   "physics lecture",
	})
	require.NoError(t, err)
	assert.Equal(t, models.LoanPending, loan.Status)
	assert.Equal(t, "user-1", loan.UserID)
	assert.Equal(t, models.ShiftMorning, loan.Shift)
	assert.Nil(t, loan.ProjectorID)
}

func TestLoanServiceCreateAfternoonShift(t *testing.T) {
	repo := newLoanRepoMock()
	svc := newLoanServiceForTest(repo, nil, nil)

	loan, err := svc.Create(context.Background(), userClaims("user-1"), CreateLoanRequest{
		StartsAt: time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC),
		Reason:   "afternoon seminar",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ShiftAfternoon, loan.Shift)
}

func TestLoanServiceCreateWindowValidation(t *testing.T) {
	repo := newLoanRepoMock()
	svc := newLoanServiceForTest(repo, nil, nil)
	ctx := context.Background()
	claims := userClaims("user-1")

	cases := []struct {
		name     string
		startsAt time.Time
		endsAt   time.Time
	}{
		{"inverted window", fixedNow.Add(4 * time.Hour), fixedNow.Add(2 * time.Hour)},
		{"crosses midnight", fixedNow.Add(14 * time.Hour), fixedNow.Add(18 * time.Hour)},
		{"too long", fixedNow.Add(1 * time.Hour), fixedNow.Add(10 * time.Hour)},
		{"in the past", fixedNow.Add(-4 * time.Hour), fixedNow.Add(-2 * time.Hour)},
		{"weekend", fixedNow.AddDate(0, 0, 5).Add(2 * time.Hour), fixedNow.AddDate(0, 0, 5).Add(4 * time.Hour)},
		{"beyond horizon", fixedNow.AddDate(0, 0, 14).Add(2 * time.Hour), fixedNow.AddDate(0, 0, 14).Add(4 * time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, claims, CreateLoanRequest{StartsAt: tc.startsAt, EndsAt: tc.endsAt, Reason: "class"})
			require.Error(t, err)
			var appErr *appErrors.Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
		})
	}
}

func TestLoanServiceCreateOverlapConflict(t *testing.T) {
	repo := newLoanRepoMock()
	repo.overlap = true
	svc := newLoanServiceForTest(repo, nil, nil)

	_, err := svc.Create(context.Background(), userClaims("user-1"), CreateLoanRequest{
		StartsAt: fixedNow.Add(2 * time.Hour),
		EndsAt:   fixedNow.Add(4 * time.Hour),
		Reason:   "class",
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestLoanServiceListScopesStandardUsers(t *testing.T) {
	repo := newLoanRepoMock()
	seedLoan(repo, "loan-1", "user-1", models.LoanPending, nil)
	seedLoan(repo, "loan-2", "user-2", models.LoanPending, nil)
	svc := newLoanServiceForTest(repo, nil, nil)

	own, _, err := svc.List(context.Background(), userClaims("user-1"), models.LoanFilter{})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "loan-1", own[0].ID)

	all, pagination, err := svc.List(context.Background(), adminClaims(), models.LoanFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 2, pagination.TotalCount)
}

func TestLoanServiceGetForbiddenForOtherUser(t *testing.T) {
	repo := newLoanRepoMock()
	seedLoan(repo, "loan-1", "user-1", models.LoanPending, nil)
	svc := newLoanServiceForTest(repo, nil, nil)

	_, err := svc.Get(context.Background(), userClaims("user-2"), "loan-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	_, err = svc.Get(context.Background(), adminClaims(), "loan-1")
	assert.NoError(t, err)
}

func TestLoanServiceApprove(t *testing.T) {
	repo := newLoanRepoMock()
	seedLoan(repo, "loan-1", "user-1", models.LoanPending, nil)
	projectors := &projectorFinderMock{projectors: map[string]*models.Projector{
		"proj-1": {ID: "proj-1", Code: "PRJ-01", Status: models.ProjectorAvailable},
	}}
	notify := &notifierMock{}
	svc := newLoanServiceForTest(repo, projectors, notify)

	loan, err := svc.Approve(context.Background(), adminClaims(), "loan-1", ApproveLoanRequest{ProjectorID: "proj-1"})
	require.NoError(t, err)
	assert.Equal(t, models.LoanApproved, loan.Status)
	require.NotNil(t, loan.ProjectorID)
	assert.Equal(t, "proj-1", *loan.ProjectorID)

	require.Len(t, notify.sent, 1)
	assert.Equal(t, "user-1", notify.sent[0].userID)
	assert.Equal(t, models.NotificationSuccess, notify.sent[0].kind)
	require.NotNil(t, notify.sent[0].loanID)
	assert.Equal(t, "loan-1", *notify.sent[0].loanID)
}

func TestLoanServiceApproveLostRace(t *testing.T) {
	repo := newLoanRepoMock()
	seedLoan(repo, "loan-1", "user-1", models.LoanPending, nil)
	repo.assignErr = repository.ErrProjectorUnavailable
	projectors := &projectorFinderMock{projectors: map[string]*models.Projector{
		"proj-1": {ID: "proj-1", Code: "PRJ-01", Status: models.ProjectorAvailable},
	}}
	notify := &notifierMock{}
	svc := newLoanServiceForTest(repo, projectors, notify)

	_, err := svc.Approve(context.Background(), adminClaims(), "loan-1", ApproveLoanRequest{ProjectorID: "proj-1"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Empty(t, notify.sent)
}

func TestLoanServiceApproveNonPending(t *testing.T) {
	repo := newLoanRepoMock()
	projectorID := "proj-1"
	seedLoan(repo, "loan-1", "user-1", models.LoanApproved, &projectorID)
	svc := newLoanServiceForTest(repo, nil, nil)

	_, err := svc.Approve(context.Background(), adminClaims(), "loan-1", ApproveLoanRequest{ProjectorID: "proj-2"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
}

func TestLoanServiceApproveUnknownProjector(t *testing.T) {
	repo := newLoanRepoMock()
	seedLoan(repo, "loan-1", "user-1", models.LoanPending, nil)
	svc := newLoanServiceForTest(repo, &projectorFinderMock{projectors: map[string]*models.Projector{}}, nil)

	_, err := svc.Approve(context.Background(), adminClaims(), "loan-1", ApproveLoanRequest{ProjectorID: "missing"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Zero(t, repo.assignCalls)
}

func TestLoanServiceReject(t *testing.T) {
	repo := newLoanRepoMock()
	seedLoan(repo, "loan-1", "user-1", models.LoanPending, nil)
	notify := &notifierMock{}
	svc := newLoanServiceForTest(repo, nil, notify)

	loan, err := svc.Reject(context.Background(), adminClaims(), "loan-1")
	require.NoError(t, err)
	assert.Equal(t, models.LoanRejected, loan.Status)
	assert.Nil(t, loan.ProjectorID)

	require.Len(t, notify.sent, 1)
	assert.Equal(t, models.NotificationWarning, notify.sent[0].kind)
}

func TestLoanServiceRejectApprovedUnsupported(t *testing.T) {
	repo := newLoanRepoMock()
	projectorID := "proj-1"
	seedLoan(repo, "loan-1", "user-1", models.LoanApproved, &projectorID)
	notify := &notifierMock{}
	svc := newLoanServiceForTest(repo, nil, notify)

	_, err := svc.Reject(context.Background(), adminClaims(), "loan-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)

	// The lost race leaves the loan untouched and notifies nobody.
	assert.Equal(t, models.LoanApproved, repo.loans["loan-1"].Status)
	assert.Empty(t, notify.sent)
}

func TestLoanServiceFinalize(t *testing.T) {
	repo := newLoanRepoMock()
	projectorID := "proj-1"
	seedLoan(repo, "loan-1", "user-1", models.LoanApproved, &projectorID)
	notify := &notifierMock{}
	svc := newLoanServiceForTest(repo, nil, notify)

	loan, err := svc.Finalize(context.Background(), adminClaims(), "loan-1", FinalizeLoanRequest{RequestFeedback: true})
	require.NoError(t, err)
	assert.Equal(t, models.LoanFinalized, loan.Status)
	assert.True(t, loan.FeedbackRequested)

	require.Len(t, notify.sent, 1)
	assert.Equal(t, models.NotificationCommentRequest, notify.sent[0].kind)
}

func TestLoanServiceFinalizeWithoutFeedback(t *testing.T) {
	repo := newLoanRepoMock()
	projectorID := "proj-1"
	seedLoan(repo, "loan-1", "user-1", models.LoanApproved, &projectorID)
	notify := &notifierMock{}
	svc := newLoanServiceForTest(repo, nil, notify)

	loan, err := svc.Finalize(context.Background(), adminClaims(), "loan-1", FinalizeLoanRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.LoanFinalized, loan.Status)
	assert.False(t, loan.FeedbackRequested)
	assert.Empty(t, notify.sent)
}

func TestLoanServiceFinalizePendingRejected(t *testing.T) {
	repo := newLoanRepoMock()
	seedLoan(repo, "loan-1", "user-1", models.LoanPending, nil)
	svc := newLoanServiceForTest(repo, nil, nil)

	_, err := svc.Finalize(context.Background(), adminClaims(), "loan-1", FinalizeLoanRequest{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
}

func TestLoanServiceWithdraw(t *testing.T) {
	repo := newLoanRepoMock()
	seedLoan(repo, "loan-1", "user-1", models.LoanPending, nil)
	svc := newLoanServiceForTest(repo, nil, nil)

	require.NoError(t, svc.Withdraw(context.Background(), userClaims("user-1"), "loan-1"))
	assert.Equal(t, []string{"loan-1"}, repo.withdrawnIDs)
}

func TestLoanServiceWithdrawNotOwner(t *testing.T) {
	repo := newLoanRepoMock()
	seedLoan(repo, "loan-1", "user-1", models.LoanPending, nil)
	svc := newLoanServiceForTest(repo, nil, nil)

	err := svc.Withdraw(context.Background(), userClaims("user-2"), "loan-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestLoanServiceUpdateCalendarEventID(t *testing.T) {
	repo := newLoanRepoMock()
	seedLoan(repo, "loan-1", "user-1", models.LoanPending, nil)
	svc := newLoanServiceForTest(repo, nil, nil)

	eventID := "gcal-evt-42"
	loan, err := svc.Update(context.Background(), userClaims("user-1"), "loan-1", UpdateLoanRequest{
		StartsAt:        fixedNow.Add(3 * time.Hour),
		EndsAt:          fixedNow.Add(5 * time.Hour),
		Reason:          "moved",
		CalendarEventID: &eventID,
	})
	require.NoError(t, err)
	require.NotNil(t, loan.CalendarEventID)
	assert.Equal(t, "gcal-evt-42", *loan.CalendarEventID)

	// An empty string clears the stored correlation id; omitting the
	// field leaves it untouched.
	empty := ""
	loan, err = svc.Update(context.Background(), userClaims("user-1"), "loan-1", UpdateLoanRequest{
		StartsAt:        fixedNow.Add(3 * time.Hour),
		EndsAt:          fixedNow.Add(5 * time.Hour),
		Reason:          "moved",
		CalendarEventID: &empty,
	})
	require.NoError(t, err)
	assert.Nil(t, loan.CalendarEventID)

	seeded := "gcal-evt-99"
	repo.loans["loan-1"].CalendarEventID = &seeded
	loan, err = svc.Update(context.Background(), userClaims("user-1"), "loan-1", UpdateLoanRequest{
		StartsAt: fixedNow.Add(3 * time.Hour),
		EndsAt:   fixedNow.Add(5 * time.Hour),
		Reason:   "moved again",
	})
	require.NoError(t, err)
	require.NotNil(t, loan.CalendarEventID)
	assert.Equal(t, "gcal-evt-99", *loan.CalendarEventID)
}

func TestLoanServiceUpdateApprovedRejected(t *testing.T) {
	repo := newLoanRepoMock()
	projectorID := "proj-1"
	seedLoan(repo, "loan-1", "user-1", models.LoanApproved, &projectorID)
	svc := newLoanServiceForTest(repo, nil, nil)

	_, err := svc.Update(context.Background(), userClaims("user-1"), "loan-1", UpdateLoanRequest{
		StartsAt: fixedNow.Add(3 * time.Hour),
		EndsAt:   fixedNow.Add(5 * time.Hour),
		Reason:   "moved",
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
}

func TestLoanServiceTokenAndScanRoundTrip(t *testing.T) {
	repo := newLoanRepoMock()
	seedLoan(repo, "loan-1", "user-1", models.LoanPending, nil)
	svc := newLoanServiceForTest(repo, nil, nil)
	ctx := context.Background()

	encoded, err := svc.Token(ctx, userClaims("user-1"), "loan-1")
	require.NoError(t, err)

	resolution, err := svc.Scan(ctx, adminClaims(), ScanRequest{Payload: encoded})
	require.NoError(t, err)
	assert.Equal(t, ScanActionApprove, resolution.Action)
	assert.Equal(t, "loan-1", resolution.Loan.ID)
	assert.Nil(t, resolution.ProjectorID)

	// Once approved the same endpoint issues a return token instead.
	repo.loans["loan-1"].Status = models.LoanApproved
	projectorID := "proj-1"
	repo.loans["loan-1"].ProjectorID = &projectorID

	encoded, err = svc.Token(ctx, userClaims("user-1"), "loan-1")
	require.NoError(t, err)

	tok, err := qr.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, qr.KindReturn, tok.Kind)
	assert.Equal(t, "proj-1", tok.ProjectorID)

	resolution, err = svc.Scan(ctx, adminClaims(), ScanRequest{Payload: encoded})
	require.NoError(t, err)
	assert.Equal(t, ScanActionFinalize, resolution.Action)
	require.NotNil(t, resolution.ProjectorID)
	assert.Equal(t, "proj-1", *resolution.ProjectorID)
}

func TestLoanServiceTokenTerminalState(t *testing.T) {
	repo := newLoanRepoMock()
	seedLoan(repo, "loan-1", "user-1", models.LoanRejected, nil)
	svc := newLoanServiceForTest(repo, nil, nil)

	_, err := svc.Token(context.Background(), userClaims("user-1"), "loan-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
}

func TestLoanServiceScanMalformedPayload(t *testing.T) {
	repo := newLoanRepoMock()
	svc := newLoanServiceForTest(repo, nil, nil)

	_, err := svc.Scan(context.Background(), adminClaims(), ScanRequest{Payload: `{"kind":"return","loan_id":"loan-1"}`})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrMalformedToken.Code, appErr.Code)
}

func TestLoanServiceScanUnknownLoan(t *testing.T) {
	repo := newLoanRepoMock()
	svc := newLoanServiceForTest(repo, nil, nil)

	_, err := svc.Scan(context.Background(), adminClaims(), ScanRequest{Payload: "loan-missing"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
