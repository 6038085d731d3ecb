package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-tic/projector-loan-api/internal/models"
	appErrors "github.com/campus-tic/projector-loan-api/pkg/errors"
	"github.com/campus-tic/projector-loan-api/pkg/jobs"
)

type mockNotificationRepo struct {
	mu        sync.Mutex
	inbox     map[string][]models.Notification
	createErr error
	failures  int
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{inbox: make(map[string][]models.Notification)}
}

func (m *mockNotificationRepo) Create(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("transient insert failure")
	}
	if m.createErr != nil {
		return m.createErr
	}
	m.inbox[n.UserID] = append(m.inbox[n.UserID], *n)
	return nil
}

func (m *mockNotificationRepo) ListByUser(_ context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.inbox[userID] {
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *mockNotificationRepo) MarkRead(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, n := range m.inbox[userID] {
		if n.ID == id {
			m.inbox[userID][i].Read = true
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockNotificationRepo) Delete(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.inbox[userID]
	for i, n := range list {
		if n.ID == id {
			m.inbox[userID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockNotificationRepo) count(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inbox[userID])
}

func TestNotificationServiceDispatchDelivers(t *testing.T) {
	repo := newMockNotificationRepo()
	svc := NewNotificationService(repo, jobs.QueueConfig{Workers: 1, BufferSize: 8}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	loanID := "loan-1"
	svc.Dispatch("user-1", models.NotificationSuccess, "Your projector request was approved.", &loanID)

	require.Eventually(t, func() bool { return repo.count("user-1") == 1 }, 2*time.Second, 10*time.Millisecond)

	inbox, err := svc.List(context.Background(), &models.JWTClaims{UserID: "user-1"}, false, 10)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, models.NotificationSuccess, inbox[0].Kind)
	require.NotNil(t, inbox[0].LoanID)
	assert.Equal(t, "loan-1", *inbox[0].LoanID)
}

func TestNotificationServiceDispatchRetriesTransientFailure(t *testing.T) {
	repo := newMockNotificationRepo()
	repo.failures = 1
	svc := NewNotificationService(repo, jobs.QueueConfig{
		Workers: 1, BufferSize: 8, MaxRetries: 3, RetryDelay: 5 * time.Millisecond,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	svc.Dispatch("user-1", models.NotificationInfo, "Reminder", nil)

	require.Eventually(t, func() bool { return repo.count("user-1") == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestNotificationServiceInboxScoping(t *testing.T) {
	repo := newMockNotificationRepo()
	repo.inbox["user-1"] = []models.Notification{
		{ID: "n1", UserID: "user-1", Kind: models.NotificationInfo, Message: "a"},
		{ID: "n2", UserID: "user-1", Kind: models.NotificationWarning, Message: "b", Read: true},
	}
	svc := NewNotificationService(repo, jobs.QueueConfig{}, nil)
	claims := &models.JWTClaims{UserID: "user-1"}

	unread, err := svc.List(context.Background(), claims, true, 10)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "n1", unread[0].ID)

	require.NoError(t, svc.MarkRead(context.Background(), claims, "n1"))
	unread, err = svc.List(context.Background(), claims, true, 10)
	require.NoError(t, err)
	assert.Empty(t, unread)

	// Another user's id does not match and surfaces as not found.
	err = svc.MarkRead(context.Background(), &models.JWTClaims{UserID: "user-2"}, "n2")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestNotificationServiceDelete(t *testing.T) {
	repo := newMockNotificationRepo()
	repo.inbox["user-1"] = []models.Notification{{ID: "n1", UserID: "user-1", Kind: models.NotificationInfo}}
	svc := NewNotificationService(repo, jobs.QueueConfig{}, nil)
	claims := &models.JWTClaims{UserID: "user-1"}

	require.NoError(t, svc.Delete(context.Background(), claims, "n1"))
	assert.Zero(t, repo.count("user-1"))

	err := svc.Delete(context.Background(), claims, "n1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
