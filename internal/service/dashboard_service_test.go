package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-tic/projector-loan-api/internal/models"
	appErrors "github.com/campus-tic/projector-loan-api/pkg/errors"
)

type memoryCacheRepo struct {
	entries map[string][]byte
	ttls    map[string]time.Duration
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	data, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (m *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = data
	m.ttls[key] = ttl
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	delete(m.entries, pattern)
	return nil
}

type countingLoanCounter struct {
	counts map[models.LoanStatus]int
	calls  int
}

func (c *countingLoanCounter) CountByStatus(context.Context) (map[models.LoanStatus]int, error) {
	c.calls++
	return c.counts, nil
}

type countingProjectorCounter struct {
	counts map[models.ProjectorStatus]int
	calls  int
}

func (c *countingProjectorCounter) CountByStatus(context.Context) (map[models.ProjectorStatus]int, error) {
	c.calls++
	return c.counts, nil
}

type countingCommentCounter struct {
	open  int
	calls int
}

func (c *countingCommentCounter) CountOpen(context.Context) (int, error) {
	c.calls++
	return c.open, nil
}

func newDashboardFixture(cacheEnabled bool) (*DashboardService, *countingLoanCounter, *memoryCacheRepo) {
	loans := &countingLoanCounter{counts: map[models.LoanStatus]int{models.LoanPending: 2, models.LoanApproved: 1}}
	projectors := &countingProjectorCounter{counts: map[models.ProjectorStatus]int{models.ProjectorAvailable: 4, models.ProjectorInUse: 1}}
	comments := &countingCommentCounter{open: 3}

	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, nil, cacheEnabled)
	svc := NewDashboardService(loans, projectors, comments, cache, nil, DashboardServiceConfig{CacheTTL: 30 * time.Second})
	return svc, loans, repo
}

func TestDashboardServiceSummaryComputesAndCaches(t *testing.T) {
	svc, loans, repo := newDashboardFixture(true)
	ctx := context.Background()

	summary, cached, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, summary.Loans[models.LoanPending])
	assert.Equal(t, 4, summary.Projectors[models.ProjectorAvailable])
	assert.Equal(t, 3, summary.OpenComments)
	assert.Equal(t, 1, loans.calls)
	assert.Contains(t, repo.entries, dashboardCacheKey)
	assert.Equal(t, 30*time.Second, repo.ttls[dashboardCacheKey])

	// Second call is served from cache without touching the counters.
	summary, cached, err = svc.Summary(ctx)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 2, summary.Loans[models.LoanPending])
	assert.Equal(t, 1, loans.calls)
}

func TestDashboardServiceInvalidateForcesRecompute(t *testing.T) {
	svc, loans, _ := newDashboardFixture(true)
	ctx := context.Background()

	_, _, err := svc.Summary(ctx)
	require.NoError(t, err)
	svc.Invalidate(ctx)

	_, cached, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, loans.calls)
}

func TestDashboardServiceCacheDisabled(t *testing.T) {
	svc, loans, repo := newDashboardFixture(false)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, cached, err := svc.Summary(ctx)
		require.NoError(t, err)
		assert.False(t, cached)
	}
	assert.Equal(t, 2, loans.calls)
	assert.Empty(t, repo.entries)
}
