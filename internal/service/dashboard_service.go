package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/campus-tic/projector-loan-api/internal/models"
)

const dashboardCacheKey = "dashboard:summary"

type loanCounter interface {
	CountByStatus(ctx context.Context) (map[models.LoanStatus]int, error)
}

type projectorCounter interface {
	CountByStatus(ctx context.Context) (map[models.ProjectorStatus]int, error)
}

type commentCounter interface {
	CountOpen(ctx context.Context) (int, error)
}

// DashboardSummary aggregates fleet and queue counters for the admin landing page.
type DashboardSummary struct {
	Loans        map[models.LoanStatus]int      `json:"loans"`
	Projectors   map[models.ProjectorStatus]int `json:"projectors"`
	OpenComments int                            `json:"open_comments"`
	GeneratedAt  time.Time                      `json:"generated_at"`
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardService composes the admin dashboard payload, serving from cache when possible.
type DashboardService struct {
	loans      loanCounter
	projectors projectorCounter
	comments   commentCounter
	cache      *CacheService
	logger     *zap.Logger
	now        func() time.Time
	cfg        DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(loans loanCounter, projectors projectorCounter, comments commentCounter, cache *CacheService, logger *zap.Logger, cfg DashboardServiceConfig) *DashboardService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		loans:      loans,
		projectors: projectors,
		comments:   comments,
		cache:      cache,
		logger:     logger,
		now:        time.Now,
		cfg:        cfg,
	}
}

// Summary returns the dashboard counters and reports whether the cache was hit.
func (s *DashboardService) Summary(ctx context.Context) (*DashboardSummary, bool, error) {
	var cached DashboardSummary
	if hit, err := s.cache.Get(ctx, dashboardCacheKey, &cached); err == nil && hit {
		return &cached, true, nil
	}

	loans, err := s.loans.CountByStatus(ctx)
	if err != nil {
		return nil, false, err
	}
	projectors, err := s.projectors.CountByStatus(ctx)
	if err != nil {
		return nil, false, err
	}
	openComments, err := s.comments.CountOpen(ctx)
	if err != nil {
		return nil, false, err
	}

	summary := &DashboardSummary{
		Loans:        loans,
		Projectors:   projectors,
		OpenComments: openComments,
		GeneratedAt:  s.now().UTC(),
	}

	if err := s.cache.Set(ctx, dashboardCacheKey, summary, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.Error(err))
	}

	return summary, false, nil
}

// Invalidate drops the cached summary so the next Summary call
// recomputes. The TTL bounds staleness otherwise; this backs the
// admin force-refresh endpoint.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, dashboardCacheKey); err != nil {
		s.logger.Warn("dashboard cache invalidate failed", zap.Error(err))
	}
}
