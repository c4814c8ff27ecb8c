package service

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/noah-isme/cbhlc-api/internal/models"
	"github.com/noah-isme/cbhlc-api/pkg/cache"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
)

type enrollmentAggregator interface {
	StatusCounts(ctx context.Context, schoolYearID string) ([]models.StatusCount, error)
	Totals(ctx context.Context, schoolYearID string) (*models.EnrollmentTotals, error)
}

type pendingDocumentCounter interface {
	CountPending(ctx context.Context) (int, error)
}

type activePeriodFinder interface {
	FindActive(ctx context.Context) (*models.EnrollmentPeriodDetail, error)
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Enrollments enrollmentAggregator
	Documents   pendingDocumentCounter
	Periods     activePeriodFinder
	Cache       *CacheService
	CacheTTL    time.Duration
	Logger      *zap.Logger
}

// DashboardService composes the staff summary from several aggregate queries.
type DashboardService struct {
	enrollments enrollmentAggregator
	documents   pendingDocumentCounter
	periods     activePeriodFinder
	cache       *CacheService
	cacheTTL    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &DashboardService{
		enrollments: params.Enrollments,
		documents:   params.Documents,
		periods:     params.Periods,
		cache:       params.Cache,
		cacheTTL:    ttl,
		logger:      logger,
		now:         time.Now,
	}
}

// Summary returns the dashboard for a school year, or across all years when
// schoolYearID is empty. The bool reports a cache hit.
func (s *DashboardService) Summary(ctx context.Context, schoolYearID string) (*models.DashboardSummary, bool, error) {
	key := cache.Key("dashboard", schoolYearOrAll(schoolYearID))
	var cached models.DashboardSummary
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	now := s.now()
	summary := &models.DashboardSummary{
		StatusCounts: make(map[models.EnrollmentStatus]int),
		GeneratedAt:  now.UTC(),
	}
	var mu sync.Mutex

	p := pool.New().WithErrors().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		counts, err := s.enrollments.StatusCounts(ctx, schoolYearID)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		for _, c := range counts {
			summary.StatusCounts[c.Status] = c.Total
			summary.TotalEnrollments += c.Total
		}
		return nil
	})
	p.Go(func(ctx context.Context) error {
		totals, err := s.enrollments.Totals(ctx, schoolYearID)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		summary.TotalBilled = totals.Billed
		summary.TotalCollected = totals.Collected
		summary.TotalOutstanding = totals.Outstanding
		return nil
	})
	p.Go(func(ctx context.Context) error {
		pending, err := s.documents.CountPending(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		summary.PendingDocuments = pending
		mu.Unlock()
		return nil
	})
	p.Go(func(ctx context.Context) error {
		active, err := s.periods.FindActive(ctx)
		if isNoRows(err) {
			return nil
		}
		if err != nil {
			return err
		}
		active.Refresh(now)
		mu.Lock()
		summary.ActivePeriod = active
		mu.Unlock()
		return nil
	})
	if err := p.Wait(); err != nil {
		s.logger.Error("dashboard aggregation failed", zap.String("school_year_id", schoolYearID), zap.Error(err))
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build dashboard")
	}

	s.cache.Set(ctx, key, summary, s.cacheTTL)
	return summary, false, nil
}

func schoolYearOrAll(id string) string {
	if id == "" {
		return "all"
	}
	return id
}
