package service

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cbhlc-api/internal/models"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
	"github.com/noah-isme/cbhlc-api/pkg/money"
)

type stubAggregates struct {
	counts   []models.StatusCount
	totals   models.EnrollmentTotals
	err      error
	calls    atomic.Int32
	lastYear atomic.Value
}

func (s *stubAggregates) StatusCounts(ctx context.Context, schoolYearID string) ([]models.StatusCount, error) {
	s.calls.Add(1)
	s.lastYear.Store(schoolYearID)
	return s.counts, s.err
}

func (s *stubAggregates) Totals(ctx context.Context, schoolYearID string) (*models.EnrollmentTotals, error) {
	totals := s.totals
	return &totals, nil
}

type stubPendingDocs int

func (s stubPendingDocs) CountPending(ctx context.Context) (int, error) { return int(s), nil }

type stubActivePeriod struct {
	period *models.EnrollmentPeriodDetail
}

func (s stubActivePeriod) FindActive(ctx context.Context) (*models.EnrollmentPeriodDetail, error) {
	if s.period == nil {
		return nil, sql.ErrNoRows
	}
	copied := *s.period
	return &copied, nil
}

func newDashboard(agg *stubAggregates, active *models.EnrollmentPeriodDetail, cacheSvc *CacheService) *DashboardService {
	svc := NewDashboardService(DashboardServiceParams{
		Enrollments: agg,
		Documents:   stubPendingDocs(3),
		Periods:     stubActivePeriod{period: active},
		Cache:       cacheSvc,
	})
	svc.now = func() time.Time { return time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC) }
	return svc
}

func TestDashboardSummaryAggregates(t *testing.T) {
	agg := &stubAggregates{
		counts: []models.StatusCount{
			{Status: models.EnrollmentStatusPending, Total: 4},
			{Status: models.EnrollmentStatusEnrolled, Total: 6},
		},
		totals: models.EnrollmentTotals{Billed: money.MustParse("90000"), Collected: money.MustParse("40000"), Outstanding: money.MustParse("50000")},
	}
	active := &models.EnrollmentPeriodDetail{EnrollmentPeriod: period("p-1", models.PeriodStatusActive, day(2025, 6, 1), day(2025, 7, 31))}
	svc := newDashboard(agg, active, nil)

	summary, hit, err := svc.Summary(context.Background(), "sy-2025")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 10, summary.TotalEnrollments)
	assert.Equal(t, 4, summary.StatusCounts[models.EnrollmentStatusPending])
	assert.Equal(t, money.MustParse("50000"), summary.TotalOutstanding)
	assert.Equal(t, 3, summary.PendingDocuments)
	require.NotNil(t, summary.ActivePeriod)
	assert.True(t, summary.ActivePeriod.IsOpen)
	assert.Equal(t, 52, summary.ActivePeriod.DaysRemaining)
	assert.Equal(t, "sy-2025", agg.lastYear.Load())
}

func TestDashboardWithoutActivePeriod(t *testing.T) {
	svc := newDashboard(&stubAggregates{}, nil, nil)

	summary, _, err := svc.Summary(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, summary.ActivePeriod)
	assert.Zero(t, summary.TotalEnrollments)
}

func TestDashboardServedFromCache(t *testing.T) {
	agg := &stubAggregates{counts: []models.StatusCount{{Status: models.EnrollmentStatusPaid, Total: 2}}}
	cacheRepo := newMemCacheRepo()
	svc := newDashboard(agg, nil, NewCacheService(cacheRepo, nil, time.Minute, nil, true))

	_, hit, err := svc.Summary(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Contains(t, cacheRepo.items, "cbhlc:dashboard:all")

	summary, hit, err := svc.Summary(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 2, summary.StatusCounts[models.EnrollmentStatusPaid])
	assert.Equal(t, int32(1), agg.calls.Load())
}

func TestDashboardQueryFailure(t *testing.T) {
	cacheRepo := newMemCacheRepo()
	svc := newDashboard(&stubAggregates{err: errors.New("db down")}, nil, NewCacheService(cacheRepo, nil, time.Minute, nil, true))

	_, _, err := svc.Summary(context.Background(), "sy-2025")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	assert.Empty(t, cacheRepo.items)
}
