package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cbhlc-api/internal/models"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
	"github.com/noah-isme/cbhlc-api/pkg/money"
	"github.com/noah-isme/cbhlc-api/pkg/validation"
)

type memCacheRepo struct {
	items   map[string][]byte
	deleted []string
}

func newMemCacheRepo() *memCacheRepo {
	return &memCacheRepo{items: map[string][]byte{}}
}

func (m *memCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	return nil
}

func (m *memCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	for key := range m.items {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.items, key)
		}
	}
	return nil
}

type mockFeeRepo struct {
	fees  map[string]*models.GradeLevelFee
	finds int
	saved []*models.GradeLevelFee
}

func (m *mockFeeRepo) List(ctx context.Context, filter models.GradeLevelFeeFilter) ([]models.GradeLevelFee, error) {
	var out []models.GradeLevelFee
	for _, f := range m.fees {
		if filter.EnrollmentPeriodID != "" && f.EnrollmentPeriodID != filter.EnrollmentPeriodID {
			continue
		}
		out = append(out, *f)
	}
	return out, nil
}

func (m *mockFeeRepo) FindByID(ctx context.Context, id string) (*models.GradeLevelFee, error) {
	if f, ok := m.fees[id]; ok {
		clone := *f
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFeeRepo) FindActive(ctx context.Context, gradeLevel, periodID string) (*models.GradeLevelFee, error) {
	m.finds++
	for _, f := range m.fees {
		if f.GradeLevel == gradeLevel && f.EnrollmentPeriodID == periodID && f.IsActive {
			clone := *f
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockFeeRepo) Save(ctx context.Context, fee *models.GradeLevelFee) error {
	if fee.ID == "" {
		fee.ID = "fee-new"
	}
	clone := *fee
	m.fees[fee.ID] = &clone
	m.saved = append(m.saved, &clone)
	return nil
}

func newFeeFixture(t *testing.T) (*FeeService, *mockFeeRepo, *memCacheRepo) {
	t.Helper()
	repo := &mockFeeRepo{fees: map[string]*models.GradeLevelFee{
		"fee-g1": {
			ID:                 "fee-g1",
			GradeLevel:         "Grade 1",
			EnrollmentPeriodID: "period-1",
			TuitionFee:         money.MustParse("15000"),
			MiscellaneousFee:   money.MustParse("500"),
			LaboratoryFee:      money.MustParse("250"),
			LibraryFee:         money.MustParse("100"),
			SportsFee:          money.MustParse("150"),
			IsActive:           true,
		},
	}}
	cacheRepo := newMemCacheRepo()
	period := &models.EnrollmentPeriodDetail{EnrollmentPeriod: models.EnrollmentPeriod{ID: "period-1", SchoolYearID: "sy-2025"}}
	svc := NewFeeService(FeeServiceParams{
		Repo:        repo,
		SchoolYears: stubSchoolYears{current: &models.SchoolYear{ID: "sy-2025"}},
		Periods:     stubPeriodFinder{period: period},
		Cache:       NewCacheService(cacheRepo, nil, time.Minute, nil, true),
		Audit:       &stubAudit{},
		Validator:   validation.New(),
	})
	return svc, repo, cacheRepo
}

func TestFeesForGradeUsesCurrentPeriod(t *testing.T) {
	svc, _, _ := newFeeFixture(t)

	fee, err := svc.FeesForGrade(context.Background(), "Grade 1", "")
	require.NoError(t, err)
	require.NotNil(t, fee)
	assert.Equal(t, money.MustParse("16000"), fee.TotalFee())
}

func TestFeesForGradeMissingIsNil(t *testing.T) {
	svc, _, _ := newFeeFixture(t)

	fee, err := svc.FeesForGrade(context.Background(), "Grade 6", "period-1")
	require.NoError(t, err)
	assert.Nil(t, fee)

	svc.schoolYears = stubSchoolYears{}
	fee, err = svc.FeesForGrade(context.Background(), "Grade 1", "")
	require.NoError(t, err)
	assert.Nil(t, fee)
}

func TestFeesForGradeServesFromCache(t *testing.T) {
	svc, repo, _ := newFeeFixture(t)

	for i := 0; i < 3; i++ {
		fee, err := svc.FeesForGrade(context.Background(), "Grade 1", "period-1")
		require.NoError(t, err)
		require.NotNil(t, fee)
		assert.Equal(t, money.MustParse("15000"), fee.TuitionFee)
	}
	assert.Equal(t, 1, repo.finds)
}

func TestSaveFeeInvalidatesPeriodCache(t *testing.T) {
	svc, repo, cacheRepo := newFeeFixture(t)
	_, err := svc.FeesForGrade(context.Background(), "Grade 1", "period-1")
	require.NoError(t, err)

	view, err := svc.Update(context.Background(), registrar, "fee-g1", GradeLevelFeeRequest{
		GradeLevel:         "Grade 1",
		EnrollmentPeriodID: "period-1",
		TuitionFee:         money.MustParse("18000"),
	})
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("18000"), view.TotalFee)
	assert.Contains(t, cacheRepo.deleted, "cbhlc:fees:period-1:*")

	fee, err := svc.FeesForGrade(context.Background(), "Grade 1", "period-1")
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("18000"), fee.TuitionFee)
	assert.Equal(t, 2, repo.finds)
}

func TestSaveFeeValidation(t *testing.T) {
	svc, _, _ := newFeeFixture(t)

	_, err := svc.Create(context.Background(), registrar, GradeLevelFeeRequest{GradeLevel: "Grade 9", EnrollmentPeriodID: "period-1"})
	require.Error(t, err)
	assert.True(t, appErrors.FromError(err).HasField("grade_level"))

	_, err = svc.Create(context.Background(), registrar, GradeLevelFeeRequest{GradeLevel: "Grade 2", EnrollmentPeriodID: "period-1", TuitionFee: -1})
	require.Error(t, err)
	assert.True(t, appErrors.FromError(err).HasField("tuition_fee"))

	_, err = svc.Create(context.Background(), registrar, GradeLevelFeeRequest{GradeLevel: "Grade 2", EnrollmentPeriodID: "period-x"})
	require.Error(t, err)
	assert.True(t, appErrors.FromError(err).HasField("enrollment_period_id"))
}
