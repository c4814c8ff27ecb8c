package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cbhlc-api/internal/models"
	"github.com/noah-isme/cbhlc-api/internal/repository"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
	"github.com/noah-isme/cbhlc-api/pkg/validation"
)

// memPeriodRepo keeps periods in memory and enforces the single active period rule.
type memPeriodRepo struct {
	periods   map[string]*models.EnrollmentPeriod
	failOn    map[string]error
	createErr error
	deleteErr error
}

func newMemPeriodRepo(periods ...models.EnrollmentPeriod) *memPeriodRepo {
	r := &memPeriodRepo{periods: map[string]*models.EnrollmentPeriod{}, failOn: map[string]error{}}
	for i := range periods {
		p := periods[i]
		r.periods[p.ID] = &p
	}
	return r
}

func (r *memPeriodRepo) detail(p *models.EnrollmentPeriod) models.EnrollmentPeriodDetail {
	return models.EnrollmentPeriodDetail{EnrollmentPeriod: *p, SchoolYearName: "SY " + p.SchoolYearID}
}

func (r *memPeriodRepo) List(ctx context.Context, filter models.EnrollmentPeriodFilter) ([]models.EnrollmentPeriodDetail, int, error) {
	var out []models.EnrollmentPeriodDetail
	for _, p := range r.periods {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, r.detail(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, len(out), nil
}

func (r *memPeriodRepo) ListByStatus(ctx context.Context, status models.PeriodStatus) ([]models.EnrollmentPeriodDetail, error) {
	out, _, err := r.List(ctx, models.EnrollmentPeriodFilter{Status: status})
	return out, err
}

func (r *memPeriodRepo) FindByID(ctx context.Context, id string) (*models.EnrollmentPeriodDetail, error) {
	p, ok := r.periods[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	d := r.detail(p)
	return &d, nil
}

func (r *memPeriodRepo) FindActive(ctx context.Context) (*models.EnrollmentPeriodDetail, error) {
	for _, p := range r.periods {
		if p.Status == models.PeriodStatusActive {
			d := r.detail(p)
			return &d, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memPeriodRepo) Create(ctx context.Context, period *models.EnrollmentPeriod) error {
	if r.createErr != nil {
		return r.createErr
	}
	period.ID = "period-new"
	if period.Status == models.PeriodStatusActive {
		for _, p := range r.periods {
			if p.Status == models.PeriodStatusActive {
				p.Status = models.PeriodStatusClosed
			}
		}
	}
	p := *period
	r.periods[p.ID] = &p
	return nil
}

func (r *memPeriodRepo) Update(ctx context.Context, period *models.EnrollmentPeriod) error {
	if _, ok := r.periods[period.ID]; !ok {
		return sql.ErrNoRows
	}
	p := *period
	r.periods[p.ID] = &p
	return nil
}

func (r *memPeriodRepo) Activate(ctx context.Context, id string) ([]string, error) {
	if err := r.failOn[id]; err != nil {
		return nil, err
	}
	target, ok := r.periods[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	var closed []string
	for _, p := range r.periods {
		if p.ID != id && p.Status == models.PeriodStatusActive {
			p.Status = models.PeriodStatusClosed
			closed = append(closed, p.ID)
		}
	}
	target.Status = models.PeriodStatusActive
	sort.Strings(closed)
	return closed, nil
}

func (r *memPeriodRepo) Close(ctx context.Context, id string) error {
	if err := r.failOn[id]; err != nil {
		return err
	}
	p, ok := r.periods[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.Status = models.PeriodStatusClosed
	return nil
}

func (r *memPeriodRepo) Delete(ctx context.Context, id string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	delete(r.periods, id)
	return nil
}

func (r *memPeriodRepo) activeIDs() []string {
	var ids []string
	for _, p := range r.periods {
		if p.Status == models.PeriodStatusActive {
			ids = append(ids, p.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

type stubYearFinder struct{}

func (stubYearFinder) FindByID(ctx context.Context, id string) (*models.SchoolYear, error) {
	if id == "sy-2025" || id == "sy-2026" {
		return &models.SchoolYear{ID: id}, nil
	}
	return nil, sql.ErrNoRows
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func period(id string, status models.PeriodStatus, start, end time.Time) models.EnrollmentPeriod {
	return models.EnrollmentPeriod{
		ID:                          id,
		SchoolYearID:                "sy-2025",
		StartDate:                   start,
		EndDate:                     end,
		RegularRegistrationDeadline: end,
		Status:                      status,
		AllowNewStudents:            true,
		AllowReturningStudents:      true,
	}
}

func newPeriodService(repo *memPeriodRepo) (*EnrollmentPeriodService, *stubAudit) {
	audit := &stubAudit{}
	svc := NewEnrollmentPeriodService(repo, stubYearFinder{}, audit, validation.New(), nil)
	svc.now = func() time.Time { return day(2025, 6, 10).Add(9 * time.Hour) }
	return svc, audit
}

func periodRequest() EnrollmentPeriodRequest {
	return EnrollmentPeriodRequest{
		SchoolYearID:                "sy-2025",
		StartDate:                   day(2025, 6, 1),
		EndDate:                     day(2025, 7, 31),
		RegularRegistrationDeadline: day(2025, 6, 30),
	}
}

func TestCreatePeriodDefaults(t *testing.T) {
	repo := newMemPeriodRepo()
	svc, audit := newPeriodService(repo)

	got, err := svc.Create(context.Background(), registrar, periodRequest())
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusUpcoming, got.Status)
	assert.True(t, got.AllowNewStudents)
	assert.True(t, got.AllowReturningStudents)
	assert.False(t, got.IsOpen)
	assert.Equal(t, []string{models.AuditActionPeriodCreate}, audit.actions())
}

func TestCreatePeriodValidatesDates(t *testing.T) {
	svc, _ := newPeriodService(newMemPeriodRepo())

	req := periodRequest()
	req.EndDate = req.StartDate
	_, err := svc.Create(context.Background(), registrar, req)
	require.Error(t, err)
	assert.True(t, appErrors.FromError(err).HasField("end_date"))

	req = periodRequest()
	late := day(2025, 8, 2)
	req.LateRegistrationDeadline = &late
	_, err = svc.Create(context.Background(), registrar, req)
	require.Error(t, err)
	assert.True(t, appErrors.FromError(err).HasField("late_registration_deadline"))

	req = periodRequest()
	req.SchoolYearID = "sy-missing"
	_, err = svc.Create(context.Background(), registrar, req)
	require.Error(t, err)
	assert.True(t, appErrors.FromError(err).HasField("school_year_id"))
}

func TestCreateActivePeriodClosesOthers(t *testing.T) {
	repo := newMemPeriodRepo(period("p-old", models.PeriodStatusActive, day(2025, 1, 1), day(2025, 12, 31)))
	svc, _ := newPeriodService(repo)

	req := periodRequest()
	req.Status = models.PeriodStatusActive
	got, err := svc.Create(context.Background(), registrar, req)
	require.NoError(t, err)
	assert.True(t, got.IsOpen)
	assert.Equal(t, []string{"period-new"}, repo.activeIDs())
}

func TestCreateActivePeriodRaceIsConflict(t *testing.T) {
	repo := newMemPeriodRepo()
	repo.createErr = &pq.Error{Code: "23505", Constraint: repository.UniqueActivePeriod}
	svc, _ := newPeriodService(repo)

	req := periodRequest()
	req.Status = models.PeriodStatusActive
	_, err := svc.Create(context.Background(), registrar, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestActivatePeriodKeepsSingleActive(t *testing.T) {
	repo := newMemPeriodRepo(
		period("p-a", models.PeriodStatusActive, day(2025, 1, 1), day(2025, 12, 31)),
		period("p-b", models.PeriodStatusUpcoming, day(2025, 6, 1), day(2025, 7, 31)),
	)
	svc, audit := newPeriodService(repo)

	got, err := svc.Activate(context.Background(), registrar, "p-b")
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusActive, got.Status)
	assert.True(t, got.IsOpen)
	assert.Equal(t, 52, got.DaysRemaining)
	assert.Equal(t, []string{"p-b"}, repo.activeIDs())
	assert.Equal(t, models.PeriodStatusClosed, repo.periods["p-a"].Status)

	_, err = svc.Activate(context.Background(), registrar, "p-b")
	require.NoError(t, err)
	assert.Equal(t, []string{models.AuditActionPeriodActivate}, audit.actions())
}

func TestClosePeriodIsIdempotent(t *testing.T) {
	repo := newMemPeriodRepo(period("p-a", models.PeriodStatusActive, day(2025, 1, 1), day(2025, 12, 31)))
	svc, audit := newPeriodService(repo)

	got, err := svc.Close(context.Background(), registrar, "p-a")
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusClosed, got.Status)
	assert.False(t, got.IsOpen)
	assert.Equal(t, 0, got.DaysRemaining)

	_, err = svc.Close(context.Background(), registrar, "p-a")
	require.NoError(t, err)
	assert.Len(t, audit.actions(), 1)

	_, err = svc.Active(context.Background())
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestDeletePeriodGuards(t *testing.T) {
	repo := newMemPeriodRepo(
		period("p-a", models.PeriodStatusActive, day(2025, 1, 1), day(2025, 12, 31)),
		period("p-c", models.PeriodStatusClosed, day(2024, 1, 1), day(2024, 3, 31)),
	)
	svc, _ := newPeriodService(repo)

	err := svc.Delete(context.Background(), registrar, "p-a")
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))

	repo.deleteErr = &pq.Error{Code: "23503"}
	err = svc.Delete(context.Background(), registrar, "p-c")
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	repo.deleteErr = nil
	require.NoError(t, svc.Delete(context.Background(), registrar, "p-c"))
	_, err = svc.Get(context.Background(), "p-c")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestListPeriodsRejectsUnknownStatus(t *testing.T) {
	svc, _ := newPeriodService(newMemPeriodRepo())
	_, _, err := svc.List(context.Background(), models.EnrollmentPeriodFilter{Status: "paused"})
	require.Error(t, err)
	assert.True(t, appErrors.FromError(err).HasField("status"))
}
