package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cbhlc-api/internal/models"
)

var periodRowColumns = []string{"id", "school_year_id", "start_date", "end_date", "early_registration_deadline", "regular_registration_deadline", "late_registration_deadline", "status", "allow_new_students", "allow_returning_students", "description", "created_at", "updated_at", "school_year_name"}

func TestActivateClosesOthersInTx(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentPeriodRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE enrollment_periods SET status = 'closed', updated_at = $1 WHERE status = 'active' AND id <> $2 RETURNING id")).
		WithArgs(sqlmock.AnyArg(), "p2").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_periods SET status = 'active'")).
		WithArgs("p2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	closed, err := repo.Activate(context.Background(), "p2")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, closed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateMissingRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentPeriodRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("RETURNING id").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("SET status = 'active'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Activate(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateActivePeriodClosesOthers(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentPeriodRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE status = 'active' AND id <> $2")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO enrollment_periods").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	period := &models.EnrollmentPeriod{
		SchoolYearID:                "sy1",
		StartDate:                   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:                     time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC),
		RegularRegistrationDeadline: time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC),
		Status:                      models.PeriodStatusActive,
	}
	require.NoError(t, repo.Create(context.Background(), period))
	assert.NotEmpty(t, period.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUpcomingPeriodSkipsClose(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentPeriodRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO enrollment_periods").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), &models.EnrollmentPeriod{SchoolYearID: "sy1", Status: models.PeriodStatusUpcoming}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByStatusOrdersByStart(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentPeriodRepository(db)

	d := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(periodRowColumns).
		AddRow("p1", "sy1", d, d.AddDate(0, 2, 0), nil, d.AddDate(0, 1, 0), nil, "upcoming", true, true, "", d, d, "2025-2026")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE ep.status = $1 ORDER BY ep.start_date ASC")).
		WithArgs(models.PeriodStatusUpcoming).
		WillReturnRows(rows)

	periods, err := repo.ListByStatus(context.Background(), models.PeriodStatusUpcoming)
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.Equal(t, "2025-2026", periods[0].SchoolYearName)
	assert.Nil(t, periods[0].EarlyRegistrationDeadline)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClosePeriodNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentPeriodRepository(db)

	mock.ExpectExec("SET status = 'closed'").WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Close(context.Background(), "nope")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestDeletePeriodReferenced(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentPeriodRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollment_periods WHERE id = $1 AND status <> 'active'")).
		WithArgs("p1").
		WillReturnError(&pq.Error{Code: "23503"})

	err := repo.Delete(context.Background(), "p1")
	require.Error(t, err)
	assert.True(t, IsForeignKeyViolation(err))
}
