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

func TestHasOpenForStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("status NOT IN ('completed', 'rejected')")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	open, err := repo.HasOpenForStudent(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, open)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExistsForStudentYear(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE student_id = $1 AND school_year_id = $2")).
		WithArgs("s1", "sy1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := repo.ExistsForStudentYear(context.Background(), "s1", "sy1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateEnrollmentDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").WillReturnError(&pq.Error{Code: "23505", Constraint: UniqueStudentYear})

	err := repo.Create(context.Background(), &models.Enrollment{StudentID: "s1", SchoolYearID: "sy1"})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err, UniqueStudentYear))
	assert.False(t, IsUniqueViolation(errors.New("x"), ""))
}

func TestApproveWritesInvoiceInSameTx(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE enrollments SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO invoices").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO invoice_items").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO invoice_items").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	enrollment := &models.Enrollment{ID: "e1", Status: models.EnrollmentStatusApproved}
	invoice := &models.Invoice{
		EnrollmentID:  "e1",
		InvoiceNumber: "INV-20250601-ABC123",
		DueDate:       time.Now().AddDate(0, 0, 30),
		Items: []models.InvoiceItem{
			{Description: "Tuition Fee", Amount: 1500000, Position: 1},
			{Description: "Miscellaneous Fee", Amount: 50000, Position: 2},
		},
	}
	require.NoError(t, repo.Approve(context.Background(), enrollment, models.EnrollmentStatusPending, invoice))
	assert.Equal(t, invoice.ID, invoice.Items[1].InvoiceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveInvoiceFailureRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE enrollments SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO invoices").WillReturnError(errors.New("duplicate"))
	mock.ExpectRollback()

	err := repo.Approve(context.Background(), &models.Enrollment{ID: "e1"}, models.EnrollmentStatusPending, &models.Invoice{EnrollmentID: "e1"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusGuardsPreviousStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $3, remarks = $4, rejection_reason = $5, updated_at = $6 WHERE id = $1 AND status = $2")).
		WithArgs("e1", models.EnrollmentStatusApproved, models.EnrollmentStatusReadyForPayment, "", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{ID: "e1", Status: models.EnrollmentStatusReadyForPayment}
	require.NoError(t, repo.UpdateStatus(context.Background(), enrollment, models.EnrollmentStatusApproved))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusStaleWrite(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	// A payment moved the row to enrolled after it was read as approved.
	mock.ExpectExec("UPDATE enrollments SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM enrollments WHERE id = $1)")).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	enrollment := &models.Enrollment{ID: "e1", Status: models.EnrollmentStatusReadyForPayment}
	err := repo.UpdateStatus(context.Background(), enrollment, models.EnrollmentStatusApproved)
	assert.ErrorIs(t, err, ErrStaleWrite)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusMissingRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("UPDATE enrollments SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.UpdateStatus(context.Background(), &models.Enrollment{ID: "missing"}, models.EnrollmentStatusPending)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveStaleRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	// Rejected by another registrar between read and write: no invoice is issued.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = $2")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.Approve(context.Background(), &models.Enrollment{ID: "e1", Status: models.EnrollmentStatusApproved}, models.EnrollmentStatusPending, &models.Invoice{EnrollmentID: "e1"})
	assert.ErrorIs(t, err, ErrStaleWrite)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasOpenForStudentIgnoresTerminal(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	// Only a rejected prior enrollment exists, so the predicate matches nothing.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = $1 AND status NOT IN ('completed', 'rejected'))")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	open, err := repo.HasOpenForStudent(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, open)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentTotals(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("AND school_year_id = $1")).
		WithArgs("sy1").
		WillReturnRows(sqlmock.NewRows([]string{"billed", "collected", "outstanding"}).AddRow(3200000, 1000000, 2200000))

	totals, err := repo.Totals(context.Background(), "sy1")
	require.NoError(t, err)
	assert.Equal(t, "22000.00", totals.Outstanding.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEnrollmentsForGuardian(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND e.guardian_id = $1 ORDER BY e.submitted_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "student_name"}).AddRow("e1", "pending", "Ana Cruz"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments e")).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.EnrollmentFilter{GuardianID: "g1"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Ana Cruz", items[0].StudentName)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
