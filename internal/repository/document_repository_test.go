package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cbhlc-api/internal/models"
)

func TestListDocumentsHidesDeleted(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	now := time.Now()
	cols := []string{"id", "student_id", "type", "original_name", "storage_path", "mime_type", "size_bytes", "checksum", "status", "rejection_reason", "verified_by", "verified_at", "uploaded_by", "created_at", "updated_at", "deleted_at"}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE student_id = $1 AND deleted_at IS NULL")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("d1", "s1", "birth_certificate", "psa.pdf", "students/s1/d1.pdf", "application/pdf", 1024, "abc", "pending", nil, nil, nil, "u1", now, now, nil))

	docs, err := repo.ListByStudent(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, models.DocumentTypeBirthCertificate, docs[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET deleted_at = $2")).
		WithArgs("s1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SoftDelete(context.Background(), "s1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
