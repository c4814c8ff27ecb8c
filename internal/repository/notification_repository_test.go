package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cbhlc-api/internal/models"
)

func TestCreateManyNotifications(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO notifications").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO notifications").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	items := []models.Notification{
		{UserID: "u1", Type: models.NotificationPeriodStatusChanged, Title: "t", Message: "m"},
		{UserID: "u2", Type: models.NotificationPeriodStatusChanged, Title: "t", Message: "m", Data: models.NewJSONB(map[string]string{"period_id": "p1"})},
	}
	require.NoError(t, repo.CreateMany(context.Background(), items))
	assert.NotEmpty(t, items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateManyEmptyIsNoop(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	require.NoError(t, NewNotificationRepository(db).CreateMany(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReadForeignNotification(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND user_id = $2")).
		WithArgs("n1", "u2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkRead(context.Background(), "u2", "n1")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestCountUnread(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectQuery("read_at IS NULL").WithArgs("u1").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	n, err := repo.CountUnread(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
