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

var userRowColumns = []string{"id", "email", "password_hash", "full_name", "role", "active", "last_login", "created_at", "updated_at"}

func TestFindByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(userRowColumns).
		AddRow("1", "registrar@cbhlc.test", "hash", "Registrar", string(models.RoleRegistrar), true, now, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1")).
		WithArgs("Registrar@cbhlc.test").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "Registrar@cbhlc.test")
	require.NoError(t, err)
	assert.Equal(t, models.RoleRegistrar, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveByRoles(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(userRowColumns).
		AddRow("1", "admin@cbhlc.test", "hash", "Admin", string(models.RoleAdmin), true, nil, now, now).
		AddRow("2", "root@cbhlc.test", "hash", "Root", string(models.RoleSuperAdmin), true, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE active = TRUE AND role = ANY($1)")).WillReturnRows(rows)

	users, err := repo.ListActiveByRoles(context.Background(), models.RoleAdmin, models.RoleSuperAdmin)
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Nil(t, users[0].LastLogin)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{Email: "g@cbhlc.test", PasswordHash: "hash", FullName: "Guardian", Role: models.RoleGuardian, Active: true}
	require.NoError(t, repo.Create(context.Background(), user))
	assert.NotEmpty(t, user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
