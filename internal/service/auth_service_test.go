package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/cbhlc-api/internal/models"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
	"github.com/noah-isme/cbhlc-api/pkg/validation"
)

type mockAuthRepo struct {
	user             *models.User
	findErr          error
	createErr        error
	created          *models.User
	lastLoginUpdated bool
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.user == nil {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.user == nil || m.user.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	user.ID = "new-user"
	m.created = user
	return nil
}

type stubAudit struct {
	entries []*models.AuditLog
	err     error
}

func (s *stubAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.entries = append(s.entries, log)
	return s.err
}

func (s *stubAudit) actions() []string {
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Action)
	}
	return out
}

func newAuthFixture(t *testing.T, active bool) (*AuthService, *mockAuthRepo, *stubAudit) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &mockAuthRepo{user: &models.User{
		ID:           "user-1",
		Email:        "registrar@cbhlc.test",
		PasswordHash: string(hash),
		FullName:     "Rita Registrar",
		Role:         models.RoleRegistrar,
		Active:       active,
	}}
	audit := &stubAudit{}
	svc := NewAuthService(repo, audit, validation.New(), nil, AuthConfig{AccessTokenSecret: "test-secret", AccessTokenExpiry: time.Hour, Issuer: "cbhlc-test"})
	return svc, repo, audit
}

func TestLoginIssuesToken(t *testing.T) {
	svc, repo, audit := newAuthFixture(t, true)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "registrar@cbhlc.test", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, models.TokenTypeBearer, resp.TokenType)
	assert.Equal(t, resp.IssuedAt.Add(time.Hour), resp.ExpiresAt)
	assert.Equal(t, models.RoleRegistrar, resp.User.Role)
	assert.True(t, repo.lastLoginUpdated)
	assert.Equal(t, []string{models.AuditActionLogin}, audit.actions())

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleRegistrar, claims.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, _ := newAuthFixture(t, true)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "registrar@cbhlc.test", Password: "nope"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, repo, _ := newAuthFixture(t, true)
	repo.user = nil

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@cbhlc.test", Password: "secret123"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestLoginInactiveAccount(t *testing.T) {
	svc, _, _ := newAuthFixture(t, false)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "registrar@cbhlc.test", Password: "secret123"})
	assert.ErrorIs(t, err, appErrors.ErrInactiveAccount)
}

func TestLoginValidation(t *testing.T) {
	svc, _, _ := newAuthFixture(t, true)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email"})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.HasField("email"))
	assert.True(t, appErr.HasField("password"))
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	svc, _, _ := newAuthFixture(t, true)
	other := NewAuthService(&mockAuthRepo{}, nil, nil, nil, AuthConfig{AccessTokenSecret: "other", Issuer: "cbhlc-test"})

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "registrar@cbhlc.test", Password: "secret123"})
	require.NoError(t, err)
	_, err = other.ValidateToken(resp.AccessToken)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestMeUnknownUser(t *testing.T) {
	svc, _, _ := newAuthFixture(t, true)

	_, err := svc.Me(context.Background(), "someone-else")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	info, err := svc.Me(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Rita Registrar", info.FullName)
}

func TestCreateUserHashesPassword(t *testing.T) {
	svc, repo, _ := newAuthFixture(t, true)

	user, err := svc.CreateUser(context.Background(), CreateUserRequest{Email: " Admin@CBHLC.test ", Password: "changeme1", FullName: "Ada Admin", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, "admin@cbhlc.test", user.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.created.PasswordHash), []byte("changeme1")))
	assert.True(t, user.Active)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	svc, repo, _ := newAuthFixture(t, true)
	repo.createErr = &pq.Error{Code: "23505", Constraint: "users_email_key"}

	_, err := svc.CreateUser(context.Background(), CreateUserRequest{Email: "admin@cbhlc.test", Password: "changeme1", FullName: "Ada", Role: models.RoleAdmin})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.HasField("email"))
}
