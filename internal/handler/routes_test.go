package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/cbhlc-api/internal/models"
	"github.com/noah-isme/cbhlc-api/internal/service"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
)

type tokenTable map[string]*models.JWTClaims

func (t tokenTable) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := t[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type fakePeriodService struct{}

func (fakePeriodService) List(ctx context.Context, filter models.EnrollmentPeriodFilter) ([]models.EnrollmentPeriodDetail, *models.Pagination, error) {
	return nil, models.NewPagination(1, 20, 0), nil
}

func (fakePeriodService) Get(ctx context.Context, id string) (*models.EnrollmentPeriodDetail, error) {
	return &models.EnrollmentPeriodDetail{}, nil
}

func (fakePeriodService) Active(ctx context.Context) (*models.EnrollmentPeriodDetail, error) {
	return &models.EnrollmentPeriodDetail{IsOpen: true}, nil
}

func (fakePeriodService) Create(ctx context.Context, actor service.Actor, req service.EnrollmentPeriodRequest) (*models.EnrollmentPeriodDetail, error) {
	return &models.EnrollmentPeriodDetail{}, nil
}

func (fakePeriodService) Update(ctx context.Context, actor service.Actor, id string, req service.EnrollmentPeriodRequest) (*models.EnrollmentPeriodDetail, error) {
	return &models.EnrollmentPeriodDetail{}, nil
}

func (fakePeriodService) Activate(ctx context.Context, actor service.Actor, id string) (*models.EnrollmentPeriodDetail, error) {
	return &models.EnrollmentPeriodDetail{}, nil
}

func (fakePeriodService) Close(ctx context.Context, actor service.Actor, id string) (*models.EnrollmentPeriodDetail, error) {
	return &models.EnrollmentPeriodDetail{}, nil
}

func (fakePeriodService) Delete(ctx context.Context, actor service.Actor, id string) error {
	return nil
}

type nopAudit struct{ actions []string }

func (n *nopAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	n.actions = append(n.actions, log.Action)
	return nil
}

func testRouter(audit *nopAudit) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers := Handlers{
		Auth:          &AuthHandler{},
		SchoolYears:   &SchoolYearHandler{},
		Periods:       NewPeriodHandler(fakePeriodService{}, &fakeSweep{}),
		Fees:          &FeeHandler{},
		Students:      &StudentHandler{},
		Enrollments:   NewEnrollmentHandler(&fakeEnrollmentService{}),
		Billing:       NewBillingHandler(&fakePaymentService{}, fakeInvoiceService{}),
		Documents:     NewDocumentHandler(&fakeDocumentService{}),
		Notifications: &NotificationHandler{},
		Dashboard:     NewDashboardHandler(&fakeDashboardService{}, &fakeAuditService{}),
		Ops:           NewMetricsHandler(service.NewMetricsService(), nil),
	}
	tokens := tokenTable{
		"guardian":  guardianClaims,
		"registrar": registrarClaims,
		"admin":     {UserID: "user-admin", Role: models.RoleAdmin},
	}
	handlers.Register(router.Group("/api/v1"), tokens, audit)
	return router
}

func serve(router *gin.Engine, method, target, token string) int {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	router.ServeHTTP(rec, req)
	return rec.Code
}

func TestRoutesAccessControl(t *testing.T) {
	router := testRouter(&nopAudit{})

	cases := []struct {
		name   string
		method string
		target string
		token  string
		want   int
	}{
		{"active period is public", http.MethodGet, "/api/v1/enrollment-periods/active", "", http.StatusOK},
		{"signed download is public", http.MethodGet, "/api/v1/documents/download?token=abc", "", http.StatusOK},
		{"enrollments need a token", http.MethodGet, "/api/v1/enrollments", "", http.StatusUnauthorized},
		{"guardian lists own enrollments", http.MethodGet, "/api/v1/enrollments", "guardian", http.StatusOK},
		{"guardian cannot approve", http.MethodPost, "/api/v1/enrollments/enr-1/approve", "guardian", http.StatusForbidden},
		{"registrar approves", http.MethodPost, "/api/v1/enrollments/enr-1/approve", "registrar", http.StatusOK},
		{"registrar cannot sweep", http.MethodPost, "/api/v1/enrollment-periods/sweep", "registrar", http.StatusForbidden},
		{"admin sweeps", http.MethodPost, "/api/v1/enrollment-periods/sweep", "admin", http.StatusOK},
		{"guardian cannot see dashboard", http.MethodGet, "/api/v1/dashboard", "guardian", http.StatusForbidden},
		{"audit log is admin only", http.MethodGet, "/api/v1/audit-logs", "registrar", http.StatusForbidden},
		{"metrics summary is admin only", http.MethodGet, "/api/v1/metrics/summary", "registrar", http.StatusForbidden},
		{"admin reads metrics summary", http.MethodGet, "/api/v1/metrics/summary", "admin", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, serve(router, tc.method, tc.target, tc.token))
		})
	}
}

func TestExportIsAudited(t *testing.T) {
	audit := &nopAudit{}
	router := testRouter(audit)

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/v1/enrollments/export", "registrar"))
	assert.Equal(t, []string{models.AuditActionEnrollmentExport}, audit.actions)
}
