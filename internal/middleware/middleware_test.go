package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cbhlc-api/internal/models"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
)

type stubValidator map[string]*models.JWTClaims

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type recordingAudit struct {
	logs []*models.AuditLog
}

func (r *recordingAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.logs = append(r.logs, log)
	return nil
}

type recordingObserver struct {
	paths    []string
	statuses []int
}

func (r *recordingObserver) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	r.paths = append(r.paths, path)
	r.statuses = append(r.statuses, status)
}

var tokens = stubValidator{
	"guardian":  {UserID: "u-g", Role: models.RoleGuardian},
	"registrar": {UserID: "u-r", Role: models.RoleRegistrar},
	"root":      {UserID: "u-s", Role: models.RoleSuperAdmin},
}

func protectedRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	chain := append([]gin.HandlerFunc{JWT(tokens)}, handlers...)
	chain = append(chain, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/enrollments/:id", chain...)
	return router
}

func call(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/enrollments/enr-1?format=csv", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestJWTRejectsMissingAndMalformedTokens(t *testing.T) {
	router := protectedRouter()

	assert.Equal(t, http.StatusUnauthorized, call(router, "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(router, "Token guardian").Code)
	assert.Equal(t, http.StatusUnauthorized, call(router, "Bearer nope").Code)
	assert.Equal(t, http.StatusNoContent, call(router, "bearer guardian").Code)
}

func TestRequireStaff(t *testing.T) {
	router := protectedRouter(RequireStaff())

	assert.Equal(t, http.StatusForbidden, call(router, "Bearer guardian").Code)
	assert.Equal(t, http.StatusNoContent, call(router, "Bearer registrar").Code)
	assert.Equal(t, http.StatusNoContent, call(router, "Bearer root").Code)
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	audit := &recordingAudit{}
	router := protectedRouter(RequireStaff(), Audit(audit, models.AuditActionEnrollmentExport, "enrollments"))

	call(router, "Bearer guardian")
	assert.Empty(t, audit.logs)

	call(router, "Bearer registrar")
	require.Len(t, audit.logs, 1)
	entry := audit.logs[0]
	assert.Equal(t, models.AuditActionEnrollmentExport, entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "u-r", *entry.UserID)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "enr-1", *entry.ResourceID)
	assert.Contains(t, string(entry.NewValues), `"query":"format=csv"`)
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &recordingObserver{}
	router := gin.New()
	router.Use(Metrics(observer))
	router.GET("/enrollments/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/enrollments/abc", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, []string{"/enrollments/:id", "unmatched"}, observer.paths)
	assert.Equal(t, []int{http.StatusOK, http.StatusNotFound}, observer.statuses)
}
