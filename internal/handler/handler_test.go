package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cbhlc-api/internal/middleware"
	"github.com/noah-isme/cbhlc-api/internal/models"
)

type responseEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *errorBody             `json:"error"`
	Meta       map[string]interface{} `json:"meta"`
	Pagination *models.Pagination     `json:"pagination"`
	Message    string                 `json:"message"`
}

type errorBody struct {
	Code   string `json:"code"`
	Fields []struct {
		Field string `json:"field"`
	} `json:"fields"`
}

func testContext(method, target string, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, nil)
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var env responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

var (
	guardianClaims  = &models.JWTClaims{UserID: "user-g1", Role: models.RoleGuardian}
	registrarClaims = &models.JWTClaims{UserID: "user-reg", Role: models.RoleRegistrar}
)

func httptestRequest(method, target, body string) *http.Request {
	return httptest.NewRequest(method, target, strings.NewReader(body))
}
