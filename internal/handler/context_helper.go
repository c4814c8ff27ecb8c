package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cbhlc-api/internal/middleware"
	"github.com/noah-isme/cbhlc-api/internal/service"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
)

// actorFromContext builds the service actor from the JWT claims and request.
func actorFromContext(c *gin.Context) service.Actor {
	actor := service.Actor{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	if claims := middleware.Claims(c); claims != nil {
		actor.UserID = claims.UserID
		actor.Role = claims.Role
	}
	return actor
}

func paging(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}

func invalidPayload(err error) *appErrors.Error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
}
