package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cbhlc-api/internal/models"
	"github.com/noah-isme/cbhlc-api/pkg/response"
)

type dashboardService interface {
	Summary(ctx context.Context, schoolYearID string) (*models.DashboardSummary, bool, error)
}

type auditService interface {
	List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, *models.Pagination, error)
}

// DashboardHandler serves the staff dashboard and the audit trail.
type DashboardHandler struct {
	service dashboardService
	audit   auditService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService, audit auditService) *DashboardHandler {
	return &DashboardHandler{service: service, audit: audit}
}

// Summary godoc
// @Summary Enrollment and collection summary
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Param school_year_id query string false "School year, all years when omitted"
// @Success 200 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	summary, hit, err := h.service.Summary(c.Request.Context(), c.Query("school_year_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil, map[string]interface{}{"cache_hit": hit})
}

// AuditLogs godoc
// @Summary Audit trail
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Param resource query string false "Resource"
// @Param resource_id query string false "Resource ID"
// @Param action query string false "Action"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit-logs [get]
func (h *DashboardHandler) AuditLogs(c *gin.Context) {
	filter := models.AuditLogFilter{
		Resource:   c.Query("resource"),
		ResourceID: c.Query("resource_id"),
		Action:     c.Query("action"),
	}
	filter.Page, filter.PageSize = paging(c)
	logs, pagination, err := h.audit.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}
