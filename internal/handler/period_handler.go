package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cbhlc-api/internal/models"
	"github.com/noah-isme/cbhlc-api/internal/service"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
	"github.com/noah-isme/cbhlc-api/pkg/response"
)

type periodService interface {
	List(ctx context.Context, filter models.EnrollmentPeriodFilter) ([]models.EnrollmentPeriodDetail, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.EnrollmentPeriodDetail, error)
	Active(ctx context.Context) (*models.EnrollmentPeriodDetail, error)
	Create(ctx context.Context, actor service.Actor, req service.EnrollmentPeriodRequest) (*models.EnrollmentPeriodDetail, error)
	Update(ctx context.Context, actor service.Actor, id string, req service.EnrollmentPeriodRequest) (*models.EnrollmentPeriodDetail, error)
	Activate(ctx context.Context, actor service.Actor, id string) (*models.EnrollmentPeriodDetail, error)
	Close(ctx context.Context, actor service.Actor, id string) (*models.EnrollmentPeriodDetail, error)
	Delete(ctx context.Context, actor service.Actor, id string) error
}

type sweepRunner interface {
	Run(ctx context.Context, opts service.SweepOptions) (*service.SweepReport, error)
}

// PeriodHandler exposes enrollment period endpoints.
type PeriodHandler struct {
	periods periodService
	sweep   sweepRunner
}

// NewPeriodHandler constructs PeriodHandler.
func NewPeriodHandler(periods periodService, sweep sweepRunner) *PeriodHandler {
	return &PeriodHandler{periods: periods, sweep: sweep}
}

// List godoc
// @Summary List enrollment periods
// @Tags Enrollment Periods
// @Produce json
// @Param school_year_id query string false "School year"
// @Param status query string false "upcoming, active or closed"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollment-periods [get]
func (h *PeriodHandler) List(c *gin.Context) {
	filter := models.EnrollmentPeriodFilter{
		SchoolYearID: c.Query("school_year_id"),
		Status:       models.PeriodStatus(strings.ToLower(c.Query("status"))),
	}
	filter.Page, filter.PageSize = paging(c)
	periods, pagination, err := h.periods.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, periods, pagination)
}

// Active godoc
// @Summary Current active enrollment period
// @Description Public. Returns 404 when no period is active.
// @Tags Enrollment Periods
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollment-periods/active [get]
func (h *PeriodHandler) Active(c *gin.Context) {
	period, err := h.periods.Active(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period, nil)
}

// Get godoc
// @Summary Get enrollment period
// @Tags Enrollment Periods
// @Produce json
// @Param id path string true "Period ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollment-periods/{id} [get]
func (h *PeriodHandler) Get(c *gin.Context) {
	period, err := h.periods.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period, nil)
}

// Create godoc
// @Summary Create enrollment period
// @Description Creating an active period closes the one currently active.
// @Tags Enrollment Periods
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.EnrollmentPeriodRequest true "Period payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /enrollment-periods [post]
func (h *PeriodHandler) Create(c *gin.Context) {
	var req service.EnrollmentPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	period, err := h.periods.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, period)
}

// Update godoc
// @Summary Update enrollment period
// @Tags Enrollment Periods
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Period ID"
// @Param payload body service.EnrollmentPeriodRequest true "Period payload"
// @Success 200 {object} response.Envelope
// @Router /enrollment-periods/{id} [put]
func (h *PeriodHandler) Update(c *gin.Context) {
	var req service.EnrollmentPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	period, err := h.periods.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period, nil)
}

// Activate godoc
// @Summary Activate enrollment period
// @Tags Enrollment Periods
// @Produce json
// @Security BearerAuth
// @Param id path string true "Period ID"
// @Success 200 {object} response.Envelope
// @Router /enrollment-periods/{id}/activate [post]
func (h *PeriodHandler) Activate(c *gin.Context) {
	period, err := h.periods.Activate(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Flash(c, http.StatusOK, period, "enrollment period activated")
}

// Close godoc
// @Summary Close enrollment period
// @Tags Enrollment Periods
// @Produce json
// @Security BearerAuth
// @Param id path string true "Period ID"
// @Success 200 {object} response.Envelope
// @Router /enrollment-periods/{id}/close [post]
func (h *PeriodHandler) Close(c *gin.Context) {
	period, err := h.periods.Close(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Flash(c, http.StatusOK, period, "enrollment period closed")
}

// Delete godoc
// @Summary Delete enrollment period
// @Tags Enrollment Periods
// @Security BearerAuth
// @Param id path string true "Period ID"
// @Success 204
// @Failure 412 {object} response.Envelope
// @Router /enrollment-periods/{id} [delete]
func (h *PeriodHandler) Delete(c *gin.Context) {
	if err := h.periods.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Sweep godoc
// @Summary Run the period status sweep now
// @Tags Enrollment Periods
// @Produce json
// @Security BearerAuth
// @Param dry_run query bool false "Report without changing anything"
// @Param notify query bool false "Notify administrators of transitions"
// @Success 200 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /enrollment-periods/sweep [post]
func (h *PeriodHandler) Sweep(c *gin.Context) {
	if h.sweep == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	opts := service.SweepOptions{
		DryRun: c.Query("dry_run") == "true",
		Notify: c.Query("notify") == "true",
	}
	report, err := h.sweep.Run(c.Request.Context(), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}{"transitions": len(report.Transitions), "failures": len(report.Failures)}
	response.JSON(c, http.StatusOK, report, nil, meta)
}
