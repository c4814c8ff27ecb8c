package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cbhlc-api/internal/models"
	"github.com/noah-isme/cbhlc-api/internal/service"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
	"github.com/noah-isme/cbhlc-api/pkg/response"
)

type feeService interface {
	FeesForGrade(ctx context.Context, gradeLevel, periodID string) (*models.GradeLevelFee, error)
	List(ctx context.Context, filter models.GradeLevelFeeFilter) ([]models.GradeLevelFeeView, error)
	Create(ctx context.Context, actor service.Actor, req service.GradeLevelFeeRequest) (*models.GradeLevelFeeView, error)
	Update(ctx context.Context, actor service.Actor, id string, req service.GradeLevelFeeRequest) (*models.GradeLevelFeeView, error)
}

// FeeHandler exposes grade level fee endpoints.
type FeeHandler struct {
	fees feeService
}

// NewFeeHandler constructs FeeHandler.
func NewFeeHandler(fees feeService) *FeeHandler {
	return &FeeHandler{fees: fees}
}

// List godoc
// @Summary List fee schedules
// @Tags Fees
// @Produce json
// @Param enrollment_period_id query string false "Enrollment period"
// @Param grade_level query string false "Grade level"
// @Param active query bool false "Only active schedules"
// @Success 200 {object} response.Envelope
// @Router /fees [get]
func (h *FeeHandler) List(c *gin.Context) {
	filter := models.GradeLevelFeeFilter{
		EnrollmentPeriodID: c.Query("enrollment_period_id"),
		GradeLevel:         c.Query("grade_level"),
	}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Field("active", "Must be true or false"))
			return
		}
		filter.IsActive = &active
	}
	fees, err := h.fees.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fees, nil)
}

// Lookup godoc
// @Summary Fees for a grade level
// @Description Uses the current school year's period when enrollment_period_id is omitted.
// @Tags Fees
// @Produce json
// @Param grade_level path string true "Grade level"
// @Param enrollment_period_id query string false "Enrollment period"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /fees/grade/{grade_level} [get]
func (h *FeeHandler) Lookup(c *gin.Context) {
	fee, err := h.fees.FeesForGrade(c.Request.Context(), c.Param("grade_level"), c.Query("enrollment_period_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if fee == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "no fee schedule for this grade level"))
		return
	}
	response.JSON(c, http.StatusOK, fee.View(), nil)
}

// Create godoc
// @Summary Create fee schedule
// @Tags Fees
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.GradeLevelFeeRequest true "Fee payload"
// @Success 201 {object} response.Envelope
// @Router /fees [post]
func (h *FeeHandler) Create(c *gin.Context) {
	var req service.GradeLevelFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	fee, err := h.fees.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, fee)
}

// Update godoc
// @Summary Update fee schedule
// @Tags Fees
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Fee ID"
// @Param payload body service.GradeLevelFeeRequest true "Fee payload"
// @Success 200 {object} response.Envelope
// @Router /fees/{id} [put]
func (h *FeeHandler) Update(c *gin.Context) {
	var req service.GradeLevelFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	fee, err := h.fees.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fee, nil)
}
