package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cbhlc-api/internal/models"
	"github.com/noah-isme/cbhlc-api/internal/service"
	"github.com/noah-isme/cbhlc-api/pkg/response"
)

type schoolYearService interface {
	List(ctx context.Context) ([]models.SchoolYear, error)
	Current(ctx context.Context) (*models.SchoolYear, error)
	Create(ctx context.Context, req service.CreateSchoolYearRequest) (*models.SchoolYear, error)
	SetCurrent(ctx context.Context, id string) (*models.SchoolYear, error)
}

// SchoolYearHandler exposes school year endpoints.
type SchoolYearHandler struct {
	years schoolYearService
}

// NewSchoolYearHandler constructs the handler.
func NewSchoolYearHandler(years schoolYearService) *SchoolYearHandler {
	return &SchoolYearHandler{years: years}
}

// List godoc
// @Summary List school years
// @Tags School Years
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /school-years [get]
func (h *SchoolYearHandler) List(c *gin.Context) {
	years, err := h.years.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, years, nil)
}

// Current godoc
// @Summary Current school year
// @Tags School Years
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /school-years/current [get]
func (h *SchoolYearHandler) Current(c *gin.Context) {
	year, err := h.years.Current(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}

// Create godoc
// @Summary Create school year
// @Tags School Years
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateSchoolYearRequest true "School year"
// @Success 201 {object} response.Envelope
// @Router /school-years [post]
func (h *SchoolYearHandler) Create(c *gin.Context) {
	var req service.CreateSchoolYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	year, err := h.years.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, year)
}

// SetCurrent godoc
// @Summary Mark a school year as current
// @Tags School Years
// @Produce json
// @Security BearerAuth
// @Param id path string true "School year ID"
// @Success 200 {object} response.Envelope
// @Router /school-years/{id}/current [post]
func (h *SchoolYearHandler) SetCurrent(c *gin.Context) {
	year, err := h.years.SetCurrent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}
