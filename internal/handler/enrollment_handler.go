package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cbhlc-api/internal/models"
	"github.com/noah-isme/cbhlc-api/internal/service"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
	"github.com/noah-isme/cbhlc-api/pkg/response"
)

type enrollmentService interface {
	Submit(ctx context.Context, actor service.Actor, req service.SubmitEnrollmentRequest) (*models.EnrollmentDetail, error)
	List(ctx context.Context, actor service.Actor, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.EnrollmentDetail, error)
	Approve(ctx context.Context, actor service.Actor, id string, req service.ApproveEnrollmentRequest) (*models.EnrollmentDetail, error)
	Reject(ctx context.Context, actor service.Actor, id string, req service.RejectEnrollmentRequest) (*models.EnrollmentDetail, error)
	UpdateStatus(ctx context.Context, actor service.Actor, id string, req service.UpdateEnrollmentStatusRequest) (*models.EnrollmentDetail, error)
	ExportCSV(ctx context.Context, filter models.EnrollmentFilter) ([]byte, error)
	ExportPDF(ctx context.Context, filter models.EnrollmentFilter) ([]byte, error)
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
	now         func() time.Time
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, now: time.Now}
}

func enrollmentFilter(c *gin.Context) models.EnrollmentFilter {
	filter := models.EnrollmentFilter{
		StudentID:     c.Query("student_id"),
		GuardianID:    c.Query("guardian_id"),
		SchoolYearID:  c.Query("school_year_id"),
		GradeLevel:    c.Query("grade_level"),
		Status:        models.EnrollmentStatus(strings.ToLower(c.Query("status"))),
		PaymentStatus: models.PaymentStatus(strings.ToLower(c.Query("payment_status"))),
		Search:        strings.TrimSpace(c.Query("search")),
		SortBy:        c.Query("sort"),
		SortOrder:     c.Query("order"),
	}
	filter.Page, filter.PageSize = paging(c)
	return filter
}

// Submit godoc
// @Summary Submit an enrollment application
// @Description Fees are copied from the grade level schedule of the open period.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.SubmitEnrollmentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Submit(c *gin.Context) {
	var req service.SubmitEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	enrollment, err := h.enrollments.Submit(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// List godoc
// @Summary List enrollments
// @Description Guardians only see their own children's enrollments.
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param status query string false "Enrollment status"
// @Param payment_status query string false "Payment status"
// @Param school_year_id query string false "School year"
// @Param grade_level query string false "Grade level"
// @Param search query string false "Student name or enrollment number"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), actorFromContext(c), enrollmentFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Get godoc
// @Summary Get enrollment
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	enrollment, err := h.enrollments.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Approve godoc
// @Summary Approve enrollment and issue the invoice
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Param payload body service.ApproveEnrollmentRequest false "Discount and remarks"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /enrollments/{id}/approve [post]
func (h *EnrollmentHandler) Approve(c *gin.Context) {
	var req service.ApproveEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, invalidPayload(err))
		return
	}
	enrollment, err := h.enrollments.Approve(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Flash(c, http.StatusOK, enrollment, "enrollment approved")
}

// Reject godoc
// @Summary Reject enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Param payload body service.RejectEnrollmentRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/reject [post]
func (h *EnrollmentHandler) Reject(c *gin.Context) {
	var req service.RejectEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	enrollment, err := h.enrollments.Reject(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Flash(c, http.StatusOK, enrollment, "enrollment rejected")
}

// UpdateStatus godoc
// @Summary Move enrollment to another status
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Param payload body service.UpdateEnrollmentStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /enrollments/{id}/status [patch]
func (h *EnrollmentHandler) UpdateStatus(c *gin.Context) {
	var req service.UpdateEnrollmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	enrollment, err := h.enrollments.UpdateStatus(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Export godoc
// @Summary Export enrollments as CSV or PDF
// @Tags Enrollments
// @Produce text/csv,application/pdf
// @Security BearerAuth
// @Param format query string false "csv (default) or pdf"
// @Param status query string false "Enrollment status"
// @Param school_year_id query string false "School year"
// @Success 200 {file} file
// @Router /enrollments/export [get]
func (h *EnrollmentHandler) Export(c *gin.Context) {
	filter := enrollmentFilter(c)
	stamp := h.now().Format("20060102")
	switch strings.ToLower(c.DefaultQuery("format", "csv")) {
	case "csv":
		data, err := h.enrollments.ExportCSV(c.Request.Context(), filter)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.File(c, fmt.Sprintf("enrollments-%s.csv", stamp), "text/csv; charset=utf-8", data)
	case "pdf":
		data, err := h.enrollments.ExportPDF(c.Request.Context(), filter)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.File(c, fmt.Sprintf("enrollments-%s.pdf", stamp), "application/pdf", data)
	default:
		response.Error(c, appErrors.Field("format", "must be csv or pdf"))
	}
}
