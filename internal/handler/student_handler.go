package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cbhlc-api/internal/models"
	"github.com/noah-isme/cbhlc-api/internal/service"
	"github.com/noah-isme/cbhlc-api/pkg/response"
)

type studentService interface {
	List(ctx context.Context, actor service.Actor, filter models.StudentFilter) ([]models.Student, *models.Pagination, error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.Student, error)
	Create(ctx context.Context, actor service.Actor, req service.StudentRequest) (*models.Student, error)
	Update(ctx context.Context, actor service.Actor, id string, req service.StudentRequest) (*models.Student, error)
	Delete(ctx context.Context, actor service.Actor, id string) error
}

type guardianService interface {
	Profile(ctx context.Context, actor service.Actor) (*models.Guardian, error)
	SaveProfile(ctx context.Context, actor service.Actor, req service.GuardianProfileRequest) (*models.Guardian, error)
	Get(ctx context.Context, id string) (*models.Guardian, error)
	Delete(ctx context.Context, actor service.Actor, id string) error
}

// StudentHandler exposes student and guardian endpoints.
type StudentHandler struct {
	students  studentService
	guardians guardianService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students studentService, guardians guardianService) *StudentHandler {
	return &StudentHandler{students: students, guardians: guardians}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param search query string false "Search by name"
// @Param grade_level query string false "Grade level"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	filter := models.StudentFilter{
		GuardianID: c.Query("guardian_id"),
		GradeLevel: c.Query("grade_level"),
		Search:     strings.TrimSpace(c.Query("search")),
	}
	filter.Page, filter.PageSize = paging(c)
	students, pagination, err := h.students.List(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Get student detail
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.students.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Create godoc
// @Summary Register a student
// @Tags Students
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.StudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req service.StudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	student, err := h.students.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Update godoc
// @Summary Update student
// @Tags Students
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param payload body service.StudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	var req service.StudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	student, err := h.students.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Delete godoc
// @Summary Remove student
// @Tags Students
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 204
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	if err := h.students.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Profile godoc
// @Summary Signed in guardian's profile
// @Tags Guardians
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /guardians/me [get]
func (h *StudentHandler) Profile(c *gin.Context) {
	guardian, err := h.guardians.Profile(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, guardian, nil)
}

// SaveProfile godoc
// @Summary Create or update the signed in guardian's profile
// @Tags Guardians
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.GuardianProfileRequest true "Profile"
// @Success 200 {object} response.Envelope
// @Router /guardians/me [put]
func (h *StudentHandler) SaveProfile(c *gin.Context) {
	var req service.GuardianProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	guardian, err := h.guardians.SaveProfile(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, guardian, nil)
}

// GetGuardian godoc
// @Summary Get guardian
// @Tags Guardians
// @Produce json
// @Security BearerAuth
// @Param id path string true "Guardian ID"
// @Success 200 {object} response.Envelope
// @Router /guardians/{id} [get]
func (h *StudentHandler) GetGuardian(c *gin.Context) {
	guardian, err := h.guardians.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, guardian, nil)
}

// DeleteGuardian godoc
// @Summary Remove guardian
// @Tags Guardians
// @Security BearerAuth
// @Param id path string true "Guardian ID"
// @Success 204
// @Router /guardians/{id} [delete]
func (h *StudentHandler) DeleteGuardian(c *gin.Context) {
	if err := h.guardians.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
