package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cbhlc-api/internal/models"
	"github.com/noah-isme/cbhlc-api/internal/service"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
	"github.com/noah-isme/cbhlc-api/pkg/response"
)

type documentService interface {
	Upload(ctx context.Context, actor service.Actor, req service.UploadDocumentRequest, content io.Reader) (*models.Document, error)
	List(ctx context.Context, actor service.Actor, studentID string) ([]models.Document, error)
	Review(ctx context.Context, actor service.Actor, id string, req service.ReviewDocumentRequest) (*models.Document, error)
	DownloadURL(ctx context.Context, actor service.Actor, id string) (*models.DocumentDownload, error)
	Open(ctx context.Context, token string) (*models.Document, []byte, error)
	Delete(ctx context.Context, actor service.Actor, id string) error
}

// DocumentHandler exposes supporting document endpoints.
type DocumentHandler struct {
	documents documentService
}

// NewDocumentHandler constructs DocumentHandler.
func NewDocumentHandler(documents documentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// Upload godoc
// @Summary Upload a supporting document
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param student_id formData string true "Student ID"
// @Param type formData string true "Document type"
// @Param file formData file true "PDF, JPEG or PNG"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Field("file", "A file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	defer file.Close()

	req := service.UploadDocumentRequest{
		StudentID: c.PostForm("student_id"),
		Type:      models.DocumentType(strings.ToLower(c.PostForm("type"))),
		Filename:  header.Filename,
	}
	doc, err := h.documents.Upload(c.Request.Context(), actorFromContext(c), req, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// List godoc
// @Summary Documents uploaded for a student
// @Tags Documents
// @Produce json
// @Security BearerAuth
// @Param student_id query string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	studentID := c.Query("student_id")
	if studentID == "" {
		response.Error(c, appErrors.Field("student_id", "Student is required"))
		return
	}
	docs, err := h.documents.List(c.Request.Context(), actorFromContext(c), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// Review godoc
// @Summary Verify or reject a document
// @Tags Documents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Document ID"
// @Param payload body service.ReviewDocumentRequest true "Verdict"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/review [post]
func (h *DocumentHandler) Review(c *gin.Context) {
	var req service.ReviewDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	doc, err := h.documents.Review(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// DownloadURL godoc
// @Summary Issue a short lived download link
// @Tags Documents
// @Produce json
// @Security BearerAuth
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/download-url [get]
func (h *DocumentHandler) DownloadURL(c *gin.Context) {
	link, err := h.documents.DownloadURL(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download a document with a signed token
// @Tags Documents
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /documents/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "download token required"))
		return
	}
	doc, data, err := h.documents.Open(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, doc.OriginalName, doc.MimeType, data)
}

// Delete godoc
// @Summary Delete a document
// @Tags Documents
// @Security BearerAuth
// @Param id path string true "Document ID"
// @Success 204
// @Router /documents/{id} [delete]
func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.documents.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
