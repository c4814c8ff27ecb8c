package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cbhlc-api/internal/models"
	"github.com/noah-isme/cbhlc-api/internal/service"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
)

type fakeDocumentService struct {
	lastUpload  service.UploadDocumentRequest
	lastContent []byte
	lastToken   string
	openErr     error
	deleted     string
}

func (f *fakeDocumentService) Upload(ctx context.Context, actor service.Actor, req service.UploadDocumentRequest, content io.Reader) (*models.Document, error) {
	f.lastUpload = req
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	f.lastContent = data
	return &models.Document{ID: "doc-1", StudentID: req.StudentID, Type: req.Type, OriginalName: req.Filename}, nil
}

func (f *fakeDocumentService) List(ctx context.Context, actor service.Actor, studentID string) ([]models.Document, error) {
	return []models.Document{{ID: "doc-1", StudentID: studentID}}, nil
}

func (f *fakeDocumentService) Review(ctx context.Context, actor service.Actor, id string, req service.ReviewDocumentRequest) (*models.Document, error) {
	return &models.Document{ID: id, Status: req.Status}, nil
}

func (f *fakeDocumentService) DownloadURL(ctx context.Context, actor service.Actor, id string) (*models.DocumentDownload, error) {
	return &models.DocumentDownload{URL: "/api/v1/documents/download?token=abc"}, nil
}

func (f *fakeDocumentService) Open(ctx context.Context, token string) (*models.Document, []byte, error) {
	f.lastToken = token
	if f.openErr != nil {
		return nil, nil, f.openErr
	}
	return &models.Document{ID: "doc-1", OriginalName: "birth.pdf", MimeType: "application/pdf"}, []byte("%PDF-1.4"), nil
}

func (f *fakeDocumentService) Delete(ctx context.Context, actor service.Actor, id string) error {
	f.deleted = id
	return nil
}

func multipartUpload(t *testing.T, withFile bool) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("student_id", "stu-1"))
	require.NoError(t, writer.WriteField("type", "BIRTH_CERTIFICATE"))
	if withFile {
		part, err := writer.CreateFormFile("file", "birth.pdf")
		require.NoError(t, err)
		_, err = part.Write([]byte("%PDF-1.4 test"))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	req := httptest.NewRequest(http.MethodPost, "/documents", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestDocumentUploadMultipart(t *testing.T) {
	svc := &fakeDocumentService{}
	h := NewDocumentHandler(svc)
	c, rec := testContext(http.MethodPost, "/documents", guardianClaims)
	c.Request = multipartUpload(t, true)

	h.Upload(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "stu-1", svc.lastUpload.StudentID)
	assert.Equal(t, models.DocumentTypeBirthCertificate, svc.lastUpload.Type)
	assert.Equal(t, "birth.pdf", svc.lastUpload.Filename)
	assert.Equal(t, []byte("%PDF-1.4 test"), svc.lastContent)
}

func TestDocumentUploadRequiresFile(t *testing.T) {
	h := NewDocumentHandler(&fakeDocumentService{})
	c, rec := testContext(http.MethodPost, "/documents", guardianClaims)
	c.Request = multipartUpload(t, false)

	h.Upload(c)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	env := decode(t, rec)
	require.NotNil(t, env.Error)
	require.Len(t, env.Error.Fields, 1)
	assert.Equal(t, "file", env.Error.Fields[0].Field)
}

func TestDocumentDownloadStreamsFile(t *testing.T) {
	svc := &fakeDocumentService{}
	h := NewDocumentHandler(svc)
	c, rec := testContext(http.MethodGet, "/documents/download?token=abc", nil)

	h.Download(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", svc.lastToken)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "birth.pdf")
	assert.Equal(t, "%PDF-1.4", rec.Body.String())
}

func TestDocumentDownloadRejectsBadToken(t *testing.T) {
	h := NewDocumentHandler(&fakeDocumentService{openErr: appErrors.Clone(appErrors.ErrForbidden, "download link expired")})

	c, rec := testContext(http.MethodGet, "/documents/download", nil)
	h.Download(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	c, rec = testContext(http.MethodGet, "/documents/download?token=old", nil)
	h.Download(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDocumentListNeedsStudent(t *testing.T) {
	h := NewDocumentHandler(&fakeDocumentService{})
	c, rec := testContext(http.MethodGet, "/documents", guardianClaims)

	h.List(c)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDocumentDelete(t *testing.T) {
	svc := &fakeDocumentService{}
	h := NewDocumentHandler(svc)
	c, rec := testContext(http.MethodDelete, "/documents/doc-1", guardianClaims)
	c.AddParam("id", "doc-1")

	h.Delete(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Empty(t, rec.Body.Bytes())
	assert.Equal(t, "doc-1", svc.deleted)
}
