package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/cbhlc-api/internal/models"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
	log "github.com/noah-isme/cbhlc-api/pkg/logger"
	"github.com/noah-isme/cbhlc-api/pkg/storage"
)

type documentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, id string) (*models.Document, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Document, error)
	UpdateReview(ctx context.Context, doc *models.Document) error
	SoftDelete(ctx context.Context, id string) error
}

type fileStore interface {
	Save(relPath string, data []byte) (storage.StoredFile, error)
	Read(relPath string) ([]byte, error)
	Delete(relPath string) error
}

type downloadSigner interface {
	Generate(resourceID, relPath string) (string, time.Time, error)
	Verify(token string) (storage.DownloadClaims, error)
}

// UploadDocumentRequest describes an uploaded file.
type UploadDocumentRequest struct {
	StudentID string              `json:"student_id" validate:"required"`
	Type      models.DocumentType `json:"type" validate:"required,oneof=birth_certificate report_card good_moral transfer_credential photo other"`
	Filename  string              `json:"filename" validate:"required,max=255"`
}

// ReviewDocumentRequest is the registrar's verdict on a document.
type ReviewDocumentRequest struct {
	Status models.VerificationStatus `json:"status" validate:"required,oneof=verified rejected"`
	Reason string                    `json:"reason" validate:"max=1000"`
}

// DocumentServiceConfig sets upload limits and the download endpoint.
type DocumentServiceConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	DownloadPath     string
}

// DocumentServiceParams groups constructor dependencies.
type DocumentServiceParams struct {
	Repo      documentRepository
	Students  studentFinder
	Guardians guardianFinder
	Files     fileStore
	Signer    downloadSigner
	Notifier  userNotifier
	Audit     auditWriter
	Validator *validator.Validate
	Logger    *zap.Logger
	Config    DocumentServiceConfig
}

// DocumentService stores and reviews student documents.
type DocumentService struct {
	repo      documentRepository
	students  studentFinder
	guardians guardianFinder
	files     fileStore
	signer    downloadSigner
	notifier  userNotifier
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
	cfg       DocumentServiceConfig
	now       func() time.Time
}

// NewDocumentService constructs the service.
func NewDocumentService(params DocumentServiceParams) *DocumentService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	cfg := params.Config
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = 5 << 20
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"application/pdf", "image/jpeg", "image/png"}
	}
	if cfg.DownloadPath == "" {
		cfg.DownloadPath = "/api/v1/documents/download"
	}
	return &DocumentService{
		repo:      params.Repo,
		students:  params.Students,
		guardians: params.Guardians,
		files:     params.Files,
		signer:    params.Signer,
		notifier:  params.Notifier,
		audit:     params.Audit,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Upload validates size and content type, writes the file and records it as pending review.
func (s *DocumentService) Upload(ctx context.Context, actor Actor, req UploadDocumentRequest, content io.Reader) (*models.Document, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidator(err)
	}
	student, err := s.authorizeStudent(ctx, actor, req.StudentID)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(content, s.cfg.MaxFileSizeBytes+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrBadRequest.Code, appErrors.ErrBadRequest.Status, "failed to read upload")
	}
	if len(data) == 0 {
		return nil, appErrors.Field("file", "File is empty")
	}
	if int64(len(data)) > s.cfg.MaxFileSizeBytes {
		return nil, appErrors.Field("file", fmt.Sprintf("File exceeds the %d MB limit", s.cfg.MaxFileSizeBytes>>20))
	}
	mime := mimetype.Detect(data)
	if !s.allowed(mime) {
		return nil, appErrors.Field("file", fmt.Sprintf("File type %s is not accepted", mime.String()))
	}

	doc := &models.Document{
		ID:           uuid.NewString(),
		StudentID:    student.ID,
		Type:         req.Type,
		OriginalName: filepath.Base(req.Filename),
		MimeType:     strings.SplitN(mime.String(), ";", 2)[0],
		Status:       models.VerificationPending,
		UploadedBy:   actor.UserID,
	}
	stored, err := s.files.Save(fmt.Sprintf("students/%s/%s%s", student.ID, doc.ID, mime.Extension()), data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}
	doc.StoragePath = stored.Path
	doc.SizeBytes = stored.Size
	doc.Checksum = stored.Checksum

	if err := s.repo.Create(ctx, doc); err != nil {
		if rmErr := s.files.Delete(stored.Path); rmErr != nil {
			s.logger.Warn("failed to remove orphaned document file", zap.String("path", stored.Path), zap.Error(rmErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save document")
	}

	if s.notifier != nil {
		err := s.notifier.NotifyRoles(ctx, []models.UserRole{models.RoleRegistrar}, NotificationMessage{
			Type:    models.NotificationDocumentUploaded,
			Title:   "Document uploaded",
			Message: fmt.Sprintf("%s uploaded a %s for %s.", actorLabel(actor), humanize(string(doc.Type)), student.FullName()),
			Data:    map[string]string{"document_id": doc.ID, "student_id": student.ID},
		})
		if err != nil {
			log.FromContext(ctx, s.logger).Warn("failed to notify registrars of upload", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}
	return doc, nil
}

// List returns the documents of a student visible to actor.
func (s *DocumentService) List(ctx context.Context, actor Actor, studentID string) ([]models.Document, error) {
	if _, err := s.authorizeStudent(ctx, actor, studentID); err != nil {
		return nil, err
	}
	docs, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	return docs, nil
}

// Review marks a document verified or rejected. Rejection requires a reason.
func (s *DocumentService) Review(ctx context.Context, actor Actor, id string, req ReviewDocumentRequest) (*models.Document, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidator(err)
	}
	if req.Status == models.VerificationRejected && req.Reason == "" {
		return nil, appErrors.Field("reason", "A reason is required when rejecting a document")
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "document")
	}
	before := doc.Status

	now := s.now().UTC()
	doc.Status = req.Status
	doc.VerifiedBy = actor.userIDPtr()
	doc.VerifiedAt = &now
	doc.RejectionReason = nil
	if req.Status == models.VerificationRejected {
		reason := req.Reason
		doc.RejectionReason = &reason
	}
	if err := s.repo.UpdateReview(ctx, doc); err != nil {
		return nil, notFound(err, "document")
	}

	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionDocumentVerify, "document", id,
		map[string]interface{}{"status": before},
		map[string]interface{}{"status": doc.Status, "reason": req.Reason})
	s.notifyOwner(ctx, doc)
	return doc, nil
}

// DownloadURL issues a short lived signed link to the file.
func (s *DocumentService) DownloadURL(ctx context.Context, actor Actor, id string) (*models.DocumentDownload, error) {
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "document")
	}
	if _, err := s.authorizeStudent(ctx, actor, doc.StudentID); err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(doc.ID, doc.StoragePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &models.DocumentDownload{
		URL:       s.cfg.DownloadPath + "?token=" + url.QueryEscape(token),
		ExpiresAt: expiresAt,
	}, nil
}

// Open resolves a signed token to the document and its content.
func (s *DocumentService) Open(ctx context.Context, token string) (*models.Document, []byte, error) {
	claims, err := s.signer.Verify(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	doc, err := s.repo.FindByID(ctx, claims.ResourceID)
	if err != nil {
		return nil, nil, notFound(err, "document")
	}
	if doc.StoragePath != claims.Path {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	data, err := s.files.Read(doc.StoragePath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read document")
	}
	return doc, data, nil
}

// Delete soft deletes a document. Guardians may only remove documents still pending review.
func (s *DocumentService) Delete(ctx context.Context, actor Actor, id string) error {
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return notFound(err, "document")
	}
	if _, err := s.authorizeStudent(ctx, actor, doc.StudentID); err != nil {
		return err
	}
	if !actor.Role.IsStaff() && doc.Status != models.VerificationPending {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "reviewed documents can only be removed by staff")
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return notFound(err, "document")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionDocumentDelete, "document", id, doc, nil)
	return nil
}

func (s *DocumentService) authorizeStudent(ctx context.Context, actor Actor, studentID string) (*models.Student, error) {
	scope, err := guardianScope(ctx, s.guardians, actor)
	if err != nil {
		return nil, err
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, notFound(err, "student")
	}
	if scope != "" && student.GuardianID != scope {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return student, nil
}

func (s *DocumentService) allowed(mime *mimetype.MIME) bool {
	for _, m := range s.cfg.AllowedMIMEs {
		if mime.Is(m) {
			return true
		}
	}
	return false
}

func (s *DocumentService) notifyOwner(ctx context.Context, doc *models.Document) {
	if s.notifier == nil {
		return
	}
	student, err := s.students.FindByID(ctx, doc.StudentID)
	if err != nil {
		s.logger.Warn("failed to load student for review notification", zap.String("document_id", doc.ID), zap.Error(err))
		return
	}
	userID, err := guardianUserID(ctx, s.guardians, student.GuardianID)
	if err != nil {
		s.logger.Warn("failed to resolve guardian for review notification", zap.String("document_id", doc.ID), zap.Error(err))
		return
	}
	message := fmt.Sprintf("The %s of %s was %s.", humanize(string(doc.Type)), student.FullName(), doc.Status)
	if doc.RejectionReason != nil {
		message += " Reason: " + *doc.RejectionReason
	}
	err = s.notifier.NotifyUsers(ctx, []string{userID}, NotificationMessage{
		Type:    models.NotificationDocumentReviewed,
		Title:   "Document reviewed",
		Message: message,
		Data:    map[string]string{"document_id": doc.ID, "status": string(doc.Status)},
	})
	if err != nil {
		log.FromContext(ctx, s.logger).Warn("failed to notify guardian of review", zap.String("document_id", doc.ID), zap.Error(err))
	}
}

func humanize(code string) string {
	return strings.ReplaceAll(code, "_", " ")
}

func actorLabel(actor Actor) string {
	if actor.Role == models.RoleGuardian {
		return "A guardian"
	}
	return "Staff"
}
