package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/cbhlc-api/internal/models"
	"github.com/noah-isme/cbhlc-api/internal/repository"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
	"github.com/noah-isme/cbhlc-api/pkg/export"
	log "github.com/noah-isme/cbhlc-api/pkg/logger"
	"github.com/noah-isme/cbhlc-api/pkg/money"
)

type paymentRepository interface {
	Record(ctx context.Context, payment *models.Payment, enrollment *models.Enrollment, invoice *models.Invoice) error
	SetReceiptPath(ctx context.Context, id, path string) error
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error)
}

// RecordPaymentRequest is a payment received by the registrar.
type RecordPaymentRequest struct {
	Amount    money.Amount         `json:"amount" validate:"gt=0"`
	Method    models.PaymentMethod `json:"method" validate:"required,oneof=cash bank_transfer gcash check"`
	Reference string               `json:"reference" validate:"max=100"`
	Notes     string               `json:"notes" validate:"max=1000"`
	PaidAt    *time.Time           `json:"paid_at"`
}

// PaymentServiceParams groups constructor dependencies.
type PaymentServiceParams struct {
	Repo        paymentRepository
	Enrollments enrollmentFinder
	Invoices    invoiceRepository
	Guardians   guardianFinder
	Files       fileStore
	Notifier    userNotifier
	Audit       auditWriter
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
	Config      BillingConfig
}

// PaymentService records payments and issues official receipts.
type PaymentService struct {
	repo        paymentRepository
	enrollments enrollmentFinder
	invoices    invoiceRepository
	guardians   guardianFinder
	files       fileStore
	notifier    userNotifier
	audit       auditWriter
	metrics     *MetricsService
	pdf         *export.PDFExporter
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         BillingConfig
	now         func() time.Time
}

// NewPaymentService constructs the service.
func NewPaymentService(params PaymentServiceParams) *PaymentService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	return &PaymentService{
		repo:        params.Repo,
		enrollments: params.Enrollments,
		invoices:    params.Invoices,
		guardians:   params.Guardians,
		files:       params.Files,
		notifier:    params.Notifier,
		audit:       params.Audit,
		metrics:     params.Metrics,
		pdf:         export.NewPDFExporter(),
		validator:   validate,
		logger:      logger,
		cfg:         params.Config.withDefaults(),
		now:         time.Now,
	}
}

// Record applies a payment to an approved enrollment and its invoice.
func (s *PaymentService) Record(ctx context.Context, actor Actor, enrollmentID string, req RecordPaymentRequest) (*models.PaymentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidator(err)
	}
	detail, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, notFound(err, "enrollment")
	}
	enrollment := detail.Enrollment
	if !enrollment.IsApproved() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "payments can only be recorded for approved enrollments")
	}
	if req.Amount > enrollment.BalanceDue {
		return nil, appErrors.Field("amount", fmt.Sprintf("Amount exceeds the outstanding balance of %s", enrollment.BalanceDue.Format(s.cfg.Currency)))
	}

	var invoice *models.InvoiceDetail
	invoice, err = s.invoices.FindByEnrollment(ctx, enrollmentID)
	if err != nil && !isNoRows(err) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice")
	}

	before := map[string]interface{}{"status": enrollment.Status, "amount_paid": enrollment.AmountPaid, "balance": enrollment.BalanceDue}
	enrollment.ApplyPayment(req.Amount)

	now := s.now().UTC()
	payment := &models.Payment{
		EnrollmentID:  enrollment.ID,
		Amount:        req.Amount,
		Method:        req.Method,
		Reference:     req.Reference,
		ReceiptNumber: billingNumber("OR", now),
		Notes:         req.Notes,
		RecordedBy:    actor.UserID,
		PaidAt:        now,
	}
	if req.PaidAt != nil {
		payment.PaidAt = req.PaidAt.UTC()
	}
	var inv *models.Invoice
	if invoice != nil {
		invoice.AmountPaid += req.Amount
		invoice.Status = models.InvoiceStatusFor(enrollment.PaymentStatus)
		inv = &invoice.Invoice
		invoiceID := invoice.ID
		payment.InvoiceID = &invoiceID
	}

	if err := s.repo.Record(ctx, payment, &enrollment, inv); err != nil {
		switch {
		case errors.Is(err, repository.ErrStaleWrite):
			return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment changed, reload and try again")
		case isNoRows(err):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}

	s.storeReceipt(ctx, payment, detail)
	s.metrics.ObservePayment(payment.Amount.Cents())
	s.metrics.ObserveEnrollment(string(enrollment.Status))
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionPaymentRecord, "enrollment", enrollment.ID, before, map[string]interface{}{
		"status":         enrollment.Status,
		"amount_paid":    enrollment.AmountPaid,
		"balance":        enrollment.BalanceDue,
		"payment_id":     payment.ID,
		"receipt_number": payment.ReceiptNumber,
	})
	s.notifyGuardian(ctx, &enrollment, payment, detail.StudentName)

	return &models.PaymentResult{Payment: *payment, Enrollment: enrollment, Invoice: inv}, nil
}

// List returns the payments of an enrollment.
func (s *PaymentService) List(ctx context.Context, actor Actor, enrollmentID string) ([]models.Payment, error) {
	if _, err := authorizeEnrollment(ctx, s.enrollments, s.guardians, actor, enrollmentID); err != nil {
		return nil, err
	}
	payments, err := s.repo.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	return payments, nil
}

// Receipt returns the official receipt PDF of a payment, rendering it when
// the stored copy is missing.
func (s *PaymentService) Receipt(ctx context.Context, actor Actor, paymentID string) ([]byte, string, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, "", notFound(err, "payment")
	}
	detail, err := authorizeEnrollment(ctx, s.enrollments, s.guardians, actor, payment.EnrollmentID)
	if err != nil {
		return nil, "", err
	}
	filename := payment.ReceiptNumber + ".pdf"
	if payment.ReceiptPath != nil && s.files != nil {
		data, err := s.files.Read(*payment.ReceiptPath)
		if err == nil {
			return data, filename, nil
		}
		s.logger.Warn("stored receipt unreadable, rendering again", zap.String("payment_id", payment.ID), zap.Error(err))
	}
	data, err := s.pdf.RenderBilling(receiptDocument(payment, detail, s.cfg))
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	return data, filename, nil
}

func (s *PaymentService) storeReceipt(ctx context.Context, payment *models.Payment, detail *models.EnrollmentDetail) {
	if s.files == nil {
		return
	}
	data, err := s.pdf.RenderBilling(receiptDocument(payment, detail, s.cfg))
	if err != nil {
		s.logger.Warn("failed to render receipt", zap.String("payment_id", payment.ID), zap.Error(err))
		return
	}
	stored, err := s.files.Save(fmt.Sprintf("receipts/%s/%s.pdf", payment.EnrollmentID, payment.ReceiptNumber), data)
	if err != nil {
		s.logger.Warn("failed to store receipt", zap.String("payment_id", payment.ID), zap.Error(err))
		return
	}
	if err := s.repo.SetReceiptPath(ctx, payment.ID, stored.Path); err != nil {
		s.logger.Warn("failed to save receipt path", zap.String("payment_id", payment.ID), zap.Error(err))
		return
	}
	payment.ReceiptPath = &stored.Path
}

func (s *PaymentService) notifyGuardian(ctx context.Context, enrollment *models.Enrollment, payment *models.Payment, studentName string) {
	if s.notifier == nil {
		return
	}
	userID, err := guardianUserID(ctx, s.guardians, enrollment.GuardianID)
	if err != nil {
		s.logger.Warn("failed to resolve guardian for payment notification", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
		return
	}
	err = s.notifier.NotifyUsers(ctx, []string{userID}, NotificationMessage{
		Type:  models.NotificationPaymentReceived,
		Title: "Payment received",
		Message: fmt.Sprintf("We received %s for %s. Receipt %s. Remaining balance %s.",
			payment.Amount.Format(s.cfg.Currency), studentName, payment.ReceiptNumber, enrollment.BalanceDue.Format(s.cfg.Currency)),
		Data: map[string]string{"enrollment_id": enrollment.ID, "payment_id": payment.ID},
	})
	if err != nil {
		log.FromContext(ctx, s.logger).Warn("failed to notify guardian of payment", zap.String("payment_id", payment.ID), zap.Error(err))
	}
}

func receiptDocument(payment *models.Payment, detail *models.EnrollmentDetail, cfg BillingConfig) export.BillingDocument {
	reference := payment.Reference
	if reference == "" {
		reference = "-"
	}
	return export.BillingDocument{
		Title:      "Official Receipt",
		SchoolName: cfg.SchoolName,
		Number:     payment.ReceiptNumber,
		IssuedAt:   payment.PaidAt,
		BilledTo:   detail.GuardianName,
		Details: [][2]string{
			{"Student", detail.StudentName},
			{"School year", detail.SchoolYearName},
			{"Method", humanize(string(payment.Method))},
			{"Reference", reference},
		},
		Lines: []export.Line{{Description: "Enrollment fees payment", Amount: payment.Amount.Format(cfg.Currency)}},
		Totals: []export.Line{
			{Description: "Amount received", Amount: payment.Amount.Format(cfg.Currency)},
		},
		Footer: "This serves as your official receipt.",
	}
}
